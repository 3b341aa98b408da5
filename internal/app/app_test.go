package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/store"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel:                 "error",
		HTTPTimeout:              time.Second,
		ServerTimeout:            time.Second,
		MaxConcurrentExtractions: 2,
		DecryptMaxAttempts:       2,
		SharedKeyURL:             config.DefaultSharedKeyURL,
	}
}

func TestNew_RegistersExtractors(t *testing.T) {
	a, err := New(testConfig(), "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown()

	want := []string{"megacloud", "rabbitstream", "filemoon", "mixdrop", "streamtape", "vidlink", "generic"}
	if got := a.ExtractorReg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if _, ok := a.Ctx.Store.(store.NoopStore); !ok {
		t.Errorf("Store = %T, want NoopStore without a path", a.Ctx.Store)
	}
	if a.Ctx.Service == nil {
		t.Error("extraction service not wired")
	}

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rec.Code)
	}
}

func TestNew_SQLiteKeyStore(t *testing.T) {
	cfg := testConfig()
	cfg.KeyStorePath = filepath.Join(t.TempDir(), "keys.db")

	a, err := New(cfg, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown()

	if _, ok := a.Ctx.Store.(*store.SQLiteStore); !ok {
		t.Errorf("Store = %T, want *store.SQLiteStore", a.Ctx.Store)
	}
}

func TestNew_BadKeyStorePath(t *testing.T) {
	cfg := testConfig()
	cfg.KeyStorePath = filepath.Join(t.TempDir(), "missing", "dir", "keys.db")

	if _, err := New(cfg, "test"); err == nil {
		t.Error("New() succeeded with an unusable key store path")
	}
}
