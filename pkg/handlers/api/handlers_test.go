package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"media-extractor-go/pkg/appctx"
	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/extractors"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/registry"
	"media-extractor-go/pkg/services"
	"media-extractor-go/pkg/types"
)

// stubExtractor serves test.example URLs. Paths ending in /missing find
// nothing and /broken fails upstream.
type stubExtractor struct {
	mu       sync.Mutex
	lastOpts interfaces.ExtractOptions
}

func (s *stubExtractor) Name() string { return "stub" }
func (s *stubExtractor) CanExtract(u string) bool {
	return strings.Contains(u, "test.example")
}
func (s *stubExtractor) Close() error { return nil }

func (s *stubExtractor) Extract(_ context.Context, u string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	s.mu.Lock()
	s.lastOpts = opts
	s.mu.Unlock()

	switch {
	case strings.HasSuffix(u, "/missing"):
		return nil, extractors.ErrNoStream
	case strings.HasSuffix(u, "/broken"):
		return nil, errors.New("upstream returned 500")
	}
	quality := "Auto"
	if opts.QualityPrefix != "" {
		quality = opts.QualityPrefix + " - Auto"
	}
	return &types.ExtractResult{
		Streams: []types.StreamSource{types.NewStreamSource(u+".m3u8", quality, "https://test.example/", "", nil)},
	}, nil
}

func newTestHandlers() (*http.ServeMux, *stubExtractor) {
	log := logging.New("error", false, io.Discard)
	cfg := &config.Config{MaxConcurrentExtractions: 2}

	stub := &stubExtractor{}
	reg := registry.NewExtractorRegistry()
	reg.Register(stub)

	ctx := appctx.New(cfg, log).
		WithExtractors(reg).
		WithService(services.NewExtractionService(log, reg, cfg))
	ctx.Version = "test"

	mux := http.NewServeMux()
	NewHandlers(ctx).RegisterRoutes(mux)
	return mux, stub
}

func TestHandlers_APIInfo(t *testing.T) {
	mux, _ := newTestHandlers()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/info", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status     string   `json:"status"`
		Version    string   `json:"version"`
		Extractors []string `json:"extractors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "running" || body.Version != "test" || len(body.Extractors) != 1 {
		t.Errorf("body = %+v", body)
	}
}

func TestHandlers_Extract(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		want     int
		wantURLs int
	}{
		{"missing url", url.Values{}, http.StatusBadRequest, 0},
		{"found", url.Values{"url": {"https://test.example/e/1"}}, http.StatusOK, 1},
		{"d alias", url.Values{"d": {"https://test.example/e/2"}}, http.StatusOK, 1},
		{"nothing found", url.Values{"url": {"https://test.example/missing"}}, http.StatusNotFound, 0},
		{"upstream failure", url.Values{"url": {"https://test.example/broken"}}, http.StatusBadGateway, 0},
		{"no extractor", url.Values{"url": {"https://other.example/x"}}, http.StatusBadGateway, 0},
		{"named extractor", url.Values{"url": {"https://other.example/x"}, "extractor": {"stub"}}, http.StatusOK, 1},
		{"unknown extractor", url.Values{"url": {"https://test.example/e/1"}, "extractor": {"nope"}}, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _ := newTestHandlers()
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extract?"+tt.query.Encode(), nil))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var res types.ExtractResult
			if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
				t.Fatal(err)
			}
			if len(res.Streams) != tt.wantURLs {
				t.Errorf("got %d streams, want %d", len(res.Streams), tt.wantURLs)
			}
		})
	}
}

func TestHandlers_ExtractPassesOptions(t *testing.T) {
	mux, stub := newTestHandlers()
	q := url.Values{
		"url":       {"https://test.example/e/1"},
		"h_Referer": {"https://site.example/"},
		"force":     {"true"},
		"name":      {"Vidcloud"},
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extract?"+q.Encode(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if stub.lastOpts.Headers["Referer"] != "https://site.example/" || !stub.lastOpts.ForceRefresh || stub.lastOpts.QualityPrefix != "Vidcloud" {
		t.Errorf("options = %+v", stub.lastOpts)
	}
}

func TestHandlers_ExtractServers(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		want        int
		wantStreams int
	}{
		{
			name:        "object body",
			body:        `{"servers":[{"name":"A","url":"https://test.example/a"},{"name":"B","url":"https://test.example/broken"},{"name":"C","url":"https://test.example/c"}]}`,
			want:        http.StatusOK,
			wantStreams: 2,
		},
		{
			name:        "bare list",
			body:        `[{"name":"A","url":"https://test.example/a"}]`,
			want:        http.StatusOK,
			wantStreams: 1,
		},
		{
			name: "all fail",
			body: `{"servers":[{"name":"B","url":"https://test.example/broken"}]}`,
			want: http.StatusNotFound,
		},
		{name: "empty", body: `{"servers":[]}`, want: http.StatusBadRequest},
		{name: "invalid json", body: `{`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _ := newTestHandlers()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/extract/servers", strings.NewReader(tt.body))
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var res types.ExtractResult
			if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
				t.Fatal(err)
			}
			if len(res.Streams) != tt.wantStreams {
				t.Fatalf("got %d streams, want %d", len(res.Streams), tt.wantStreams)
			}
			if res.Streams[0].Quality != "A - Auto" {
				t.Errorf("first quality = %q", res.Streams[0].Quality)
			}
		})
	}
}

func TestHandlers_Index(t *testing.T) {
	mux, _ := newTestHandlers()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<li>stub</li>") {
		t.Errorf("index = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}
