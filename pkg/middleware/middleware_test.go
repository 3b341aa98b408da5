package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/logging"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestID(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extract", nil))
	if _, err := uuid.Parse(rec.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID %q is not a uuid: %v", rec.Header().Get("X-Request-ID"), err)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/extract", nil)
	req.Header.Set("X-Request-ID", "given")
	RequestID(ok).ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "given" {
		t.Errorf("X-Request-ID = %q, want given", got)
	}
}

func TestAuth(t *testing.T) {
	log := logging.New("error", false, io.Discard)
	h := Auth(&config.Config{APIPassword: "secret"}, log)(ok)

	tests := []struct {
		name   string
		path   string
		header string
		bearer string
		want   int
	}{
		{"public info", "/api/info", "", "", http.StatusOK},
		{"missing password", "/extract?url=x", "", "", http.StatusUnauthorized},
		{"query password", "/extract?url=x&api_password=secret", "", "", http.StatusOK},
		{"header password", "/extract?url=x", "secret", "", http.StatusOK},
		{"wrong header", "/extract?url=x", "nope", "", http.StatusUnauthorized},
		{"bearer token", "/extract?url=x", "", "secret", http.StatusOK},
		{"wrong bearer token", "/extract?url=x", "", "nope", http.StatusUnauthorized},
		{"health is public", "/health", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Password", tt.header)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	CORS(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/extract/servers", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestRecovery(t *testing.T) {
	log := logging.New("error", false, io.Discard)
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	Recovery(log)(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestLoggingAttachesLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New("debug", false, &buf)
	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "inside handler") || !strings.Contains(out, "request_id=rid-1") {
		t.Errorf("request logger not attached: %q", out)
	}
	if !strings.Contains(out, "status=418") {
		t.Errorf("status not logged: %q", out)
	}
}

func TestLoggingWarnsOnUpstreamFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New("warn", false, &buf)
	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/extract", nil))

	if out := buf.String(); !strings.Contains(out, "request failed") || !strings.Contains(out, "status=502") {
		t.Errorf("5xx not logged at warn: %q", out)
	}
}

func TestAuthIgnoresOtherSchemes(t *testing.T) {
	h := Auth(&config.Config{APIPassword: "secret"}, logging.Discard())(ok)
	req := httptest.NewRequest(http.MethodGet, "/extract", nil)
	req.Header.Set("Authorization", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
