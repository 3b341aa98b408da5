package keys

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/logging"
)

func TestFetchNonce(t *testing.T) {
	tok48 := strings.Repeat("aB3", 16)
	a, b, c := strings.Repeat("a", 16), strings.Repeat("B", 16), strings.Repeat("9", 16)

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"single 48 char token", `<script>window._xy = "` + tok48 + `";</script>`, tok48, false},
		{"three 16 char tokens", "<p>" + a + "</p>\n<div>" + b + "</div>\n<i>" + c + "</i>", a + b + c, false},
		{"48 wins over 16s", a + " " + tok48 + " " + b + " " + c, tok48, false},
		{"longer token is not a match", strings.Repeat("x", 50), "", true},
		{"nothing", "<html><body>hi</body></html>", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FetchNonce(tt.body)
			if tt.wantErr {
				if !errors.Is(err, ErrNonceNotFound) {
					t.Fatalf("FetchNonce() error = %v, want ErrNonceNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchNonce() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("FetchNonce() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchClientKey(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"meta", `<meta name="_gg_fb" content="abc123">`, "abc123"},
		{"comment", `<!-- _is_th:Key42 -->`, "Key42"},
		{"lk_db triple", `<script>window._lk_db = {y: "BB", x: "AA", z: "CC"};</script>`, "AABBCC"},
		{"data-dpi", `<div data-dpi="dpiKey" class="x"></div>`, "dpiKey"},
		{"script nonce", `<script nonce="n0nce">var a=1;</script>`, "n0nce"},
		{"xy_ws", "<script>window._xy_ws = `wsKey`;</script>", "wsKey"},
		{"nonce fallback", "x " + strings.Repeat("k", 48) + " y", strings.Repeat("k", 48)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FetchClientKey(tt.body)
			if err != nil {
				t.Fatalf("FetchClientKey() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FetchClientKey() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := FetchClientKey("<html></html>"); !errors.Is(err, ErrNonceNotFound) {
		t.Errorf("FetchClientKey() error = %v, want ErrNonceNotFound", err)
	}
}

func TestSharedKeyFetcher(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		key     string
		want    string
		wantErr bool
	}{
		{"found", http.StatusOK, `{"mega":"s3cret","rabbit":"other"}`, "mega", "s3cret", false},
		{"missing key", http.StatusOK, `{"rabbit":"other"}`, "mega", "", true},
		{"empty value", http.StatusOK, `{"mega":""}`, "mega", "", true},
		{"empty body", http.StatusOK, "", "mega", "", true},
		{"invalid json", http.StatusOK, "not json", "mega", "", true},
		{"server error", http.StatusInternalServerError, `{"mega":"s3cret"}`, "mega", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			log := logging.New("error", false, io.Discard)
			f := NewSharedKeyFetcher(httpclient.New(&config.Config{}, log), server.URL, log)

			got, err := f.FetchSharedKey(context.Background(), tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrKeyFetch) {
					t.Fatalf("FetchSharedKey() error = %v, want ErrKeyFetch", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchSharedKey() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FetchSharedKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSharedKeyFetcher_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	log := logging.New("error", false, io.Discard)
	f := NewSharedKeyFetcher(httpclient.New(&config.Config{}, log), url, log)
	if _, err := f.FetchSharedKey(context.Background(), "mega"); !errors.Is(err, ErrKeyFetch) {
		t.Errorf("FetchSharedKey() error = %v, want ErrKeyFetch", err)
	}
}
