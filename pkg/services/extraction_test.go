package services

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/registry"
	"media-extractor-go/pkg/types"
)

// mockExtractor claims URLs with its host and answers per path.
type mockExtractor struct {
	host     string
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *mockExtractor) Name() string               { return "mock" }
func (m *mockExtractor) CanExtract(url string) bool { return strings.Contains(url, m.host) }
func (m *mockExtractor) Close() error               { return nil }

func (m *mockExtractor) Extract(ctx context.Context, url string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	switch {
	case strings.HasSuffix(url, "/fail"):
		return nil, errors.New("upstream broke")
	case strings.HasSuffix(url, "/panic"):
		var broken map[string]int
		broken[url]++
	case strings.HasSuffix(url, "/hang"):
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &types.ExtractResult{
		Streams: []types.StreamSource{
			types.NewStreamSource(url+"/index.m3u8", opts.QualityPrefix+" - Auto", "", "", nil),
		},
		Subtitles: []types.SubtitleTrack{{URL: "https://subs.example/en.vtt", Label: "English"}},
	}, nil
}

func newService(t *testing.T, m *mockExtractor, cfg *config.Config) *ExtractionService {
	t.Helper()
	reg := registry.NewExtractorRegistry()
	reg.Register(m)
	return NewExtractionService(logging.New("error", false, io.Discard), reg, cfg)
}

func TestExtractAll_DropsFailuresKeepsOrder(t *testing.T) {
	m := &mockExtractor{host: "mock.example", delay: 5 * time.Millisecond}
	svc := newService(t, m, &config.Config{MaxConcurrentExtractions: 4, ServerTimeout: time.Second})

	servers := []types.ServerSource{
		{Name: "One", URL: "https://mock.example/one"},
		{Name: "Two", URL: "https://mock.example/fail"},
		{Name: "Three", URL: "https://mock.example/three"},
		{Name: "Four", URL: "https://mock.example/fail"},
		{Name: "Five", URL: "https://mock.example/five"},
	}

	streams := svc.ExtractAll(context.Background(), servers)
	if len(streams) != 3 {
		t.Fatalf("got %d streams, want 3", len(streams))
	}
	for i, want := range []string{"One - Auto", "Three - Auto", "Five - Auto"} {
		if streams[i].Quality != want {
			t.Errorf("stream %d quality = %q, want %q", i, streams[i].Quality, want)
		}
	}
}

func TestExtractAll_BoundedConcurrency(t *testing.T) {
	m := &mockExtractor{host: "mock.example", delay: 20 * time.Millisecond}
	svc := newService(t, m, &config.Config{MaxConcurrentExtractions: 2, ServerTimeout: time.Second})

	servers := make([]types.ServerSource, 6)
	for i := range servers {
		servers[i] = types.ServerSource{Name: "S", URL: "https://mock.example/ok"}
	}

	if got := len(svc.ExtractAll(context.Background(), servers)); got != 6 {
		t.Errorf("got %d streams, want 6", got)
	}
	if peak := m.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestExtractAll_ServerTimeout(t *testing.T) {
	m := &mockExtractor{host: "mock.example"}
	svc := newService(t, m, &config.Config{MaxConcurrentExtractions: 2, ServerTimeout: 50 * time.Millisecond})

	start := time.Now()
	streams := svc.ExtractAll(context.Background(), []types.ServerSource{
		{Name: "Slow", URL: "https://mock.example/hang"},
		{Name: "Fast", URL: "https://mock.example/ok"},
	})
	if time.Since(start) > 2*time.Second {
		t.Error("hanging server was not cut off")
	}
	if len(streams) != 1 || streams[0].Quality != "Fast - Auto" {
		t.Errorf("streams = %+v", streams)
	}
}

func TestExtractServers(t *testing.T) {
	m := &mockExtractor{host: "mock.example"}
	svc := newService(t, m, &config.Config{MaxConcurrentExtractions: 4})

	res, err := svc.ExtractServers(context.Background(), []types.ServerSource{
		{Name: "A", URL: "https://mock.example/a"},
		{Name: "B", URL: "https://mock.example/b"},
		{Name: "Unknown", URL: "https://nobody.example/x"},
	}, interfaces.ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractServers() error = %v", err)
	}
	if len(res.Streams) != 2 {
		t.Errorf("got %d streams, want 2", len(res.Streams))
	}
	if len(res.Subtitles) != 1 {
		t.Errorf("subtitles not merged: %+v", res.Subtitles)
	}

	_, err = svc.ExtractServers(context.Background(), []types.ServerSource{
		{Name: "Bad", URL: "https://mock.example/fail"},
	}, interfaces.ExtractOptions{})
	if !errors.Is(err, ErrNoSources) {
		t.Errorf("ExtractServers() error = %v, want ErrNoSources", err)
	}
}

func TestExtract_Single(t *testing.T) {
	m := &mockExtractor{host: "mock.example"}
	svc := newService(t, m, &config.Config{})

	encoded := base64.URLEncoding.EncodeToString([]byte("https://mock.example/movie"))
	res, err := svc.Extract(context.Background(), encoded, interfaces.ExtractOptions{QualityPrefix: "X"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Streams[0].URL != "https://mock.example/movie/index.m3u8" {
		t.Errorf("URL = %q", res.Streams[0].URL)
	}

	if _, err := svc.Extract(context.Background(), "https://nobody.example/x", interfaces.ExtractOptions{}); err == nil {
		t.Error("expected error when no extractor matches")
	}
}

func TestDecodeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://a.example/x?y=1", "https://a.example/x?y=1"},
		{"https%3A%2F%2Fa.example%2Fx", "https://a.example/x"},
		{base64.StdEncoding.EncodeToString([]byte("https://a.example/b64")), "https://a.example/b64"},
		{"not-a-url", "not-a-url"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := decodeURL(tt.in); got != tt.want {
			t.Errorf("decodeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractAll_RecoversPanickingServer(t *testing.T) {
	m := &mockExtractor{host: "mock.example"}
	svc := newService(t, m, &config.Config{MaxConcurrentExtractions: 2, ServerTimeout: time.Second})

	servers := []types.ServerSource{
		{Name: "Broken", URL: "https://mock.example/panic"},
		{Name: "Good", URL: "https://mock.example/good"},
	}

	streams := svc.ExtractAll(context.Background(), servers)
	if len(streams) != 1 || streams[0].Quality != "Good - Auto" {
		t.Fatalf("streams = %+v, want only the Good server", streams)
	}

	if _, err := svc.ExtractServers(context.Background(), servers[:1], interfaces.ExtractOptions{}); !errors.Is(err, ErrNoSources) {
		t.Errorf("ExtractServers() error = %v, want ErrNoSources", err)
	}
}

func TestExtractWith_NamedExtractor(t *testing.T) {
	m := &mockExtractor{host: "mock.example"}
	svc := newService(t, m, &config.Config{ServerTimeout: time.Second})

	res, err := svc.ExtractWith(context.Background(), "mock", "https://elsewhere.example/v/1", interfaces.ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractWith() error = %v", err)
	}
	if len(res.Streams) != 1 {
		t.Errorf("got %d streams, want 1", len(res.Streams))
	}

	if _, err := svc.ExtractWith(context.Background(), "missing", "https://mock.example/v/1", interfaces.ExtractOptions{}); !errors.Is(err, ErrUnknownExtractor) {
		t.Errorf("ExtractWith() error = %v, want ErrUnknownExtractor", err)
	}
}
