package registry

import (
	"context"
	"strings"
	"testing"

	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/types"
)

type stubExtractor struct {
	name   string
	match  string
	closed bool
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) CanExtract(url string) bool {
	return s.match == "*" || strings.Contains(url, s.match)
}

func (s *stubExtractor) Extract(context.Context, string, interfaces.ExtractOptions) (*types.ExtractResult, error) {
	return &types.ExtractResult{}, nil
}

func (s *stubExtractor) Close() error {
	s.closed = true
	return nil
}

func TestExtractorRegistry_FirstMatch(t *testing.T) {
	r := NewExtractorRegistry()
	first := &stubExtractor{name: "first", match: "cloud"}
	second := &stubExtractor{name: "second", match: "megacloud"}
	fallback := &stubExtractor{name: "generic", match: "*"}
	r.Register(first)
	r.Register(second)
	r.SetFallback(fallback)

	tests := []struct {
		url  string
		want string
	}{
		{"https://megacloud.blog/e/1", "first"},
		{"https://dokicloud.one/e/1", "first"},
		{"https://unknown.example/video", "generic"},
	}
	for _, tt := range tests {
		if got := r.Get(tt.url); got.Name() != tt.want {
			t.Errorf("Get(%q) = %s, want %s", tt.url, got.Name(), tt.want)
		}
	}
}

func TestExtractorRegistry_NoFallback(t *testing.T) {
	r := NewExtractorRegistry()
	r.Register(&stubExtractor{name: "only", match: "only.example"})
	if got := r.Get("https://other.example"); got != nil {
		t.Errorf("Get() = %v, want nil", got)
	}
}

func TestExtractorRegistry_ByNameAndClose(t *testing.T) {
	r := NewExtractorRegistry()
	a := &stubExtractor{name: "a", match: "a"}
	fb := &stubExtractor{name: "generic", match: "*"}
	r.Register(a)
	r.SetFallback(fb)

	if r.GetByName("a") != a || r.GetByName("generic") != fb || r.GetByName("missing") != nil {
		t.Error("GetByName returned the wrong extractor")
	}
	if names := r.Names(); len(names) != 2 || names[1] != "generic" {
		t.Errorf("Names() = %v", names)
	}
	if len(r.All()) != 1 {
		t.Errorf("All() = %d extractors, want 1", len(r.All()))
	}

	r.Close()
	if !a.closed || !fb.closed {
		t.Error("Close did not close every extractor")
	}
}
