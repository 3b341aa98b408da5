package urlutil

import "testing"

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		base string
		want string
	}{
		{
			name: "absolute URL unchanged",
			ref:  "https://example.com/720p.m3u8",
			base: "https://other.com/master.m3u8",
			want: "https://example.com/720p.m3u8",
		},
		{
			name: "relative path",
			ref:  "index-f1-v1.m3u8",
			base: "https://cdn.example.com/hls/abc/master.m3u8",
			want: "https://cdn.example.com/hls/abc/index-f1-v1.m3u8",
		},
		{
			name: "dot slash",
			ref:  "./720/index.m3u8",
			base: "https://cdn.example.com/hls/master.m3u8",
			want: "https://cdn.example.com/hls/720/index.m3u8",
		},
		{
			name: "absolute path",
			ref:  "/video/1080.m3u8",
			base: "https://cdn.example.com/stream/master.m3u8",
			want: "https://cdn.example.com/video/1080.m3u8",
		},
		{
			name: "protocol relative",
			ref:  "//edge.example.net/v.m3u8",
			base: "http://cdn.example.com/master.m3u8",
			want: "http://edge.example.net/v.m3u8",
		},
		{
			name: "parent directory reference",
			ref:  "../audio/index.m3u8",
			base: "https://cdn.example.com/stream/video/master.m3u8",
			want: "https://cdn.example.com/stream/audio/index.m3u8",
		},
		{
			name: "multiple parent references",
			ref:  "../../other/index.m3u8",
			base: "https://cdn.example.com/a/b/c/master.m3u8",
			want: "https://cdn.example.com/a/other/index.m3u8",
		},
		{
			name: "parent past root stops at host",
			ref:  "../../x.m3u8",
			base: "https://cdn.example.com/a/master.m3u8",
			want: "https://cdn.example.com/x.m3u8",
		},
		{
			name: "preserves special characters",
			ref:  "seg(1).m3u8",
			base: "https://cdn.example.com/stream(1)/master.m3u8",
			want: "https://cdn.example.com/stream(1)/seg(1).m3u8",
		},
		{
			name: "base with query string",
			ref:  "720.m3u8",
			base: "https://cdn.example.com/stream/master.m3u8?token=abc/def",
			want: "https://cdn.example.com/stream/720.m3u8",
		},
		{
			name: "base without path",
			ref:  "720.m3u8",
			base: "https://cdn.example.com",
			want: "https://cdn.example.com/720.m3u8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveURL(tt.ref, tt.base); got != tt.want {
				t.Errorf("ResolveURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOriginAndReferer(t *testing.T) {
	tests := []struct {
		url     string
		origin  string
		referer string
		host    string
	}{
		{"https://megacloud.blog/embed-2/v3/e-1/abc?k=1", "https://megacloud.blog", "https://megacloud.blog/", "megacloud.blog"},
		{"http://cdn.example.com:8080/master.m3u8", "http://cdn.example.com:8080", "http://cdn.example.com:8080/", "cdn.example.com"},
		{"not a url", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Origin(tt.url); got != tt.origin {
				t.Errorf("Origin() = %q, want %q", got, tt.origin)
			}
			if got := Referer(tt.url); got != tt.referer {
				t.Errorf("Referer() = %q, want %q", got, tt.referer)
			}
			if got := Host(tt.url); got != tt.host {
				t.Errorf("Host() = %q, want %q", got, tt.host)
			}
		})
	}
}

func TestEnsureScheme(t *testing.T) {
	if got := EnsureScheme("//s-delivery.example/v.mp4"); got != "https://s-delivery.example/v.mp4" {
		t.Errorf("EnsureScheme() = %q", got)
	}
	if got := EnsureScheme("http://a/b"); got != "http://a/b" {
		t.Errorf("EnsureScheme() = %q", got)
	}
}
