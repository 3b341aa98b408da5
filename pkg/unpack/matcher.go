package unpack

import (
	"regexp"

	"media-extractor-go/pkg/interfaces"
)

// RegexMatcher returns the first capture group of a pattern.
type RegexMatcher struct {
	name string
	re   *regexp.Regexp
}

var _ interfaces.ScriptSignatureMatcher = (*RegexMatcher)(nil)

// NewRegexMatcher compiles pattern, which must have one capture group.
func NewRegexMatcher(name, pattern string) *RegexMatcher {
	return &RegexMatcher{name: name, re: regexp.MustCompile(pattern)}
}

func (m *RegexMatcher) Name() string { return m.name }

func (m *RegexMatcher) Match(script string) (string, bool) {
	sm := m.re.FindStringSubmatch(script)
	if len(sm) < 2 || sm[1] == "" {
		return "", false
	}
	return sm[1], true
}

// Stock matchers for common player setups.
var (
	PlaylistMatcher = NewRegexMatcher("playlist", `(?s)file\s*:\s*["']([^"']+\.m3u8[^"']*)["']`)
	SourcesMatcher  = NewRegexMatcher("sources", `(?s)sources\s*:\s*\[\s*\{\s*(?:src|file)\s*:\s*["']([^"']+)["']`)
	TracksMatcher   = NewRegexMatcher("tracks", `(?s)tracks\s*:\s*(\[[^\]]*\])`)
	WurlMatcher     = NewRegexMatcher("wurl", `wurl\s*=\s*"([^"]+)"`)
	MediaMatcher    = NewRegexMatcher("media", `(?:source|src)\s*[=:]\s*["']([^"']+\.(?:mp4|m3u8)[^"']*)["']`)
)

// FirstMatch runs matchers in order and returns the first hit and the name
// of the matcher that found it.
func FirstMatch(script string, matchers ...interfaces.ScriptSignatureMatcher) (value, matcher string, ok bool) {
	for _, m := range matchers {
		if v, ok := m.Match(script); ok {
			return v, m.Name(), true
		}
	}
	return "", "", false
}
