// Package types defines core domain types used throughout the application.
package types

// DefaultQuality labels a stream whose playlist carries no variant information.
const DefaultQuality = "Auto"

// SubtitleTrack is a subtitle file offered alongside a stream.
type SubtitleTrack struct {
	URL             string `json:"url"`
	Label           string `json:"label"`
	HearingImpaired bool   `json:"hearing_impaired,omitempty"`
}

// StreamSource is a playable stream handed to the player.
// Values are immutable once built with NewStreamSource.
type StreamSource struct {
	URL       string            `json:"url"`
	Quality   string            `json:"quality"`
	Referer   string            `json:"referer,omitempty"`
	Origin    string            `json:"origin,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Subtitles []SubtitleTrack   `json:"subtitles,omitempty"`
}

// NewStreamSource builds a StreamSource. The subtitle slice is copied so
// callers can reuse theirs.
func NewStreamSource(url, quality, referer, origin string, subs []SubtitleTrack) StreamSource {
	s := StreamSource{
		URL:     url,
		Quality: quality,
		Referer: referer,
		Origin:  origin,
	}
	if len(subs) > 0 {
		s.Subtitles = make([]SubtitleTrack, len(subs))
		copy(s.Subtitles, subs)
	}
	if referer != "" || origin != "" {
		s.Headers = make(map[string]string, 2)
		if referer != "" {
			s.Headers["Referer"] = referer
		}
		if origin != "" {
			s.Headers["Origin"] = origin
		}
	}
	return s
}

// CipherPayload is the (possibly encrypted) sources field of a site API response.
type CipherPayload struct {
	Ciphertext string
	Encrypted  bool
}

// Nonce is a single-use token scraped from an embed page.
type Nonce string

// IndexPair locates one password fragment inside a ciphertext.
// Offset is relative to the running offset of the fold.
type IndexPair struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// KeyKind identifies the KeyMaterial variant.
type KeyKind string

const (
	// KeyKindSecret is a plain secret fetched from a published key map.
	KeyKindSecret KeyKind = "secret"
	// KeyKindIndexPairs is a positional rule set derived from a player script.
	KeyKindIndexPairs KeyKind = "index_pairs"
)

// KeyMaterial is the key used to decrypt a CipherPayload.
type KeyMaterial struct {
	Kind     KeyKind     `json:"kind"`
	Password string      `json:"password,omitempty"`
	Pairs    []IndexPair `json:"pairs,omitempty"`
}

// Valid reports whether the material can be used for a decryption attempt.
func (k KeyMaterial) Valid() bool {
	switch k.Kind {
	case KeyKindSecret:
		return k.Password != ""
	case KeyKindIndexPairs:
		return len(k.Pairs) > 0
	}
	return false
}

// ServerSource is one mirror server offered for a title.
type ServerSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ExtractResult contains the result of an extraction request.
type ExtractResult struct {
	Streams   []StreamSource  `json:"streams"`
	Subtitles []SubtitleTrack `json:"subtitles,omitempty"`
}
