// Package keys scrapes the short-lived key material an embed page or a
// published key file carries.
package keys

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"media-extractor-go/pkg/types"
)

// ErrNonceNotFound is returned when an embed page carries no nonce.
var ErrNonceNotFound = errors.New("nonce not found")

var (
	nonce48Re = regexp.MustCompile(`\b[a-zA-Z0-9]{48}\b`)
	nonce16Re = regexp.MustCompile(`(?s)\b([a-zA-Z0-9]{16})\b.*?\b([a-zA-Z0-9]{16})\b.*?\b([a-zA-Z0-9]{16})\b`)
)

// FetchNonce returns the nonce embedded in an embed page body. A single
// 48-character token wins; otherwise three 16-character tokens are joined
// in page order.
func FetchNonce(body string) (types.Nonce, error) {
	if m := nonce48Re.FindString(body); m != "" {
		return types.Nonce(m), nil
	}
	if m := nonce16Re.FindStringSubmatch(body); m != nil {
		return types.Nonce(m[1] + m[2] + m[3]), nil
	}
	return "", ErrNonceNotFound
}

// Client-key obfuscations seen on megacloud embed pages. The page picks one
// at random per request.
var (
	ggFbRe  = regexp.MustCompile(`<meta name="_gg_fb" content="([a-zA-Z0-9]+)">`)
	isThRe  = regexp.MustCompile(`<!--\s+_is_th:([0-9a-zA-Z]+)\s+-->`)
	lkDbRe  = regexp.MustCompile(`<script>window\._lk_db\s+=\s+\{([^}]*)\};</script>`)
	dpiRe   = regexp.MustCompile(`<div\s+data-dpi="([0-9a-zA-Z]+)"\s+[^>]*></div>`)
	nonceRe = regexp.MustCompile(`<script nonce="([0-9a-zA-Z]+)">`)
	xyWsRe  = regexp.MustCompile("<script>window\\._xy_ws = ['\"`]([0-9a-zA-Z]+)['\"`];</script>")

	lkDbPartRe = regexp.MustCompile(`([xyz]):\s+["']([a-zA-Z0-9]+)["']`)
)

// FetchClientKey extracts the client key a getSources call needs. It tries
// each known obfuscation before falling back to FetchNonce.
func FetchClientKey(body string) (string, error) {
	for _, re := range []*regexp.Regexp{ggFbRe, isThRe} {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1], nil
		}
	}

	if m := lkDbRe.FindStringSubmatch(body); m != nil {
		parts := make(map[string]string, 3)
		for _, p := range lkDbPartRe.FindAllStringSubmatch(m[1], -1) {
			parts[p[1]] = p[2]
		}
		if parts["x"] != "" && parts["y"] != "" && parts["z"] != "" {
			return parts["x"] + parts["y"] + parts["z"], nil
		}
	}

	for _, re := range []*regexp.Regexp{dpiRe, nonceRe, xyWsRe} {
		if m := re.FindStringSubmatch(body); m != nil {
			return m[1], nil
		}
	}

	n, err := FetchNonce(body)
	if err != nil {
		return "", errors.Wrap(err, "client key")
	}
	return strings.TrimSpace(string(n)), nil
}
