package extractors

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"media-extractor-go/pkg/flaresolverr"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/types"
	"media-extractor-go/pkg/urlutil"
)

var (
	robotlinkHTMLRe = regexp.MustCompile(`id\s*=\s*["']?robotlink["']?[^>]*>([^<]+)<`)
	robotlinkJSRe   = regexp.MustCompile(`'robotlink'\)\.innerHTML\s*=\s*['"]([^'"]+)['"]`)
	tokenRe         = regexp.MustCompile(`(?:token|substring)\s*[=()]+\s*['"]([^'"]+)['"]`)
	fullLinkRe      = regexp.MustCompile(`(?:src|href)\s*[=:]\s*['"]?(//[^'">\s]+streamtape[^'">\s]+)['"]?`)
)

// StreamtapeExtractor extracts streams from Streamtape.
type StreamtapeExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewStreamtapeExtractor creates a new Streamtape extractor.
func NewStreamtapeExtractor(client *httpclient.Client, solver *flaresolverr.Client, log *logging.Logger) *StreamtapeExtractor {
	return &StreamtapeExtractor{
		BaseExtractor: NewBaseExtractor(client, solver, log),
		log:           log.WithComponent("streamtape-extractor"),
	}
}

// Name returns the extractor name.
func (e *StreamtapeExtractor) Name() string {
	return "streamtape"
}

// CanExtract returns true for Streamtape URLs.
func (e *StreamtapeExtractor) CanExtract(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "streamtape.com") ||
		strings.Contains(lower, "streamtape.to") ||
		strings.Contains(lower, "streamtape.net") ||
		strings.Contains(lower, "streamtape.xyz") ||
		strings.Contains(lower, "streamtape.site")
}

// Extract resolves a Streamtape URL to a direct stream URL.
func (e *StreamtapeExtractor) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	e.log.Debug("extracting Streamtape stream", "url", urlStr)

	referer := urlutil.Referer(urlStr)
	headers := map[string]string{"Referer": referer}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	page, err := e.FetchPage(ctx, urlStr, headers)
	if err != nil {
		return nil, err
	}

	streamURL, err := streamtapeLink(page)
	if err != nil {
		return nil, err
	}

	streams, err := e.streamsFor(ctx, streamURL, referer, nil, opts)
	if err != nil {
		return nil, err
	}
	return result(streams, nil)
}

// streamtapeLink reassembles the video link, which the page splits between
// the robotlink element and a token appended by script.
func streamtapeLink(html string) (string, error) {
	baseMatch := robotlinkHTMLRe.FindStringSubmatch(html)
	if len(baseMatch) < 2 {
		baseMatch = robotlinkJSRe.FindStringSubmatch(html)
	}
	if len(baseMatch) < 2 {
		return "", fmt.Errorf("%w: robotlink not found", ErrNoStream)
	}
	base := strings.TrimSpace(baseMatch[1])

	var link string
	if m := tokenRe.FindStringSubmatch(html); len(m) > 1 {
		link = base + m[1]
	} else if m := fullLinkRe.FindStringSubmatch(html); len(m) > 1 {
		link = m[1]
	} else {
		link = base
	}

	link = strings.Trim(urlutil.EnsureScheme(link), `'"`)
	if !strings.Contains(link, "get_video") {
		return "", fmt.Errorf("%w: invalid stream url extracted", ErrNoStream)
	}
	return link, nil
}

var _ interfaces.Extractor = (*StreamtapeExtractor)(nil)
