package extractors

import (
	"context"
	"strings"

	"media-extractor-go/pkg/flaresolverr"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/types"
	"media-extractor-go/pkg/unpack"
	"media-extractor-go/pkg/urlutil"
)

// FilemoonExtractor extracts streams from Filemoon. The landing page wraps
// the player in an iframe whose packed script sets up an HLS playlist.
type FilemoonExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewFilemoonExtractor creates a new Filemoon extractor.
func NewFilemoonExtractor(client *httpclient.Client, solver *flaresolverr.Client, log *logging.Logger) *FilemoonExtractor {
	return &FilemoonExtractor{
		BaseExtractor: NewBaseExtractor(client, solver, log),
		log:           log.WithComponent("filemoon-extractor"),
	}
}

// Name returns the extractor name.
func (e *FilemoonExtractor) Name() string {
	return "filemoon"
}

// CanExtract returns true for Filemoon URLs.
func (e *FilemoonExtractor) CanExtract(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "filemoon.") ||
		strings.Contains(lower, "moonplayer.") ||
		strings.Contains(lower, "kerapoxy.")
}

// Extract resolves a Filemoon URL to stream sources.
func (e *FilemoonExtractor) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	e.log.Debug("extracting Filemoon stream", "url", urlStr)

	page, err := e.FetchPage(ctx, urlStr, opts.Headers)
	if err != nil {
		return nil, err
	}

	playerURL := urlStr
	if iframe := iframeSource(page); iframe != "" {
		playerURL = urlutil.ResolveURL(iframe, urlStr)
		e.log.Debug("following player iframe", "src", playerURL)
		page, err = e.FetchPage(ctx, playerURL, map[string]string{
			"Referer":        urlStr,
			"Sec-Fetch-Dest": "iframe",
		})
		if err != nil {
			return nil, err
		}
	}

	playlistURL, ok := findInScripts(page, unpack.PlaylistMatcher, unpack.SourcesMatcher)
	if !ok {
		return nil, ErrNoStream
	}

	streams, err := e.streamsFor(ctx, playlistURL, urlutil.Referer(playerURL), nil, opts)
	if err != nil {
		return nil, err
	}
	return result(streams, nil)
}

// iframeSource returns the src of the first iframe on a page.
func iframeSource(html string) string {
	doc, err := Document(html)
	if err != nil {
		return ""
	}
	src, _ := doc.Find("iframe[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

var _ interfaces.Extractor = (*FilemoonExtractor)(nil)
