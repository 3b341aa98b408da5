package extractors

import (
	"context"
	"regexp"
	"strings"

	"media-extractor-go/pkg/flaresolverr"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/types"
	"media-extractor-go/pkg/unpack"
	"media-extractor-go/pkg/urlutil"
)

// m3u8Matcher finds any quoted playlist URL left in a page.
var m3u8Matcher = unpack.NewRegexMatcher("m3u8", `["'](https?:[^"'\s]+\.m3u8[^"'\s]*)["']`)

var directMediaRe = regexp.MustCompile(`(?i)\.(m3u8|mp4)(\?|$)`)

// GenericExtractor handles direct media URLs and pages that expose a
// playlist somewhere in their scripts. It is the registry fallback.
type GenericExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewGenericExtractor creates a new generic extractor.
func NewGenericExtractor(client *httpclient.Client, solver *flaresolverr.Client, log *logging.Logger) *GenericExtractor {
	return &GenericExtractor{
		BaseExtractor: NewBaseExtractor(client, solver, log),
		log:           log.WithComponent("generic-extractor"),
	}
}

// Name returns the extractor name.
func (e *GenericExtractor) Name() string {
	return "generic"
}

// CanExtract returns true for any URL.
func (e *GenericExtractor) CanExtract(url string) bool {
	return true
}

// Extract returns direct media URLs as-is and scans anything else for a playlist.
func (e *GenericExtractor) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	referer := opts.Headers["Referer"]
	if referer == "" {
		referer = urlutil.Referer(urlStr)
	}

	if directMediaRe.MatchString(urlStr) {
		streams, err := e.streamsFor(ctx, urlStr, referer, nil, opts)
		if err != nil {
			return nil, err
		}
		return result(streams, nil)
	}

	e.log.Debug("scanning page for media", "url", urlStr)
	page, err := e.FetchPage(ctx, urlStr, opts.Headers)
	if err != nil {
		return nil, err
	}

	mediaURL, ok := findInScripts(page, unpack.PlaylistMatcher, unpack.SourcesMatcher, m3u8Matcher)
	if !ok {
		return nil, ErrNoStream
	}
	mediaURL = urlutil.ResolveURL(strings.ReplaceAll(mediaURL, `\/`, `/`), urlStr)

	streams, err := e.streamsFor(ctx, mediaURL, urlutil.Referer(urlStr), nil, opts)
	if err != nil {
		return nil, err
	}
	return result(streams, nil)
}

var _ interfaces.Extractor = (*GenericExtractor)(nil)
