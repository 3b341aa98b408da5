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

// MixdropExtractor extracts streams from Mixdrop.
type MixdropExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewMixdropExtractor creates a new Mixdrop extractor.
func NewMixdropExtractor(client *httpclient.Client, solver *flaresolverr.Client, log *logging.Logger) *MixdropExtractor {
	return &MixdropExtractor{
		BaseExtractor: NewBaseExtractor(client, solver, log),
		log:           log.WithComponent("mixdrop-extractor"),
	}
}

// Name returns the extractor name.
func (e *MixdropExtractor) Name() string {
	return "mixdrop"
}

// CanExtract returns true for Mixdrop URLs.
func (e *MixdropExtractor) CanExtract(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "mixdrop.") ||
		strings.Contains(lower, "mixdrp.")
}

// Extract resolves a Mixdrop URL to a direct MP4 stream.
func (e *MixdropExtractor) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	e.log.Debug("extracting Mixdrop stream", "url", urlStr)

	urlStr = normalizeMixdropURL(urlStr)
	referer := urlutil.Referer(urlStr)

	headers := map[string]string{"Referer": referer}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	page, err := e.FetchPage(ctx, urlStr, headers)
	if err != nil {
		return nil, err
	}

	// MDCore.wurl is set inside the packed player script.
	streamURL, ok := findInScripts(page, unpack.WurlMatcher, unpack.MediaMatcher)
	if !ok {
		return nil, ErrNoStream
	}

	streams, err := e.streamsFor(ctx, streamURL, referer, nil, opts)
	if err != nil {
		return nil, err
	}
	return result(streams, nil)
}

// normalizeMixdropURL maps mirror domains to the main one and the embed
// path to the file path.
func normalizeMixdropURL(urlStr string) string {
	replacements := []string{
		"mixdrp.to", "mixdrop.co",
		"mixdrp.co", "mixdrop.co",
		"mixdrop.to", "mixdrop.co",
		"mixdrop.sx", "mixdrop.co",
	}
	for i := 0; i < len(replacements); i += 2 {
		urlStr = strings.Replace(urlStr, replacements[i], replacements[i+1], 1)
	}

	return strings.Replace(urlStr, "/f/", "/e/", 1)
}

var _ interfaces.Extractor = (*MixdropExtractor)(nil)
