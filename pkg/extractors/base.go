// Package extractors provides per-host extraction strategies.
// Each extractor turns an embed URL of one hosting platform into playable
// stream sources.
//
// To add a new extractor:
// 1. Create a new file (e.g., myplatform.go)
// 2. Implement the Extractor interface
// 3. Register it in the registry (see internal/app)
package extractors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"media-extractor-go/pkg/flaresolverr"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/playlist"
	"media-extractor-go/pkg/types"
	"media-extractor-go/pkg/unpack"
	"media-extractor-go/pkg/urlutil"
)

// ErrNoStream is returned when a page yields nothing playable.
var ErrNoStream = errors.New("no stream found")

// BaseExtractor provides common functionality for extractors.
type BaseExtractor struct {
	client   *httpclient.Client
	solver   *flaresolverr.Client
	resolver *playlist.Resolver
	log      *logging.Logger
}

// NewBaseExtractor creates a new base extractor. solver may be nil.
func NewBaseExtractor(client *httpclient.Client, solver *flaresolverr.Client, log *logging.Logger) *BaseExtractor {
	return &BaseExtractor{
		client:   client,
		solver:   solver,
		resolver: playlist.NewResolver(client, log),
		log:      log,
	}
}

// Close releases resources.
func (b *BaseExtractor) Close() error {
	return nil
}

// FetchPage downloads an HTML page. Cloudflare challenges (403/503) are
// retried through FlareSolverr when one is configured.
func (b *BaseExtractor) FetchPage(ctx context.Context, pageURL string, headers map[string]string) (string, error) {
	resp, err := b.client.Get(ctx, pageURL, headers)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	if resp.OK() {
		return resp.String(), nil
	}

	if (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable) && b.solver.IsConfigured() {
		b.log.Debug("page blocked, retrying through flaresolverr", "url", pageURL, "status", resp.StatusCode)
		sol, err := b.solver.Solve(ctx, pageURL)
		if err != nil {
			return "", fmt.Errorf("failed to solve challenge: %w", err)
		}
		return sol.Response, nil
	}

	return "", fmt.Errorf("failed to fetch page: status %d", resp.StatusCode)
}

// FetchJSON performs an XHR-style GET and returns the body once it is valid JSON.
func (b *BaseExtractor) FetchJSON(ctx context.Context, apiURL, referer string) (string, error) {
	headers := map[string]string{
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"X-Requested-With": "XMLHttpRequest",
	}
	if referer != "" {
		headers["Referer"] = referer
	}

	resp, err := b.client.Get(ctx, apiURL, headers)
	if err != nil {
		return "", fmt.Errorf("failed to call api: %w", err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	body := resp.String()
	if !gjson.Valid(body) {
		return "", fmt.Errorf("api returned invalid json")
	}
	return body, nil
}

// Document parses HTML for selector queries.
func Document(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Scripts returns the inline script bodies of a page in document order.
func Scripts(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// findInScripts deobfuscates every inline script of a page and returns the
// first value any matcher finds. The raw page is searched last.
func findInScripts(html string, matchers ...interfaces.ScriptSignatureMatcher) (string, bool) {
	var candidates []string
	if doc, err := Document(html); err == nil {
		for _, script := range Scripts(doc) {
			candidates = append(candidates, unpack.Deobfuscate(script))
		}
	}
	candidates = append(candidates, unpack.UnpackAll(html)...)
	candidates = append(candidates, html)

	for _, c := range candidates {
		if v, _, ok := unpack.FirstMatch(c, matchers...); ok {
			return v, true
		}
	}
	return "", false
}

// nameFunc prefixes quality labels with the server name, if any.
func nameFunc(prefix string) playlist.NameFunc {
	return func(quality string) string {
		if prefix == "" {
			return quality
		}
		return prefix + " - " + quality
	}
}

// streamsFor expands a resolved media URL into stream sources. HLS playlists
// are fetched and split per variant; anything else is a single source.
func (b *BaseExtractor) streamsFor(ctx context.Context, mediaURL, referer string, subs []types.SubtitleTrack, opts interfaces.ExtractOptions) ([]types.StreamSource, error) {
	mediaURL = urlutil.EnsureScheme(mediaURL)
	if strings.Contains(strings.ToLower(mediaURL), ".m3u8") {
		return b.resolver.ExtractFromHLS(ctx, mediaURL, referer, subs, nameFunc(opts.QualityPrefix))
	}
	src := types.NewStreamSource(mediaURL, nameFunc(opts.QualityPrefix)(types.DefaultQuality), referer, urlutil.Origin(referer), subs)
	return []types.StreamSource{src}, nil
}

// result wraps streams into an ExtractResult, failing when there are none.
func result(streams []types.StreamSource, subs []types.SubtitleTrack) (*types.ExtractResult, error) {
	if len(streams) == 0 {
		return nil, ErrNoStream
	}
	return &types.ExtractResult{Streams: streams, Subtitles: subs}, nil
}

// parseTracks reads a JSON tracks array like
// [{"file":"…","label":"English","kind":"captions"}].
func parseTracks(tracks gjson.Result) []types.SubtitleTrack {
	var subs []types.SubtitleTrack
	tracks.ForEach(func(_, t gjson.Result) bool {
		file := t.Get("file").String()
		kind := strings.ToLower(t.Get("kind").String())
		if file == "" || kind == "thumbnails" {
			return true
		}
		if kind == "" && !isSubtitleFile(file) {
			return true
		}
		subs = append(subs, newSubtitle(file, t.Get("label").String()))
		return true
	})
	return subs
}

func newSubtitle(file, label string) types.SubtitleTrack {
	if label == "" {
		label = "Unknown"
	}
	return types.SubtitleTrack{
		URL:             urlutil.EnsureScheme(file),
		Label:           label,
		HearingImpaired: isHearingImpaired(label),
	}
}

func isSubtitleFile(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, ".vtt") || strings.Contains(lower, ".srt") || strings.Contains(lower, ".ass")
}

func isHearingImpaired(label string) bool {
	return strings.Contains(label, "SDH") ||
		strings.Contains(label, "CC") ||
		strings.Contains(strings.ToLower(label), "hearing")
}
