package extractors

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"media-extractor-go/pkg/decrypt"
	"media-extractor-go/pkg/flaresolverr"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/keycache"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/segmenter"
	"media-extractor-go/pkg/types"
	"media-extractor-go/pkg/urlutil"
)

const (
	rabbitstreamSite = "rabbitstream"

	// DefaultRabbitstreamScript is the player script the index pairs come from.
	DefaultRabbitstreamScript = "https://rabbitstream.net/js/player/prod/e4-player.min.js"
)

// RabbitstreamExtractor extracts streams from Rabbitstream and Dokicloud.
// The password for the sources field is hidden inside the ciphertext at
// positions that only the current player script knows.
type RabbitstreamExtractor struct {
	*BaseExtractor
	cache   *keycache.SingleFlight
	retrier *decrypt.Retrier
	log     *logging.Logger
}

// NewRabbitstreamExtractor creates a new Rabbitstream extractor and registers
// its key derivation with cache. An empty scriptURL uses
// DefaultRabbitstreamScript.
func NewRabbitstreamExtractor(client *httpclient.Client, solver *flaresolverr.Client, cache *keycache.SingleFlight, retrier *decrypt.Retrier, scriptURL string, log *logging.Logger) *RabbitstreamExtractor {
	if scriptURL == "" {
		scriptURL = DefaultRabbitstreamScript
	}
	seg := segmenter.New(client, scriptURL, urlutil.Referer(scriptURL), log)
	cache.Register(rabbitstreamSite, seg.Derive)

	return &RabbitstreamExtractor{
		BaseExtractor: NewBaseExtractor(client, solver, log),
		cache:         cache,
		retrier:       retrier,
		log:           log.WithComponent("rabbitstream-extractor"),
	}
}

// Name returns the extractor name.
func (e *RabbitstreamExtractor) Name() string {
	return rabbitstreamSite
}

// CanExtract returns true for Rabbitstream URLs.
func (e *RabbitstreamExtractor) CanExtract(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "rabbitstream.") ||
		strings.Contains(lower, "dokicloud.")
}

// Extract resolves a Rabbitstream embed URL to stream sources.
func (e *RabbitstreamExtractor) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	e.log.Debug("extracting Rabbitstream stream", "url", urlStr)

	apiURL, err := rabbitstreamAPI(urlStr)
	if err != nil {
		return nil, err
	}
	body, err := e.FetchJSON(ctx, apiURL, urlStr)
	if err != nil {
		return nil, err
	}

	sources := gjson.Get(body, "sources")
	payload := types.CipherPayload{
		Ciphertext: sources.String(),
		Encrypted:  gjson.Get(body, "encrypted").Bool() || sources.Type == gjson.String,
	}

	raw := sources.Raw
	if payload.Encrypted {
		if opts.ForceRefresh {
			e.cache.Invalidate(rabbitstreamSite)
		}
		plain, attempts, err := e.retrier.DecryptWithRetry(ctx, rabbitstreamSite, payload.Ciphertext)
		if err != nil {
			return nil, err
		}
		if !gjson.Valid(plain) {
			return nil, fmt.Errorf("%w: decrypted sources are not json", decrypt.ErrDecryption)
		}
		e.log.Debug("decrypted sources", "attempts", attempts)
		raw = plain
	}

	subs := parseTracks(gjson.Get(body, "tracks"))
	referer := urlutil.Referer(urlStr)

	var streams []types.StreamSource
	for _, f := range gjson.Get(raw, "#.file").Array() {
		if f.String() == "" {
			continue
		}
		found, err := e.streamsFor(ctx, f.String(), referer, subs, opts)
		if err != nil {
			e.log.Debug("skipping source", "file", f.String(), "error", err)
			continue
		}
		streams = append(streams, found...)
	}

	return result(streams, subs)
}

// rabbitstreamAPI maps https://host/v2/embed-4/ID?z= to
// https://host/ajax/v2/embed-4/getSources?id=ID.
func rabbitstreamAPI(embed string) (string, error) {
	u, err := url.Parse(embed)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid embed url %q", embed)
	}
	path := strings.TrimSuffix(u.Path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 || i == len(path)-1 {
		return "", fmt.Errorf("no source id in %q", embed)
	}
	dir, id := path[:i], path[i+1:]
	return fmt.Sprintf("%s/ajax%s/getSources?id=%s", urlutil.Origin(embed), dir, url.QueryEscape(id)), nil
}

var _ interfaces.Extractor = (*RabbitstreamExtractor)(nil)
