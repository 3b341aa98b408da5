package extractors

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"media-extractor-go/pkg/decrypt"
	"media-extractor-go/pkg/flaresolverr"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/keys"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/types"
	"media-extractor-go/pkg/urlutil"
)

// megacloudKeyName is the entry of the shared key map used for Megacloud.
const megacloudKeyName = "mega"

var embedPrefixRe = regexp.MustCompile(`^embed-\d+$`)

// MegacloudExtractor extracts streams from Megacloud and its mirrors.
// Sources are encrypted with a published shared key; the embed page
// carries a client key the API requires.
type MegacloudExtractor struct {
	*BaseExtractor
	keys *keys.SharedKeyFetcher
	log  *logging.Logger
}

// NewMegacloudExtractor creates a new Megacloud extractor.
func NewMegacloudExtractor(client *httpclient.Client, solver *flaresolverr.Client, sharedKeys *keys.SharedKeyFetcher, log *logging.Logger) *MegacloudExtractor {
	return &MegacloudExtractor{
		BaseExtractor: NewBaseExtractor(client, solver, log),
		keys:          sharedKeys,
		log:           log.WithComponent("megacloud-extractor"),
	}
}

// Name returns the extractor name.
func (e *MegacloudExtractor) Name() string {
	return "megacloud"
}

// CanExtract returns true for Megacloud URLs.
func (e *MegacloudExtractor) CanExtract(url string) bool {
	lower := strings.ToLower(url)
	return strings.Contains(lower, "megacloud.") ||
		strings.Contains(lower, "videostr.net") ||
		strings.Contains(lower, "streameeeeee.")
}

// Extract resolves a Megacloud embed URL to stream sources.
func (e *MegacloudExtractor) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	e.log.Debug("extracting Megacloud stream", "url", urlStr)

	embed, err := parseEmbedURL(urlStr)
	if err != nil {
		return nil, err
	}

	pageHeaders := map[string]string{"Referer": embed.origin + "/"}
	for k, v := range opts.Headers {
		pageHeaders[k] = v
	}
	page, err := e.FetchPage(ctx, urlStr, pageHeaders)
	if err != nil {
		return nil, err
	}

	clientKey, err := keys.FetchClientKey(page)
	if err != nil {
		return nil, fmt.Errorf("failed to find client key: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s/v3/e-1/getSources?id=%s&_k=%s",
		embed.origin, embed.prefix, url.QueryEscape(embed.id), url.QueryEscape(clientKey))
	body, err := e.FetchJSON(ctx, apiURL, urlStr)
	if err != nil {
		return nil, err
	}

	files, err := e.sourceFiles(ctx, body)
	if err != nil {
		return nil, err
	}
	subs := parseTracks(gjson.Get(body, "tracks"))

	referer := embed.origin + "/"
	var streams []types.StreamSource
	for _, file := range files {
		found, err := e.streamsFor(ctx, file, referer, subs, opts)
		if err != nil {
			e.log.Debug("skipping source", "file", file, "error", err)
			continue
		}
		streams = append(streams, found...)
	}

	return result(streams, subs)
}

// sourceFiles returns the file URLs of the sources field, decrypting it
// first when the API flags it as encrypted.
func (e *MegacloudExtractor) sourceFiles(ctx context.Context, body string) ([]string, error) {
	sources := gjson.Get(body, "sources")
	payload := types.CipherPayload{
		Ciphertext: sources.String(),
		Encrypted:  gjson.Get(body, "encrypted").Bool() || sources.Type == gjson.String,
	}

	raw := sources.Raw
	if payload.Encrypted {
		key, err := e.keys.FetchSharedKey(ctx, megacloudKeyName)
		if err != nil {
			return nil, err
		}
		plain, err := decrypt.DecryptOpenSSL(payload.Ciphertext, key)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt sources: %w", err)
		}
		if !gjson.Valid(plain) {
			return nil, fmt.Errorf("%w: decrypted sources are not json", decrypt.ErrDecryption)
		}
		raw = plain
	}

	var files []string
	for _, f := range gjson.Get(raw, "#.file").Array() {
		if f.String() != "" {
			files = append(files, f.String())
		}
	}
	if len(files) == 0 {
		return nil, ErrNoStream
	}
	return files, nil
}

type embedURL struct {
	origin string
	prefix string
	id     string
}

// parseEmbedURL splits https://host/embed-2/v3/e-1/ID?z= into its parts.
func parseEmbedURL(raw string) (embedURL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return embedURL{}, fmt.Errorf("invalid embed url %q", raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	prefix := parts[0]
	if !embedPrefixRe.MatchString(prefix) {
		prefix = "embed-2"
	}
	id := parts[len(parts)-1]
	if id == "" || embedPrefixRe.MatchString(id) {
		return embedURL{}, fmt.Errorf("no source id in %q", raw)
	}

	return embedURL{origin: urlutil.Origin(raw), prefix: prefix, id: id}, nil
}

var _ interfaces.Extractor = (*MegacloudExtractor)(nil)
