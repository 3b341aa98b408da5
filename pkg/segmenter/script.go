package segmenter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/types"
)

// ErrNoIndexPairs is returned when a player script yields no usable pairs,
// usually because the site changed its obfuscation.
var ErrNoIndexPairs = errors.New("no index pairs in player script")

// Segmenter fetches a site's player script and derives index pairs from it.
// Its Derive method plugs into keycache as the refresh function.
type Segmenter struct {
	client    *httpclient.Client
	scriptURL string
	referer   string
	log       *logging.Logger
}

// New creates a Segmenter for the player script at scriptURL.
func New(client *httpclient.Client, scriptURL, referer string, log *logging.Logger) *Segmenter {
	return &Segmenter{
		client:    client,
		scriptURL: scriptURL,
		referer:   referer,
		log:       log.WithComponent("segmenter"),
	}
}

// FetchScript downloads the current player script. A timestamp parameter
// keeps intermediate caches from serving a stale copy.
func (s *Segmenter) FetchScript(ctx context.Context) (string, error) {
	u, err := url.Parse(s.scriptURL)
	if err != nil {
		return "", errors.Wrap(err, "parse script url")
	}
	q := u.Query()
	q.Set("v", strconv.FormatInt(time.Now().Unix(), 10))
	u.RawQuery = q.Encode()

	headers := map[string]string{"Cache-Control": "no-cache"}
	if s.referer != "" {
		headers["Referer"] = s.referer
	}

	resp, err := s.client.Get(ctx, u.String(), headers)
	if err != nil {
		return "", errors.Wrap(err, "fetch player script")
	}
	if !resp.OK() {
		return "", fmt.Errorf("fetch player script: status %d", resp.StatusCode)
	}
	return resp.String(), nil
}

// Derive fetches a fresh player script and returns its index pairs as
// KeyMaterial.
func (s *Segmenter) Derive(ctx context.Context, siteID string) (types.KeyMaterial, error) {
	script, err := s.FetchScript(ctx)
	if err != nil {
		return types.KeyMaterial{}, err
	}

	pairs := DeriveIndexPairs(script)
	if len(pairs) == 0 {
		return types.KeyMaterial{}, errors.Wrapf(ErrNoIndexPairs, "site %s", siteID)
	}

	s.log.Debug("derived index pairs", "site", siteID, "pairs", len(pairs))
	return types.KeyMaterial{Kind: types.KeyKindIndexPairs, Pairs: pairs}, nil
}
