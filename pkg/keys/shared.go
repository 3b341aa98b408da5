package keys

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/logging"
)

// ErrKeyFetch is returned when a shared key cannot be fetched.
var ErrKeyFetch = errors.New("key fetch failed")

// SharedKeyFetcher looks up secrets in a small JSON map published at a
// fixed URL. It never caches.
type SharedKeyFetcher struct {
	client *httpclient.Client
	url    string
	log    *logging.Logger
}

// NewSharedKeyFetcher creates a fetcher for the key map at url.
func NewSharedKeyFetcher(client *httpclient.Client, url string, log *logging.Logger) *SharedKeyFetcher {
	return &SharedKeyFetcher{
		client: client,
		url:    url,
		log:    log.WithComponent("shared-keys"),
	}
}

// FetchSharedKey returns the value stored under keyName.
func (f *SharedKeyFetcher) FetchSharedKey(ctx context.Context, keyName string) (string, error) {
	resp, err := f.client.Get(ctx, f.url, map[string]string{"Cache-Control": "no-cache"})
	if err != nil {
		return "", errors.Wrapf(ErrKeyFetch, "get %s: %v", f.url, err)
	}
	if !resp.OK() {
		return "", errors.Wrapf(ErrKeyFetch, "status %d", resp.StatusCode)
	}

	body := strings.TrimSpace(resp.String())
	if body == "" {
		return "", errors.Wrap(ErrKeyFetch, "empty body")
	}
	if !gjson.Valid(body) {
		return "", errors.Wrap(ErrKeyFetch, "invalid json")
	}

	value := gjson.Get(body, gjson.Escape(keyName))
	if !value.Exists() || value.String() == "" {
		return "", errors.Wrapf(ErrKeyFetch, "key %q missing", keyName)
	}

	f.log.Debug("fetched shared key", "name", keyName)
	return value.String(), nil
}
