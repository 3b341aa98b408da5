package decrypt

import (
	"context"

	"github.com/pkg/errors"

	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
)

// DefaultMaxAttempts bounds DecryptWithRetry.
const DefaultMaxAttempts = 3

// ErrDecryptionExhausted is returned once every attempt produced nothing.
var ErrDecryptionExhausted = errors.New("decryption attempts exhausted")

// Retrier decrypts with cached key material and rederives it when a
// decryption comes back empty.
type Retrier struct {
	cache       interfaces.KeyCache
	maxAttempts int
	log         *logging.Logger
}

// NewRetrier creates a Retrier. maxAttempts below 1 uses DefaultMaxAttempts.
func NewRetrier(cache interfaces.KeyCache, maxAttempts int, log *logging.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Retrier{
		cache:       cache,
		maxAttempts: maxAttempts,
		log:         log.WithComponent("decrypt-retry"),
	}
}

// DecryptWithRetry returns the plaintext and the number of attempts it took.
// Stale material is invalidated and refreshed between attempts.
func (r *Retrier) DecryptWithRetry(ctx context.Context, siteID, ciphertext string) (string, int, error) {
	log := r.log.WithSite(siteID)

	km, ok := r.cache.Get(siteID)
	if !ok || !km.Valid() {
		var err error
		km, err = r.cache.Refresh(ctx, siteID)
		if err != nil {
			return "", 0, errors.Wrap(err, "derive key material")
		}
	}

	for attempt := 1; ; attempt++ {
		if plain := DecryptWithMaterial(ciphertext, km); plain != "" {
			if attempt > 1 {
				log.Debug("decrypted after refresh", "attempts", attempt)
			}
			return plain, attempt, nil
		}

		if attempt >= r.maxAttempts {
			return "", attempt, errors.Wrapf(ErrDecryptionExhausted, "site %s after %d attempts", siteID, attempt)
		}
		if err := ctx.Err(); err != nil {
			return "", attempt, err
		}

		log.Debug("empty decryption, refreshing key material", "attempt", attempt)
		r.cache.Invalidate(siteID)

		var err error
		km, err = r.cache.Refresh(ctx, siteID)
		if err != nil {
			return "", attempt, errors.Wrap(err, "refresh key material")
		}
	}
}
