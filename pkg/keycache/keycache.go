// Package keycache keeps locally derived KeyMaterial per site so concurrent
// extractions share one player-script fetch.
package keycache

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/singleflight"

	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/types"
)

// Deriver computes fresh KeyMaterial for a site.
type Deriver func(ctx context.Context, siteID string) (types.KeyMaterial, error)

// SingleFlight is a KeyCache that runs at most one derivation per site at a
// time. Callers that arrive while a refresh is running wait for its result.
//
// The cache is an optimisation only. A nil or failing store never changes
// what Refresh returns.
type SingleFlight struct {
	mu       sync.RWMutex
	entries  map[string]types.KeyMaterial
	derivers map[string]Deriver
	fallback Deriver
	group    singleflight.Group
	store    interfaces.Store
	log      *logging.Logger
}

var _ interfaces.KeyCache = (*SingleFlight)(nil)

// New creates a cache. store may be nil.
func New(store interfaces.Store, log *logging.Logger) *SingleFlight {
	return &SingleFlight{
		entries:  make(map[string]types.KeyMaterial),
		derivers: make(map[string]Deriver),
		store:    store,
		log:      log.WithComponent("keycache"),
	}
}

// Register sets the deriver used to refresh siteID.
func (c *SingleFlight) Register(siteID string, d Deriver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.derivers[siteID] = d
}

// SetFallback sets the deriver for sites without their own.
func (c *SingleFlight) SetFallback(d Deriver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = d
}

// Get returns cached material. On a memory miss the store is consulted and a
// hit is promoted to memory.
func (c *SingleFlight) Get(siteID string) (types.KeyMaterial, bool) {
	c.mu.RLock()
	km, ok := c.entries[siteID]
	c.mu.RUnlock()
	if ok {
		return km, true
	}

	km, ok = c.load(siteID)
	if !ok {
		return types.KeyMaterial{}, false
	}

	c.mu.Lock()
	if _, exists := c.entries[siteID]; !exists {
		c.entries[siteID] = km
	}
	c.mu.Unlock()
	return km, true
}

// Invalidate drops the material for siteID from memory and the store.
func (c *SingleFlight) Invalidate(siteID string) {
	c.mu.Lock()
	delete(c.entries, siteID)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(context.Background(), storeKey(siteID)); err != nil {
			c.log.WithSite(siteID).Warn("failed to delete stored key material", "error", err)
		}
	}
	c.log.WithSite(siteID).Debug("invalidated key material")
}

// Refresh derives new material for siteID. Concurrent calls for the same site
// share one derivation.
func (c *SingleFlight) Refresh(ctx context.Context, siteID string) (types.KeyMaterial, error) {
	v, err, shared := c.group.Do(siteID, func() (any, error) {
		d := c.deriver(siteID)
		if d == nil {
			return types.KeyMaterial{}, ErrNoDeriver
		}

		km, err := d(ctx, siteID)
		if err != nil {
			return types.KeyMaterial{}, err
		}

		c.mu.Lock()
		c.entries[siteID] = km
		c.mu.Unlock()

		c.save(siteID, km)
		return km, nil
	})
	if err != nil {
		return types.KeyMaterial{}, err
	}
	if shared {
		c.log.WithSite(siteID).Debug("shared in-flight refresh")
	}
	return v.(types.KeyMaterial), nil
}

func (c *SingleFlight) deriver(siteID string) Deriver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.derivers[siteID]; ok {
		return d
	}
	return c.fallback
}

func (c *SingleFlight) load(siteID string) (types.KeyMaterial, bool) {
	if c.store == nil {
		return types.KeyMaterial{}, false
	}
	raw, ok, err := c.store.Get(context.Background(), storeKey(siteID))
	if err != nil {
		c.log.Warn("failed to read stored key material", "site", siteID, "error", err)
		return types.KeyMaterial{}, false
	}
	if !ok {
		return types.KeyMaterial{}, false
	}

	var km types.KeyMaterial
	if err := json.Unmarshal([]byte(raw), &km); err != nil || !km.Valid() {
		c.log.Debug("ignoring unusable stored key material", "site", siteID)
		return types.KeyMaterial{}, false
	}
	return km, true
}

func (c *SingleFlight) save(siteID string, km types.KeyMaterial) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(km)
	if err != nil {
		return
	}
	if err := c.store.Set(context.Background(), storeKey(siteID), string(data)); err != nil {
		c.log.Warn("failed to persist key material", "site", siteID, "error", err)
	}
}

func storeKey(siteID string) string {
	return "keymaterial:" + siteID
}
