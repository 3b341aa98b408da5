// Package interfaces defines the core abstractions for the extraction pipeline.
// Site extractors, key caches and script matchers implement these interfaces,
// so each piece can be swapped or tested in isolation.
package interfaces

import (
	"context"
	"net/http"

	"media-extractor-go/pkg/types"
)

// Extractor resolves an embed URL of one hosting platform to playable streams.
//
// To add a new extractor:
// 1. Create a new file in pkg/extractors/
// 2. Implement this interface
// 3. Register it in the ExtractorRegistry (internal/app)
type Extractor interface {
	// Name returns a unique identifier for this extractor.
	Name() string

	// CanExtract returns true if this extractor can handle the given URL.
	CanExtract(url string) bool

	// Extract resolves the given URL to stream sources.
	Extract(ctx context.Context, url string, opts ExtractOptions) (*types.ExtractResult, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// ExtractOptions contains optional parameters for extraction.
type ExtractOptions struct {
	Headers      map[string]string
	ForceRefresh bool
	// QualityPrefix is prepended to every quality label, usually the server name.
	QualityPrefix string
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// KeyCache holds locally derived KeyMaterial per site.
// Implementations must allow concurrent Get and run at most one Refresh per
// site at a time.
type KeyCache interface {
	// Get returns the cached material, or false when nothing is cached.
	Get(siteID string) (types.KeyMaterial, bool)

	// Invalidate drops the cached material for a site.
	Invalidate(siteID string)

	// Refresh derives fresh material, stores it and returns it.
	Refresh(ctx context.Context, siteID string) (types.KeyMaterial, error)
}

// ScriptSignatureMatcher finds one value (a playlist URL, an API endpoint,
// a tracks array) in deobfuscated script text.
type ScriptSignatureMatcher interface {
	Name() string
	Match(script string) (string, bool)
}

// Store is a small persistent key-value store scoped to one namespace.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Registry is a generic interface for component registries.
type Registry[T any] interface {
	// Register adds a component to the registry.
	Register(component T)

	// Get returns the appropriate component for the given URL.
	Get(url string) T

	// All returns all registered components.
	All() []T
}
