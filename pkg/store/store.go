// Package store provides the small per-namespace key-value store extractors
// use to keep derived keys across restarts.
package store

import (
	"context"

	"media-extractor-go/pkg/interfaces"
)

// NoopStore never persists anything.
type NoopStore struct{}

var _ interfaces.Store = NoopStore{}

func (NoopStore) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (NoopStore) Set(context.Context, string, string) error         { return nil }
func (NoopStore) Delete(context.Context, string) error              { return nil }
func (NoopStore) Close() error                                      { return nil }
