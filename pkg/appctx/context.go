// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/registry"
	"media-extractor-go/pkg/services"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config     *config.Config
	Log        *logging.Logger
	Service    *services.ExtractionService
	Extractors *registry.ExtractorRegistry
	Store      interfaces.Store
	Version    string
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config: cfg,
		Log:    log,
	}
}

// WithService sets the extraction service.
func (c *Context) WithService(s *services.ExtractionService) *Context {
	c.Service = s
	return c
}

// WithExtractors sets the extractor registry.
func (c *Context) WithExtractors(r *registry.ExtractorRegistry) *Context {
	c.Extractors = r
	return c
}

// WithStore sets the persistent key store.
func (c *Context) WithStore(s interfaces.Store) *Context {
	c.Store = s
	return c
}
