// Package services runs extractions across the registered extractors.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/registry"
	"media-extractor-go/pkg/types"
)

var (
	// ErrNoSources is returned when no server produced a stream.
	ErrNoSources = errors.New("no sources found")
	// ErrUnknownExtractor is returned when a named extractor is not registered.
	ErrUnknownExtractor = errors.New("unknown extractor")
)

// ExtractionService resolves embed URLs through the extractor registry.
type ExtractionService struct {
	log           *logging.Logger
	extractors    *registry.ExtractorRegistry
	maxConcurrent int
	serverTimeout time.Duration
}

// NewExtractionService creates a new extraction service.
func NewExtractionService(log *logging.Logger, extractors *registry.ExtractorRegistry, cfg *config.Config) *ExtractionService {
	maxConcurrent := cfg.MaxConcurrentExtractions
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &ExtractionService{
		log:           log.WithComponent("extraction-service"),
		extractors:    extractors,
		maxConcurrent: maxConcurrent,
		serverTimeout: cfg.ServerTimeout,
	}
}

// Extract resolves a single URL with the matching extractor.
func (s *ExtractionService) Extract(ctx context.Context, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	return s.ExtractWith(ctx, "", urlStr, opts)
}

// ExtractWith resolves a single URL with the extractor registered as name,
// skipping URL matching. An empty name behaves like Extract.
func (s *ExtractionService) ExtractWith(ctx context.Context, name, urlStr string, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	urlStr = decodeURL(urlStr)

	var extractor interfaces.Extractor
	if name != "" {
		extractor = s.extractors.GetByName(name)
		if extractor == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownExtractor, name)
		}
	} else {
		extractor = s.extractors.Get(urlStr)
	}
	if extractor == nil {
		return nil, fmt.Errorf("no extractor for URL: %s", urlStr)
	}
	s.log.Debug("using extractor", "name", extractor.Name(), "url", urlStr)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := extractor.Extract(ctx, urlStr, opts)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	return result, nil
}

// ExtractAll extracts every server concurrently and returns the streams
// that succeeded, in server order. A failing server is logged and skipped.
func (s *ExtractionService) ExtractAll(ctx context.Context, servers []types.ServerSource) []types.StreamSource {
	streams, _ := s.extractAll(ctx, servers, interfaces.ExtractOptions{})
	return streams
}

// ExtractServers is ExtractAll plus the merged subtitles of every server.
// It fails with ErrNoSources only when no server produced a stream.
func (s *ExtractionService) ExtractServers(ctx context.Context, servers []types.ServerSource, opts interfaces.ExtractOptions) (*types.ExtractResult, error) {
	streams, subs := s.extractAll(ctx, servers, opts)
	if len(streams) == 0 {
		return nil, ErrNoSources
	}
	return &types.ExtractResult{Streams: streams, Subtitles: subs}, nil
}

func (s *ExtractionService) extractAll(ctx context.Context, servers []types.ServerSource, opts interfaces.ExtractOptions) ([]types.StreamSource, []types.SubtitleTrack) {
	results := make([]*types.ExtractResult, len(servers))

	// Workers never return an error, so one failing server cannot cancel
	// its siblings.
	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for i, server := range servers {
		g.Go(func() error {
			results[i] = s.extractServer(ctx, server, opts)
			return nil
		})
	}
	_ = g.Wait()

	var (
		streams []types.StreamSource
		subs    []types.SubtitleTrack
		seen    = make(map[string]bool)
	)
	for _, res := range results {
		if res == nil {
			continue
		}
		streams = append(streams, res.Streams...)
		for _, sub := range res.Subtitles {
			if !seen[sub.URL] {
				seen[sub.URL] = true
				subs = append(subs, sub)
			}
		}
	}
	return streams, subs
}

// extractServer runs one server under its own timeout. Errors and panics
// become a nil result.
func (s *ExtractionService) extractServer(ctx context.Context, server types.ServerSource, opts interfaces.ExtractOptions) (res *types.ExtractResult) {
	log := s.log.With("server", server.Name, "url", server.URL)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.WithDuration(time.Since(start)).Error("server extraction panicked", "panic", r)
			res = nil
		}
	}()

	urlStr := decodeURL(server.URL)
	extractor := s.extractors.Get(urlStr)
	if extractor == nil {
		log.Warn("no extractor for server")
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	serverOpts := opts
	if serverOpts.QualityPrefix == "" {
		serverOpts.QualityPrefix = server.Name
	}

	result, err := extractor.Extract(ctx, urlStr, serverOpts)
	if err != nil {
		log.WithError(err).WithDuration(time.Since(start)).Warn("server extraction failed", "extractor", extractor.Name())
		return nil
	}

	log.WithDuration(time.Since(start)).Debug("server extracted", "extractor", extractor.Name(), "streams", len(result.Streams))
	return result
}

func (s *ExtractionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.serverTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.serverTimeout)
}

// decodeURL accepts URLs that arrive query-escaped or base64-encoded.
func decodeURL(urlStr string) string {
	if urlStr == "" {
		return urlStr
	}

	if decoded, err := url.QueryUnescape(urlStr); err == nil && decoded != urlStr &&
		(strings.HasPrefix(decoded, "http://") || strings.HasPrefix(decoded, "https://")) {
		urlStr = decoded
	}

	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr
	}

	padded := urlStr
	switch len(urlStr) % 4 {
	case 2:
		padded += "=="
	case 3:
		padded += "="
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if decoded, err := enc.DecodeString(padded); err == nil {
			if s := string(decoded); strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
				return s
			}
		}
	}
	return urlStr
}
