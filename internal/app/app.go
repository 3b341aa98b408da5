// Package app provides the main application setup and dependency injection.
package app

import (
	"context"
	"fmt"

	"media-extractor-go/pkg/appctx"
	"media-extractor-go/pkg/config"
	"media-extractor-go/pkg/decrypt"
	"media-extractor-go/pkg/extractors"
	"media-extractor-go/pkg/flaresolverr"
	"media-extractor-go/pkg/handlers/api"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/keycache"
	"media-extractor-go/pkg/keys"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/registry"
	"media-extractor-go/pkg/server"
	"media-extractor-go/pkg/services"
	"media-extractor-go/pkg/store"
)

// keyStoreNamespace scopes persisted key material in a shared database.
const keyStoreNamespace = "keycache"

// App is the main application container.
type App struct {
	Ctx          *appctx.Context
	Server       *server.Server
	HTTPClient   *httpclient.Client
	ExtractorReg *registry.ExtractorRegistry
	KeyCache     *keycache.SingleFlight
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config, version string) (*App, error) {
	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing media extractor", "port", cfg.Port, "log_level", cfg.LogLevel)

	// Create application context
	ctx := appctx.New(cfg, log)
	ctx.Version = version

	// Create HTTP client
	httpClient := httpclient.New(cfg, log)

	// Create FlareSolverr client if configured
	var flareClient *flaresolverr.Client
	if cfg.FlareSolverrURL != "" {
		flareClient = flaresolverr.NewClient(cfg.FlareSolverrURL, cfg.FlareSolverrTimeout, log)
		log.Info("FlareSolverr client enabled", "url", cfg.FlareSolverrURL)
	}

	// Key material survives restarts only when a store path is set
	keyStore, err := openKeyStore(cfg, log)
	if err != nil {
		return nil, err
	}
	ctx.WithStore(keyStore)

	cache := keycache.New(keyStore, log)
	retrier := decrypt.NewRetrier(cache, cfg.DecryptMaxAttempts, log)
	sharedKeys := keys.NewSharedKeyFetcher(httpClient, cfg.SharedKeyURL, log)

	// Register extractors
	extractorReg := registry.NewExtractorRegistry()
	registerExtractors(extractorReg, extractorDeps{
		cfg:        cfg,
		client:     httpClient,
		solver:     flareClient,
		cache:      cache,
		retrier:    retrier,
		sharedKeys: sharedKeys,
		log:        log,
	})
	ctx.WithExtractors(extractorReg)

	// Create extraction service
	ctx.WithService(services.NewExtractionService(log, extractorReg, cfg))

	// Create HTTP server
	srv := server.New(cfg, log)

	// Create API handlers
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	return &App{
		Ctx:          ctx,
		Server:       srv,
		HTTPClient:   httpClient,
		ExtractorReg: extractorReg,
		KeyCache:     cache,
	}, nil
}

// Run serves the HTTP API until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.Ctx.Log.Info("starting media extractor server", "port", a.Ctx.Config.Port)
	return a.Server.Start(ctx)
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")

	a.ExtractorReg.Close()

	if a.Ctx.Store != nil {
		if err := a.Ctx.Store.Close(); err != nil {
			a.Ctx.Log.Warn("failed to close key store", "error", err)
		}
	}
}

func openKeyStore(cfg *config.Config, log *logging.Logger) (interfaces.Store, error) {
	if cfg.KeyStorePath == "" {
		return store.NoopStore{}, nil
	}
	s, err := store.OpenSQLite(cfg.KeyStorePath, keyStoreNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	log.Info("key store enabled", "path", cfg.KeyStorePath)
	return s, nil
}

type extractorDeps struct {
	cfg        *config.Config
	client     *httpclient.Client
	solver     *flaresolverr.Client
	cache      *keycache.SingleFlight
	retrier    *decrypt.Retrier
	sharedKeys *keys.SharedKeyFetcher
	log        *logging.Logger
}

// registerExtractors registers all URL extractors.
// Add new extractors here by:
// 1. Creating a new extractor in pkg/extractors/
// 2. Registering it below
func registerExtractors(reg *registry.ExtractorRegistry, d extractorDeps) {
	reg.Register(extractors.NewMegacloudExtractor(d.client, d.solver, d.sharedKeys, d.log))
	reg.Register(extractors.NewRabbitstreamExtractor(d.client, d.solver, d.cache, d.retrier, d.cfg.RabbitstreamScriptURL, d.log))
	reg.Register(extractors.NewFilemoonExtractor(d.client, d.solver, d.log))
	reg.Register(extractors.NewMixdropExtractor(d.client, d.solver, d.log))
	reg.Register(extractors.NewStreamtapeExtractor(d.client, d.solver, d.log))
	reg.Register(extractors.NewVidlinkExtractor(d.client, d.solver, d.log))

	// Set generic extractor as fallback
	reg.SetFallback(extractors.NewGenericExtractor(d.client, d.solver, d.log))

	d.log.Info("registered extractors", "count", len(reg.All())+1) // +1 for fallback
}
