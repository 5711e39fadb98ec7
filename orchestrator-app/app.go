package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-orchestrator/orchestrator-app/config"
	apisrv "github.com/compose-network/proof-orchestrator/server/api"
	apimw "github.com/compose-network/proof-orchestrator/server/api/middleware"
	"github.com/compose-network/proof-orchestrator/x/coordinator"
	"github.com/compose-network/proof-orchestrator/x/inputs"
	"github.com/compose-network/proof-orchestrator/x/proofstore"
	"github.com/compose-network/proof-orchestrator/x/scheduler"
	"github.com/compose-network/proof-orchestrator/x/settlement"
	"github.com/compose-network/proof-orchestrator/x/submitter"
)

// App wires the proof store, settlement client, scheduler, coordinator,
// submission driver and HTTP API together.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	store       proofstore.Store
	settlement  settlement.Client
	sched       *scheduler.Scheduler
	coordinator *coordinator.Coordinator
	submitter   *submitter.Submitter
	apiServer   *apisrv.Server

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
	}

	if err := app.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize builds the components in dependency order: store and
// settlement first, then the scheduler over them, then the two drivers.
func (a *App) initialize(ctx context.Context) error {
	required, err := a.cfg.RequiredTypes()
	if err != nil {
		return err
	}

	store, err := a.buildStore()
	if err != nil {
		return err
	}
	a.store = store

	settlementClient, err := settlement.NewEthClient(ctx, a.cfg.Settlement, a.log)
	if err != nil {
		return fmt.Errorf("failed to create settlement client: %w", err)
	}
	a.settlement = settlementClient

	inputClient, err := inputs.NewHTTPClient(
		a.cfg.Inputs.BaseURL,
		&http.Client{Timeout: a.cfg.Inputs.Timeout},
		a.log,
	)
	if err != nil {
		return fmt.Errorf("failed to create inputs client: %w", err)
	}

	a.sched = scheduler.New(a.cfg.Scheduler, store, settlementClient, a.log)

	a.coordinator, err = coordinator.New(
		a.cfg.Coordinator,
		a.sched,
		store,
		inputClient,
		required,
		a.log,
	)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	a.submitter, err = submitter.New(
		a.cfg.Submitter,
		store,
		settlementClient,
		required,
		a.log,
	)
	if err != nil {
		return fmt.Errorf("failed to create submitter: %w", err)
	}

	// API server (operator HTTP surface)
	apiCfg := apisrv.Config{
		ListenAddr:        a.cfg.API.ListenAddr,
		ReadHeaderTimeout: a.cfg.API.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.API.ReadTimeout,
		WriteTimeout:      a.cfg.API.WriteTimeout,
		IdleTimeout:       a.cfg.API.IdleTimeout,
		MaxHeaderBytes:    a.cfg.API.MaxHeaderBytes,
	}
	s := apisrv.NewServer(apiCfg, a.log)
	s.Use(apimw.Recover(a.log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(a.log))

	handlers := apisrv.NewHandlers(store, a.sched, settlementClient, required)
	handlers.Register(s.Router)

	if a.cfg.Metrics.Enabled {
		apisrv.RegisterMetrics(s.Router)
	}

	a.apiServer = s

	return nil
}

func (a *App) buildStore() (proofstore.Store, error) {
	switch a.cfg.Store.Backend {
	case "disk":
		store, err := proofstore.NewDisk(a.cfg.Store.Dir, a.log)
		if err != nil {
			return nil, fmt.Errorf("failed to open disk proof store: %w", err)
		}
		return store, nil
	case "memory":
		return proofstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.coordinator.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}
	if err := a.submitter.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start submitter: %w", err)
	}

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("API server error")
		}
	}()

	go a.statsReporter(runCtx)

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info().Msg("Proof orchestrator started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown stops the drivers first so no new work is handed out or
// submitted, then drains the HTTP server.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.coordinator.Stop(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Coordinator shutdown error")
	}
	if err := a.submitter.Stop(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Submitter shutdown error")
	}
	if err := a.apiServer.Stop(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("API server shutdown error")
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return nil
}

// statsReporter periodically logs queue depth so operators can follow
// progress without scraping metrics.
func (a *App) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			keys, err := a.store.Keys(ctx)
			if err != nil {
				a.log.Warn().Err(err).Msg("Failed to read proof store stats")
				continue
			}
			lastVerified, err := a.settlement.LastVerifiedBatch(ctx)
			if err != nil {
				a.log.Warn().Err(err).Msg("Failed to read last verified batch")
				continue
			}

			a.log.Info().
				Uint64("last_verified_batch", lastVerified).
				Int("stored_proofs", len(keys)).
				Int("active_assignments", len(a.sched.Active())).
				Msg("Orchestrator statistics")
		}
	}
}
