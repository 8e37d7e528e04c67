package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"signalhub/internal/api"
	"signalhub/internal/auth"
	"signalhub/internal/call"
	"signalhub/internal/config"
	"signalhub/internal/gateway"
	"signalhub/internal/history"
	"signalhub/internal/presence"
)

// janitorInterval paces background housekeeping: rate limiter window
// cleanup and pending call expiry.
const janitorInterval = 30 * time.Second

// Application wires all components together and owns their lifecycle.
// Initialization follows dependency order:
// Archive -> Presence -> Calls -> Gateway -> API -> HTTP.
type Application struct {
	cfg        *config.Config
	archive    *history.Manager
	presence   *presence.Registry
	calls      *call.Coordinator
	registry   *gateway.Registry
	wsHandler  *gateway.Handler
	apiServer  *api.Server
	httpServer *http.Server

	janitorStop chan struct{}
	janitorWG   sync.WaitGroup
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	archive, err := history.NewManager(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize call archive: %w", err)
	}

	pres := presence.NewRegistry(nil)
	calls := call.NewCoordinator(nil, pres, archive)
	registry := gateway.NewRegistry()
	verifier := auth.NewVerifier(cfg.Auth.Secret)

	wsHandler := gateway.NewHandler(registry, pres, calls, verifier, gateway.HandlerConfig{
		PingInterval:       cfg.WebSocket.PingInterval,
		ReadTimeout:        cfg.WebSocket.ReadTimeout,
		RateLimitPerMinute: cfg.WebSocket.RateLimitPerMinute,
	})

	apiServer := api.NewServer(pres, calls, registry, archive)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Handle("/ws", wsHandler)
	r.Mount("/", apiServer)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:         cfg,
		archive:     archive,
		presence:    pres,
		calls:       calls,
		registry:    registry,
		wsHandler:   wsHandler,
		apiServer:   apiServer,
		httpServer:  httpServer,
		janitorStop: make(chan struct{}),
	}, nil
}

// Start launches the janitor and the HTTP server, and verifies the
// server came up before returning.
func (app *Application) Start(ctx context.Context) error {
	log.Info().Str("addr", app.httpServer.Addr).Msg("starting signalhub")

	app.janitorWG.Add(1)
	go app.janitor()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.stopJanitor()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Info().Msg("signalhub started")
		return nil
	case <-ctx.Done():
		app.stopJanitor()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP server, janitor, then the archive.
func (app *Application) Stop(ctx context.Context) error {
	log.Info().Msg("shutting down signalhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	app.stopJanitor()

	if err := app.archive.Close(); err != nil {
		log.Warn().Err(err).Msg("archive shutdown error")
	}

	log.Info().Msg("signalhub shutdown complete")
	return nil
}

// Addr returns the server address for external connections.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}

// janitor runs periodic housekeeping until stopped.
func (app *Application) janitor() {
	defer app.janitorWG.Done()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.wsHandler.CleanupRateLimiter()
			if app.cfg.Call.PendingTimeout > 0 {
				app.wsHandler.ExpirePendingCalls(app.cfg.Call.PendingTimeout)
			}
		case <-app.janitorStop:
			return
		}
	}
}

func (app *Application) stopJanitor() {
	select {
	case <-app.janitorStop:
	default:
		close(app.janitorStop)
	}
	app.janitorWG.Wait()
}
