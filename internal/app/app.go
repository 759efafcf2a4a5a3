package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/health"
	"github.com/tradepost/tradepost/internal/observability"
	"github.com/tradepost/tradepost/internal/service"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Sessions      *service.SessionService
	Readiness     *health.ProbeRunner

	ShutdownTimeout          time.Duration
	ShutdownHTTPDrainTimeout time.Duration

	stopBackground func()
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, sessions *service.SessionService, readiness *health.ProbeRunner, stopBackground func()) *App {
	return &App{
		Config:                   cfg,
		Logger:                   logger,
		Server:                   server,
		Observability:            runtime,
		Sessions:                 sessions,
		Readiness:                readiness,
		ShutdownTimeout:          cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout: cfg.ShutdownHTTPDrainTimeout,
		stopBackground:           stopBackground,
	}
}

func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// shuts observability down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.StopBackgroundTasks()

		drainCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownHTTPDrainTimeout)
		defer cancel()
		if err := a.Server.Shutdown(drainCtx); err != nil {
			a.Logger.Warn("http drain incomplete, closing", "error", err)
			_ = a.Server.Close()
		}
		return nil
	})

	err := g.Wait()

	if a.Observability != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
		defer cancel()
		if oerr := a.Observability.Shutdown(shutdownCtx); oerr != nil {
			a.Logger.Warn("observability shutdown incomplete", "error", oerr)
		}
	}
	return err
}

// StartSessionSweeper purges idle sessions on a fixed interval until the
// returned stop function is called. Idle expiry is lazy on the request path,
// so the sweeper is what reclaims abandoned sessions.
func StartSessionSweeper(sessions *service.SessionService, interval time.Duration, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := sessions.PurgeIdle(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("session sweep failed", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
