package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/yieldengine/internal/domain"
	"github.com/alanyoungcy/yieldengine/internal/server"
	"github.com/alanyoungcy/yieldengine/internal/server/handler"
	"github.com/alanyoungcy/yieldengine/internal/server/ws"
	"github.com/alanyoungcy/yieldengine/internal/service"
)

// cliActor is recorded as the actor of runs started from the command line.
const cliActor = "cli"

// FullMode serves the API and arms the daily scheduler.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// ServerMode serves the API only. Runs are started manually through it.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// SchedulerMode arms the daily scheduler without the HTTP API.
func (a *App) SchedulerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scheduler mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	return g.Wait()
}

// RunOnce executes a single guarded distribution and exits. A run that
// aborts is reported as an error so the process exits non-zero.
func (a *App) RunOnce(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running one distribution")

	res, err := deps.Scheduler.RunManually(ctx, cliActor)
	if err != nil {
		return fmt.Errorf("app: run: %w", err)
	}
	if err := a.printResult(res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("app: run %s failed: %s", res.RunID, res.Error)
	}
	return nil
}

// PreviewMode computes what a run would distribute without writing anything.
func (a *App) PreviewMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "previewing distribution")
	return a.printResult(deps.Scheduler.Preview(ctx))
}

func (a *App) printResult(res domain.DistributionResult) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("app: print result: %w", err)
	}
	return nil
}

// startScheduler arms the midnight timer and disarms it when ctx ends.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	deps.Scheduler.Start(ctx)
	st := deps.Scheduler.Status()
	if st.NextRunAt != nil {
		a.logger.InfoContext(ctx, "daily distribution armed",
			slog.Time("next_run", *st.NextRunAt),
			slog.String("until", st.NextRunIn),
		)
	}

	g.Go(func() error {
		<-ctx.Done()
		deps.Scheduler.Stop()
		return nil
	})
}

// startHTTPServer builds the API server and its websocket hub and runs them
// until ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	probes := make(map[string]handler.Pinger, len(deps.Probes))
	for name, p := range deps.Probes {
		probes[name] = p
	}

	handlers := server.Handlers{
		Health:       handler.NewHealthHandler(a.cfg.Mode, probes, a.logger),
		Distribution: handler.NewDistributionHandler(deps.Scheduler, deps.AprInfo, deps.RunStore, deps.Adjustments, a.logger).
			WithPoolAdmin(deps.Pools),
		WBC:          handler.NewWBCHandler(deps.Gateway, deps.Gate, a.logger),
	}

	var sdeps server.Deps
	if deps.SignalBus != nil {
		hub := ws.NewHub(deps.SignalBus, ws.Config{
			Channels:       []string{service.ChannelDistribution},
			ReplayStream:   service.StreamDistribution,
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			Mode:           a.cfg.Mode,
			StartedAt:      time.Now().UTC(),
		}, a.logger)
		sdeps.Hub = hub
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}
	if deps.RateLimiter != nil {
		sdeps.Limiter = deps.RateLimiter
	}
	if a.cfg.Metrics.Enabled {
		sdeps.Metrics = promhttp.Handler()
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		MetricsPath: a.cfg.Metrics.Path,
	}, handlers, sdeps, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty: admin routes are unauthenticated")
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
