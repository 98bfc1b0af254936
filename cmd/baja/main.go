// Command baja runs the voice-relay audio engine: per-guild mixers, the
// 20 ms speak loops, and the supervisor event stream, with a Prometheus
// metrics endpoint for operations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/appujet/baja/internal/config"
	"github.com/appujet/baja/internal/events"
	"github.com/appujet/baja/internal/observe"
	"github.com/appujet/baja/internal/player"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "baja: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("baja starting",
		"config", *configPath,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// Event sink: control-plane WebSocket when configured, log otherwise.
	var sink events.Sink = events.LogSink{}
	if cfg.Server.EventsURL != "" {
		ws := events.NewWebSocketSink(cfg.Server.EventsURL)
		defer ws.Close()
		sink = ws
		slog.Info("shipping events to control plane", "url", cfg.Server.EventsURL, "sessionId", ws.SessionID())
	}

	manager := player.NewManager(cfg, sink)
	defer manager.Shutdown()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	// Periodic stats snapshot keeps the pool gauge fresh.
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s := manager.Snapshot(gctx)
				slog.Debug("engine stats",
					"guilds", s.Guilds,
					"framesSent", s.FramesSent,
					"framesNulled", s.FramesNulled,
					"poolBytes", s.Pool.TotalBytes,
				)
			}
		}
	})

	slog.Info("engine ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
