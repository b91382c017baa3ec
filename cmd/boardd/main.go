// Command boardd bridges a USB-attached vehicle co-processor board and the
// message bus: CAN frames, board health, fan control, and the one-shot
// safety arming sequence.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/canbridge/boardd/internal/boardd"
	"github.com/canbridge/boardd/internal/config"
	"github.com/canbridge/boardd/internal/health"
	"github.com/canbridge/boardd/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.New(os.Args[1:])
	if err != nil {
		slog.Error("boardd: configuration error", "error", err)
		os.Exit(1)
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	sup, err := boardd.New(cfg, reg)
	if err != nil {
		slog.Error("boardd: startup failed", "error", err)
		os.Exit(1)
	}

	healthSrv := health.NewServer(cfg.HealthAddr, sup, prometheus.DefaultGatherer)
	healthSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	select {
	case sig := <-sigCh:
		slog.Info("boardd: received shutdown signal", "signal", sig)
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			slog.Error("boardd: supervisor exited with error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("boardd: health server shutdown", "error", err)
	}

	slog.Info("boardd: stopped")
}
