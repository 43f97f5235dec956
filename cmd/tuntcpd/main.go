// Command tuntcpd runs the userspace TCP/IPv4 core against a host TUN
// device.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arunvijayshankar/trust/config"
	"github.com/arunvijayshankar/trust/demux"
	"github.com/arunvijayshankar/trust/isn"
	"github.com/arunvijayshankar/trust/metrics"
	"github.com/arunvijayshankar/trust/tundev"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("tuntcpd exited", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	dev, err := tundev.Open(cfg.Iface)
	if err != nil {
		return fmt.Errorf("open tun device %q: %w", cfg.Iface, err)
	}
	defer dev.Close()

	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return fmt.Errorf("seed isn generator: %w", err)
	}

	var mcol *metrics.Collector
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		mcol = metrics.New()
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mcol.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
	}

	table := demux.NewTable()
	d := &demux.Demultiplexer{
		Device:  dev,
		Table:   table,
		ISNGen:  isn.NewGenerator(key),
		Metrics: mcol,
		Logger:  logger,
	}

	go demux.SweepLoop(ctx, table, cfg.TimeWaitTimeout, mcol, logger)

	logger.Info("tuntcpd started", "iface", cfg.Iface, "metrics_addr", cfg.MetricsAddr)
	err = d.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
