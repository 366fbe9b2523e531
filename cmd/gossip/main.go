package main

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/shrirambalaji/gossip-protocols/internal/config"
	"github.com/shrirambalaji/gossip-protocols/internal/maelstrom"
	"github.com/shrirambalaji/gossip-protocols/internal/node"
	"github.com/shrirambalaji/gossip-protocols/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gossip: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Stdout carries protocol frames; everything else goes to stderr.
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	tr := maelstrom.New(logger)
	n := node.New(tr, cfg, logger)
	n.Register()

	engine := n.Engine()
	engine.Start()
	defer engine.Stop()

	telemetry.ObservePending(engine.PendingCount)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		go func() {
			logger.Info("metrics listener starting", zap.String("addr", cfg.MetricsAddr))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	if err := tr.Run(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	return nil
}
