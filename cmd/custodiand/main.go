// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Custodiand is the consensus daemon of the custodian maintenance
// system. It listens on a Unix socket, authenticates collaborator
// processes from kernel peer credentials, and runs health-score
// consensus rounds over their observations.
//
// On startup:
//  1. Loads and validates the YAML configuration (--config or the
//     CUSTODIAN_CONFIG environment variable).
//  2. Builds the allow-list, rate limiter, deny-list scanner, and
//     optional round archive from the configuration.
//  3. Starts the deadline enforcement loop and the socket server.
//  4. Runs until SIGINT/SIGTERM, then drains active connections.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/custodian-sys/custodian/consensus"
	"github.com/custodian-sys/custodian/lib/clock"
	"github.com/custodian-sys/custodian/lib/config"
	"github.com/custodian-sys/custodian/lib/guard"
	"github.com/custodian-sys/custodian/lib/identity"
	"github.com/custodian-sys/custodian/lib/ratelimit"
	"github.com/custodian-sys/custodian/transport"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		logLevel    string
		showVersion bool
	)

	pflag.StringVar(&configPath, "config", "", "path to custodian.yaml (defaults to $CUSTODIAN_CONFIG)")
	pflag.StringVar(&socketPath, "socket", "", "unix socket path (overrides the configured socket)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("custodiand %s\n", version)
		return nil
	}

	logger, err := buildLogger(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if socketPath != "" {
		cfg.Socket = socketPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	allow, err := identity.NewAllowList(cfg.AllowListEntries())
	if err != nil {
		return fmt.Errorf("building allow-list: %w", err)
	}

	scanner := guard.NewScanner()
	if cfg.Guard.PolicyFile != "" {
		scanner, err = scanner.LoadPolicy(cfg.Guard.PolicyFile)
		if err != nil {
			return err
		}
		logger.Info("deny-list policy loaded", "path", cfg.Guard.PolicyFile)
	}

	var archiver *consensus.Archiver
	if cfg.Archive.Dir != "" {
		archiver, err = consensus.NewArchiver(cfg.Archive.Dir)
		if err != nil {
			return fmt.Errorf("building round archive: %w", err)
		}
	}

	metrics := &consensus.Metrics{}
	clk := clock.Real()
	engine := consensus.NewEngine(consensus.Options{
		QuorumThreshold: cfg.Consensus.QuorumThreshold,
		DeviationBound:  cfg.Consensus.DeviationBound,
		RoundDuration:   cfg.Consensus.RoundDuration.Std(),
		Retention:       cfg.Consensus.Retention,
	}, clk, logger, metrics, archiver)

	server := transport.NewServer(transport.ServerConfig{
		SocketPath: cfg.Socket,
		AllowList:  allow,
		Limiter:    ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window.Std()),
		Scanner:    scanner,
		Engine:     engine,
		Metrics:    metrics,
		Clock:      clk,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go engine.RunDeadlines(ctx)

	logger.Info("custodiand starting",
		"version", version,
		"socket", cfg.Socket,
		"quorum_threshold", cfg.Consensus.QuorumThreshold,
		"round_duration", time.Duration(cfg.Consensus.RoundDuration),
		"population", len(allow.Nodes()),
	)

	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("socket server: %w", err)
	}
	logger.Info("custodiand stopped")
	return nil
}

// buildLogger creates a JSON slog logger at the requested level.
func buildLogger(level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	})), nil
}
