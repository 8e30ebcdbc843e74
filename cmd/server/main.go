package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/wsrelay/internal/config"
	"github.com/pscheid92/wsrelay/internal/logging"
	"github.com/pscheid92/wsrelay/internal/server"
	"github.com/pscheid92/wsrelay/internal/version"
)

const (
	exitForcedShutdown = 1
	exitNoViableGroup  = 1
	exitConfigError    = 2
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wsrelay: invalid configuration: %v\n", err)
		os.Exit(exitConfigError)
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "wsrelay: %v\n", err)
		os.Exit(exitConfigError)
	}

	info := version.Get()
	slog.Info("Starting wsrelay", "version", info.Version, "commit", info.Commit, "go", info.GoVersion)

	groups := startGroups(cfg, clockwork.NewRealClock())
	if len(groups) == 0 {
		slog.Error("No listener group could be started, exiting")
		os.Exit(exitNoViableGroup)
	}

	waitForShutdown(groups, cfg.ShutdownGracePeriod())
	slog.Info("Shutdown complete")
}

// startGroups starts every enabled protocol group. A failed group is
// skipped and logged; zero viable groups is fatal for the caller.
func startGroups(cfg *config.Config, clock clockwork.Clock) []*server.Group {
	var groups []*server.Group

	if cfg.Plain.Enabled {
		group, err := server.StartGroup(server.GroupConfig{
			Protocol:          "plain",
			Host:              cfg.Plain.Host,
			Port:              cfg.Plain.Port,
			HeartbeatInterval: cfg.HeartbeatInterval(),
			HeartbeatTimeout:  cfg.HeartbeatTimeout(),
			MaxPayload:        cfg.MaxPayload,
			Limits:            cfg.Limits,
			Clock:             clock,
		})
		if err != nil {
			slog.Error("Failed to start plain listener group", "error", err)
		} else {
			groups = append(groups, group)
		}
	}

	if cfg.TLS.Enabled {
		if group, err := startTLSGroup(cfg, clock); err != nil {
			slog.Error("Failed to start tls listener group", "error", err)
		} else {
			groups = append(groups, group)
		}
	}

	return groups
}

func startTLSGroup(cfg *config.Config, clock clockwork.Clock) (*server.Group, error) {
	tlsConfig, err := server.LoadTLSMaterial(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, err
	}
	return server.StartGroup(server.GroupConfig{
		Protocol:          "tls",
		Host:              cfg.TLS.Host,
		Port:              cfg.TLS.Port,
		TLS:               tlsConfig,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		HeartbeatTimeout:  cfg.HeartbeatTimeout(),
		MaxPayload:        cfg.MaxPayload,
		Limits:            cfg.Limits,
		Clock:             clock,
	})
}

// waitForShutdown blocks until an interrupt or terminate signal arrives,
// then runs the shutdown sequence under a hard deadline. A hung close
// callback cannot stall the process past the grace period.
func waitForShutdown(groups []*server.Group, grace time.Duration) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	slog.Info("Shutdown signal received, cleaning up...")

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		for _, group := range groups {
			if err := group.Shutdown(ctx); err != nil {
				slog.Error("Listener group shutdown error",
					"protocol", group.Protocol(), "error", err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		slog.Error("Shutdown grace period exceeded, forcing exit")
		os.Exit(exitForcedShutdown)
	}
}
