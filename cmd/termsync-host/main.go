// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/termsync/host"
	"github.com/bureau-foundation/termsync/lib/cli"
	"github.com/bureau-foundation/termsync/lib/config"
	"github.com/bureau-foundation/termsync/lib/lineemu"
	"github.com/bureau-foundation/termsync/lib/metrics"
	"github.com/bureau-foundation/termsync/lib/version"
	"github.com/bureau-foundation/termsync/transport"
)

func main() {
	os.Exit(cli.Exit(os.Stderr, run(os.Args[1:])))
}

func run(args []string) error {
	var (
		configPath  string
		listen      string
		relayListen string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("termsync-host", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (.yaml, .json or .jsonc)")
	flagSet.StringVar(&listen, "listen", "", "TCP address for viewers (overrides host.listen)")
	flagSet.StringVar(&relayListen, "relay-listen", "", "HTTP address for websocket, signaling and metrics (overrides host.relay_listen)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log_level)")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return cli.Validation("%w", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		version.Print(os.Stdout, "termsync-host")
		return nil
	}

	settings := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return cli.Validation("%w", err)
		}
		settings = loaded
	}
	if flagSet.Changed("listen") {
		settings.Host.Listen = listen
	}
	if flagSet.Changed("relay-listen") {
		settings.Host.RelayListen = relayListen
	}
	if flagSet.Changed("log-level") {
		settings.LogLevel = logLevel
	}
	if err := settings.Validate(); err != nil {
		return cli.Validation("invalid configuration:\n%w", err).
			WithHint("Run 'termsync-host --help' for the configuration file layout.")
	}
	level, err := settings.Level()
	if err != nil {
		return cli.Validation("%w", err)
	}
	logger := cli.NewCommandLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, settings, flagSet.Args(), logger)
}

func serve(ctx context.Context, settings *config.Config, command []string, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	hostMetrics := metrics.New(registry)

	hostConfig, err := newHostConfig(settings, logger, hostMetrics)
	if err != nil {
		return cli.Validation("%w", err)
	}
	frameCodec, err := newFrameCodec(settings.Transport)
	if err != nil {
		return cli.Validation("%w", err)
	}

	emulator := lineemu.New(settings.History.Cols, settings.History.Height, 256)
	group, groupCtx := errgroup.WithContext(ctx)

	var feed func(context.Context) error
	if len(command) > 0 {
		child, err := startCommand(groupCtx, command, settings.History.Cols, settings.History.Height, logger)
		if err != nil {
			return cli.Validation("starting %s: %w", command[0], err)
		}
		hostConfig.Input = child.input
		feed = func(ctx context.Context) error {
			runErr := emulator.Run(ctx, child.output)
			waitErr := child.wait()
			logger.Info("command exited", "command", command[0], "error", waitErr)
			return runErr
		}
	} else {
		feed = func(ctx context.Context) error { return emulator.Run(ctx, os.Stdin) }
	}

	h := host.New(hostConfig)
	logger.Info("session started", "session", h.Session(), "cols", settings.History.Cols, "rows", settings.History.Height)

	group.Go(func() error { return h.Ingest(groupCtx, emulator) })
	// Not part of the group: a read from stdin cannot be interrupted, so
	// shutdown must not wait for it.
	go func() {
		if err := feed(groupCtx); err != nil && groupCtx.Err() == nil {
			logger.Warn("terminal input failed", "error", err)
		}
	}()

	listener, err := transport.NewTCPListener(settings.Host.Listen, frameCodec)
	if err != nil {
		return cli.Transient("listening on %s: %w", settings.Host.Listen, err)
	}
	defer listener.Close()
	group.Go(func() error { return h.Serve(groupCtx, listener) })

	if settings.Host.RelayListen != "" {
		if err := serveRelay(groupCtx, group, h, settings, frameCodec, registry, logger); err != nil {
			return err
		}
	}

	err = group.Wait()
	if ctx.Err() != nil {
		logger.Info("shutting down", "reason", context.Cause(ctx))
		return nil
	}
	return err
}

// serveRelay runs the HTTP relay and a WebRTC listener that negotiates
// through the relay's signaling endpoint.
func serveRelay(ctx context.Context, group *errgroup.Group, h *host.Host, settings *config.Config, frameCodec transport.FrameCodec, registry *prometheus.Registry, logger *slog.Logger) error {
	relay := host.NewRelay(h, host.RelayConfig{
		Address:        settings.Host.RelayListen,
		Codec:          frameCodec,
		AllowedOrigins: settings.Host.AllowedOrigins,
		Gatherer:       registry,
	})
	server := &http.Server{
		Addr:              settings.Host.RelayListen,
		Handler:           relay,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	group.Go(func() error {
		logger.Info("relay listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return cli.Transient("relay on %s: %w", server.Addr, err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		relay.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error { return h.Serve(ctx, relay.Sessions()) })

	peers := transport.NewWebRTCListener(transport.WebRTCConfig{
		LocalID:        settings.Host.PeerID,
		Signaler:       relay.Signaler(),
		ICE:            transport.ICEConfigFromURLs(settings.Transport.ICEServers, settings.Transport.ICEUsername, settings.Transport.ICECredential),
		Codec:          frameCodec,
		MaxMessageSize: settings.Transport.MaxMessageSize,
		Timeout:        settings.Transport.ConnectTimeout,
		Logger:         logger,
	})
	group.Go(func() error {
		defer peers.Close()
		return h.Serve(ctx, peers)
	})
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `termsync-host records a terminal and serves it to viewers.

Usage:
  termsync-host [flags] [-- command [args...]]

With a command, its output is recorded and viewer keystrokes reach its
standard input. Without one, standard input is recorded.

Examples:
  # Share a build log over TCP
  make 2>&1 | termsync-host --listen :7420

  # Share an interactive shell, reachable from browsers and WebRTC peers
  termsync-host --relay-listen :8420 -- bash -i

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
