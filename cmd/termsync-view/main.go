// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/termsync/lib/cli"
	"github.com/bureau-foundation/termsync/lib/codec"
	"github.com/bureau-foundation/termsync/lib/config"
	"github.com/bureau-foundation/termsync/lib/version"
	"github.com/bureau-foundation/termsync/lib/viewui"
	"github.com/bureau-foundation/termsync/replica"
	"github.com/bureau-foundation/termsync/resync"
	"github.com/bureau-foundation/termsync/transport"
	"github.com/bureau-foundation/termsync/viewer"
)

func main() {
	os.Exit(cli.Exit(os.Stderr, run(os.Args[1:])))
}

func run(args []string) error {
	var (
		configPath  string
		connect     string
		relay       string
		peer        string
		lossy       bool
		logOutput   string
		colors      string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("termsync-view", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (.yaml, .json or .jsonc)")
	flagSet.StringVar(&connect, "connect", "", "host TCP address")
	flagSet.StringVar(&relay, "relay", "", "host relay websocket URL (ws:// or wss://)")
	flagSet.StringVar(&peer, "peer", "", "host WebRTC peer id, signaled through transport.signal_url")
	flagSet.BoolVar(&lossy, "lossy", false, "take live updates on the unordered channel when the link has one")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file (in addition to the status line)")
	flagSet.StringVar(&colors, "colors", "", "force a color profile: none, ansi, ansi256 or truecolor (default: detect)")
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
		version.Print(os.Stdout, "termsync-view")
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return cli.Validation("unexpected argument: %s", rest[0])
	}

	settings := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return cli.Validation("%w", err)
		}
		settings = loaded
	}
	// A target on the command line replaces the configured one.
	if flagSet.Changed("connect") || flagSet.Changed("relay") || flagSet.Changed("peer") {
		settings.Viewer.Connect, settings.Viewer.Relay, settings.Viewer.Peer = connect, relay, peer
	}
	if flagSet.Changed("lossy") {
		settings.Viewer.Lossy = lossy
	}
	if err := settings.Validate(); err != nil {
		return cli.Validation("invalid configuration:\n%w", err)
	}
	level, err := settings.Level()
	if err != nil {
		return cli.Validation("%w", err)
	}

	var render func(viewui.Model) viewui.Model
	if colors != "" {
		profile, err := viewui.ParseColorProfile(colors)
		if err != nil {
			return cli.Validation("--colors: %w", err)
		}
		render = func(model viewui.Model) viewui.Model { return model.WithColorProfile(profile) }
	}

	dial, target, err := newDialer(settings)
	if err != nil {
		return cli.Validation("%w", err)
	}

	statusHandler := viewui.NewLogHandler(slog.LevelWarn)
	var handler slog.Handler = statusHandler
	if logOutput != "" {
		fileLogger, closeFile, err := cli.NewFileLogger(logOutput, level)
		if err != nil {
			return cli.Validation("cannot open log file %s: %w", logOutput, err)
		}
		defer closeFile()
		handler = cli.FanoutHandler{statusHandler, fileLogger.Handler()}
	}
	logger := slog.New(handler)

	return view(settings, dial, target, render, statusHandler, logger)
}

func view(settings *config.Config, dial viewer.Dialer, target string, render func(viewui.Model) viewui.Model, statusHandler *viewui.LogHandler, logger *slog.Logger) error {
	client := viewer.New(viewer.Config{
		Replica: replica.Config{
			Lookahead:          settings.Replica.Lookahead,
			RequestRows:        settings.Replica.RequestRows,
			MaxPendingRequests: settings.Replica.MaxPendingRequests,
			RequestInterval:    settings.Replica.RequestInterval,
			RequestTimeout:     settings.Replica.RequestTimeout,
			MaxAttempts:        settings.Replica.MaxAttempts,
		},
		Resync: resync.ReceiverConfig{
			MaxBuffered:   settings.Resync.MaxBuffered,
			RetryInterval: settings.Resync.RetryInterval,
		},
		InitialRows: settings.Viewer.InitialRows,
		Lossy:       settings.Viewer.Lossy,
		AckInterval: settings.Viewer.AckInterval,
		SendTimeout: settings.Sync.SendTimeout,
		Logger:      logger,
	})

	model := viewui.NewModel(client.Cache(), client.Input, target)
	if render != nil {
		model = render(model)
	}
	program := tea.NewProgram(model, tea.WithAltScreen())
	statusHandler.SetProgram(program)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	replicated := make(chan error, 1)
	go func() {
		err := client.RunWithRedial(ctx, dial)
		replicated <- err
		program.Quit()
	}()

	_, uiErr := program.Run()
	cancel()
	replicateErr := <-replicated
	switch {
	case uiErr != nil:
		return uiErr
	case replicateErr != nil && !errors.Is(replicateErr, context.Canceled):
		return cli.Transient("%s: %w", target, replicateErr)
	}
	return nil
}

// newDialer returns how to reach the configured host and a short name
// for it.
func newDialer(settings *config.Config) (viewer.Dialer, string, error) {
	compression, err := codec.ParseCompressionTag(settings.Transport.Compression)
	if err != nil {
		return nil, "", err
	}
	frameCodec := transport.FrameCodec{Compression: compression, MaxFrameSize: settings.Transport.MaxFrameSize}
	timeout := settings.Transport.ConnectTimeout

	withTimeout := func(dial viewer.Dialer) viewer.Dialer {
		return func(ctx context.Context) (*transport.Link, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return dial(ctx)
		}
	}

	switch {
	case settings.Viewer.Relay != "":
		address, err := sessionURL(settings.Viewer.Relay)
		if err != nil {
			return nil, "", err
		}
		return withTimeout(func(ctx context.Context) (*transport.Link, error) {
			return transport.DialWebSocket(ctx, address, frameCodec)
		}), settings.Viewer.Relay, nil

	case settings.Viewer.Peer != "":
		rtc := transport.WebRTCConfig{
			LocalID:        "termsync-view-" + uuid.NewString(),
			Signaler:       &transport.HTTPSignaler{BaseURL: settings.Transport.SignalURL, Client: http.DefaultClient},
			ICE:            transport.ICEConfigFromURLs(settings.Transport.ICEServers, settings.Transport.ICEUsername, settings.Transport.ICECredential),
			Codec:          frameCodec,
			MaxMessageSize: settings.Transport.MaxMessageSize,
			Timeout:        timeout,
		}
		peer := settings.Viewer.Peer
		return func(ctx context.Context) (*transport.Link, error) {
			return transport.DialWebRTC(ctx, rtc, peer)
		}, peer, nil

	default:
		address := settings.Viewer.Connect
		if address == "" {
			address = settings.Host.Listen
		}
		return withTimeout(func(ctx context.Context) (*transport.Link, error) {
			return transport.DialTCP(ctx, address, frameCodec)
		}), address, nil
	}
}

// sessionURL points a relay URL at its /session endpoint unless it
// already names a path.
func sessionURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("relay URL %q: %w", raw, err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("relay URL %q: scheme must be ws or wss", raw)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/session"
	}
	return parsed.String(), nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `termsync-view shows a terminal served by termsync-host.

Usage:
  termsync-view [flags]

Keys:
  pgup/pgdn, shift+up/down   scroll history
  ctrl+home / ctrl+end       oldest row / follow live output
  ctrl+q                     quit
  anything else              typed into the host's terminal

Examples:
  termsync-view --connect build-box:7420
  termsync-view --relay wss://build-box.example.com
  termsync-view --config viewer.yaml --peer termsync-host --lossy

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
