// Copyright 2026 The Fieldsync Authors
// SPDX-License-Identifier: Apache-2.0

// fieldsync connects to a collaboration server and exercises the
// collaboration stack from the command line.
//
// Two commands:
//
// state logs every connection state change until interrupted. Useful
// for checking credentials and watching reconnect behavior.
//
// watch opens one entry or asset through the document pool, joins its
// presence channel, and logs document status and who is editing which
// field. With --focus it announces a field of its own.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/fieldsync/fieldsync/collab"
	"github.com/fieldsync/fieldsync/lib/codec"
	"github.com/fieldsync/fieldsync/lib/config"
	"github.com/fieldsync/fieldsync/lib/credential"
	"github.com/fieldsync/fieldsync/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath string
	logLevel   string
	focus      string
	readOnly   bool
	command    string
	args       []string
}

func parseOptions(arguments []string) (*options, error) {
	var parsed options
	flagSet := pflag.NewFlagSet("fieldsync", pflag.ContinueOnError)
	flagSet.StringVar(&parsed.configPath, "config", "", "configuration file (default: $FIELDSYNC_CONFIG)")
	flagSet.StringVar(&parsed.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flagSet.StringVar(&parsed.focus, "focus", "", "watch: field path to announce as focused")
	flagSet.BoolVar(&parsed.readOnly, "read-only", false, "watch: keep the document closed")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(arguments); err != nil {
		return nil, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil, pflag.ErrHelp
	}
	positional := flagSet.Args()
	if len(positional) == 0 {
		printHelp(flagSet)
		return nil, errors.New("missing command")
	}
	parsed.command, parsed.args = positional[0], positional[1:]
	return &parsed, nil
}

func run() error {
	// Handle --version before anything else.
	for _, argument := range os.Args[1:] {
		if argument == "--version" {
			fmt.Printf("fieldsync %s\n", version.Full())
			return nil
		}
	}

	parsed, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(parsed.configPath)
	if err != nil {
		return err
	}
	if parsed.logLevel != "" {
		cfg.Log.Level = parsed.logLevel
	}
	if os.Getenv("FIELDSYNC_DEBUG") == "1" {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supplier, err := resolveCredential(cfg.Credential, promptToken)
	if err != nil {
		return err
	}

	switch parsed.command {
	case "state":
		if len(parsed.args) != 0 {
			return fmt.Errorf("state takes no arguments")
		}
		return runState(ctx, cfg, supplier, logger)
	case "watch":
		entity, err := parseEntity(parsed.args)
		if err != nil {
			return err
		}
		return runWatch(ctx, cfg, supplier, logger, watchOptions{
			entity:   entity,
			focus:    parsed.focus,
			readOnly: parsed.readOnly,
		})
	default:
		return fmt.Errorf("unknown command %q (want state or watch)", parsed.command)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

// resolveCredential picks the token source: the configured token, the
// token file, or an interactive prompt.
func resolveCredential(cfg config.CredentialConfig, prompt func() (string, error)) (credential.Supplier, error) {
	switch {
	case cfg.Token != "":
		return credential.Static(cfg.Token), nil
	case cfg.TokenFile != "":
		return credential.File{Path: cfg.TokenFile}, nil
	}
	token, err := prompt()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("empty token")
	}
	return credential.Static(token), nil
}

func promptToken() (string, error) {
	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return "", errors.New("no token configured and no terminal to prompt on (set credential.token or credential.token_file)")
	}
	fmt.Fprint(os.Stderr, "Access token: ")
	tokenBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(string(tokenBytes)), nil
}

// userID returns the presence identity: the configured user id, or the
// subject of a JWT token.
func userID(ctx context.Context, cfg config.CredentialConfig, supplier credential.Supplier) (string, error) {
	if cfg.UserID != "" {
		return cfg.UserID, nil
	}
	token, err := supplier.Token(ctx)
	if err != nil {
		return "", err
	}
	subject, err := credential.Subject(token)
	if err != nil {
		return "", fmt.Errorf("credential.user_id is not set and the token carries no user: %w", err)
	}
	return subject, nil
}

func parseEntity(args []string) (collab.Entity, error) {
	if len(args) != 2 {
		return collab.Entity{}, errors.New("usage: fieldsync watch entry|asset <id>")
	}
	var entityType collab.EntityType
	switch strings.ToLower(args[0]) {
	case "entry":
		entityType = collab.EntityEntry
	case "asset":
		entityType = collab.EntityAsset
	default:
		return collab.Entity{}, fmt.Errorf("entity type must be entry or asset, got %q", args[0])
	}
	entity := collab.Entity{Type: entityType, ID: args[1]}
	return entity, entity.Validate()
}

func dial(ctx context.Context, cfg *config.Config, supplier credential.Supplier, logger *slog.Logger) (*collab.Connection, error) {
	frameCodec, err := codec.Lookup(cfg.Transport.Codec)
	if err != nil {
		return nil, err
	}
	return collab.Dial(ctx, collab.ConnectionConfig{
		Scheme:           cfg.Server.Scheme,
		Host:             cfg.Server.Host,
		SpaceID:          cfg.Server.SpaceID,
		Credential:       supplier,
		Codec:            frameCodec,
		ReconnectMin:     cfg.Transport.ReconnectMin.Std(),
		ReconnectMax:     cfg.Transport.ReconnectMax.Std(),
		HandshakeTimeout: cfg.Transport.HandshakeTimeout.Std(),
		Logger:           logger,
	})
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `fieldsync: real-time collaboration client.

Usage:
  fieldsync [flags] state
  fieldsync [flags] watch entry|asset <id> [--focus path] [--read-only]

Configuration is read from --config or $FIELDSYNC_CONFIG (YAML, or
JSON with comments for .json/.jsonc files). When no token is
configured, fieldsync prompts for one.

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
