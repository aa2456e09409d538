package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hpungsan/phototag/internal/config"
	"github.com/hpungsan/phototag/internal/correlator"
	"github.com/hpungsan/phototag/internal/db"
	"github.com/hpungsan/phototag/internal/logging"
	"github.com/hpungsan/phototag/internal/mcp"
	"github.com/hpungsan/phototag/internal/ops"
	"github.com/hpungsan/phototag/internal/timer"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"create": true, "fetch": true, "list": true, "update": true, "delete": true,
	"search": true, "suggest": true, "tags": true,
	"schedule": true, "cancel": true, "alarms": true, "fire": true, "tap": true, "reconcile": true,
	"export": true, "import": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// ownsDelivery reports whether this process runs long enough to deliver
// reminders: the MCP server and the serve command.
func ownsDelivery() bool {
	return !isCLIMode() || os.Args[1] == "serve"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
        __          __        __
   ___ / /  ___  / /____ _/ /____ ____ _
  / _ \/ _ \/ _ \/ __/ _ \/ __/ _ '/ _ '/
 / .__/_//_/\___/\__/\___/\__/\_,_/\_, /
/_/                               /___/

  Tagged photos with one-shot reminders

  Usage: phototag <command> [options]
         phototag --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && !isCLIMode() && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'phototag --help' for usage.\n")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the store, timers and service, then hands off to the CLI or
// the MCP server.
func run() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not determine home directory: %w", err)
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stdout carries JSON results and the MCP protocol; logs go to stderr.
	logger := logging.New(cfg, os.Stderr)
	warnUnknownNames(logger, cfg)

	database, err := db.Init(baseDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	// Only a long-running process owns delivery. One-shot commands leave
	// due alarms pending so the next serving process fires them.
	owner := ownsDelivery()
	var timers interface {
		timer.Service
		Close() error
	}
	if owner {
		timers = timer.NewLocal(logger)
	} else {
		timers = timer.NewDeferred(logger)
	}
	defer timers.Close()

	deps := newDeps(database, cfg, baseDir, timers, logger)
	ctx := context.Background()
	if owner {
		if _, err := deps.svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
	} else if _, err := deps.svc.RebuildIndex(ctx); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	if isCLIMode() {
		return newCLIApp(deps).Run(os.Args)
	}

	// MCP server mode (default)
	return mcp.Run(deps.svc, cfg, Version)
}

// newDeps assembles the service and the delivery sinks every surface shares.
func newDeps(database *sql.DB, cfg *config.Config, baseDir string, timers timer.Service, logger zerolog.Logger) *cliDeps {
	feed := correlator.NewFeed(cfg.FeedSize)
	sink := correlator.Multi(feed, correlator.LogSink{Log: logger.With().Str("component", "reminders").Logger()})
	svc := ops.New(ops.Options{
		DB:      database,
		Config:  cfg,
		BaseDir: baseDir,
		Timers:  timers,
		Sink:    sink,
		Logger:  logger,
	})
	return &cliDeps{svc: svc, cfg: cfg, feed: feed, log: logger}
}

// warnUnknownNames logs disabled tool and type names that match nothing.
func warnUnknownNames(logger zerolog.Logger, cfg *config.Config) {
	for _, name := range mcp.ValidateDisabledTools(cfg.DisabledTools) {
		logger.Warn().Str("tool", name).Msg("unknown tool in disabled_tools")
	}
	for _, name := range mcp.ValidateDisabledTypes(cfg.DisabledTypes) {
		logger.Warn().Str("type", name).Msg("unknown type in disabled_types")
	}
}
