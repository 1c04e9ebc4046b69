// Package main provides the entry point for the log sessionizer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/txn2/log-sessionizer/internal/runner"
	"github.com/txn2/log-sessionizer/pkg/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath           string
	logFile              string
	inactivityPeriodFile string
	outputFile           string
	migrateAction        string
	showVersion          bool
}

func parseFlags(args []string, output io.Writer) (cliOptions, error) {
	opts := cliOptions{}
	fs := flag.NewFlagSet("log-sessionizer", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.logFile, "log_file", "", "Access log to sessionize (path or s3://bucket/key)")
	fs.StringVar(&opts.inactivityPeriodFile, "inactivity_period_file", "",
		"File whose first line is the inactivity period in whole seconds; must be a positive integer, 0 is rejected")
	fs.StringVar(&opts.outputFile, "output_file", "", "Session output (path or s3://bucket/key)")
	fs.StringVar(&opts.migrateAction, "migrate", "",
		"Manage the database schema instead of sessionizing: "+runner.MigrateActions+", or a signed step count such as +1")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("parsing flags: %w", err)
	}
	return opts, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	applyFlagOverrides(cfg, opts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlagOverrides gives command line locations precedence over the file.
// An explicit threshold file also overrides an inline inactivity period.
func applyFlagOverrides(cfg *config.Config, opts cliOptions) {
	if opts.logFile != "" {
		cfg.Input.LogFile = opts.logFile
	}
	if opts.inactivityPeriodFile != "" {
		cfg.Input.InactivityPeriodFile = opts.inactivityPeriodFile
	}
	if opts.outputFile != "" {
		cfg.Output.File = opts.outputFile
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if opts.showVersion {
		_, _ = fmt.Fprintf(stdout, "log-sessionizer version %s\n", runner.Version)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := cfg.Logging.NewLogger(stderr)
	slog.SetDefault(logger)

	ctx, cancel := setupSignalHandler()
	defer cancel()

	if opts.migrateAction != "" {
		return runMigrate(ctx, cfg, opts.migrateAction, stdout)
	}

	r, err := runner.New(ctx, cfg, runner.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating runner: %w", err)
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			logger.Warn("failed to release resources", "error", closeErr)
		}
	}()

	if _, err := r.Run(ctx); err != nil {
		return err
	}
	return nil
}

// runMigrate applies a schema action to the configured database.
func runMigrate(ctx context.Context, cfg *config.Config, action string, stdout io.Writer) error {
	if err := runner.ValidateMigrateAction(action); err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required for --migrate")
	}

	db, err := runner.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return runner.Migrate(db, action, stdout)
}
