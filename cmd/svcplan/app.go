package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artpar/svcplan/internal/engine"
	"github.com/artpar/svcplan/internal/shell/manifest"
	"github.com/artpar/svcplan/internal/shell/netcheck"
	"github.com/artpar/svcplan/internal/shell/probe"
	"github.com/artpar/svcplan/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess       = 0
	ExitError         = 1
	ExitConfigError   = 2
	ExitCannotProceed = 3
	ExitStoreError    = 4
)

// errCannotProceed is returned by the plan command when the plan has blockers.
var errCannotProceed = errors.New("plan cannot proceed")

// =============================================================================
// CLI Error
// =============================================================================

// CLIError carries the exit code of a failed command.
type CLIError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

func exitCode(err error) int {
	var cErr *CLIError
	if errors.As(err, &cErr) {
		return cErr.ExitCode
	}
	return ExitError
}

// =============================================================================
// Wiring
// =============================================================================

// app is the state shared by the commands of one CLI invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	output     string

	cfg    *Config
	logger *slog.Logger

	// newEngine builds the engine for a project directory. Tests replace it.
	newEngine func(ctx context.Context, cfg *Config, dir string, save bool, logger *slog.Logger) (*engine.Engine, func(), error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, newEngine: buildEngine}
}

// buildEngine wires the prober, resolver, port checker and, when saving, the
// plan store. The returned func releases the store.
func buildEngine(ctx context.Context, cfg *Config, dir string, save bool, logger *slog.Logger) (*engine.Engine, func(), error) {
	services, err := cfg.ServiceConfigs()
	if err != nil {
		return nil, nil, &CLIError{Op: "config", Err: err, ExitCode: ExitConfigError}
	}

	deps := engine.Deps{
		Prober:   probe.New(cfg.ProbeConfig(dir), probe.Deps{}, logger.With("component", "probe")),
		Resolver: manifest.New(cfg.Plan.SDKPackage, logger.With("component", "manifest")),
		Ports:    netcheck.New(cfg.Probe.PortTimeout, logger.With("component", "netcheck")),
		Logger:   logger.With("component", "engine"),
	}

	cleanup := func() {}
	if save {
		s, err := openStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		deps.Store = s
		cleanup = func() {
			if err := s.Close(); err != nil {
				logger.Warn("failed to close plan store", "error", err)
			}
		}
	}

	e, err := engine.New(engine.Config{
		Services:          services,
		AllowIncompatible: cfg.Plan.AllowIncompatible,
		Save:              save,
	}, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return e, cleanup, nil
}

// openStore opens the plan history database, creating its directory.
func openStore(cfg *Config) (*store.SQLiteStore, error) {
	dsn := cfg.Store.DSN
	if dsn != store.MemoryDSN {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, &CLIError{Op: "open store", Err: err, ExitCode: ExitStoreError}
			}
		}
	}
	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		return nil, &CLIError{Op: "open store", Err: fmt.Errorf("%s: %w", dsn, err), ExitCode: ExitStoreError}
	}
	return s, nil
}
