// Package cmdutils wires configuration, logging, telemetry and the status
// server around the business entry points of every command.
package cmdutils

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/openkcm/common-sdk/pkg/status"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/internal/config"
)

const (
	healthStatusTimeout = 5 * time.Second
)

// BusinessFunc is the entry point of a command.
type BusinessFunc func(context.Context, *config.Config) error

// WrapperFunc prepares the process and runs a BusinessFunc.
type WrapperFunc func(context.Context, BusinessFunc, *config.Config) error

func CobraCommand(use, short, long, buildInfo string, wrapperFunc WrapperFunc, businessFunc BusinessFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(buildInfo)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			err = wrapperFunc(cmd.Context(), businessFunc, cfg)
			if err != nil {
				return fmt.Errorf("running %s: %w", use, err)
			}

			return nil
		},
	}
}

// runMode selects the process scaffolding started around a BusinessFunc.
type runMode struct {
	telemetry    bool
	statusServer bool
}

var (
	serviceMode = runMode{telemetry: true, statusServer: true}
	jobMode     = runMode{}
)

// RunAsService runs fn with telemetry and the status server.
func RunAsService(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
	return run(ctx, serviceMode, fn, cfg)
}

// RunAsJob runs fn with logging only.
func RunAsJob(ctx context.Context, fn BusinessFunc, cfg *config.Config) error {
	return run(ctx, jobMode, fn, cfg)
}

func run(ctx context.Context, mode runMode, fn BusinessFunc, cfg *config.Config) error {
	if err := logger.InitAsDefault(cfg.Logger, cfg.Application); err != nil {
		return oops.In("main").Wrapf(err, "Failed to initialise the logger")
	}

	ctx = slogctx.Append(ctx, "application", cfg.Application.Name)
	slogctx.Debug(ctx, "Starting the application", "telemetry", mode.telemetry, "status_server", mode.statusServer)

	if mode.telemetry {
		if err := otlp.Init(ctx, &cfg.Application, &cfg.Telemetry, &cfg.Logger); err != nil {
			return oops.In("main").Wrapf(err, "Failed to load the telemetry")
		}
	}

	if mode.statusServer {
		go serveStatus(ctx, cfg)
	}

	if err := fn(ctx, cfg); err != nil {
		return oops.In("main").Wrapf(err, "Failed to start the main business application")
	}

	return nil
}

// serveStatus terminates the process when the status server cannot run.
func serveStatus(ctx context.Context, cfg *config.Config) {
	if err := startStatusServer(ctx, cfg); err != nil {
		slogctx.Error(ctx, "Failure on the status server", "error", err)
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
	}
}

func loadConfig(buildInfo string) (*config.Config, error) {
	defaultValues := map[string]any{}
	cfg := &config.Config{}

	err := commoncfg.LoadConfig(
		cfg,
		defaultValues,
		"/etc/x-connector",
		"$HOME/.x-connector",
		".",
	)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	err = commoncfg.UpdateConfigVersion(
		&cfg.BaseConfig,
		buildInfo,
	)
	if err != nil {
		return nil, fmt.Errorf("updating the version configuration: %w", err)
	}

	return cfg, nil
}

// usesDatabase reports whether the readiness probe has to check PostgreSQL.
func usesDatabase(cfg *config.Config) bool {
	return cfg.SessionStore.Backend == config.StoreBackendPostgres || cfg.Database.Name != ""
}

func readinessOptions(cfg *config.Config) ([]health.Option, error) {
	opts := []health.Option{
		health.WithDisabledAutostart(),
		health.WithTimeout(healthStatusTimeout),
		health.WithStatusListener(statusListener),
	}

	if !usesDatabase(cfg) {
		return opts, nil
	}

	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("making connection string from config: %w", err)
	}

	return append(opts, health.WithDatabaseChecker("pgx", connStr)), nil
}

func startStatusServer(ctx context.Context, cfg *config.Config) error {
	opts, err := readinessOptions(cfg)
	if err != nil {
		return err
	}

	liveness := status.WithLiveness(health.NewHandler(health.NewChecker(health.WithDisabledAutostart())))
	readiness := status.WithReadiness(health.NewHandler(health.NewChecker(opts...)))

	if err := status.Start(ctx, &cfg.BaseConfig, liveness, readiness); err != nil {
		return fmt.Errorf("starting status server: %w", err)
	}

	return nil
}

func statusListener(ctx context.Context, state health.State) {
	failed := make([]string, 0, len(state.CheckState))
	for name, check := range state.CheckState {
		if check.Result != nil {
			failed = append(failed, name)
		}
	}

	slogctx.Info(ctx, "readiness status changed", "status", state.Status, "failed_checks", failed)
}
