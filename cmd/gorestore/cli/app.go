// Package cli builds the gorestore root command and the environment shared by
// its subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/willibrandon/gorestore/cmd/gorestore/config"
	"github.com/willibrandon/gorestore/cmd/gorestore/output"
	"github.com/willibrandon/gorestore/cmd/gorestore/version"
	"github.com/willibrandon/gorestore/observability"
)

// shutdownTimeout bounds the final span flush.
const shutdownTimeout = 5 * time.Second

// ExitError carries a process exit code without an error message of its own.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

// App is the root command plus the state its subcommands share. Config and
// Logger are set once flags are parsed, before any subcommand runs.
type App struct {
	Root    *cobra.Command
	Console *output.Console
	Viper   *viper.Viper

	Config *config.Config
	Logger observability.Logger

	tracer *sdktrace.TracerProvider
}

// New creates the root command writing to console.
func New(console *output.Console) *App {
	a := &App{
		Console: console,
		Viper:   config.New(),
		Logger:  observability.NewNullLogger(),
	}

	a.Root = &cobra.Command{
		Use:   "gorestore",
		Short: "Restore package dependencies for a set of projects",
		Long: `gorestore resolves the dependencies declared by project descriptors,
writes lock files and installs packages into a shared packages folder.

Projects whose inputs are unchanged since their last successful restore are skipped.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		Run: func(cmd *cobra.Command, args []string) {
			// Show help when no command is provided
			_ = cmd.Help()
		},
	}
	a.Root.SetVersionTemplate(version.FullInfo() + "\n")
	a.Root.SetOut(console.Out())
	a.Root.SetErr(console.Err())

	flags := a.Root.PersistentFlags()
	flags.String("config", "", "Configuration file (default: gorestore.yaml in the working directory or ~/.gorestore)")
	flags.StringP("verbosity", "v", "normal", "Display verbosity: q[uiet], n[ormal], d[etailed] or diag[nostic]")
	flags.String("log-level", "warn", "Diagnostic log level: verbose, debug, info, warn or error")
	flags.String("trace", observability.ExporterNone, "Trace exporter: none, stdout or otlp")
	flags.String("otlp-endpoint", "localhost:4317", "OTLP gRPC collector endpoint")

	_ = a.Viper.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = a.Viper.BindPFlag(config.KeyTraceExporter, flags.Lookup("trace"))
	_ = a.Viper.BindPFlag(config.KeyTraceEndpoint, flags.Lookup("otlp-endpoint"))

	return a
}

// AddCommand adds subcommands to the root command.
func (a *App) AddCommand(cmds ...*cobra.Command) {
	a.Root.AddCommand(cmds...)
}

// Execute runs the command line in args and flushes traces afterwards.
func (a *App) Execute(ctx context.Context, args []string) error {
	a.Root.SetArgs(args)
	err := a.Root.ExecuteContext(ctx)

	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := observability.ShutdownTracing(shutdownCtx, a.tracer); serr != nil {
			a.Logger.Warn("Failed to flush traces: {Error}", serr)
		}
		a.tracer = nil
	}
	return err
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if v, _ := cmd.Flags().GetString("verbosity"); v != "" {
		verbosity, err := output.ParseVerbosity(v)
		if err != nil {
			return err
		}
		a.Console.SetVerbosity(verbosity)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(a.Viper, configFile, cwd)
	if err != nil {
		return err
	}
	a.Config = cfg

	level := cfg.LogLevel
	if a.Console.GetVerbosity() == output.VerbosityDiagnostic && !cmd.Flags().Changed("log-level") {
		level = observability.DebugLevel
	}
	a.Logger = observability.NewLogger(a.Console.Err(), level)
	if cfg.File != "" {
		a.Logger.Debug("Using configuration file {ConfigFile}", cfg.File)
	}

	if cfg.TraceExporter != observability.ExporterNone {
		tc := cfg.TracerConfig(version.Version)
		tc.StdoutWriter = a.Console.Err()
		tp, err := observability.SetupTracing(cmd.Context(), tc)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		a.tracer = tp
	}
	return nil
}
