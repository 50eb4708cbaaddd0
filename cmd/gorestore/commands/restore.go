package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/willibrandon/gorestore/cmd/gorestore/cli"
	"github.com/willibrandon/gorestore/cmd/gorestore/config"
	"github.com/willibrandon/gorestore/cmd/gorestore/output"
	"github.com/willibrandon/gorestore/cmd/gorestore/project"
	"github.com/willibrandon/gorestore/core"
	"github.com/willibrandon/gorestore/observability"
	"github.com/willibrandon/gorestore/restore"
)

type restoreFlags struct {
	force       bool
	lockMode    string
	json        bool
	metricsAddr string
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(app *cli.App) *cobra.Command {
	flags := &restoreFlags{}

	cmd := &cobra.Command{
		Use:   "restore [<DESCRIPTOR>...]",
		Short: "Restore project dependencies",
		Long: `Resolves the dependencies declared by the given project descriptors, writes
their lock files and installs the resolved packages.

When no descriptor is given, every *.project.yaml, *.project.yml and
*.project.json file in the working directory is restored. Descriptors
referenced by path are restored with them.

Examples:
  gorestore restore
  gorestore restore src/App/App.project.yaml
  gorestore restore --source ./feed --packages /tmp/packages
  gorestore restore --lock-mode locked --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd.Context(), app, args, flags)
		},
	}

	f := cmd.Flags()
	f.StringSliceP("source", "s", nil, "Package source(s) used by projects that declare none, as location or name=location")
	f.String("packages", "", "Packages folder (default: ~/.gorestore/packages)")
	f.Bool("fail-fast", false, "Cancel remaining projects once a package source is unreachable")
	f.Int("max-parallel", 0, "Maximum number of projects restored concurrently (default: number of CPUs)")
	f.BoolVar(&flags.force, "force", false, "Restore even if the project is up to date")
	f.StringVar(&flags.lockMode, "lock-mode", "", "Override the lock mode of every project: none, use-if-present or locked")
	f.BoolVar(&flags.json, "json", false, "Write the restore summary as JSON")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while restoring")

	_ = app.Viper.BindPFlag(config.KeySources, f.Lookup("source"))
	_ = app.Viper.BindPFlag(config.KeyPackagesFolder, f.Lookup("packages"))
	_ = app.Viper.BindPFlag(config.KeyFailFast, f.Lookup("fail-fast"))
	_ = app.Viper.BindPFlag(config.KeyMaxParallel, f.Lookup("max-parallel"))

	return cmd
}

func runRestore(ctx context.Context, app *cli.App, args []string, flags *restoreFlags) error {
	paths := args
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		if paths, err = project.Discover(cwd); err != nil {
			return err
		}
	}

	descriptors, err := project.Load(paths...)
	if err != nil {
		return err
	}

	if flags.lockMode != "" {
		mode, err := restore.ParseLockMode(flags.lockMode)
		if err != nil {
			return err
		}
		for i := range descriptors {
			descriptors[i].LockMode = mode
		}
	}

	spec, err := restore.NewSpecBuilder(app.Config.Settings()).Build(descriptors)
	if err != nil {
		return err
	}

	if flags.metricsAddr != "" {
		stop, err := serveMetrics(flags.metricsAddr, app.Logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	opts := app.Config.Options()
	opts.Force = flags.force
	opts.Logger = app.Logger
	opts.Providers = core.NewProviderCache(app.Logger)

	start := time.Now()
	var status *output.TerminalStatus
	if !flags.json && app.Console.GetVerbosity() > output.VerbosityQuiet {
		status = output.NewTerminalStatus(app.Console.Out(), "Restore", output.DefaultTTYDetector)
	}
	summaries := restore.NewRestorer(opts).Restore(ctx, spec)
	if status != nil {
		status.Stop()
	}

	if flags.json {
		if err := output.WriteJSON(app.Console.Out(), output.NewRestoreOutput(summaries, time.Since(start))); err != nil {
			return fmt.Errorf("failed to write restore summary: %w", err)
		}
	} else {
		restore.Report(app.Console, summaries)
	}

	if code := restore.ExitCode(summaries); code != 0 {
		return &cli.ExitError{Code: code}
	}
	return nil
}

// serveMetrics exposes the Prometheus registry on addr until stop is called.
func serveMetrics(addr string, logger observability.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped: {Error}", err)
		}
	}()
	logger.Info("Serving metrics on http://{Address}/metrics", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
