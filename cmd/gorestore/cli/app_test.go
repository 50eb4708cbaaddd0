package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/gorestore/cmd/gorestore/output"
	"github.com/willibrandon/gorestore/observability"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	console := output.NewConsole(&out, &out, output.VerbosityNormal)
	return New(console), &out
}

// probe is a subcommand that records the state setup left behind.
func probe(app *App, ran *bool) *cobra.Command {
	return &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			*ran = app.Config != nil && app.Logger != nil
			return nil
		},
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(fmt.Errorf("wrapped: %w", &ExitError{Code: 3})))
	assert.Equal(t, 130, ExitCode(context.Canceled))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, "exit status 2", (&ExitError{Code: 2}).Error())
}

func TestApp_SetupLoadsConfig(t *testing.T) {
	app, _ := newTestApp(t)
	var ran bool
	app.AddCommand(probe(app, &ran))

	require.NoError(t, app.Execute(context.Background(), []string{"probe", "--log-level", "debug", "-v", "detailed"}))
	assert.True(t, ran)
	assert.Equal(t, observability.DebugLevel, app.Config.LogLevel)
	assert.Equal(t, output.VerbosityDetailed, app.Console.GetVerbosity())
}

func TestApp_StdoutTracing(t *testing.T) {
	app, _ := newTestApp(t)
	var ran bool
	app.AddCommand(probe(app, &ran))

	require.NoError(t, app.Execute(context.Background(), []string{"probe", "--trace", "stdout"}))
	assert.True(t, ran)
	assert.Nil(t, app.tracer, "tracer is shut down after execution")
}

func TestApp_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"verbosity", []string{"probe", "-v", "loud"}},
		{"log level", []string{"probe", "--log-level", "loud"}},
		{"trace exporter", []string{"probe", "--trace", "zipkin"}},
		{"missing config", []string{"probe", "--config", filepath.Join("missing", "gorestore.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t)
			var ran bool
			app.AddCommand(probe(app, &ran))

			assert.Error(t, app.Execute(context.Background(), tt.args))
			assert.False(t, ran)
		})
	}
}

func TestApp_Version(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, app.Execute(context.Background(), []string{"--version"}))
	assert.Contains(t, out.String(), "gorestore version")
}
