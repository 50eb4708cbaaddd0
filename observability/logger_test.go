package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLogger_BasicLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(buf, DebugLevel)

	log.Info("Restore started")

	if !strings.Contains(buf.String(), "Restore started") {
		t.Errorf("Output missing message: %s", buf.String())
	}
}

func TestLogger_StructuredProperties(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(buf, InfoLevel)

	log.Info("Resolved {PackageID} {Version}", "packageA", "1.0.0")

	output := buf.String()
	if !strings.Contains(output, "packageA") {
		t.Errorf("Output missing PackageID: %s", output)
	}
	if !strings.Contains(output, "1.0.0") {
		t.Errorf("Output missing Version: %s", output)
	}
}

func TestLogger_ForContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(buf, InfoLevel).ForContext("ProjectID", "app")

	log.InfoContext(context.Background(), "Wrote {Count} targets", 2)

	if !strings.Contains(buf.String(), "2") {
		t.Errorf("Output missing template property: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(buf, WarnLevel)

	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("visible warning")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("Output contains filtered messages: %s", output)
	}
	if !strings.Contains(output, "visible warning") {
		t.Errorf("Output missing warning: %s", output)
	}
}

func TestNullLogger(t *testing.T) {
	log := NewNullLogger()
	log.Info("discarded {Value}", 1)
	log.ForContext("k", "v").ErrorContext(context.Background(), "discarded")

	if OrNull(nil) == nil {
		t.Fatal("OrNull(nil) returned nil")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"verbose", VerboseLevel, false},
		{"Debug", DebugLevel, false},
		{"", InfoLevel, false},
		{"normal", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"quiet", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
