package observability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	RunsTotal.WithLabelValues("succeeded").Inc()

	path := filepath.Join(t.TempDir(), "textfile", "modweave.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `modweave_runs_total{status="succeeded"}`) {
		t.Fatalf("runs counter missing from textfile:\n%s", data)
	}
}

func TestSetupTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingConfig{Endpoint: "  "})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown failed: %v", err)
	}
}
