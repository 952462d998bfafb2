package scapd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/slok/scapd/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "scapd"
	}

	// go test changes the CWD to the package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("SCAPD_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("scapd binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "SCAPD_INTEGRATION"
		envBinary     = "SCAPD_INTEGRATION_BINARY"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// fakeOSCAP writes the results file it is asked for and exits with FAKE_OSCAP_EXIT_CODE (2 by default),
// generate commands print a document and succeed.
const fakeOSCAP = `#!/bin/sh
while [ $# -gt 0 ]; do
	case "$1" in
	--results|--results-arf) shift; echo "<TestResult/>" > "$1" ;;
	generate) echo "<html>generated</html>"; exit 0 ;;
	esac
	shift
done
echo "evaluating"
exit "${FAKE_OSCAP_EXIT_CODE:-2}"
`

// Env is an isolated data directory with a fake evaluation tool configured.
type Env struct {
	Config  Config
	DataDir string
	Input   string
}

// NewEnv prepares the data directory, the configuration and the fake tool.
func NewEnv(t *testing.T, config Config) Env {
	t.Helper()

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("could not create data dir: %s", err)
	}

	tool := filepath.Join(dir, "oscap")
	if err := os.WriteFile(tool, []byte(fakeOSCAP), 0o755); err != nil {
		t.Fatalf("could not write fake oscap: %s", err)
	}

	input := filepath.Join(dir, "ssg-ds.xml")
	if err := os.WriteFile(input, []byte(`<Benchmark xmlns="http://checklists.nist.gov/xccdf/1.2"><Profile id="p1"><title>P1</title></Profile></Benchmark>`), 0o644); err != nil {
		t.Fatalf("could not write input: %s", err)
	}

	cfg := fmt.Sprintf("jobs: 1\ntools:\n  oscap: %s\nfeeds:\n  enabled: false\n", tool)
	if err := os.WriteFile(filepath.Join(dataDir, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("could not write config: %s", err)
	}

	return Env{Config: config, DataDir: dataDir, Input: input}
}

// Run runs a scapd command on the env data directory.
func (e Env) Run(ctx context.Context, env []string, args ...string) (stdout, stderr []byte, err error) {
	env = append([]string{"SCAPD_DATA_DIR=" + e.DataDir}, env...)
	return testutils.RunScapdArgs(ctx, env, e.Config.Binary, args, true)
}

// Start starts a scapd command on the env data directory in the background.
func (e Env) Start(ctx context.Context, env []string, args ...string) (*exec.Cmd, error) {
	env = append([]string{"SCAPD_DATA_DIR=" + e.DataDir}, env...)
	return testutils.StartScapdArgs(ctx, env, e.Config.Binary, args, true)
}
