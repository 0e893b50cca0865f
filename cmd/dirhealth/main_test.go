package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/orchestrator"
)

// offlineConfig needs no network: remote queries are disabled and the
// resolver is only constructed, never queried, by the roles category.
const offlineConfig = `
domain: corp.example.com
discovery:
  dns_server: 127.0.0.1:53
remote:
  disabled: true
logging:
  level: error
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dirhealth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestList(t *testing.T) {
	out, _, err := execute(t, "list", "--config", writeConfig(t, offlineConfig))
	require.NoError(t, err)

	for _, c := range check.AllCategories {
		assert.Contains(t, out, string(c))
	}
	assert.Contains(t, out, "(infrastructure)")
	assert.Contains(t, out, "(target)")
}

func TestList_ConfiguredSignals(t *testing.T) {
	cfg := offlineConfig + `
checks:
  services:
    services: [NTDS, Netlogon]
`
	out, _, err := execute(t, "list", "--config", writeConfig(t, cfg), "--category", "services")
	require.NoError(t, err)
	assert.Contains(t, out, "NTDS")
	assert.Contains(t, out, "Netlogon")
	assert.NotContains(t, out, "W32Time")
	assert.NotContains(t, out, "replication")
}

func TestList_UnknownCategory(t *testing.T) {
	_, _, err := execute(t, "list", "--category", "backups")
	assert.ErrorIs(t, err, check.ErrUnknownCategory)
}

func TestConfig(t *testing.T) {
	out, _, err := execute(t, "config", "--validate", "--config", writeConfig(t, offlineConfig), "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "domain: corp.example.com")
	assert.Contains(t, out, "level: debug")
	assert.Contains(t, out, "parallelism: 4")
}

func TestConfig_ValidateFails(t *testing.T) {
	_, _, err := execute(t, "config", "--validate", "--config", writeConfig(t, "logging:\n  format: xml\n"))
	assert.ErrorContains(t, err, "logging.format")
}

func TestRun_InfrastructureOnlyOffline(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "dirhealth.prom")
	out, _, err := execute(t, "run",
		"--config", writeConfig(t, offlineConfig),
		"--category", "roles",
		"--output", "json",
		"--metrics-textfile", metrics,
		"--fail-on", "critical",
	)
	require.NoError(t, err)

	var rep orchestrator.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Len(t, rep.Results, 5, "one Unknown result per role")
	for _, r := range rep.Results {
		assert.Equal(t, check.StatusUnknown, r.Status)
		assert.Equal(t, "corp.example.com", r.Target)
	}
	assert.Equal(t, 5, rep.Summary.Unknown)

	raw, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `dirhealth_results{category="roles",status="Unknown"} 5`)
}

func TestRun_WithoutResolverConfiguration(t *testing.T) {
	cfg := `
domain: corp.example.com
discovery:
  resolv_conf: ` + filepath.Join(t.TempDir(), "resolv.conf") + `
remote:
  disabled: true
logging:
  level: error
`
	out, _, err := execute(t, "run",
		"--config", writeConfig(t, cfg),
		"--target", "dc1",
		"--category", "services",
		"--output", "json",
	)
	require.NoError(t, err)

	var rep orchestrator.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Results, 1)
	assert.Equal(t, check.StatusUnknown, rep.Results[0].Status)
	assert.Equal(t, "dc1", rep.Results[0].Target)

	_, _, err = execute(t, "run", "--config", writeConfig(t, cfg), "--category", "services")
	assert.ErrorContains(t, err, "discovery needs a DNS server")
}

func TestRun_Validation(t *testing.T) {
	cfg := writeConfig(t, "remote:\n  disabled: true\n")

	_, _, err := execute(t, "run", "--config", cfg)
	assert.ErrorContains(t, err, "domain is required")

	_, _, err = execute(t, "run", "--config", writeConfig(t, offlineConfig), "--fail-on", "sometimes")
	assert.ErrorContains(t, err, "--fail-on")

	_, _, err = execute(t, "run", "--config", writeConfig(t, offlineConfig), "--parallelism", "0")
	assert.ErrorContains(t, err, "run.parallelism")
}

func TestFailed(t *testing.T) {
	tests := []struct {
		name    string
		summary orchestrator.Summary
		failOn  string
		want    bool
	}{
		{"disabled", orchestrator.Summary{Critical: 3}, "", false},
		{"critical present", orchestrator.Summary{Critical: 1}, "critical", true},
		{"only warnings", orchestrator.Summary{Warning: 2}, "critical", false},
		{"warning threshold", orchestrator.Summary{Warning: 2}, "warning", true},
		{"critical meets warning threshold", orchestrator.Summary{Critical: 1}, "warning", true},
		{"healthy", orchestrator.Summary{Healthy: 10}, "warning", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := failed(&orchestrator.Report{Summary: tt.summary}, tt.failOn)
			if got != tt.want {
				t.Errorf("failed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExitError(t *testing.T) {
	var err error = &exitError{code: 2}
	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.code)
	assert.True(t, strings.Contains(err.Error(), "2"))
}
