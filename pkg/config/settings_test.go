package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/orchestrator"
	"github.com/kylerisse/dirhealth/pkg/probe/dnsprobe"
)

const sampleConfig = `
logging:
  level: debug
  format: json
domain: corp.example.com.
targets:
  - dc1.corp.example.com
  - dc2.corp.example.com
discovery:
  dns_server: 10.0.0.53
run:
  parallelism: 2
  check_timeout: 90s
  rate: 5
  burst: 2
  include_healthy: true
  categories: [replication, services]
credentials:
  username: CORP\auditor
  password_env: TEST_DIRHEALTH_SECRET
icmp:
  mode: system
  count: 3
checks:
  replication:
    latency_warning: 30
  events:
    window: 6h
metrics:
  textfile: /var/lib/node_exporter/dirhealth.prom
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dirhealth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Run.Parallelism)
	assert.Equal(t, 2*time.Minute, cfg.Run.CheckTimeout)
	assert.Equal(t, 30*time.Second, cfg.Run.ProbeTimeout)
	assert.Equal(t, 1, cfg.Run.Burst)
	assert.Zero(t, cfg.Run.Rate)
	assert.Equal(t, "pwsh", cfg.Remote.Shell)
	assert.Equal(t, "native", cfg.ICMP.Mode)
	assert.Equal(t, 1, cfg.ICMP.Count)
	assert.Equal(t, 3*time.Second, cfg.ICMP.Timeout)
	assert.Equal(t, "DIRHEALTH_PASSWORD", cfg.Credentials.PasswordEnv)
	assert.False(t, cfg.Discovery.Disabled)
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "corp.example.com", cfg.Domain)
	assert.Equal(t, []string{"dc1.corp.example.com", "dc2.corp.example.com"}, cfg.Targets)
	assert.Equal(t, 2, cfg.Run.Parallelism)
	assert.Equal(t, 90*time.Second, cfg.Run.CheckTimeout)
	assert.Equal(t, 30*time.Second, cfg.Run.ProbeTimeout, "unset fields keep their default")
	assert.Equal(t, 5.0, cfg.Run.Rate)
	assert.True(t, cfg.Run.IncludeHealthy)
	assert.Equal(t, "system", cfg.ICMP.Mode)
	assert.Equal(t, 3, cfg.ICMP.Count)
	assert.Equal(t, map[string]any{"latency_warning": 30}, cfg.Checks["replication"])
	assert.Equal(t, "/var/lib/node_exporter/dirhealth.prom", cfg.Metrics.Textfile)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("DIRHEALTH_PARALLELISM", "8")
	t.Setenv("DIRHEALTH_TARGETS", "dc9,dc10")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Run.Parallelism)
	assert.Equal(t, []string{"dc9", "dc10"}, cfg.Targets)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "no config file")

	_, err = Load(writeConfig(t, "run: [not, a, map]\n"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestLoad_EmptyNamesIgnored(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Run.Parallelism)
}

func validSettings(t *testing.T) *Settings {
	t.Helper()
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Settings) {},
		},
		{
			name:    "bad log level",
			mutate:  func(s *Settings) { s.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(s *Settings) { s.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name: "no targets and no domain",
			mutate: func(s *Settings) {
				s.Targets = nil
				s.Domain = ""
			},
			wantErr: "domain is required",
		},
		{
			name: "no targets and discovery disabled",
			mutate: func(s *Settings) {
				s.Targets = nil
				s.Discovery.Disabled = true
			},
			wantErr: "discovery is disabled",
		},
		{
			name:   "no targets with discovery",
			mutate: func(s *Settings) { s.Targets = nil },
		},
		{
			name:    "parallelism",
			mutate:  func(s *Settings) { s.Run.Parallelism = 0 },
			wantErr: "run.parallelism",
		},
		{
			name:    "negative check timeout",
			mutate:  func(s *Settings) { s.Run.CheckTimeout = -time.Second },
			wantErr: "run.check_timeout",
		},
		{
			name:    "probe timeout",
			mutate:  func(s *Settings) { s.Run.ProbeTimeout = 0 },
			wantErr: "run.probe_timeout",
		},
		{
			name:    "negative rate",
			mutate:  func(s *Settings) { s.Run.Rate = -1 },
			wantErr: "run.rate",
		},
		{
			name:    "burst",
			mutate:  func(s *Settings) { s.Run.Burst = 0 },
			wantErr: "run.burst",
		},
		{
			name:    "unknown category",
			mutate:  func(s *Settings) { s.Run.Categories = []string{"replication", "backups"} },
			wantErr: "run.categories",
		},
		{
			name:    "icmp mode",
			mutate:  func(s *Settings) { s.ICMP.Mode = "raw" },
			wantErr: "icmp.mode",
		},
		{
			name:    "icmp count",
			mutate:  func(s *Settings) { s.ICMP.Count = 0 },
			wantErr: "icmp.count",
		},
		{
			name:    "empty shell",
			mutate:  func(s *Settings) { s.Remote.Shell = "" },
			wantErr: "remote.shell",
		},
		{
			name: "empty shell with remote disabled",
			mutate: func(s *Settings) {
				s.Remote.Shell = ""
				s.Remote.Disabled = true
			},
		},
		{
			name:    "unknown checks section",
			mutate:  func(s *Settings) { s.Checks["backups"] = map[string]any{} },
			wantErr: "checks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validSettings(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestToYAML(t *testing.T) {
	cfg := validSettings(t)
	raw, err := cfg.ToYAML()
	require.NoError(t, err)

	var back Settings
	require.NoError(t, yaml.Unmarshal(raw, &back))
	assert.Equal(t, cfg.Domain, back.Domain)
	assert.Equal(t, cfg.Run.CheckTimeout, back.Run.CheckTimeout)
	assert.Equal(t, cfg.Targets, back.Targets)
	assert.Contains(t, string(raw), "check_timeout: 1m30s")
}

func TestRunOptions(t *testing.T) {
	cfg := validSettings(t)
	o, err := cfg.RunOptions()
	require.NoError(t, err)

	assert.Equal(t, cfg.Targets, o.Targets)
	assert.True(t, o.IncludeHealthy)
	assert.Equal(t, []check.Category{check.CategoryReplication, check.CategoryServices}, o.Categories)
	assert.Equal(t, map[string]any{"latency_warning": 30}, o.Overrides[check.CategoryReplication])
	assert.Equal(t, map[string]any{"window": "6h"}, o.Overrides[check.CategoryEvents])

	cfg.Run.Categories = []string{"nope"}
	_, err = cfg.RunOptions()
	assert.ErrorIs(t, err, check.ErrUnknownCategory)
}

func TestCredentialsValue(t *testing.T) {
	cfg := validSettings(t)
	t.Setenv("TEST_DIRHEALTH_SECRET", "hunter2")

	creds := cfg.CredentialsValue()
	require.NotNil(t, creds)
	assert.Equal(t, `CORP\auditor`, creds.Username)
	assert.Equal(t, "hunter2", creds.Password)

	cfg.Credentials.Username = ""
	assert.Nil(t, cfg.CredentialsValue())
}

func TestBuildProbes(t *testing.T) {
	cfg := validSettings(t)
	cfg.ICMP.Mode = "native"

	p, err := cfg.BuildProbes(quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, p.Set.Resolver)
	assert.NotNil(t, p.Set.Pinger)
	assert.NotNil(t, p.Set.Ports)
	assert.NotNil(t, p.Set.Certs)
	assert.NotNil(t, p.Set.Remote)
	assert.NotNil(t, p.Set.Directory)
	assert.Nil(t, p.Set.Resources)
	assert.NotNil(t, p.Discoverer)
	assert.Equal(t, "corp.example.com", p.Set.Domain)
	assert.Equal(t, 30*time.Second, p.Set.Timeout)
}

func TestBuildProbes_RemoteDisabledLocalEnabled(t *testing.T) {
	cfg := validSettings(t)
	cfg.Remote.Disabled = true
	cfg.Local.Enabled = true
	cfg.Local.DataPath = t.TempDir()
	cfg.Discovery.Disabled = true

	p, err := cfg.BuildProbes(quietLogger())
	require.NoError(t, err)
	assert.Nil(t, p.Set.Remote)
	assert.Nil(t, p.Set.Directory)
	assert.NotNil(t, p.Set.Resources)
	assert.Nil(t, p.Discoverer)
}

func TestBuildProbes_NoResolverConfiguration(t *testing.T) {
	cfg := validSettings(t)
	cfg.Discovery.DNSServer = ""
	cfg.Discovery.ResolvConf = filepath.Join(t.TempDir(), "resolv.conf")

	p, err := cfg.BuildProbes(quietLogger())
	require.NoError(t, err, "explicit targets do not need a resolver")
	assert.Nil(t, p.Set.Resolver)
	assert.Nil(t, p.Discoverer)
	assert.NotNil(t, p.Set.Remote)
	assert.Len(t, cfg.RunnerOptions(quietLogger(), p, nil), 4)

	cfg.Targets = nil
	_, err = cfg.BuildProbes(quietLogger())
	assert.ErrorIs(t, err, dnsprobe.ErrNoServer)

	cfg.Discovery.Disabled = true
	cfg.Targets = []string{"dc1"}
	p, err = cfg.BuildProbes(quietLogger())
	require.NoError(t, err)
	assert.Nil(t, p.Set.Resolver)
}

func TestBuildProbes_ResolvConf(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(conf, []byte("nameserver 10.0.0.53\n"), 0o600))

	cfg := validSettings(t)
	cfg.Discovery.DNSServer = ""
	cfg.Discovery.ResolvConf = conf

	p, err := cfg.BuildProbes(quietLogger())
	require.NoError(t, err)
	require.NotNil(t, p.Set.Resolver)
	assert.Equal(t, "10.0.0.53:53", p.Set.Resolver.(*dnsprobe.Resolver).Server())
	assert.NotNil(t, p.Discoverer)
}

func TestRunnerOptions(t *testing.T) {
	cfg := validSettings(t)
	p, err := cfg.BuildProbes(quietLogger())
	require.NoError(t, err)

	assert.Len(t, cfg.RunnerOptions(quietLogger(), p, nil), 5)
	assert.Len(t, cfg.RunnerOptions(quietLogger(), p, orchestrator.NewMetrics()), 6)
	assert.Len(t, cfg.RunnerOptions(quietLogger(), &Probes{}, nil), 4)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
