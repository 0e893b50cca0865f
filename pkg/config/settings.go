// Package config loads and validates the dirhealth configuration.
//
// Settings are read from zero or more YAML files and then from the
// environment, which takes precedence. Fields left unset in both take the
// defaults declared in their env-default tags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe/icmp"
)

// Settings is the complete dirhealth configuration.
type Settings struct {
	Logging Logging `yaml:"logging"`

	// Domain is the directory domain. It is required for discovery and
	// names the scope of infrastructure-wide results.
	Domain string `yaml:"domain" env:"DIRHEALTH_DOMAIN" env-description:"directory domain name"`

	// Targets are the servers to evaluate. When empty they are discovered.
	Targets []string `yaml:"targets" env:"DIRHEALTH_TARGETS" env-separator:"," env-description:"comma-separated target servers"`

	Discovery   Discovery   `yaml:"discovery"`
	Run         Run         `yaml:"run"`
	Credentials Credentials `yaml:"credentials"`
	Remote      Remote      `yaml:"remote"`
	ICMP        ICMP        `yaml:"icmp"`
	Local       Local       `yaml:"local"`
	Metrics     Metrics     `yaml:"metrics"`

	// Checks holds per-category option maps passed verbatim to each
	// category's factory, keyed by category name.
	Checks map[string]map[string]any `yaml:"checks"`
}

// Logging selects the log level and output format.
type Logging struct {
	Level  string `yaml:"level" env:"DIRHEALTH_LOG_LEVEL" env-default:"info" env-description:"logging level (trace, debug, info, warn, error)"`
	Format string `yaml:"format" env:"DIRHEALTH_LOG_FORMAT" env-default:"text" env-description:"log format: text or json"`
}

// Discovery configures SRV discovery of targets and the DNS server used
// for lookups.
type Discovery struct {
	Disabled  bool   `yaml:"disabled" env:"DIRHEALTH_DISCOVERY_DISABLED" env-description:"never discover targets"`
	DNSServer string `yaml:"dns_server" env:"DIRHEALTH_DNS_SERVER" env-description:"DNS server for lookups and discovery, host or host:port"`

	// ResolvConf is read for a server when DNSServer is empty. It defaults
	// to /etc/resolv.conf.
	ResolvConf string `yaml:"resolv_conf" env:"DIRHEALTH_RESOLV_CONF" env-description:"resolver configuration read when dns_server is unset"`
}

// Run bounds how a run is scheduled and what it reports.
type Run struct {
	Parallelism    int           `yaml:"parallelism" env:"DIRHEALTH_PARALLELISM" env-default:"4" env-description:"targets evaluated concurrently"`
	CheckTimeout   time.Duration `yaml:"check_timeout" env:"DIRHEALTH_CHECK_TIMEOUT" env-default:"2m" env-description:"bound on one (target, category) evaluation"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" env:"DIRHEALTH_PROBE_TIMEOUT" env-default:"30s" env-description:"bound on one collaborator call"`
	Rate           float64       `yaml:"rate" env:"DIRHEALTH_RATE" env-description:"evaluations started per second, 0 for unlimited"`
	Burst          int           `yaml:"burst" env:"DIRHEALTH_BURST" env-default:"1" env-description:"evaluation burst size"`
	IncludeHealthy bool          `yaml:"include_healthy" env:"DIRHEALTH_INCLUDE_HEALTHY" env-description:"keep healthy results in the report"`
	Categories     []string      `yaml:"categories" env:"DIRHEALTH_CATEGORIES" env-separator:"," env-description:"categories to run, all when empty"`
}

// Credentials are the alternate credentials for remote queries.
type Credentials struct {
	Username string `yaml:"username" env:"DIRHEALTH_USERNAME" env-description:"alternate username for remote queries"`

	// PasswordEnv names the environment variable holding the password, so
	// that the password never appears in a configuration file.
	PasswordEnv string `yaml:"password_env" env-default:"DIRHEALTH_PASSWORD" env-description:"environment variable holding the password"`
}

// Remote configures the PowerShell remote query client.
type Remote struct {
	Disabled bool   `yaml:"disabled" env:"DIRHEALTH_REMOTE_DISABLED" env-description:"do not run remote queries"`
	Shell    string `yaml:"shell" env:"DIRHEALTH_SHELL" env-default:"pwsh" env-description:"PowerShell executable"`
}

// ICMP configures the pinger.
type ICMP struct {
	Mode       string        `yaml:"mode" env:"DIRHEALTH_ICMP_MODE" env-default:"native" env-description:"native or system"`
	Count      int           `yaml:"count" env:"DIRHEALTH_ICMP_COUNT" env-default:"1" env-description:"echo requests per ping"`
	Privileged bool          `yaml:"privileged" env:"DIRHEALTH_ICMP_PRIVILEGED" env-description:"use raw sockets in native mode"`
	Timeout    time.Duration `yaml:"timeout" env:"DIRHEALTH_ICMP_TIMEOUT" env-default:"3s" env-description:"ping timeout"`
}

// Local configures direct resource sampling of the host dirhealth runs on.
type Local struct {
	Enabled  bool   `yaml:"enabled" env:"DIRHEALTH_LOCAL_ENABLED" env-description:"sample resources of the local host directly"`
	DataPath string `yaml:"data_path" env:"DIRHEALTH_DATA_PATH" env-description:"path on the data-store volume"`
}

// Metrics configures the Prometheus textfile export.
type Metrics struct {
	Textfile string `yaml:"textfile" env:"DIRHEALTH_METRICS_TEXTFILE" env-description:"write run metrics to this file"`
}

// Load reads the configuration files in order, then the environment. With
// no files only the environment and defaults apply. Empty names are
// ignored.
func Load(files ...string) (*Settings, error) {
	var cfg Settings

	read := false
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "no config file %s", f)
		}
		if err := cleanenv.ReadConfig(f, &cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to read config from %s", f)
		}
		read = true
	}
	if !read {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, errors.Wrap(err, "failed to read config from environment")
		}
	}

	cfg.Domain = strings.TrimSuffix(strings.TrimSpace(cfg.Domain), ".")
	return &cfg, nil
}

// Validate checks every section.
func (s *Settings) Validate() error {
	if err := s.Logging.Validate(); err != nil {
		return err
	}
	if len(s.Targets) == 0 {
		if s.Domain == "" {
			return errors.New("domain is required when no targets are configured")
		}
		if s.Discovery.Disabled {
			return errors.New("no targets configured and discovery is disabled")
		}
	}
	if err := s.Run.Validate(); err != nil {
		return err
	}
	if err := s.ICMP.Validate(); err != nil {
		return err
	}
	if s.Remote.Shell == "" && !s.Remote.Disabled {
		return errors.New("remote.shell must not be empty")
	}
	for name := range s.Checks {
		if _, err := check.ParseCategory(name); err != nil {
			return errors.Wrap(err, "checks")
		}
	}
	return nil
}

// Validate checks the level and format.
func (l *Logging) Validate() error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return errors.Wrap(err, "logging.level")
	}
	switch l.Format {
	case "text", "json":
	default:
		return errors.Errorf("logging.format must be text or json, got %q", l.Format)
	}
	return nil
}

// Validate checks the scheduling bounds and category names.
func (r *Run) Validate() error {
	if r.Parallelism < 1 {
		return errors.Errorf("run.parallelism must be at least 1, got %d", r.Parallelism)
	}
	if r.CheckTimeout < 0 {
		return errors.Errorf("run.check_timeout must not be negative, got %v", r.CheckTimeout)
	}
	if r.ProbeTimeout <= 0 {
		return errors.Errorf("run.probe_timeout must be positive, got %v", r.ProbeTimeout)
	}
	if r.Rate < 0 {
		return errors.Errorf("run.rate must not be negative, got %v", r.Rate)
	}
	if r.Burst < 1 {
		return errors.Errorf("run.burst must be at least 1, got %d", r.Burst)
	}
	for _, c := range r.Categories {
		if _, err := check.ParseCategory(c); err != nil {
			return errors.Wrap(err, "run.categories")
		}
	}
	return nil
}

// Validate checks the mode, count and timeout.
func (i *ICMP) Validate() error {
	switch icmp.Mode(i.Mode) {
	case icmp.ModeNative, icmp.ModeSystem:
	default:
		return errors.Errorf("icmp.mode must be native or system, got %q", i.Mode)
	}
	if i.Count < 1 {
		return errors.Errorf("icmp.count must be at least 1, got %d", i.Count)
	}
	if i.Timeout <= 0 {
		return errors.Errorf("icmp.timeout must be positive, got %v", i.Timeout)
	}
	return nil
}

// ToYAML renders the effective configuration.
func (s *Settings) ToYAML() ([]byte, error) {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode into yaml")
	}
	return raw, nil
}
