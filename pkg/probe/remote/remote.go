// Package remote implements probe.Remote and probe.Directory by running
// PowerShell scripts through a local shell. Scripts reach the target with
// Invoke-Command and the directory with the ActiveDirectory module, and
// print JSON which is decoded here.
//
// Arguments and credentials are passed in environment variables, never
// interpolated into script text.
package remote

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kylerisse/dirhealth/pkg/probe"
)

// DefaultShell is the PowerShell executable used when none is configured.
const DefaultShell = "pwsh"

// Environment variables read by the scripts.
const (
	envHost     = "DIRHEALTH_HOST"
	envServer   = "DIRHEALTH_SERVER"
	envArg      = "DIRHEALTH_ARG"
	envUser     = "DIRHEALTH_USER"
	envPassword = "DIRHEALTH_PASSWORD"
)

//go:embed scripts/*.ps1
var scripts embed.FS

// runFunc runs script with shell and the extra environment, returning
// standard output.
type runFunc func(ctx context.Context, shell, script string, env []string) ([]byte, error)

// Client runs remote queries.
type Client struct {
	shell  string
	domain string
	creds  *probe.Credentials
	logger *logrus.Logger
	run    runFunc
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithShell sets the PowerShell executable.
func WithShell(shell string) Option {
	return func(c *Client) error {
		if strings.TrimSpace(shell) == "" {
			return errors.New("shell must not be empty")
		}
		c.shell = shell
		return nil
	}
}

// WithDomain sets the directory server or domain the ActiveDirectory
// cmdlets bind to for infrastructure-wide queries.
func WithDomain(domain string) Option {
	return func(c *Client) error {
		c.domain = domain
		return nil
	}
}

// WithCredentials sets alternate credentials. Nil uses the caller's identity.
func WithCredentials(creds *probe.Credentials) Option {
	return func(c *Client) error {
		if creds != nil && creds.Username == "" {
			return errors.New("credentials require a username")
		}
		c.creds = creds
		return nil
	}
}

// WithLogger sets the logger used for query tracing.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		shell:  DefaultShell,
		logger: logrus.StandardLogger(),
		run:    runShell,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "remote")
		}
	}
	return c, nil
}

func runShell(ctx context.Context, shell, script string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, shell, "-NoLogo", "-NoProfile", "-NonInteractive", "-Command", "-")
	cmd.Stdin = strings.NewReader(script)
	cmd.Env = append(os.Environ(), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Wrap(err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// query runs the named script against host with arg encoded as JSON and
// decodes the output into out. Empty output, null and an empty list are
// reported as probe.ErrNoData.
func (c *Client) query(ctx context.Context, name, host string, arg any, out any) error {
	prelude, err := scripts.ReadFile("scripts/prelude.ps1")
	if err != nil {
		return errors.Wrap(err, "read prelude")
	}
	body, err := scripts.ReadFile("scripts/" + name + ".ps1")
	if err != nil {
		return errors.Wrapf(err, "read script %s", name)
	}

	env := []string{envHost + "=" + host}
	if c.domain != "" {
		env = append(env, envServer+"="+c.domain)
	}
	if c.creds != nil {
		env = append(env, envUser+"="+c.creds.Username, envPassword+"="+c.creds.Password)
	}
	if arg != nil {
		b, err := json.Marshal(arg)
		if err != nil {
			return errors.Wrapf(err, "encode %s arguments", name)
		}
		env = append(env, envArg+"="+string(b))
	}

	start := time.Now()
	raw, err := c.run(ctx, c.shell, string(prelude)+"\n"+string(body), env)
	c.logger.WithFields(logrus.Fields{
		"query":    name,
		"host":     host,
		"duration": time.Since(start),
	}).Debug("remote query finished")
	if err != nil {
		return errors.Wrapf(err, "%s on %s", name, host)
	}

	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "[]":
		return probe.ErrNoData
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s output", name)
	}
	return nil
}

// parseTime parses an ISO-8601 timestamp written by the scripts. An empty
// string is the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse time %q", s)
	}
	return t, nil
}
