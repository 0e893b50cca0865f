// Package services implements the required-service check: every directory
// service must be installed, running and set to start automatically.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryServices

	// CheckName identifies the Result within the category.
	CheckName = "ServiceStatus"
)

// DefaultServices are the services every domain controller runs.
var DefaultServices = []string{"NTDS", "DNS", "Netlogon", "KDC", "W32Time", "DFSR", "ADWS", "LanmanServer"}

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "services",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "running", Label: "service installed and running", Unit: evaluate.UnitBool},
		{Key: "automatic", Label: "service start type is Automatic", Unit: evaluate.UnitBool},
	},
}

var closing = evaluate.Closing{
	Message:         "All required services are running",
	Recommendations: []string{"Continue monitoring service status"},
}

// Check implements check.Check using remote service queries.
type Check struct {
	deps     probe.Set
	services []string
}

// Option is a functional option for configuring a services Check.
type Option func(*Check) error

// WithServices replaces the list of required services.
func WithServices(names ...string) Option {
	return func(c *Check) error {
		if len(names) == 0 {
			return fmt.Errorf("at least one service is required")
		}
		c.services = append([]string(nil), names...)
		return nil
	}
}

// New creates a services Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:     deps,
		services: append([]string(nil), DefaultServices...),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("services: %w", err)
		}
	}
	return c, nil
}

// Type returns the check category.
func (c *Check) Type() check.Category {
	return TypeName
}

// Describe returns the Descriptor for this check, naming the required
// services in the signal labels.
func (c *Check) Describe() check.Descriptor {
	d := Desc
	d.Signals = make([]check.SignalDef, len(Desc.Signals))
	copy(d.Signals, Desc.Signals)
	d.Signals[0].Label = fmt.Sprintf("%s (%s)", d.Signals[0].Label, strings.Join(c.services, ", "))
	return d
}

// Run queries the required services on target. A missing or stopped service
// is Critical; a running service that does not start automatically is a
// Warning.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	if c.deps.Remote == nil {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrUnavailable)}, nil
	}

	pctx, cancel := c.deps.Context(ctx)
	states, err := c.deps.Remote.Services(pctx, target.Host(), c.services)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, err)}, nil
	}
	if len(states) == 0 {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrNoData)}, nil
	}

	byName := make(map[string]probe.ServiceState, len(states))
	for _, s := range states {
		byName[strings.ToLower(s.Name)] = s
	}

	var signals []evaluate.Signal
	detail := make(map[string]any, len(c.services))
	for _, name := range c.services {
		s, ok := byName[strings.ToLower(name)]
		if !ok || !s.Exists {
			signals = append(signals, evaluate.Probe(name+" running", false,
				fmt.Sprintf("Service %s is not installed on %s", name, target.Name),
				fmt.Sprintf("Verify the %s role is installed on %s", name, target.Name)))
			detail[name] = map[string]any{"exists": false}
			continue
		}

		detail[name] = map[string]any{
			"exists":    true,
			"running":   s.Running,
			"startType": s.StartType,
		}
		signals = append(signals, evaluate.Probe(name+" running", s.Running,
			fmt.Sprintf("Service %s is stopped on %s", name, target.Name),
			fmt.Sprintf("Start the %s service on %s and review the System event log", name, target.Name)))
		if s.Running {
			signals = append(signals, evaluate.WarnProbe(name+" automatic", automatic(s.StartType),
				fmt.Sprintf("Service %s start type is %s, not Automatic", name, startType(s.StartType)),
				fmt.Sprintf("Set the %s service start type to Automatic", name)))
		}
	}

	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	return []check.Result{out.Result(TypeName, CheckName, target, map[string]any{"services": detail})}, nil
}

func automatic(startType string) bool {
	switch strings.ToLower(startType) {
	case "automatic", "auto", "2":
		return true
	}
	return false
}

func startType(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Factory creates a services Check from a config map.
// Optional keys:
//   - "services" (list of strings): required service names
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	var opts []Option
	names, ok, err := check.ConfigStrings(config, "services")
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}
	if ok {
		opts = append(opts, WithServices(names...))
	}
	return New(deps, opts...)
}
