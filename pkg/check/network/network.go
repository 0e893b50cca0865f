// Package network implements the reachability check: name resolution, ICMP
// reachability and latency, and the directory service ports.
//
// Name resolution is load-bearing. When the target name does not resolve the
// result is Critical and no further probes are attempted.
package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryNetwork

	// CheckName identifies the Result within the category.
	CheckName = "NetworkConnectivity"
)

// Port is a TCP port probed on every target.
type Port struct {
	Number int
	Name   string
	// Required ports are Critical when closed; others are a Warning.
	Required bool
}

// DefaultPorts are the directory service ports.
var DefaultPorts = []Port{
	{Number: 389, Name: "LDAP", Required: true},
	{Number: 3268, Name: "GlobalCatalog"},
	{Number: 5985, Name: "WinRM"},
	{Number: 88, Name: "Kerberos", Required: true},
	{Number: 445, Name: "SMB", Required: true},
}

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "network",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "resolution", Label: "target name resolves", Unit: evaluate.UnitBool},
		{Key: "icmp", Label: "ICMP echo reply received", Unit: evaluate.UnitBool},
		{Key: "latency", Label: "ICMP round-trip time", Unit: "ms"},
		{Key: "port", Label: "TCP port accepts connections", Unit: evaluate.UnitBool},
	},
}

// DefaultThresholds returns the ICMP latency bounds in milliseconds.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"latency": evaluate.Above(100, 500),
	}
}

var closing = evaluate.Closing{
	Message:         "Target is reachable on all directory ports",
	Recommendations: []string{"Continue monitoring network connectivity"},
}

// Check implements check.Check using resolver, pinger and port probes.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
	ports      []Port
	ping       bool
}

// Option is a functional option for configuring a network Check.
type Option func(*Check) error

// WithRequireGC makes a closed global catalog port Critical.
func WithRequireGC(require bool) Option {
	return func(c *Check) error {
		for i := range c.ports {
			if c.ports[i].Number == 3268 {
				c.ports[i].Required = require
			}
		}
		return nil
	}
}

// WithPing enables or disables the ICMP probe.
func WithPing(enabled bool) Option {
	return func(c *Check) error {
		c.ping = enabled
		return nil
	}
}

// WithPorts replaces the probed port list.
func WithPorts(ports ...Port) Option {
	return func(c *Check) error {
		for _, p := range ports {
			if p.Number <= 0 || p.Number > 65535 {
				return fmt.Errorf("invalid port %d", p.Number)
			}
		}
		c.ports = append([]Port(nil), ports...)
		return nil
	}
}

// New creates a network Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
		ports:      append([]Port(nil), DefaultPorts...),
		ping:       true,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("network: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	return c, nil
}

// Type returns the check category.
func (c *Check) Type() check.Category {
	return TypeName
}

// Describe returns the Descriptor for this check.
func (c *Check) Describe() check.Descriptor {
	return Desc
}

// Run resolves target, then probes it with ICMP and on every configured port.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	host := target.Host()
	data := map[string]any{}
	var errs check.SignalErrors

	addr, err := c.resolve(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.deps.Resolver == nil {
			return []check.Result{check.UnknownResult(TypeName, CheckName, target, err)}, nil
		}
		errs.Add("resolution", err)
		errs.Record(data)
		out, _ := evaluate.Evaluate([]evaluate.Signal{
			evaluate.Probe("resolution", false,
				fmt.Sprintf("Cannot resolve %s: %v", host, err),
				fmt.Sprintf("Verify the DNS registration of %s", host)),
		}, closing)
		return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
	}
	data["address"] = addr

	signals := []evaluate.Signal{evaluate.Probe("resolution", true, "")}

	if c.ping {
		if c.deps.Pinger == nil {
			errs.Add("icmp", probe.ErrUnavailable)
		} else {
			pctx, cancel := c.deps.Context(ctx)
			rtt, err := c.deps.Pinger.Ping(pctx, addr)
			cancel()
			signals = append(signals, evaluate.WarnProbe("icmp", err == nil,
				fmt.Sprintf("%s does not answer ICMP echo requests", target.Name),
				"Verify that ICMP is permitted by the host and network firewalls"))
			if err != nil {
				errs.Add("icmp", err)
			} else {
				ms := float64(rtt) / float64(time.Millisecond)
				data["latencyMs"] = ms
				th := c.thresholds["latency"]
				signals = append(signals, evaluate.Numeric("latency", ms, "ms", th).
					Warn("ICMP latency to %s is %.0fms (warning threshold: %vms)", target.Name, ms, th.Warning).
					Crit("ICMP latency to %s is %.0fms (critical threshold: %vms)", target.Name, ms, th.Critical).
					Fix("Investigate network latency between the monitoring host and " + target.Name))
			}
		}
	}

	if c.deps.Ports == nil {
		errs.Add("ports", probe.ErrUnavailable)
	} else {
		open := make(map[string]bool, len(c.ports))
		for _, p := range c.ports {
			pctx, cancel := c.deps.Context(ctx)
			_, err := c.deps.Ports.ProbePort(pctx, addr, p.Number)
			cancel()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			key := fmt.Sprintf("%d", p.Number)
			open[key] = err == nil
			msg := fmt.Sprintf("%s port %d is not reachable on %s", p.Name, p.Number, target.Name)
			fix := fmt.Sprintf("Verify the service behind port %d is listening and the firewall permits it", p.Number)
			name := fmt.Sprintf("%s port", p.Name)
			if p.Required {
				signals = append(signals, evaluate.Probe(name, err == nil, msg, fix))
			} else {
				signals = append(signals, evaluate.WarnProbe(name, err == nil, msg, fix))
			}
		}
		data["ports"] = open
	}

	errs.Record(data)
	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

// resolve returns the address to probe. Literal IP addresses skip the
// resolver.
func (c *Check) resolve(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	if c.deps.Resolver == nil {
		return "", probe.ErrUnavailable
	}
	pctx, cancel := c.deps.Context(ctx)
	defer cancel()
	addrs, err := c.deps.Resolver.LookupHost(pctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses for %s", host)
	}
	return addrs[0], nil
}

// Factory creates a network Check from a config map.
// Optional keys:
//   - "require_gc" (bool): a closed global catalog port is Critical
//   - "ping" (bool): default true
//   - "latency_warning", "latency_critical" (number): milliseconds
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	var opts []Option
	if v, ok, err := check.ConfigBool(config, "require_gc"); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	} else if ok {
		opts = append(opts, WithRequireGC(v))
	}
	if v, ok, err := check.ConfigBool(config, "ping"); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	} else if ok {
		opts = append(opts, WithPing(v))
	}
	c, err := New(deps, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	return c, nil
}
