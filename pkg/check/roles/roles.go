// Package roles implements the authoritative-role availability check. It runs
// once per infrastructure and produces one Result per role: a role with no
// holder, or whose holder does not answer on the directory port, is Critical.
package roles

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
	TypeName = check.CategoryRoles

	// DefaultPort is the port used to confirm a holder is reachable.
	DefaultPort = 389
)

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "roles",
	Scope: check.ScopeInfrastructure,
	Signals: []check.SignalDef{
		{Key: "holder", Label: "role has an assigned holder", Unit: evaluate.UnitBool},
		{Key: "reachable", Label: "role holder answers on the directory port", Unit: evaluate.UnitBool},
	},
}

// Check implements check.Check against the directory's role assignments.
type Check struct {
	deps  probe.Set
	port  int
	roles []string
}

// Option is a functional option for configuring a roles Check.
type Option func(*Check) error

// WithPort sets the port used to confirm a holder is reachable.
func WithPort(port int) Option {
	return func(c *Check) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		c.port = port
		return nil
	}
}

// New creates a roles Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:  deps,
		port:  DefaultPort,
		roles: append([]string(nil), probe.Roles...),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("roles: %w", err)
		}
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

// Run queries the role holders and produces one Result per role, in
// probe.Roles order. When the holders cannot be queried every role is
// Unknown.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	if c.deps.Directory == nil {
		return c.unknown(target, probe.ErrUnavailable), nil
	}

	pctx, cancel := c.deps.Context(ctx)
	holders, err := c.deps.Directory.RoleHolders(pctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return c.unknown(target, err), nil
	}

	// Holders often own several roles; probe each once.
	reach := map[string]error{}
	results := make([]check.Result, 0, len(c.roles))
	for _, role := range c.roles {
		holder := strings.TrimSpace(holders[role])
		data := map[string]any{"role": role, "holder": holder}

		if holder == "" {
			out, _ := evaluate.Evaluate([]evaluate.Signal{
				evaluate.Probe("holder", false,
					fmt.Sprintf("No server holds the %s role", role),
					fmt.Sprintf("Seize the %s role on a healthy server", role)),
			}, closingFor(role))
			results = append(results, out.Result(TypeName, role, target, data))
			continue
		}

		signals := []evaluate.Signal{evaluate.Probe("holder", true, "")}
		if c.deps.Ports == nil {
			data[check.DataError] = fmt.Sprintf("reachable: %v", probe.ErrUnavailable)
		} else {
			perr, seen := reach[strings.ToLower(holder)]
			if !seen {
				pctx, cancel := c.deps.Context(ctx)
				_, perr = c.deps.Ports.ProbePort(pctx, holder, c.port)
				cancel()
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				reach[strings.ToLower(holder)] = perr
			}
			data["reachable"] = perr == nil
			signals = append(signals, evaluate.Probe("reachable", perr == nil,
				fmt.Sprintf("%s role holder %s is not reachable on port %d", role, holder, c.port),
				fmt.Sprintf("Restore %s or transfer the %s role to a reachable server", holder, role)))
		}

		out, err := evaluate.Evaluate(signals, closingFor(role))
		if err != nil {
			return nil, err
		}
		results = append(results, out.Result(TypeName, role, target, data))
	}
	return results, nil
}

func (c *Check) unknown(target check.Target, err error) []check.Result {
	results := make([]check.Result, 0, len(c.roles))
	for _, role := range c.roles {
		results = append(results, check.UnknownResult(TypeName, role, target, err))
	}
	return results
}

func closingFor(role string) evaluate.Closing {
	return evaluate.Closing{
		Message:         fmt.Sprintf("%s role holder is available", role),
		Recommendations: []string{"Continue monitoring role holder availability"},
	}
}

// Factory creates a roles Check from a config map.
// Optional keys:
//   - "port" (number): default 389
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	var opts []Option
	port, ok, err := check.ConfigInt(config, "port")
	if err != nil {
		return nil, fmt.Errorf("roles: %w", err)
	}
	if ok {
		opts = append(opts, WithPort(port))
	}
	return New(deps, opts...)
}
