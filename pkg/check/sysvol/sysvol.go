// Package sysvol implements the file-replication health check for the shared
// system volume: the replication service, the share, the backlog and the
// time since the last successful sync.
package sysvol

import (
	"context"
	"fmt"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategorySysvol

	// CheckName identifies the Result within the category.
	CheckName = "SysvolReplication"
)

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "sysvol",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "service", Label: "file replication service running", Unit: evaluate.UnitBool},
		{Key: "shared", Label: "SYSVOL share present", Unit: evaluate.UnitBool},
		{Key: "backlog", Label: "file replication backlog", Unit: "files"},
		{Key: "lag", Label: "time since last successful sync", Unit: "min"},
	},
}

// DefaultThresholds returns the backlog (files) and lag (minutes) bounds.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"backlog": evaluate.Above(50, 100),
		"lag":     evaluate.Above(60, 120),
	}
}

var closing = evaluate.Closing{
	Message:         "SYSVOL is shared and replicating",
	Recommendations: []string{"Continue monitoring SYSVOL replication backlog"},
}

// Check implements check.Check using remote file-replication queries.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
	now        func() time.Time
}

// Option is a functional option for configuring a sysvol Check.
type Option func(*Check) error

// WithClock sets the time source used to compute replication lag.
func WithClock(now func() time.Time) Option {
	return func(c *Check) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// New creates a sysvol Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("sysvol: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("sysvol: %w", err)
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

// Run evaluates SYSVOL replication on target.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	if c.deps.Remote == nil {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrUnavailable)}, nil
	}

	pctx, cancel := c.deps.Context(ctx)
	st, err := c.deps.Remote.SysvolStatus(pctx, target.Host())
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, err)}, nil
	}

	var errs check.SignalErrors
	data := map[string]any{
		"serviceRunning": st.ServiceRunning,
		"shared":         st.Shared,
		"backlog":        st.Backlog,
	}
	if st.State != "" {
		data["state"] = st.State
	}

	backlog := c.thresholds["backlog"]
	signals := []evaluate.Signal{
		evaluate.Probe("service", st.ServiceRunning,
			fmt.Sprintf("DFS Replication service is not running on %s", target.Name),
			fmt.Sprintf("Start the DFSR service on %s", target.Name)),
		evaluate.Probe("shared", st.Shared,
			fmt.Sprintf("SYSVOL is not shared on %s", target.Name),
			"Verify the SysvolReady flag and the Netlogon service",
			"Check the DFS Replication event log for initial sync errors"),
		evaluate.Numeric("backlog", float64(st.Backlog), "", backlog).
			Warn("SYSVOL backlog on %s is %d files (warning threshold: %v)", target.Name, st.Backlog, backlog.Warning).
			Crit("SYSVOL backlog on %s is %d files (critical threshold: %v)", target.Name, st.Backlog, backlog.Critical).
			Fix("Check DFSR connection health with partners and review staging quota"),
	}

	if st.LastSync.IsZero() {
		errs.Add("lag", probe.ErrNoData)
	} else {
		minutes := c.now().Sub(st.LastSync).Minutes()
		if minutes < 0 {
			minutes = 0
		}
		lag := c.thresholds["lag"]
		data["lastSync"] = st.LastSync
		data["lagMinutes"] = minutes
		signals = append(signals, evaluate.Numeric("lag", minutes, "min", lag).
			Warn("SYSVOL last replicated %.0f minutes ago on %s (warning threshold: %v minutes)", minutes, target.Name, lag.Warning).
			Crit("SYSVOL last replicated %.0f minutes ago on %s (critical threshold: %v minutes)", minutes, target.Name, lag.Critical).
			Fix("Force a DFSR poll and check replication schedules"))
	}

	errs.Record(data)
	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

// Factory creates a sysvol Check from a config map.
// Optional keys:
//   - "backlog_warning", "backlog_critical" (number): files
//   - "lag_warning", "lag_critical" (number): minutes
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	c, err := New(deps)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("sysvol: %w", err)
	}
	return c, nil
}
