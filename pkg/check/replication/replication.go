// Package replication implements the directory replication check. Every
// inbound replication link of the target is judged on the time since its last
// successful sync and on its consecutive-failure count; the worst link
// determines the result.
package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryReplication

	// CheckName identifies the Result within the category.
	CheckName = "ReplicationStatus"
)

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "replication",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "latency", Label: "time since last successful inbound replication", Unit: "min"},
		{Key: "failures", Label: "consecutive replication failures", Unit: "count"},
	},
}

// DefaultThresholds returns the latency (minutes) and failure bounds.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"latency":  evaluate.Above(15, 60),
		"failures": evaluate.AboveCritical(0),
	}
}

var closing = evaluate.Closing{
	Message:         "All inbound replication links are current",
	Recommendations: []string{"Continue monitoring replication latency"},
}

// Check implements check.Check against the directory's replication metadata.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
	now        func() time.Time
}

// Option is a functional option for configuring a replication Check.
type Option func(*Check) error

// WithLatency sets the latency bounds.
func WithLatency(warning, critical time.Duration) Option {
	return func(c *Check) error {
		c.thresholds["latency"] = evaluate.Above(warning.Minutes(), critical.Minutes())
		return nil
	}
}

// WithClock sets the time source used to compute latency.
func WithClock(now func() time.Time) Option {
	return func(c *Check) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// New creates a replication Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("replication: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("replication: %w", err)
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

// Run evaluates the inbound replication links of target. A target with no
// inbound links is Healthy; a failed metadata query is Unknown.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	if c.deps.Directory == nil {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrUnavailable)}, nil
	}

	pctx, cancel := c.deps.Context(ctx)
	links, err := c.deps.Directory.ReplicationLinks(pctx, target.Host())
	cancel()

	if errors.Is(err, probe.ErrNoData) || (err == nil && len(links) == 0) {
		r := check.NewResult(TypeName, CheckName, target, check.StatusHealthy,
			"No inbound replication links", map[string]any{"links": 0}, closing.Recommendations)
		return []check.Result{r}, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, err)}, nil
	}

	now := c.now()
	latencyTh := c.thresholds["latency"]
	failuresTh := c.thresholds["failures"]

	var signals []evaluate.Signal
	partners := make([]map[string]any, 0, len(links))
	for _, l := range links {
		label := l.Partner
		if l.NamingContext != "" {
			label = l.Partner + " (" + l.NamingContext + ")"
		}
		detail := map[string]any{
			"partner":             l.Partner,
			"namingContext":       l.NamingContext,
			"consecutiveFailures": l.ConsecutiveFailures,
		}

		signals = append(signals, evaluate.Numeric(label+" failures", float64(l.ConsecutiveFailures), "", failuresTh).
			Crit("Replication from %s has failed %d consecutive times", label, l.ConsecutiveFailures).
			Warn("Replication from %s has failed %d consecutive times", label, l.ConsecutiveFailures).
			Fix(fmt.Sprintf("Investigate replication errors from %s", l.Partner),
				"Run a replication summary to identify the failing partner"))
		if l.LastError != "" {
			detail["lastError"] = l.LastError
		}

		if l.LastSuccess.IsZero() {
			signals = append(signals, evaluate.Probe(label+" replicated", false,
				fmt.Sprintf("Replication from %s has never succeeded", label),
				fmt.Sprintf("Verify connectivity and permissions between %s and %s", target.Name, l.Partner)))
			partners = append(partners, detail)
			continue
		}

		minutes := now.Sub(l.LastSuccess).Minutes()
		if minutes < 0 {
			minutes = 0
		}
		detail["lastSuccess"] = l.LastSuccess
		detail["latencyMinutes"] = minutes
		signals = append(signals, evaluate.Numeric(label+" latency", minutes, "min", latencyTh).
			Warn("Replication from %s is %.0f minutes behind (warning threshold: %v minutes)", label, minutes, latencyTh.Warning).
			Crit("Replication from %s is %.0f minutes behind (critical threshold: %v minutes)", label, minutes, latencyTh.Critical).
			Fix(fmt.Sprintf("Force replication from %s and check site link schedules", l.Partner)))
		partners = append(partners, detail)
	}

	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"links":    len(links),
		"partners": partners,
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

// Factory creates a replication Check from a config map.
// Optional keys:
//   - "latency_warning", "latency_critical" (number): minutes
//   - "failures_warning", "failures_critical" (number)
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	c, err := New(deps)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("replication: %w", err)
	}
	return c, nil
}
