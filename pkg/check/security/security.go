// Package security implements the authentication and trust check: account
// lockouts and failed logons over a window, the share of NTLM
// authentications, and trust verification.
package security

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
	TypeName = check.CategorySecurity

	// CheckName identifies the Result within the category.
	CheckName = "SecurityAudit"

	// DefaultWindow is how far back authentication activity is counted.
	DefaultWindow = 24 * time.Hour
)

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "security",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "lockouts", Label: "account lockouts in window", Unit: "count"},
		{Key: "failedLogons", Label: "failed authentications in window", Unit: "count"},
		{Key: "ntlmPercent", Label: "share of NTLM authentications", Unit: "%"},
		{Key: "trust", Label: "trust relationship verifies", Unit: evaluate.UnitBool},
	},
}

// DefaultThresholds returns the lockout and failed-logon limits (inclusive)
// and the NTLM share warning bound in percent.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"lockouts":     evaluate.AboveCritical(10).Inclusively(),
		"failedLogons": evaluate.AboveCritical(50).Inclusively(),
		"ntlmPercent":  evaluate.AboveWarning(50),
	}
}

var closing = evaluate.Closing{
	Message:         "No authentication or trust issues found",
	Recommendations: []string{"Continue monitoring authentication activity"},
}

// Check implements check.Check using security event counts and trust
// verification.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
	window     time.Duration
}

// Option is a functional option for configuring a security Check.
type Option func(*Check) error

// WithWindow sets the look-back window for authentication activity.
func WithWindow(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("window must be positive, got %v", d)
		}
		c.window = d
		return nil
	}
}

// WithLockoutLimit sets the lockout count at which the result is Critical.
func WithLockoutLimit(n int) Option {
	return func(c *Check) error {
		c.thresholds["lockouts"] = evaluate.AboveCritical(float64(n)).Inclusively()
		return nil
	}
}

// WithFailedLogonLimit sets the failed-logon count at which the result is
// Critical.
func WithFailedLogonLimit(n int) Option {
	return func(c *Check) error {
		c.thresholds["failedLogons"] = evaluate.AboveCritical(float64(n)).Inclusively()
		return nil
	}
}

// New creates a security Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
		window:     DefaultWindow,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("security: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("security: %w", err)
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

// Run evaluates authentication activity and trusts on target. Either source
// alone is enough to produce a result.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	var (
		signals []evaluate.Signal
		errs    check.SignalErrors
	)
	data := map[string]any{"window": c.window.String()}

	if auth, err := c.authActivity(ctx, target); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs.Add("authActivity", err)
	} else {
		signals = append(signals, c.authSignals(target, auth, data)...)
	}

	if trusts, err := c.trusts(ctx, target); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs.Add("trusts", err)
	} else {
		detail := make([]map[string]any, 0, len(trusts))
		for _, tr := range trusts {
			detail = append(detail, map[string]any{"name": tr.Name, "direction": tr.Direction, "verified": tr.Verified})
			msg := fmt.Sprintf("Trust with %s failed verification", tr.Name)
			if tr.Error != "" {
				msg = fmt.Sprintf("%s: %s", msg, tr.Error)
			}
			signals = append(signals, evaluate.WarnProbe("trust "+tr.Name, tr.Verified, msg,
				fmt.Sprintf("Reset the secure channel of the trust with %s", tr.Name)))
		}
		data["trusts"] = detail
	}

	if len(signals) == 0 {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, errs.Err())}, nil
	}

	errs.Record(data)
	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

func (c *Check) authActivity(ctx context.Context, target check.Target) (probe.AuthActivity, error) {
	if c.deps.Remote == nil {
		return probe.AuthActivity{}, probe.ErrUnavailable
	}
	pctx, cancel := c.deps.Context(ctx)
	defer cancel()
	return c.deps.Remote.AuthActivity(pctx, target.Host(), c.window)
}

func (c *Check) trusts(ctx context.Context, target check.Target) ([]probe.Trust, error) {
	if c.deps.Directory == nil {
		return nil, probe.ErrUnavailable
	}
	pctx, cancel := c.deps.Context(ctx)
	defer cancel()
	trusts, err := c.deps.Directory.Trusts(pctx, target.Host())
	if errors.Is(err, probe.ErrNoData) {
		return nil, nil
	}
	return trusts, err
}

func (c *Check) authSignals(target check.Target, a probe.AuthActivity, data map[string]any) []evaluate.Signal {
	lock, failed, ntlm := c.thresholds["lockouts"], c.thresholds["failedLogons"], c.thresholds["ntlmPercent"]
	data["lockouts"] = a.Lockouts
	data["failedLogons"] = a.FailedLogons
	data["ntlm"] = a.NTLM
	data["kerberos"] = a.Kerberos

	signals := []evaluate.Signal{
		evaluate.Numeric("lockouts", float64(a.Lockouts), "", lock).
			Crit("%d account lockouts on %s in the last %s (limit: %v)", a.Lockouts, target.Name, c.window, lock.Critical).
			Fix("Investigate the source of account lockouts", "Check for password spraying or stale credentials on services"),
		evaluate.Numeric("failedLogons", float64(a.FailedLogons), "", failed).
			Crit("%d failed authentications on %s in the last %s (limit: %v)", a.FailedLogons, target.Name, c.window, failed.Critical).
			Fix("Review failed logon events for brute-force patterns"),
	}

	total := a.NTLM + a.Kerberos
	if total > 0 {
		pct := float64(a.NTLM) / float64(total) * 100
		data["ntlmPercent"] = pct
		signals = append(signals, evaluate.Numeric("ntlmPercent", pct, "%", ntlm).
			Warn("NTLM accounts for %.0f%% of authentications on %s (warning threshold: %v%%)", pct, target.Name, ntlm.Warning).
			Fix("Audit NTLM usage and move clients to Kerberos"))
	}
	return signals
}

// Factory creates a security Check from a config map.
// Optional keys:
//   - "window" (string): duration, default "24h"
//   - "lockouts_critical", "failedLogons_critical" (number): inclusive limits
//   - "ntlmPercent_warning" (number): percent
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	var opts []Option
	if d, ok, err := check.ConfigDuration(config, "window"); err != nil {
		return nil, fmt.Errorf("security: %w", err)
	} else if ok {
		opts = append(opts, WithWindow(d))
	}
	c, err := New(deps, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	return c, nil
}
