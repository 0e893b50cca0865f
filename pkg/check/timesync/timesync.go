// Package timesync implements the clock synchronization check: the time
// service must run, the clock offset must stay within bounds, and the server
// holding the PDC emulator role must not use a local clock as its source.
package timesync

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryTimeSync

	// CheckName identifies the Result within the category.
	CheckName = "TimeSynchronization"
)

// LocalSources are time sources that mean the server is not synchronized
// to an external reference.
var LocalSources = []string{"Local CMOS Clock", "Free-running System Clock"}

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "timesync",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "service", Label: "time service running", Unit: evaluate.UnitBool},
		{Key: "offset", Label: "absolute clock offset", Unit: "s"},
		{Key: "externalSource", Label: "PDC emulator uses an external source", Unit: evaluate.UnitBool},
	},
}

// DefaultThresholds returns the offset bounds in seconds.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"offset": evaluate.Above(5, 10),
	}
}

var closing = evaluate.Closing{
	Message:         "Clock is synchronized",
	Recommendations: []string{"Continue monitoring time synchronization"},
}

// Check implements check.Check using remote time-service queries.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
}

// Option is a functional option for configuring a timesync Check.
type Option func(*Check) error

// New creates a timesync Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("timesync: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("timesync: %w", err)
	}
	return c, nil
}

// WithOffset sets the offset bounds in seconds.
func WithOffset(warning, critical float64) Option {
	return func(c *Check) error {
		c.thresholds["offset"] = evaluate.Above(warning, critical)
		return nil
	}
}

// Type returns the check category.
func (c *Check) Type() check.Category {
	return TypeName
}

// Describe returns the Descriptor for this check.
func (c *Check) Describe() check.Descriptor {
	return Desc
}

// Run evaluates clock synchronization on target.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	if c.deps.Remote == nil {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrUnavailable)}, nil
	}

	pctx, cancel := c.deps.Context(ctx)
	st, err := c.deps.Remote.TimeStatus(pctx, target.Host())
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, err)}, nil
	}

	var errs check.SignalErrors
	offset := math.Abs(st.Offset.Seconds())
	th := c.thresholds["offset"]
	data := map[string]any{
		"offsetSeconds":  st.Offset.Seconds(),
		"source":         st.Source,
		"serviceRunning": st.ServiceRunning,
		"stratum":        st.Stratum,
	}

	signals := []evaluate.Signal{
		evaluate.Probe("service", st.ServiceRunning,
			fmt.Sprintf("Windows Time service is not running on %s", target.Name),
			fmt.Sprintf("Start the W32Time service on %s", target.Name)),
		evaluate.Numeric("offset", offset, "s", th).
			Warn("Clock on %s is off by %.1f seconds (warning threshold: %v seconds)", target.Name, offset, th.Warning).
			Crit("Clock on %s is off by %.1f seconds (critical threshold: %v seconds)", target.Name, offset, th.Critical).
			Fix(fmt.Sprintf("Resynchronize the clock on %s and verify its time source", target.Name),
				"Kerberos authentication fails when clock skew exceeds five minutes"),
	}

	isPDC, err := c.holdsPDC(ctx, target)
	switch {
	case err != nil:
		errs.Add("pdcEmulator", err)
	case isPDC:
		data["pdcEmulator"] = true
		signals = append(signals, evaluate.WarnProbe("externalSource", !localSource(st.Source),
			fmt.Sprintf("PDC emulator %s uses a local clock source (%s)", target.Name, sourceLabel(st.Source)),
			"Configure the PDC emulator to synchronize with a reliable external NTP source"))
	default:
		data["pdcEmulator"] = false
	}

	errs.Record(data)
	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

// holdsPDC reports whether target holds the PDC emulator role.
func (c *Check) holdsPDC(ctx context.Context, target check.Target) (bool, error) {
	if c.deps.Directory == nil {
		return false, probe.ErrUnavailable
	}
	pctx, cancel := c.deps.Context(ctx)
	defer cancel()
	holders, err := c.deps.Directory.RoleHolders(pctx)
	if err != nil {
		return false, err
	}
	return sameHost(holders[probe.RolePDCEmulator], target.Name), nil
}

// sameHost compares host names, treating a short name as equal to any
// FQDN it prefixes.
func sameHost(a, b string) bool {
	a = strings.ToLower(strings.TrimSuffix(a, "."))
	b = strings.ToLower(strings.TrimSuffix(b, "."))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	short := func(s string) string {
		if i := strings.IndexByte(s, '.'); i >= 0 {
			return s[:i]
		}
		return s
	}
	if !strings.Contains(a, ".") || !strings.Contains(b, ".") {
		return short(a) == short(b)
	}
	return false
}

func localSource(source string) bool {
	s := strings.TrimSpace(source)
	if s == "" {
		return true
	}
	for _, l := range LocalSources {
		if strings.EqualFold(s, l) {
			return true
		}
	}
	return false
}

func sourceLabel(source string) string {
	if strings.TrimSpace(source) == "" {
		return "none"
	}
	return source
}

// Factory creates a timesync Check from a config map.
// Optional keys:
//   - "offset_warning", "offset_critical" (number): seconds
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	c, err := New(deps)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("timesync: %w", err)
	}
	return c, nil
}
