// Package database implements the directory database integrity check: the
// database file must exist, fragmentation must stay bounded, and the data
// and log volumes must keep free space.
package database

import (
	"context"
	"fmt"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryDatabase

	// CheckName identifies the Result within the category.
	CheckName = "DatabaseIntegrity"
)

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "database",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "present", Label: "database file present", Unit: evaluate.UnitBool},
		{Key: "fragmentation", Label: "whitespace share of the database file", Unit: "%"},
		{Key: "dataFree", Label: "free space on the database volume", Unit: "%"},
		{Key: "logFree", Label: "free space on the log volume", Unit: "%"},
	},
}

// DefaultThresholds returns the fragmentation and free-space bounds in
// percent.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"fragmentation": evaluate.Above(20, 40),
		"dataFree":      evaluate.Below(20, 10),
		"logFree":       evaluate.Below(20, 10),
	}
}

var closing = evaluate.Closing{
	Message:         "Directory database is present and healthy",
	Recommendations: []string{"Continue monitoring database size and free space"},
}

// Check implements check.Check using remote database queries.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
}

// Option is a functional option for configuring a database Check.
type Option func(*Check) error

// WithFragmentation sets the fragmentation bounds in percent.
func WithFragmentation(warning, critical float64) Option {
	return func(c *Check) error {
		c.thresholds["fragmentation"] = evaluate.Above(warning, critical)
		return nil
	}
}

// New creates a database Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("database: %w", err)
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

// Run evaluates the directory database on target. A missing database file
// is Critical and the remaining signals are not evaluated. A volume whose
// free space was not reported is recorded under data.error.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	if c.deps.Remote == nil {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrUnavailable)}, nil
	}

	pctx, cancel := c.deps.Context(ctx)
	st, err := c.deps.Remote.DatabaseStatus(pctx, target.Host())
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, err)}, nil
	}

	data := map[string]any{"present": st.Present}
	if st.Path != "" {
		data["path"] = st.Path
	}
	signals := []evaluate.Signal{
		evaluate.Probe("present", st.Present,
			fmt.Sprintf("Directory database file not found on %s", target.Name),
			fmt.Sprintf("Verify the DSA Database file path in the NTDS parameters on %s", target.Name),
			"Restore the directory database from backup if the file is missing"),
	}

	var errs check.SignalErrors
	if st.Present {
		frag := fragmentation(st)
		fth, dth, lth := c.thresholds["fragmentation"], c.thresholds["dataFree"], c.thresholds["logFree"]
		data["sizeBytes"] = st.SizeBytes
		data["whitespaceBytes"] = st.WhitespaceBytes
		data["fragmentationPercent"] = frag

		signals = append(signals,
			evaluate.Numeric("fragmentation", frag, "%", fth).
				Warn("Directory database on %s is %.0f%% whitespace (warning threshold: %v%%)", target.Name, frag, fth.Warning).
				Crit("Directory database on %s is %.0f%% whitespace (critical threshold: %v%%)", target.Name, frag, fth.Critical).
				Fix("Schedule an offline defragmentation of the directory database"))
		if st.DataFreePercent != nil {
			df := *st.DataFreePercent
			data["dataFreePercent"] = df
			signals = append(signals, evaluate.Numeric("dataFree", df, "%", dth).
				Warn("Database volume on %s has %.1f%% free (warning threshold: %v%%)", target.Name, df, dth.Warning).
				Crit("Database volume on %s has %.1f%% free (critical threshold: %v%%)", target.Name, df, dth.Critical).
				Fix("Free space on the database volume"))
		} else {
			errs.Add("dataFree", probe.ErrNoData)
		}
		if st.LogFreePercent != nil {
			lf := *st.LogFreePercent
			data["logFreePercent"] = lf
			signals = append(signals, evaluate.Numeric("logFree", lf, "%", lth).
				Warn("Log volume on %s has %.1f%% free (warning threshold: %v%%)", target.Name, lf, lth.Warning).
				Crit("Log volume on %s has %.1f%% free (critical threshold: %v%%)", target.Name, lf, lth.Critical).
				Fix("Free space on the transaction log volume"))
		} else {
			errs.Add("logFree", probe.ErrNoData)
		}
	}
	errs.Record(data)

	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

// fragmentation returns the reported percentage, or derives it from the
// whitespace and file sizes.
func fragmentation(st probe.DatabaseStatus) float64 {
	if st.FragmentationPercent > 0 || st.SizeBytes <= 0 {
		return st.FragmentationPercent
	}
	return float64(st.WhitespaceBytes) / float64(st.SizeBytes) * 100
}

// Factory creates a database Check from a config map.
// Optional keys:
//   - "fragmentation_warning", "fragmentation_critical" (number): percent
//   - "dataFree_warning", "dataFree_critical" (number): percent free
//   - "logFree_warning", "logFree_critical" (number): percent free
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	c, err := New(deps)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return c, nil
}
