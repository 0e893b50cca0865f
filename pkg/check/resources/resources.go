// Package resources implements the resource utilization check: CPU, memory
// and free space on the volume holding the directory database.
package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryResources

	// CheckName identifies the Result within the category.
	CheckName = "ResourceUtilization"
)

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "resources",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "cpu", Label: "CPU utilization", Unit: "%"},
		{Key: "memory", Label: "memory utilization", Unit: "%"},
		{Key: "diskFree", Label: "free space on the data-store volume", Unit: "%"},
	},
}

// DefaultThresholds returns the utilization bounds in percent.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"cpu":      evaluate.Above(70, 90),
		"memory":   evaluate.Above(80, 90),
		"diskFree": evaluate.Below(20, 10),
	}
}

var closing = evaluate.Closing{
	Message:         "Resource utilization is within limits",
	Recommendations: []string{"Continue monitoring resource utilization"},
}

// Issue is one entry of data.performanceIssues.
type Issue struct {
	Resource string       `json:"resource" yaml:"resource"`
	Value    float64      `json:"value" yaml:"value"`
	Status   check.Status `json:"status" yaml:"status"`
	Message  string       `json:"message" yaml:"message"`
}

// Check implements check.Check using a resource sampler.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
}

// Option is a functional option for configuring a resources Check.
type Option func(*Check) error

// WithThreshold overrides one named threshold.
func WithThreshold(name string, th evaluate.Threshold) Option {
	return func(c *Check) error {
		if _, ok := c.thresholds[name]; !ok {
			return fmt.Errorf("unknown threshold %q", name)
		}
		c.thresholds[name] = th
		return nil
	}
}

// New creates a resources Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("resources: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("resources: %w", err)
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

// Run samples utilization on target. data.performanceIssues lists exactly
// the resources that are not Healthy. A measurement the sampler could not
// take is left out of the evaluation and reported under data.error.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	sampler := c.deps.Sampler()
	if sampler == nil {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrUnavailable)}, nil
	}

	pctx, cancel := c.deps.Context(ctx)
	u, err := sampler.Resources(pctx, target.Host())
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, err)}, nil
	}

	cpu, mem, disk := c.thresholds["cpu"], c.thresholds["memory"], c.thresholds["diskFree"]
	volume := u.DataVolume
	if volume == "" {
		volume = "data-store volume"
	}
	var errs check.SignalErrors
	data := map[string]any{}
	var signals []evaluate.Signal
	if u.Available(probe.MeasureCPU) {
		data["cpuPercent"] = u.CPUPercent
		signals = append(signals, evaluate.Numeric("cpu", u.CPUPercent, "%", cpu).
			Warn("CPU utilization on %s is %.1f%% (warning threshold: %v%%)", target.Name, u.CPUPercent, cpu.Warning).
			Crit("CPU utilization on %s is %.1f%% (critical threshold: %v%%)", target.Name, u.CPUPercent, cpu.Critical).
			Fix("Identify processes consuming CPU on "+target.Name, "Review LDAP query load and expensive searches"))
	} else {
		errs.Add("cpu", errors.New(u.Unavailable[probe.MeasureCPU]))
	}
	if u.Available(probe.MeasureMemory) {
		data["memoryPercent"] = u.MemoryPercent
		signals = append(signals, evaluate.Numeric("memory", u.MemoryPercent, "%", mem).
			Warn("Memory utilization on %s is %.1f%% (warning threshold: %v%%)", target.Name, u.MemoryPercent, mem.Warning).
			Crit("Memory utilization on %s is %.1f%% (critical threshold: %v%%)", target.Name, u.MemoryPercent, mem.Critical).
			Fix("Review memory consumption on "+target.Name))
	} else {
		errs.Add("memory", errors.New(u.Unavailable[probe.MeasureMemory]))
	}
	if u.Available(probe.MeasureDiskFree) {
		data["diskFreePercent"] = u.DiskFreePercent
		signals = append(signals, evaluate.Numeric("diskFree", u.DiskFreePercent, "%", disk).
			Warn("Free space on %s of %s is %.1f%% (warning threshold: %v%%)", volume, target.Name, u.DiskFreePercent, disk.Warning).
			Crit("Free space on %s of %s is %.1f%% (critical threshold: %v%%)", volume, target.Name, u.DiskFreePercent, disk.Critical).
			Fix("Free space on the volume holding the directory database"))
	} else {
		errs.Add("diskFree", errors.New(u.Unavailable[probe.MeasureDiskFree]))
	}
	if len(signals) == 0 {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, errs.Err())}, nil
	}

	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}

	issues := []Issue{}
	for _, cl := range out.Signals {
		if cl.Status == check.StatusHealthy {
			continue
		}
		msg := cl.Signal.WarningMessage
		if cl.Status == check.StatusCritical {
			msg = cl.Signal.CriticalMessage
		}
		issues = append(issues, Issue{Resource: cl.Signal.Name, Value: cl.Signal.Value, Status: cl.Status, Message: msg})
	}

	data["performanceIssues"] = issues
	errs.Record(data)
	if u.DataVolume != "" {
		data["dataVolume"] = u.DataVolume
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

// Factory creates a resources Check from a config map.
// Optional keys:
//   - "cpu_warning", "cpu_critical" (number): percent
//   - "memory_warning", "memory_critical" (number): percent
//   - "diskFree_warning", "diskFree_critical" (number): percent free
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	c, err := New(deps)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("resources: %w", err)
	}
	return c, nil
}
