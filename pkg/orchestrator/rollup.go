package orchestrator

import (
	"strings"

	"github.com/kylerisse/dirhealth/pkg/check"
)

// TargetStatus is the aggregate state of a target across all its Results.
type TargetStatus string

const (
	// TargetHealthy means every category ran and every Result is Healthy.
	TargetHealthy TargetStatus = "healthy"
	// TargetWarning means the worst Result is a Warning.
	TargetWarning TargetStatus = "warning"
	// TargetCritical means at least one Result is Critical.
	TargetCritical TargetStatus = "critical"
	// TargetUnknown means health could not be established: no Results, or
	// only Healthy ones alongside Unknown Results or skipped categories.
	TargetUnknown TargetStatus = "unknown"
)

// rollup computes the status of each target, in target order.
// Infrastructure-scoped Results do not belong to any target.
func rollup(targets []check.Target, results []check.Result, skipped []Skipped) []TargetSummary {
	byTarget := make(map[string][]check.Result, len(targets))
	for _, res := range results {
		key := strings.ToLower(res.Target)
		byTarget[key] = append(byTarget[key], res)
	}
	skips := make(map[string]int, len(skipped))
	for _, s := range skipped {
		skips[strings.ToLower(s.Target)]++
	}

	out := make([]TargetSummary, 0, len(targets))
	for _, t := range targets {
		key := strings.ToLower(t.Name)
		out = append(out, TargetSummary{
			Target: t.Name,
			Status: computeTargetStatus(byTarget[key], skips[key]),
		})
	}
	return out
}

// computeTargetStatus determines the aggregate status of one target from its
// Results and the number of its skipped categories.
func computeTargetStatus(results []check.Result, skipped int) TargetStatus {
	if len(results) == 0 {
		return TargetUnknown
	}

	worst := check.StatusHealthy
	unknown := skipped
	for _, res := range results {
		if !res.Status.Comparable() {
			unknown++
			continue
		}
		worst = check.Worst(worst, res.Status)
	}

	switch {
	case worst == check.StatusCritical:
		return TargetCritical
	case worst == check.StatusWarning:
		return TargetWarning
	case unknown > 0:
		return TargetUnknown
	default:
		return TargetHealthy
	}
}
