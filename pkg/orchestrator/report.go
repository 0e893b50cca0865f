package orchestrator

import (
	"slices"
	"sync"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
)

// Summary counts every Result a run produced, before any filtering.
type Summary struct {
	Total    int `json:"total" yaml:"total"`
	Critical int `json:"critical" yaml:"critical"`
	Warning  int `json:"warning" yaml:"warning"`
	Healthy  int `json:"healthy" yaml:"healthy"`
	Unknown  int `json:"unknown" yaml:"unknown"`
	Skipped  int `json:"skipped" yaml:"skipped"`

	// Targets is the rolled-up status of each target, in target order.
	Targets []TargetSummary `json:"targets" yaml:"targets"`
}

// TargetSummary is the aggregate state of one target.
type TargetSummary struct {
	Target string       `json:"target" yaml:"target"`
	Status TargetStatus `json:"status" yaml:"status"`
}

// Skipped records a (target, category) pair that produced no Result.
type Skipped struct {
	Target   string         `json:"target" yaml:"target"`
	Category check.Category `json:"category" yaml:"category"`
	Error    string         `json:"error" yaml:"error"`
}

// Report is the outcome of one run.
type Report struct {
	RunID      string           `json:"runId" yaml:"runId"`
	Started    time.Time        `json:"started" yaml:"started"`
	Elapsed    time.Duration    `json:"elapsed" yaml:"elapsed"`
	Targets    []string         `json:"targets" yaml:"targets"`
	Categories []check.Category `json:"categories" yaml:"categories"`

	// Results are in target-major, category-minor order, with
	// infrastructure-scoped Results first. Healthy Results are dropped
	// unless the run asked to include them.
	Results []check.Result `json:"results" yaml:"results"`

	Summary Summary   `json:"summary" yaml:"summary"`
	Skipped []Skipped `json:"skipped" yaml:"skipped"`

	// Partial is set when the run was cancelled before every pair ran.
	Partial bool `json:"partial" yaml:"partial"`
}

func newReport(runID string, started time.Time, elapsed time.Duration, p *plan, results []check.Result, skipped []Skipped, includeHealthy bool) *Report {
	rep := &Report{
		RunID:      runID,
		Started:    started,
		Elapsed:    elapsed,
		Categories: p.categories,
		Skipped:    skipped,
		Summary:    summarize(results, skipped),
	}
	if rep.Skipped == nil {
		rep.Skipped = []Skipped{}
	}
	for _, t := range p.targets {
		rep.Targets = append(rep.Targets, t.Name)
	}
	rep.Summary.Targets = rollup(p.targets, results, skipped)

	rep.Results = make([]check.Result, 0, len(results))
	for _, res := range results {
		if res.Status == check.StatusHealthy && !includeHealthy {
			continue
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

func summarize(results []check.Result, skipped []Skipped) Summary {
	s := Summary{Total: len(results), Skipped: len(skipped)}
	for _, res := range results {
		switch res.Status {
		case check.StatusCritical:
			s.Critical++
		case check.StatusWarning:
			s.Warning++
		case check.StatusHealthy:
			s.Healthy++
		default:
			s.Unknown++
		}
	}
	return s
}

type skipEntry struct {
	slot int
	Skipped
}

// skipLedger collects skipped pairs from concurrent workers.
type skipLedger struct {
	mu      sync.Mutex
	order   []check.Category
	records []skipEntry
}

func newSkipLedger(order []check.Category) *skipLedger {
	return &skipLedger{order: order}
}

func (l *skipLedger) add(slot int, target string, category check.Category, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, skipEntry{
		slot:    slot,
		Skipped: Skipped{Target: target, Category: category, Error: err.Error()},
	})
}

// entries returns the skipped pairs in slot order, then category order.
func (l *skipLedger) entries() []Skipped {
	l.mu.Lock()
	defer l.mu.Unlock()

	sorted := slices.Clone(l.records)
	slices.SortStableFunc(sorted, func(a, b skipEntry) int {
		if a.slot != b.slot {
			return a.slot - b.slot
		}
		return rank(l.order, a.Category) - rank(l.order, b.Category)
	})
	out := make([]Skipped, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, e.Skipped)
	}
	return out
}
