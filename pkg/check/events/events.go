// Package events implements the event-log analysis check. Critical and error
// level events in the directory-related logs over a recent window are counted;
// any critical event is Critical, a handful of errors is a Warning, and more
// than the error bound is Critical.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryEvents

	// CheckName identifies the Result within the category.
	CheckName = "EventLogAnalysis"

	// DefaultWindow is how far back events are read.
	DefaultWindow = 24 * time.Hour

	// DefaultMaxEvents bounds the events included in data.events.
	DefaultMaxEvents = 20
)

// DefaultLogs are the event logs read on every target.
var DefaultLogs = []string{"Directory Service", "DNS Server", "DFS Replication", "System"}

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "events",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "criticalEvents", Label: "critical-level events in window", Unit: "count"},
		{Key: "errorEvents", Label: "error-level events in window", Unit: "count"},
	},
}

// DefaultThresholds returns the event count bounds.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"criticalEvents": evaluate.AboveCritical(0),
		"errorEvents":    evaluate.Above(0, 10),
	}
}

var closing = evaluate.Closing{
	Message:         "No critical or error events in the directory logs",
	Recommendations: []string{"Continue reviewing directory event logs"},
}

// Summary is one entry of data.events.
type Summary struct {
	Log     string    `json:"log" yaml:"log"`
	ID      int       `json:"id" yaml:"id"`
	Level   string    `json:"level" yaml:"level"`
	Source  string    `json:"source" yaml:"source"`
	Time    time.Time `json:"time" yaml:"time"`
	Message string    `json:"message" yaml:"message"`
}

// Check implements check.Check using remote event-log queries.
type Check struct {
	deps           probe.Set
	thresholds     evaluate.Table
	logs           []string
	window         time.Duration
	maxEvents      int
	includeDetails bool
	now            func() time.Time
}

// Option is a functional option for configuring an events Check.
type Option func(*Check) error

// WithLogs replaces the list of event logs read.
func WithLogs(logs ...string) Option {
	return func(c *Check) error {
		if len(logs) == 0 {
			return fmt.Errorf("at least one log is required")
		}
		c.logs = append([]string(nil), logs...)
		return nil
	}
}

// WithWindow sets how far back events are read.
func WithWindow(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("window must be positive, got %v", d)
		}
		c.window = d
		return nil
	}
}

// WithMaxEvents bounds the events listed in data.events.
func WithMaxEvents(n int) Option {
	return func(c *Check) error {
		if n < 0 {
			return fmt.Errorf("max events must not be negative, got %d", n)
		}
		c.maxEvents = n
		return nil
	}
}

// WithDetails enables or disables data.events.
func WithDetails(include bool) Option {
	return func(c *Check) error {
		c.includeDetails = include
		return nil
	}
}

// WithClock sets the time source used to compute the window start.
func WithClock(now func() time.Time) Option {
	return func(c *Check) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// New creates an events Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:           deps,
		thresholds:     DefaultThresholds(),
		logs:           append([]string(nil), DefaultLogs...),
		window:         DefaultWindow,
		maxEvents:      DefaultMaxEvents,
		includeDetails: true,
		now:            time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("events: %w", err)
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

// Run reads the configured logs on target and classifies the problem events.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	if c.deps.Remote == nil {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrUnavailable)}, nil
	}

	since := c.now().Add(-c.window)
	pctx, cancel := c.deps.Context(ctx)
	evts, err := c.deps.Remote.Events(pctx, target.Host(), c.logs, since)
	cancel()
	if err != nil && !errors.Is(err, probe.ErrNoData) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, err)}, nil
	}

	var problems []probe.Event
	criticals, errorCount := 0, 0
	perLog := make(map[string]int, len(c.logs))
	for _, e := range evts {
		if e.Time.Before(since) {
			continue
		}
		switch e.Level {
		case probe.LevelCritical:
			criticals++
		case probe.LevelError:
			errorCount++
		default:
			continue
		}
		perLog[e.Log]++
		problems = append(problems, e)
	}

	var recurring []string
	for _, id := range topIDs(problems, 3) {
		recurring = append(recurring, fmt.Sprintf("Investigate recurring event ID %d", id))
	}

	crit, errTh := c.thresholds["criticalEvents"], c.thresholds["errorEvents"]
	signals := []evaluate.Signal{
		evaluate.Numeric("criticalEvents", float64(criticals), "", crit).
			Crit("%d critical events on %s in the last %s", criticals, target.Name, c.window).
			Warn("%d critical events on %s in the last %s", criticals, target.Name, c.window).
			Fix("Review critical events in the directory logs").
			Fix(recurring...),
		evaluate.Numeric("errorEvents", float64(errorCount), "", errTh).
			Warn("%d error events on %s in the last %s", errorCount, target.Name, c.window).
			Crit("%d error events on %s in the last %s (critical threshold: %v)", errorCount, target.Name, c.window, errTh.Critical).
			Fix("Review error events in the directory logs").
			Fix(recurring...),
	}

	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"logs":           c.logs,
		"since":          since,
		"criticalEvents": criticals,
		"errorEvents":    errorCount,
		"perLog":         perLog,
	}
	if c.includeDetails {
		data["events"] = c.summarize(problems)
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

// summarize returns the newest problem events, most severe first within the
// same instant, bounded by maxEvents.
func (c *Check) summarize(events []probe.Event) []Summary {
	sorted := append([]probe.Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Time.Equal(sorted[j].Time) {
			return sorted[i].Time.After(sorted[j].Time)
		}
		return sorted[i].Level < sorted[j].Level
	})
	if len(sorted) > c.maxEvents {
		sorted = sorted[:c.maxEvents]
	}
	out := make([]Summary, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, Summary{
			Log:     e.Log,
			ID:      e.ID,
			Level:   e.Level.String(),
			Source:  e.Source,
			Time:    e.Time,
			Message: e.Message,
		})
	}
	return out
}

// topIDs returns up to n event IDs that occur more than once, most frequent
// first.
func topIDs(events []probe.Event, n int) []int {
	counts := map[int]int{}
	for _, e := range events {
		counts[e.ID]++
	}
	var ids []int
	for id, cnt := range counts {
		if cnt > 1 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// Factory creates an events Check from a config map.
// Optional keys:
//   - "logs" (list of strings)
//   - "window" (string): duration, default "24h"
//   - "max_events" (number): default 20
//   - "include_details" (bool): default true
//   - "errorEvents_warning", "errorEvents_critical" (number)
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	var opts []Option
	if v, ok, err := check.ConfigStrings(config, "logs"); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	} else if ok {
		opts = append(opts, WithLogs(v...))
	}
	if v, ok, err := check.ConfigDuration(config, "window"); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	} else if ok {
		opts = append(opts, WithWindow(v))
	}
	if v, ok, err := check.ConfigInt(config, "max_events"); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	} else if ok {
		opts = append(opts, WithMaxEvents(v))
	}
	if v, ok, err := check.ConfigBool(config, "include_details"); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	} else if ok {
		opts = append(opts, WithDetails(v))
	}
	c, err := New(deps, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	return c, nil
}
