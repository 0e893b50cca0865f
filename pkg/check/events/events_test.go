package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe"
	"github.com/kylerisse/dirhealth/pkg/probe/probetest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func evt(level probe.EventLevel, id int, ago time.Duration) probe.Event {
	return probe.Event{Log: "Directory Service", ID: id, Level: level, Source: "NTDS", Time: testNow.Add(-ago)}
}

func repeat(level probe.EventLevel, id, n int) []probe.Event {
	out := make([]probe.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, evt(level, id, time.Duration(i+1)*time.Minute))
	}
	return out
}

func newCheck(t *testing.T, events []probe.Event, evErr error, opts ...Option) (*Check, *[]string, *time.Time) {
	t.Helper()
	var gotLogs []string
	var gotSince time.Time
	remote := &probetest.Remote{
		EventsFunc: func(_ context.Context, _ string, logs []string, since time.Time) ([]probe.Event, error) {
			gotLogs, gotSince = logs, since
			return events, evErr
		},
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	c, err := New(probe.Set{Remote: remote}, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c, &gotLogs, &gotSince
}

func runOne(t *testing.T, c *Check) check.Result {
	t.Helper()
	results, err := c.Run(context.Background(), check.Target{Name: "dc1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return results[0]
}

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		events []probe.Event
		want   check.Status
	}{
		{"none", nil, check.StatusHealthy},
		{"warnings only", repeat(probe.LevelWarning, 1000, 5), check.StatusHealthy},
		{"one error", repeat(probe.LevelError, 1311, 1), check.StatusWarning},
		{"ten errors", repeat(probe.LevelError, 1311, 10), check.StatusWarning},
		{"eleven errors", repeat(probe.LevelError, 1311, 11), check.StatusCritical},
		{"one critical", repeat(probe.LevelCritical, 2042, 1), check.StatusCritical},
		{"outside window", []probe.Event{evt(probe.LevelCritical, 2042, 48*time.Hour)}, check.StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newCheck(t, tt.events, nil)
			r := runOne(t, c)
			if r.Status != tt.want {
				t.Errorf("expected %q, got %q (%s)", tt.want, r.Status, r.Message)
			}
		})
	}
}

func TestRun_QueryArguments(t *testing.T) {
	c, logs, since := newCheck(t, nil, nil, WithWindow(6*time.Hour), WithLogs("System"))
	runOne(t, c)
	if len(*logs) != 1 || (*logs)[0] != "System" {
		t.Errorf("unexpected logs %v", *logs)
	}
	if !since.Equal(testNow.Add(-6 * time.Hour)) {
		t.Errorf("unexpected since %v", *since)
	}
}

func TestRun_DetailsBoundedAndNewestFirst(t *testing.T) {
	events := append(repeat(probe.LevelError, 1311, 5), evt(probe.LevelCritical, 2042, 30*time.Second))
	c, _, _ := newCheck(t, events, nil, WithMaxEvents(3))
	r := runOne(t, c)

	summaries, ok := r.Data["events"].([]Summary)
	if !ok {
		t.Fatalf("expected []Summary in data.events, got %T", r.Data["events"])
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != 2042 || summaries[0].Level != "Critical" {
		t.Errorf("expected newest critical event first, got %+v", summaries[0])
	}
	if !summaries[1].Time.After(summaries[2].Time) {
		t.Error("expected newest-first ordering")
	}
	if r.Data["errorEvents"] != 5 || r.Data["criticalEvents"] != 1 {
		t.Errorf("unexpected counts %v/%v", r.Data["errorEvents"], r.Data["criticalEvents"])
	}
}

func TestRun_DetailsDisabled(t *testing.T) {
	c, _, _ := newCheck(t, repeat(probe.LevelError, 1311, 2), nil, WithDetails(false))
	r := runOne(t, c)
	if _, ok := r.Data["events"]; ok {
		t.Error("expected no event details")
	}
}

func TestRun_RecurringEventRecommendation(t *testing.T) {
	c, _, _ := newCheck(t, repeat(probe.LevelError, 1311, 3), nil)
	r := runOne(t, c)
	found := false
	for _, rec := range r.Recommendations {
		if rec == "Investigate recurring event ID 1311" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected recurring event recommendation, got %v", r.Recommendations)
	}
}

func TestRun_NoDataIsHealthy(t *testing.T) {
	c, _, _ := newCheck(t, nil, probe.ErrNoData)
	if r := runOne(t, c); r.Status != check.StatusHealthy {
		t.Errorf("expected Healthy, got %q", r.Status)
	}
}

func TestRun_QueryFailure(t *testing.T) {
	c, _, _ := newCheck(t, nil, errors.New("log not found"))
	if r := runOne(t, c); r.Status != check.StatusUnknown {
		t.Errorf("expected Unknown, got %q", r.Status)
	}
}

func TestFactory(t *testing.T) {
	chk, err := Factory(probe.Set{}, map[string]any{
		"logs":            []any{"System"},
		"window":          "12h",
		"max_events":      5,
		"include_details": false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := chk.(*Check)
	if len(c.logs) != 1 || c.window != 12*time.Hour || c.maxEvents != 5 || c.includeDetails {
		t.Errorf("unexpected config %+v", c)
	}
	if _, err := Factory(probe.Set{}, map[string]any{"max_events": -1}); err == nil {
		t.Error("expected error for negative max_events")
	}
}
