package sysvol

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe"
	"github.com/kylerisse/dirhealth/pkg/probe/probetest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func healthy() probe.SysvolStatus {
	return probe.SysvolStatus{
		ServiceRunning: true,
		Shared:         true,
		Backlog:        3,
		LastSync:       testNow.Add(-10 * time.Minute),
		State:          "Normal",
	}
}

func run(t *testing.T, st probe.SysvolStatus, stErr error) check.Result {
	t.Helper()
	remote := &probetest.Remote{
		SysvolStatusFunc: func(_ context.Context, _ string) (probe.SysvolStatus, error) {
			return st, stErr
		},
	}
	c, err := New(probe.Set{Remote: remote}, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := c.Run(context.Background(), check.Target{Name: "dc1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return results[0]
}

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*probe.SysvolStatus)
		want   check.Status
	}{
		{"healthy", func(*probe.SysvolStatus) {}, check.StatusHealthy},
		{"service stopped", func(s *probe.SysvolStatus) { s.ServiceRunning = false }, check.StatusCritical},
		{"not shared", func(s *probe.SysvolStatus) { s.Shared = false }, check.StatusCritical},
		{"backlog elevated", func(s *probe.SysvolStatus) { s.Backlog = 75 }, check.StatusWarning},
		{"backlog at warning bound", func(s *probe.SysvolStatus) { s.Backlog = 50 }, check.StatusHealthy},
		{"backlog high", func(s *probe.SysvolStatus) { s.Backlog = 150 }, check.StatusCritical},
		{"lag elevated", func(s *probe.SysvolStatus) { s.LastSync = testNow.Add(-90 * time.Minute) }, check.StatusWarning},
		{"lag high", func(s *probe.SysvolStatus) { s.LastSync = testNow.Add(-3 * time.Hour) }, check.StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := healthy()
			tt.mutate(&st)
			r := run(t, st, nil)
			if r.Status != tt.want {
				t.Errorf("expected %q, got %q (%s)", tt.want, r.Status, r.Message)
			}
		})
	}
}

func TestRun_BacklogMessageCitesThreshold(t *testing.T) {
	st := healthy()
	st.Backlog = 75
	r := run(t, st, nil)
	if !strings.Contains(r.Message, "warning threshold: 50") {
		t.Errorf("unexpected message %q", r.Message)
	}
}

func TestRun_UnknownLastSync(t *testing.T) {
	st := healthy()
	st.LastSync = time.Time{}
	r := run(t, st, nil)
	if r.Status != check.StatusHealthy {
		t.Errorf("expected Healthy, got %q", r.Status)
	}
	if _, ok := r.Data[check.DataError]; !ok {
		t.Error("expected lag recorded as unavailable")
	}
}

func TestRun_QueryFailure(t *testing.T) {
	r := run(t, probe.SysvolStatus{}, errors.New("access denied"))
	if r.Status != check.StatusUnknown {
		t.Errorf("expected Unknown, got %q", r.Status)
	}
}

func TestFactory(t *testing.T) {
	chk, err := Factory(probe.Set{}, map[string]any{"backlog_warning": 10, "backlog_critical": 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th := chk.(*Check).thresholds["backlog"]; th.Warning != 10 || th.Critical != 20 {
		t.Errorf("unexpected backlog threshold %+v", th)
	}
	if _, err := Factory(probe.Set{}, map[string]any{"lag_critical": 30}); err == nil {
		t.Error("expected error for critical lag below warning")
	}
}
