package database

import (
	"context"
	"errors"
	"testing"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe"
	"github.com/kylerisse/dirhealth/pkg/probe/probetest"
)

func pct(v float64) *float64 { return &v }

func run(t *testing.T, st probe.DatabaseStatus, stErr error) check.Result {
	t.Helper()
	remote := &probetest.Remote{
		DatabaseStatusFunc: func(_ context.Context, _ string) (probe.DatabaseStatus, error) {
			return st, stErr
		},
	}
	c, err := New(probe.Set{Remote: remote})
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
	base := probe.DatabaseStatus{
		Present:              true,
		Path:                 `C:\Windows\NTDS\ntds.dit`,
		SizeBytes:            1 << 30,
		FragmentationPercent: 5,
		DataFreePercent:      pct(60),
		LogFreePercent:       pct(60),
	}
	tests := []struct {
		name   string
		mutate func(*probe.DatabaseStatus)
		want   check.Status
	}{
		{"healthy", func(*probe.DatabaseStatus) {}, check.StatusHealthy},
		{"missing", func(s *probe.DatabaseStatus) { s.Present = false }, check.StatusCritical},
		{"fragmented", func(s *probe.DatabaseStatus) { s.FragmentationPercent = 30 }, check.StatusWarning},
		{"very fragmented", func(s *probe.DatabaseStatus) { s.FragmentationPercent = 45 }, check.StatusCritical},
		{"data volume low", func(s *probe.DatabaseStatus) { s.DataFreePercent = pct(15) }, check.StatusWarning},
		{"log volume full", func(s *probe.DatabaseStatus) { s.LogFreePercent = pct(5) }, check.StatusCritical},
		{"log volume unknown", func(s *probe.DatabaseStatus) { s.LogFreePercent = nil }, check.StatusHealthy},
		{"derived fragmentation", func(s *probe.DatabaseStatus) {
			s.FragmentationPercent = 0
			s.WhitespaceBytes = s.SizeBytes / 4
		}, check.StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := base
			tt.mutate(&st)
			r := run(t, st, nil)
			if r.Status != tt.want {
				t.Errorf("expected %q, got %q (%s)", tt.want, r.Status, r.Message)
			}
		})
	}
}

func TestRun_MissingSkipsVolumeSignals(t *testing.T) {
	r := run(t, probe.DatabaseStatus{Present: false, DataFreePercent: pct(1)}, nil)
	if r.Message != "Directory database file not found on dc1" {
		t.Errorf("unexpected message %q", r.Message)
	}
	if _, ok := r.Data["dataFreePercent"]; ok {
		t.Error("volume data should be omitted when the database is missing")
	}
}

func TestRun_DataVolumeUnreported(t *testing.T) {
	r := run(t, probe.DatabaseStatus{
		Present:              true,
		SizeBytes:            1 << 30,
		FragmentationPercent: 45,
		LogFreePercent:       pct(60),
	}, nil)
	if r.Status != check.StatusCritical {
		t.Errorf("expected Critical from fragmentation, got %q (%s)", r.Status, r.Message)
	}
	if got := r.Data[check.DataError]; got != "dataFree: no data" {
		t.Errorf("unexpected data.error %v", got)
	}
	if _, ok := r.Data["dataFreePercent"]; ok {
		t.Error("dataFreePercent should be omitted when it was not reported")
	}
	if r.Data["logFreePercent"] != 60.0 {
		t.Errorf("expected logFreePercent 60, got %v", r.Data["logFreePercent"])
	}
}

func TestRun_QueryFailure(t *testing.T) {
	r := run(t, probe.DatabaseStatus{}, errors.New("path not found"))
	if r.Status != check.StatusUnknown {
		t.Errorf("expected Unknown, got %q", r.Status)
	}
}

func TestFactory(t *testing.T) {
	if _, err := Factory(probe.Set{}, map[string]any{"fragmentation_warning": 50}); err == nil {
		t.Error("expected error for warning above critical")
	}
	chk, err := Factory(probe.Set{}, map[string]any{"dataFree_warning": 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th := chk.(*Check).thresholds["dataFree"]; th.Warning != 30 || th.Critical != 10 {
		t.Errorf("unexpected dataFree threshold %+v", th)
	}
	if _, err := New(probe.Set{}, WithFragmentation(50, 10)); err == nil {
		t.Error("expected error for inverted fragmentation bounds")
	}
}
