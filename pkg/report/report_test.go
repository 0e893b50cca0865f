package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/orchestrator"
)

func res(target string, c check.Category, s check.Status, msg string) check.Result {
	return check.Result{
		Category:        c,
		CheckName:       string(c),
		Target:          target,
		Status:          s,
		Message:         msg,
		Recommendations: []string{},
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sampleReport() *orchestrator.Report {
	results := []check.Result{
		res("dc1", check.CategoryServices, check.StatusHealthy, "All required services are running"),
		res("dc1", check.CategoryReplication, check.StatusWarning, "Replication latency 20m exceeds 15m"),
		res("dc2", check.CategoryServices, check.StatusCritical, "Service NTDS is stopped"),
		res("dc2", check.CategoryReplication, check.StatusUnknown, "Unable to evaluate replication\non dc2"),
	}
	return &orchestrator.Report{
		RunID:      "6f1c2a0e-0000-4000-8000-000000000001",
		Started:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Elapsed:    1500 * time.Millisecond,
		Targets:    []string{"dc1", "dc2"},
		Categories: []check.Category{check.CategoryServices, check.CategoryReplication},
		Results:    results,
		Summary: orchestrator.Summary{
			Total: 4, Critical: 1, Warning: 1, Healthy: 1, Unknown: 1, Skipped: 1,
			Targets: []orchestrator.TargetSummary{
				{Target: "dc1", Status: orchestrator.TargetWarning},
				{Target: "dc2", Status: orchestrator.TargetCritical},
			},
		},
		Skipped: []orchestrator.Skipped{{Target: "dc2", Category: check.CategoryEvents, Error: "check panicked: boom"}},
	}
}

func TestGroupByCategory(t *testing.T) {
	rep := sampleReport()
	groups := GroupByCategory(rep.Results)

	require.Len(t, groups, 2)
	assert.Equal(t, check.CategoryServices, groups[0].Category)
	assert.Equal(t, check.CategoryReplication, groups[1].Category)
	assert.Equal(t, []string{"dc1", "dc2"}, []string{groups[0].Results[0].Target, groups[0].Results[1].Target})
	assert.Equal(t, check.StatusWarning, groups[1].Results[0].Status)

	assert.Empty(t, GroupByCategory(nil))
}

func TestFilterByStatus(t *testing.T) {
	rep := sampleReport()

	tests := []struct {
		name     string
		statuses []check.Status
		want     []string
	}{
		{"critical only", []check.Status{check.StatusCritical}, []string{"dc2/services"}},
		{"problems", []check.Status{check.StatusCritical, check.StatusWarning}, []string{"dc1/replication", "dc2/services"}},
		{"none", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, r := range FilterByStatus(rep.Results, tt.statuses...) {
				got = append(got, r.Target+"/"+string(r.Category))
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FilterByStatus() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleReport()))

	var back orchestrator.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "6f1c2a0e-0000-4000-8000-000000000001", back.RunID)
	assert.Len(t, back.Results, 4)
	assert.Equal(t, 1, back.Summary.Critical)
	assert.Equal(t, orchestrator.TargetCritical, back.Summary.Targets[1].Status)
	assert.Contains(t, buf.String(), `"checkName": "replication"`)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "YAML", sampleReport()))

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "6f1c2a0e-0000-4000-8000-000000000001", back["runId"])
	assert.Len(t, back["results"], 4)
	assert.Contains(t, buf.String(), "status: Critical")
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatText, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "TARGET")
	assert.Contains(t, out, "Service NTDS is stopped")
	assert.Contains(t, out, "Unable to evaluate replication on dc2", "messages are folded to one line")
	assert.Contains(t, out, "check panicked: boom")
	assert.Contains(t, out, "4 results: 1 critical, 1 warning, 1 healthy, 1 unknown; 1 skipped")
	assert.NotContains(t, out, "partial")

	lines := strings.Split(out, "\n")
	var dc2 string
	for _, l := range lines {
		if strings.HasPrefix(l, "dc2") && strings.Contains(l, "critical") && !strings.Contains(l, "services") {
			dc2 = l
		}
	}
	assert.NotEmpty(t, dc2, "rollup line for dc2")
}

func TestWriteText_EmptyAndPartial(t *testing.T) {
	rep := &orchestrator.Report{Partial: true}
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, rep))
	assert.Contains(t, buf.String(), "(no results to show)")
	assert.Contains(t, buf.String(), "results are partial")
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, "xml", sampleReport())
	assert.ErrorContains(t, err, "unknown output format")
}
