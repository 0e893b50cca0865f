// Package report hands a finished run to its consumers: grouping and
// filtering helpers, and writers for JSON, YAML and a plain-text table.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/orchestrator"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the accepted output formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// Group is the Results of one category, in their original order.
type Group struct {
	Category check.Category
	Results  []check.Result
}

// GroupByCategory partitions results by category. Groups appear in the
// order their category first occurs.
func GroupByCategory(results []check.Result) []Group {
	var groups []Group
	index := map[check.Category]int{}
	for _, r := range results {
		i, ok := index[r.Category]
		if !ok {
			i = len(groups)
			index[r.Category] = i
			groups = append(groups, Group{Category: r.Category})
		}
		groups[i].Results = append(groups[i].Results, r)
	}
	return groups
}

// FilterByStatus returns the results whose status is one of statuses, in
// their original order.
func FilterByStatus(results []check.Result, statuses ...check.Status) []check.Result {
	out := make([]check.Result, 0, len(results))
	for _, r := range results {
		if slices.Contains(statuses, r.Status) {
			out = append(out, r)
		}
	}
	return out
}

// Write renders rep to w in format.
func Write(w io.Writer, format string, rep *orchestrator.Report) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		return WriteJSON(w, rep)
	case FormatYAML:
		return WriteYAML(w, rep)
	case FormatText, "":
		return WriteText(w, rep)
	default:
		return errors.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteJSON writes rep as indented JSON.
func WriteJSON(w io.Writer, rep *orchestrator.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(rep), "failed to encode report")
}

// WriteYAML writes rep as YAML.
func WriteYAML(w io.Writer, rep *orchestrator.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	return errors.Wrap(enc.Close(), "failed to encode report")
}

// WriteText writes rep as a table of Results followed by the per-target
// rollup, the skipped pairs and the summary counts.
func WriteText(w io.Writer, rep *orchestrator.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "TARGET\tCATEGORY\tCHECK\tSTATUS\tMESSAGE\n")
	for _, r := range rep.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Target, r.Category, r.CheckName, r.Status, oneLine(r.Message))
	}
	if len(rep.Results) == 0 {
		fmt.Fprintf(tw, "(no results to show)\n")
	}

	if len(rep.Summary.Targets) > 0 {
		fmt.Fprintf(tw, "\nTARGET\tROLLUP\n")
		for _, t := range rep.Summary.Targets {
			fmt.Fprintf(tw, "%s\t%s\n", t.Target, t.Status)
		}
	}

	if len(rep.Skipped) > 0 {
		fmt.Fprintf(tw, "\nSKIPPED TARGET\tCATEGORY\tERROR\n")
		for _, s := range rep.Skipped {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Target, s.Category, oneLine(s.Error))
		}
	}
	if err := tw.Flush(); err != nil {
		return errors.Wrap(err, "failed to write report")
	}

	s := rep.Summary
	_, err := fmt.Fprintf(w, "\n%d results: %d critical, %d warning, %d healthy, %d unknown; %d skipped; run %s took %v\n",
		s.Total, s.Critical, s.Warning, s.Healthy, s.Unknown, s.Skipped, rep.RunID, rep.Elapsed)
	if err == nil && rep.Partial {
		_, err = fmt.Fprintln(w, "run was cancelled; results are partial")
	}
	return errors.Wrap(err, "failed to write report")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
