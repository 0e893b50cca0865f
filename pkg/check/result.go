package check

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Status is the severity classification of a Result.
type Status string

const (
	// StatusHealthy means no signal breached a threshold.
	StatusHealthy Status = "Healthy"
	// StatusWarning means at least one signal breached its warning bound.
	StatusWarning Status = "Warning"
	// StatusCritical means at least one signal breached its critical bound.
	StatusCritical Status = "Critical"
	// StatusUnknown means no signal could be obtained at all. It is not
	// ordered against the other statuses.
	StatusUnknown Status = "Unknown"
)

// Rank returns the position of s in the order Healthy < Warning < Critical.
// Unknown and unrecognized values return -1.
func (s Status) Rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	default:
		return -1
	}
}

// Comparable reports whether s takes part in severity ordering.
func (s Status) Comparable() bool {
	return s.Rank() >= 0
}

// Worst returns the more severe of two comparable statuses. A non-comparable
// argument is ignored; if both are non-comparable, a is returned.
func Worst(a, b Status) Status {
	if !b.Comparable() {
		return a
	}
	if !a.Comparable() || b.Rank() > a.Rank() {
		return b
	}
	return a
}

// DataError is the data key carrying signal-unavailable and
// evaluator-failure detail.
const DataError = "error"

// Result captures the outcome of one check evaluation against one target.
// Results are values; once produced they are never modified. Use Clone when
// handing a Result to code that may mutate Data or Recommendations.
type Result struct {
	// Category is the check family that produced the Result.
	Category Category `json:"category" yaml:"category"`

	// CheckName identifies the specific check within the category.
	CheckName string `json:"checkName" yaml:"checkName"`

	// Target is the server name, or the infrastructure scope marker.
	Target string `json:"target" yaml:"target"`

	// Status is the severity classification.
	Status Status `json:"status" yaml:"status"`

	// Message summarizes the determining condition.
	Message string `json:"message" yaml:"message"`

	// Data holds category-specific signal values and sub-test outcomes.
	// The "error" key records unavailable signals.
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`

	// Recommendations lists remediation steps in signal-evaluation order.
	Recommendations []string `json:"recommendations" yaml:"recommendations"`

	// Timestamp is when the evaluation completed.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewResult builds a Result stamped with the current time.
func NewResult(category Category, name string, target Target, status Status, message string, data map[string]any, recommendations []string) Result {
	if recommendations == nil {
		recommendations = []string{}
	}
	return Result{
		Category:        category,
		CheckName:       name,
		Target:          target.Name,
		Status:          status,
		Message:         message,
		Data:            data,
		Recommendations: recommendations,
		Timestamp:       time.Now(),
	}
}

// UnknownResult builds the Result for an evaluator that could not obtain any
// signal for the target.
func UnknownResult(category Category, name string, target Target, err error) Result {
	data := map[string]any{}
	msg := fmt.Sprintf("Unable to evaluate %s on %s", name, target.Name)
	if err != nil {
		data[DataError] = err.Error()
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return NewResult(category, name, target, StatusUnknown, msg, data, []string{
		fmt.Sprintf("Verify that %s is reachable and that the supplied credentials can query it", target.Name),
	})
}

// Clone returns a copy of r whose Data map and Recommendations slice are
// independent of the original.
func (r Result) Clone() Result {
	out := r
	if r.Data != nil {
		out.Data = maps.Clone(r.Data)
	}
	out.Recommendations = slices.Clone(r.Recommendations)
	return out
}

// SignalErrors collects signal-unavailable detail while a check gathers its
// signals. It is recorded under DataError.
type SignalErrors struct {
	msgs []string
}

// Add records that signal could not be obtained.
func (e *SignalErrors) Add(signal string, err error) {
	e.msgs = append(e.msgs, fmt.Sprintf("%s: %v", signal, err))
}

// Len returns the number of recorded failures.
func (e *SignalErrors) Len() int {
	return len(e.msgs)
}

// Err returns the recorded failures as one error, or nil.
func (e *SignalErrors) Err() error {
	if len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "; "))
}

// Record sets data[DataError] when any failure was recorded.
func (e *SignalErrors) Record(data map[string]any) {
	if len(e.msgs) > 0 {
		data[DataError] = strings.Join(e.msgs, "; ")
	}
}
