// Package evaluate turns measured signals into a severity classification.
//
// A Signal carries an observed value and the Threshold it is judged against.
// Evaluate classifies every signal independently, takes the most severe
// classification as the overall status, and assembles the message and the
// ordered recommendation list. It never short-circuits: every signal is
// classified and contributes to the Outcome even after a Critical one.
//
// The package is pure: identical input always yields identical output.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kylerisse/dirhealth/pkg/check"
)

// ErrInvalidThreshold is returned for threshold pairs whose critical bound
// is less severe than the warning bound.
var ErrInvalidThreshold = errors.New("invalid threshold")

// Direction says which way a signal gets worse.
type Direction int

const (
	// HigherIsWorse breaches when the value rises past a bound (CPU %).
	HigherIsWorse Direction = iota
	// LowerIsWorse breaches when the value falls past a bound (free disk %).
	LowerIsWorse
)

func (d Direction) String() string {
	if d == LowerIsWorse {
		return "lower-is-worse"
	}
	return "higher-is-worse"
}

// Threshold is a (warning, critical) bound pair for one signal. Either bound
// may be absent. Bounds are exclusive unless Inclusive is set: a
// higher-is-worse signal breaches when value > bound, or value >= bound when
// inclusive.
type Threshold struct {
	Direction   Direction
	Warning     float64
	Critical    float64
	HasWarning  bool
	HasCritical bool
	Inclusive   bool
}

// Above returns a higher-is-worse threshold with both bounds.
func Above(warning, critical float64) Threshold {
	return Threshold{Direction: HigherIsWorse, Warning: warning, Critical: critical, HasWarning: true, HasCritical: true}
}

// Below returns a lower-is-worse threshold with both bounds.
func Below(warning, critical float64) Threshold {
	return Threshold{Direction: LowerIsWorse, Warning: warning, Critical: critical, HasWarning: true, HasCritical: true}
}

// AboveCritical returns a higher-is-worse threshold with only a critical bound.
func AboveCritical(critical float64) Threshold {
	return Threshold{Direction: HigherIsWorse, Critical: critical, HasCritical: true}
}

// AboveWarning returns a higher-is-worse threshold with only a warning bound.
func AboveWarning(warning float64) Threshold {
	return Threshold{Direction: HigherIsWorse, Warning: warning, HasWarning: true}
}

// Inclusively returns a copy of t whose bounds include their boundary value.
func (t Threshold) Inclusively() Threshold {
	t.Inclusive = true
	return t
}

// Validate rejects thresholds whose critical bound is less severe than the
// warning bound, NaN bounds, and thresholds without any bound.
func (t Threshold) Validate() error {
	if !t.HasWarning && !t.HasCritical {
		return fmt.Errorf("%w: no bounds set", ErrInvalidThreshold)
	}
	if (t.HasWarning && math.IsNaN(t.Warning)) || (t.HasCritical && math.IsNaN(t.Critical)) {
		return fmt.Errorf("%w: NaN bound", ErrInvalidThreshold)
	}
	if !t.HasWarning || !t.HasCritical {
		return nil
	}
	switch t.Direction {
	case HigherIsWorse:
		if t.Critical < t.Warning {
			return fmt.Errorf("%w: critical bound %v is below warning bound %v", ErrInvalidThreshold, t.Critical, t.Warning)
		}
	case LowerIsWorse:
		if t.Critical > t.Warning {
			return fmt.Errorf("%w: critical bound %v is above warning bound %v", ErrInvalidThreshold, t.Critical, t.Warning)
		}
	}
	return nil
}

// breaches reports whether value is beyond bound in t's direction.
func (t Threshold) breaches(value, bound float64) bool {
	switch t.Direction {
	case LowerIsWorse:
		if t.Inclusive {
			return value <= bound
		}
		return value < bound
	default:
		if t.Inclusive {
			return value >= bound
		}
		return value > bound
	}
}

// Classify returns the status of value against t.
func (t Threshold) Classify(value float64) check.Status {
	if t.HasCritical && t.breaches(value, t.Critical) {
		return check.StatusCritical
	}
	if t.HasWarning && t.breaches(value, t.Warning) {
		return check.StatusWarning
	}
	return check.StatusHealthy
}

// Bound returns the bound associated with a status, and whether t has one.
func (t Threshold) Bound(status check.Status) (float64, bool) {
	switch status {
	case check.StatusCritical:
		return t.Critical, t.HasCritical
	case check.StatusWarning:
		return t.Warning, t.HasWarning
	}
	return 0, false
}

// Table is a named set of thresholds for one category. Tables are static
// configuration; Clone before applying overrides.
type Table map[string]Threshold

// Clone returns an independent copy of the table.
func (tb Table) Clone() Table {
	out := make(Table, len(tb))
	for k, v := range tb {
		out[k] = v
	}
	return out
}

// Apply overrides bounds from a factory config map. For every threshold
// name in the table the keys "<name>_warning" and "<name>_critical" are
// read; setting a bound the table lacks adds it. The result is validated.
func (tb Table) Apply(config map[string]any) error {
	for _, name := range tb.names() {
		th := tb[name]
		w, ok, err := check.ConfigFloat(config, name+"_warning")
		if err != nil {
			return err
		}
		if ok {
			th.Warning, th.HasWarning = w, true
		}
		c, ok, err := check.ConfigFloat(config, name+"_critical")
		if err != nil {
			return err
		}
		if ok {
			th.Critical, th.HasCritical = c, true
		}
		tb[name] = th
	}
	return tb.Validate()
}

func (tb Table) names() []string {
	names := make([]string, 0, len(tb))
	for name := range tb {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every threshold, reporting the first invalid one by name
// in sorted order.
func (tb Table) Validate() error {
	for _, name := range tb.names() {
		if err := tb[name].Validate(); err != nil {
			return fmt.Errorf("threshold %q: %w", name, err)
		}
	}
	return nil
}
