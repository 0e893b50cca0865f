package evaluate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kylerisse/dirhealth/pkg/check"
)

// ErrNoSignals is returned by Evaluate when it is given nothing to classify.
// Callers produce an Unknown Result instead.
var ErrNoSignals = errors.New("no signals to evaluate")

// UnitBool marks a boolean probe signal (1 = pass, 0 = fail).
const UnitBool = "bool"

// Signal is one observation to classify.
type Signal struct {
	// Name identifies the signal; it is also its key in Result data.
	Name string

	// Value is the observed value. Boolean probes use 1 for pass, 0 for fail.
	Value float64

	// Unit is the display unit (e.g. "min", "%", UnitBool).
	Unit string

	// Threshold is the bound pair the value is judged against.
	Threshold Threshold

	// WarningMessage and CriticalMessage summarize the signal when it
	// determines the outcome at that level. When empty a generic message
	// citing the value and bound is used.
	WarningMessage  string
	CriticalMessage string

	// Remedy lists recommendations added when the signal is not Healthy.
	Remedy []string
}

// Numeric builds a signal judged against th.
func Numeric(name string, value float64, unit string, th Threshold) Signal {
	return Signal{Name: name, Value: value, Unit: unit, Threshold: th}
}

// Probe builds a boolean signal whose failure is Critical.
func Probe(name string, ok bool, failMessage string, remedy ...string) Signal {
	return boolSignal(name, ok, Threshold{Direction: LowerIsWorse, Critical: 1, HasCritical: true}, failMessage, remedy)
}

// WarnProbe builds a boolean signal whose failure is only a Warning.
func WarnProbe(name string, ok bool, failMessage string, remedy ...string) Signal {
	return boolSignal(name, ok, Threshold{Direction: LowerIsWorse, Warning: 1, HasWarning: true}, failMessage, remedy)
}

func boolSignal(name string, ok bool, th Threshold, failMessage string, remedy []string) Signal {
	v := 0.0
	if ok {
		v = 1
	}
	return Signal{
		Name:            name,
		Value:           v,
		Unit:            UnitBool,
		Threshold:       th,
		WarningMessage:  failMessage,
		CriticalMessage: failMessage,
		Remedy:          remedy,
	}
}

// Warn sets the warning message and returns the signal.
func (s Signal) Warn(format string, args ...any) Signal {
	s.WarningMessage = fmt.Sprintf(format, args...)
	return s
}

// Crit sets the critical message and returns the signal.
func (s Signal) Crit(format string, args ...any) Signal {
	s.CriticalMessage = fmt.Sprintf(format, args...)
	return s
}

// Fix appends recommendations and returns the signal.
func (s Signal) Fix(remedy ...string) Signal {
	s.Remedy = append(append([]string(nil), s.Remedy...), remedy...)
	return s
}

// Classification is the status assigned to one signal.
type Classification struct {
	Signal Signal
	Status check.Status
}

// Closing is the category-specific guidance used when every signal is
// Healthy.
type Closing struct {
	Message         string
	Recommendations []string
}

// Outcome is the classification of a whole signal set.
type Outcome struct {
	Status          check.Status
	Message         string
	Recommendations []string
	Signals         []Classification
}

// Evaluate classifies signals in order and aggregates them. The overall
// status is the most severe classification; the message comes from the
// first signal at that severity. Recommendations are the remedies of every
// non-Healthy signal in evaluation order without duplicates, or the closing
// recommendations when the overall status is Healthy.
func Evaluate(signals []Signal, closing Closing) (Outcome, error) {
	if len(signals) == 0 {
		return Outcome{}, ErrNoSignals
	}

	out := Outcome{
		Status:  check.StatusHealthy,
		Signals: make([]Classification, 0, len(signals)),
	}
	determining := -1
	seen := map[string]bool{}
	var recs []string

	for i, s := range signals {
		st := s.Threshold.Classify(s.Value)
		out.Signals = append(out.Signals, Classification{Signal: s, Status: st})

		if st.Rank() > out.Status.Rank() {
			out.Status = st
			determining = i
		}
		if st == check.StatusHealthy {
			continue
		}
		for _, r := range s.Remedy {
			if !seen[r] {
				seen[r] = true
				recs = append(recs, r)
			}
		}
	}

	if out.Status == check.StatusHealthy {
		out.Message = closing.Message
		out.Recommendations = append([]string{}, closing.Recommendations...)
		return out, nil
	}

	out.Message = message(out.Signals[determining])
	out.Recommendations = recs
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	return out, nil
}

func message(c Classification) string {
	s := c.Signal
	switch c.Status {
	case check.StatusCritical:
		if s.CriticalMessage != "" {
			return s.CriticalMessage
		}
	case check.StatusWarning:
		if s.WarningMessage != "" {
			return s.WarningMessage
		}
	}
	if s.Unit == UnitBool {
		return fmt.Sprintf("%s check failed", s.Name)
	}
	bound, _ := s.Threshold.Bound(c.Status)
	return fmt.Sprintf("%s is %s%s (%s threshold: %s%s)",
		s.Name, formatValue(s.Value), s.Unit, lowerStatus(c.Status), formatValue(bound), s.Unit)
}

func lowerStatus(s check.Status) string {
	switch s {
	case check.StatusCritical:
		return "critical"
	case check.StatusWarning:
		return "warning"
	}
	return "healthy"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Issues returns the names of non-Healthy signals in evaluation order.
func (o Outcome) Issues() []string {
	var out []string
	for _, c := range o.Signals {
		if c.Status != check.StatusHealthy {
			out = append(out, c.Signal.Name)
		}
	}
	return out
}

// Values returns each signal's value keyed by name. Boolean probes are
// reported as bools.
func (o Outcome) Values() map[string]any {
	out := make(map[string]any, len(o.Signals))
	for _, c := range o.Signals {
		if c.Signal.Unit == UnitBool {
			out[c.Signal.Name] = c.Signal.Value == 1
			continue
		}
		out[c.Signal.Name] = c.Signal.Value
	}
	return out
}

// Statuses returns each signal's classification keyed by name.
func (o Outcome) Statuses() map[string]check.Status {
	out := make(map[string]check.Status, len(o.Signals))
	for _, c := range o.Signals {
		out[c.Signal.Name] = c.Status
	}
	return out
}

// Result builds a check.Result from the outcome. The signal values and their
// classifications are merged into data under "signals".
func (o Outcome) Result(category check.Category, name string, target check.Target, data map[string]any) check.Result {
	if data == nil {
		data = map[string]any{}
	}
	signals := make(map[string]any, len(o.Signals))
	for k, v := range o.Values() {
		signals[k] = v
	}
	data["signals"] = signals
	if issues := o.Issues(); len(issues) > 0 {
		data["issues"] = issues
	}
	return check.NewResult(category, name, target, o.Status, o.Message, data, o.Recommendations)
}
