package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s by %s on %s: %s\n", ev.Seq, ev.Command, ev.Role, ev.Instance, ev.Outcome)
		}
	}
	return buf.String()
}

// matches reports whether an event satisfies the command, role and outcome
// filters of an assertion. Empty filters match anything.
func matches(ev TraceEvent, a Assertion) bool {
	if ev.Command != a.Command {
		return false
	}
	if a.Role != "" && ev.Role != a.Role {
		return false
	}
	return a.Outcome == "" || ev.Outcome == a.Outcome
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the commands appear in order, not
// necessarily consecutively.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, want := range a.Commands {
		found := false
		for pos < len(trace) {
			ev := trace[pos]
			pos++
			if ev.Command == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("commands in order: %v", a.Commands),
				Actual:   fmt.Sprintf("%s missing after position %d", want, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState compares the expected keys against the captured state
// (subset semantics).
func assertFinalState(state map[string]map[string]any, a Assertion) error {
	actual, ok := state[a.Instance]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("instance %q to exist", a.Instance),
			Actual:   "no such instance at the end of the run",
		}
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := a.Expect[key]
		got, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s to exist", a.Instance, key),
				Actual:   "not present",
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", a.Instance, key, want),
				Actual:   fmt.Sprintf("%s.%s = %v", a.Instance, key, got),
			}
		}
	}
	return nil
}

// stateValuesEqual compares a YAML-decoded expectation with a captured
// value. Scalars compare by their printed form so 120 matches "120"; lists
// compare element-wise.
func stateValuesEqual(expected, actual any) bool {
	if list, ok := expected.([]any); ok {
		got, ok := actual.([]string)
		if !ok || len(got) != len(list) {
			return false
		}
		want := make([]string, len(list))
		for i, item := range list {
			want[i] = fmt.Sprint(item)
		}
		return slices.Equal(want, got)
	}
	if expected == nil {
		return actual == nil || actual == ""
	}
	return fmt.Sprint(expected) == fmt.Sprint(actual)
}

func describe(a Assertion) string {
	s := a.Command
	if a.Role != "" {
		s += " by " + a.Role
	}
	if a.Outcome != "" {
		s += " -> " + a.Outcome
	}
	return s
}

// EvaluateAssertions evaluates all assertions against the result and returns
// a message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.State, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
