package harness

// Outcome of a step that the engine accepted.
const OutcomeOK = "ok"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq           int    `json:"seq"`
	Command       string `json:"command"`
	Role          string `json:"role,omitempty"`
	Instance      string `json:"instance,omitempty"`
	Outcome       string `json:"outcome"`
	Status        string `json:"status,omitempty"`
	TransmittalNo string `json:"transmittal_no,omitempty"`
	Steps         int    `json:"steps"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// State holds the final state of each aliased instance, keyed by alias.
	State map[string]map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
