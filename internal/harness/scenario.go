package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of engine commands with expectations.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Catalog is the CUE catalog directory, relative to the scenario file.
	Catalog string `yaml:"catalog"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step executes one command.
type Step struct {
	// Command is one of the Cmd constants.
	Command string `yaml:"command"`

	Role string `yaml:"role,omitempty"`

	// Instance is the alias of the target instance. create binds it.
	Instance string `yaml:"instance,omitempty"`

	// Attachment is the alias of the target attachment. add_attachment
	// binds it.
	Attachment string `yaml:"attachment,omitempty"`

	Args map[string]any `yaml:"args,omitempty"`

	// Expect is the expected rejection kind. Empty means the command must
	// succeed.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Command, Role and Outcome select trace events (trace_contains,
	// trace_count).
	Command string `yaml:"command,omitempty"`
	Role    string `yaml:"role,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Commands is the expected command order (trace_order).
	Commands []string `yaml:"commands,omitempty"`

	// Instance and Expect check final_state. Keys are status, steps,
	// current_to, title, transmittal_no, loop_count, activities, or
	// form.<field key>.
	Instance string         `yaml:"instance,omitempty"`
	Expect   map[string]any `yaml:"expect,omitempty"`
}

// Step commands.
const (
	CmdCreate              = "create"
	CmdUpdateForm          = "update_form"
	CmdAddAttachment       = "add_attachment"
	CmdRemoveAttachment    = "remove_attachment"
	CmdSetAttachmentStatus = "set_attachment_status"
	CmdSend                = "send"
	CmdDelegate            = "delegate"
	CmdOpen                = "open"
	CmdDelete              = "delete"
	CmdAdvanceClock        = "advance_clock"
)

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

var knownCommands = map[string]bool{
	CmdCreate: true, CmdUpdateForm: true, CmdAddAttachment: true, CmdRemoveAttachment: true,
	CmdSetAttachmentStatus: true, CmdSend: true, CmdDelegate: true, CmdOpen: true,
	CmdDelete: true, CmdAdvanceClock: true,
}

// LoadScenario reads a scenario file, rejecting unknown keys, and resolves
// the catalog path against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if info, err := os.Stat(s.Catalog); err != nil || !info.IsDir() {
		return fmt.Errorf("catalog directory not found: %s", s.Catalog)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	if !knownCommands[st.Command] {
		return fmt.Errorf("steps[%d]: unknown command %q", index, st.Command)
	}
	if st.Command == CmdAdvanceClock {
		return nil
	}
	if st.Role == "" {
		return fmt.Errorf("steps[%d]: role is required for %s", index, st.Command)
	}
	if st.Instance == "" {
		return fmt.Errorf("steps[%d]: instance alias is required for %s", index, st.Command)
	}
	switch st.Command {
	case CmdAddAttachment, CmdRemoveAttachment, CmdSetAttachmentStatus:
		if st.Attachment == "" {
			return fmt.Errorf("steps[%d]: attachment alias is required for %s", index, st.Command)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Commands) == 0 {
			return fmt.Errorf("assertions[%d]: commands list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Instance == "" {
			return fmt.Errorf("assertions[%d]: instance is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
