// Package harness runs YAML workflow scenarios against the engine.
//
// A scenario names a CUE catalog and a list of steps. Each step executes one
// engine command as a role and records a trace event with the outcome (ok or
// the rejection kind) and the instance status afterwards. Assertions then
// check the trace and the final instance state.
//
// # Scenario Format
//
//	name: review_round_trip
//	description: "Requester starts, QA approves, requester closes"
//	catalog: ../catalog
//	steps:
//	  - command: create
//	    role: requester
//	    instance: doc
//	    args: { template_id: review, title: "Level 3 pour" }
//	  - command: send
//	    role: requester
//	    instance: doc
//	    args: { action_id: start }
//	  - command: send
//	    role: qa
//	    instance: doc
//	    args: { action_id: approve }
//	    expect: PRECONDITION_NOT_MET
//	assertions:
//	  - type: trace_order
//	    commands: [create, send]
//	  - type: final_state
//	    instance: doc
//	    expect: { status: Sent, steps: 1 }
//
// Instances and attachments are referred to by aliases bound when they are
// created, so scenarios never depend on generated ids.
//
// # Assertion Types
//
//   - trace_contains: a step with the command (and role, outcome if given)
//   - trace_order: commands appear in order
//   - trace_count: a command appears exactly N times
//   - final_state: instance properties and form values after the last step
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory repository, a deterministic clock starting
// at testutil.Epoch and sequential ids, so traces are stable for golden
// comparison.
package harness
