// Package harness runs recovery-line scenarios as executable contract tests.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: domino_effect
//	description: "Each checkpoint depends on a newer upstream one"
//	topology:
//	  vertex:
//	    A: {}
//	    B: {upstream: [A]}
//	checkpoints:
//	  - {id: A0, owner: A}
//	  - {id: B0, owner: B}
//	  - {id: B1, owner: B, dependencies: {A: A0}}
//	recover:
//	  - failed: [A]
//	    expect: {A: A0, B: B1}
//	    affected: [A, B]
//	  - failed: [B]
//	    coordinated: true
//	    error: NO_CONSISTENT_ROUND
//
// Checkpoints are listed oldest first; each owner's records get indices
// 0, 1, 2 in the order they appear. In expect maps "-" (or an omitted
// instance) means the instance keeps its state.
//
// # Determinism
//
// Every scenario runs against a fresh in-memory store with a manual clock,
// so the trace is byte-identical across runs and can be compared against a
// golden file (testdata/golden/<name>.golden).
package harness
