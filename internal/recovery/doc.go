// Package recovery computes recovery lines: for every instance, the checkpoint
// it restores after a failure, or ir.NoRollback when it keeps its state.
//
// A History holds each instance's checkpoints as an append-only sequence.
// A Calculator validates a history snapshot against the instance graph and
// answers CalculateRecoveryLine in one of two modes:
//
//   - independent, for checkpoints taken autonomously (communication-induced
//     or interval protocols): only failed instances and their forward
//     closure roll back, to the newest records whose dependencies on other
//     rolled-back instances are strictly older than those instances' targets;
//   - coordinated, for barrier-aligned rounds: every instance rolls back to
//     the newest complete round whose dependencies line up exactly.
//
// Input that breaks the contract is reported as *ContractError.
package recovery
