// Package coordinator runs the central checkpoint-metadata owner.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// All metadata mutations happen in one goroutine (Run). Instances publish
// checkpoint notifications and failure reports into an unbounded FIFO queue;
// Run handles them one at a time:
//
//  1. Checkpoint event: persist to the store (idempotent), append to the
//     in-memory history
//  2. Failure event: snapshot the history, compute the recovery line in the
//     mode the deployment's protocol requires, persist the episode, dispatch
//     one restore instruction per affected instance, reply to the caller
//
// Because failures travel through the same queue as notifications, every
// episode sees exactly the checkpoints published before it was reported,
// and two episodes never run concurrently.
//
// Replay:
// A restarted coordinator calls Replay before Run to reload persisted records
// and resume episode numbering.
package coordinator
