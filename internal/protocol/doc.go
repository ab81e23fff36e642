// Package protocol implements the per-instance checkpoint-triggering
// disciplines: coordinated barriers, communication-induced checkpointing and
// fixed intervals.
//
// Exactly one discipline is active per deployment. Each instance owns a
// Checkpointer that tracks which upstream checkpoints its state depends on,
// asks the Storage collaborator for the snapshot and publishes the resulting
// CheckpointRecord through a Notifier (normally the coordinator).
//
// None of the types here lock internally. They are driven by the single
// processing goroutine of their host instance; blocking effects are delegated
// to a BlockableSource that synchronizes on its own.
//
// Graph or deployment mismatches surface as *ConfigError and are fatal to the
// local instance.
package protocol
