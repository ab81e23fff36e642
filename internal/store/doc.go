// Package store provides SQLite-backed durable storage for checkpoint
// metadata and recovery episodes.
//
// The store is an append-only log with:
//   - Checkpoints: one row per CheckpointRecord, keyed by checkpoint ID
//   - Recovery episodes: one row per handled failure with its recovery line
//
// # Invariants
//
// Idempotent writes
//   - Checkpoints use ON CONFLICT(id) DO NOTHING so re-delivered
//     notifications are harmless
//   - UNIQUE(owner, seq_index) keeps each owner's history a sequence
//
// Deterministic reads
//   - Checkpoints: ORDER BY owner COLLATE BINARY, seq_index
//   - Episodes: ORDER BY seq
//   - JSON columns are written with sorted keys
//
// Timestamps are informational and never used for ordering.
//
// # Schema version
//
// PRAGMA user_version records the schema version. Open refuses a database
// whose version is newer than this build (ErrSchemaTooNew).
package store
