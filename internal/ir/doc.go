// Package ir provides the shared data model for checkpoint triggering and
// recovery-line computation.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the data model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - CheckpointRecord values are immutable once published
//   - Per-owner Index is the only ordering used by recovery; CreatedAt is informational
//   - All JSON tags use snake_case
//   - NoRollback ("") is the only sentinel in a RecoveryMap
package ir
