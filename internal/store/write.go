package store

import (
	"context"
	"fmt"

	"github.com/roach88/recline/internal/ir"
)

// WriteCheckpoint inserts a checkpoint record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency and reports whether a new
// row was inserted. A different record claiming an existing (owner,
// seq_index) slot violates the UNIQUE constraint and returns an error.
func (s *Store) WriteCheckpoint(ctx context.Context, rec ir.CheckpointRecord) (inserted bool, err error) {
	deps, err := marshalDependencies(rec.Dependencies)
	if err != nil {
		return false, fmt.Errorf("write checkpoint: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints
		(id, owner, seq_index, dependencies, forced, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Owner,
		rec.Index,
		deps,
		boolToInt(rec.Forced),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("write checkpoint %s: %w", rec.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write checkpoint %s: rows affected: %w", rec.ID, err)
	}
	return n > 0, nil
}

// WriteCheckpoints inserts records in one transaction.
func (s *Store) WriteCheckpoints(ctx context.Context, recs []ir.CheckpointRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write checkpoints: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO checkpoints
		(id, owner, seq_index, dependencies, forced, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write checkpoints: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		deps, err := marshalDependencies(rec.Dependencies)
		if err != nil {
			return fmt.Errorf("write checkpoints: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.Owner, rec.Index, deps, boolToInt(rec.Forced), formatTime(rec.CreatedAt),
		); err != nil {
			return fmt.Errorf("write checkpoint %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write checkpoints: commit: %w", err)
	}
	return nil
}

// WriteEpisode records a handled failure. Sequence numbers are assigned by
// the coordinator's clock; writing the same seq twice is a no-op.
func (s *Store) WriteEpisode(ctx context.Context, ep ir.Episode) error {
	failed, err := marshalNames(ep.Failed)
	if err != nil {
		return fmt.Errorf("write episode: %w", err)
	}
	rm, err := marshalRecoveryMap(ep.Line.RecoveryMap)
	if err != nil {
		return fmt.Errorf("write episode: %w", err)
	}
	affected, err := marshalNames(ep.Line.AffectedInstances)
	if err != nil {
		return fmt.Errorf("write episode: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recovery_episodes
		(seq, coordinated, failed, recovery_map, affected, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ep.Seq,
		boolToInt(ep.Line.Coordinated),
		failed,
		rm,
		affected,
		formatTime(ep.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write episode %d: %w", ep.Seq, err)
	}
	return nil
}
