package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/recline/internal/ir"
)

// ReadCheckpoints returns every checkpoint record.
// Results are ordered deterministically: ORDER BY owner COLLATE BINARY, seq_index.
//
// Returns an empty slice (not nil) if the store holds no records.
func (s *Store) ReadCheckpoints(ctx context.Context) ([]ir.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, seq_index, dependencies, forced, created_at
		FROM checkpoints
		ORDER BY owner COLLATE BINARY ASC, seq_index ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	return collectCheckpoints(rows)
}

// ReadOwnerHistory returns one owner's records, oldest first.
func (s *Store) ReadOwnerHistory(ctx context.Context, owner string) ([]ir.CheckpointRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, seq_index, dependencies, forced, created_at
		FROM checkpoints
		WHERE owner = ?
		ORDER BY seq_index ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("query history of %s: %w", owner, err)
	}
	return collectCheckpoints(rows)
}

// ReadCheckpoint retrieves a single record by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadCheckpoint(ctx context.Context, id string) (ir.CheckpointRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, seq_index, dependencies, forced, created_at
		FROM checkpoints
		WHERE id = ?
	`, id)
	return scanCheckpoint(row)
}

// CountCheckpoints returns the number of records per owner.
func (s *Store) CountCheckpoints(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, COUNT(*)
		FROM checkpoints
		GROUP BY owner
		ORDER BY owner COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("count checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var owner string
		var n int
		if err := rows.Scan(&owner, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[owner] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return out, nil
}

// ReadEpisodes returns every recovery episode ordered by seq.
func (s *Store) ReadEpisodes(ctx context.Context) ([]ir.Episode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, coordinated, failed, recovery_map, affected, created_at
		FROM recovery_episodes
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	episodes := []ir.Episode{}
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}
	return episodes, nil
}

// LastEpisodeSeq returns the highest episode seq, or 0 when none exist.
func (s *Store) LastEpisodeSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM recovery_episodes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last episode seq: %w", err)
	}
	return seq.Int64, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func collectCheckpoints(rows *sql.Rows) ([]ir.CheckpointRecord, error) {
	defer rows.Close()

	recs := []ir.CheckpointRecord{}
	for rows.Next() {
		rec, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return recs, nil
}

func scanCheckpoint(row scanner) (ir.CheckpointRecord, error) {
	var (
		rec       ir.CheckpointRecord
		deps      string
		forced    int
		createdAt string
	)
	if err := row.Scan(&rec.ID, &rec.Owner, &rec.Index, &deps, &forced, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return ir.CheckpointRecord{}, err
		}
		return ir.CheckpointRecord{}, fmt.Errorf("scan checkpoint: %w", err)
	}

	var err error
	if rec.Dependencies, err = unmarshalDependencies(deps); err != nil {
		return ir.CheckpointRecord{}, fmt.Errorf("checkpoint %s: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.CheckpointRecord{}, fmt.Errorf("checkpoint %s: %w", rec.ID, err)
	}
	rec.Forced = forced != 0
	return rec, nil
}

func scanEpisode(row scanner) (ir.Episode, error) {
	var (
		ep                       ir.Episode
		coordinated              int
		failed, rm, affected, at string
	)
	if err := row.Scan(&ep.Seq, &coordinated, &failed, &rm, &affected, &at); err != nil {
		return ir.Episode{}, fmt.Errorf("scan episode: %w", err)
	}

	var err error
	if ep.Failed, err = unmarshalNames(failed); err != nil {
		return ir.Episode{}, fmt.Errorf("episode %d: %w", ep.Seq, err)
	}
	if ep.Line.RecoveryMap, err = unmarshalRecoveryMap(rm); err != nil {
		return ir.Episode{}, fmt.Errorf("episode %d: %w", ep.Seq, err)
	}
	if ep.Line.AffectedInstances, err = unmarshalNames(affected); err != nil {
		return ir.Episode{}, fmt.Errorf("episode %d: %w", ep.Seq, err)
	}
	if ep.CreatedAt, err = parseTime(at); err != nil {
		return ir.Episode{}, fmt.Errorf("episode %d: %w", ep.Seq, err)
	}
	ep.Line.Coordinated = coordinated != 0
	return ep, nil
}
