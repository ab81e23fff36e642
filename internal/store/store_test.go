package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recline/internal/ir"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(owner string, index int, id string, deps map[string]string) ir.CheckpointRecord {
	return ir.CheckpointRecord{
		ID:           id,
		Owner:        owner,
		Index:        index,
		Dependencies: deps,
		CreatedAt:    t0.Add(time.Duration(index) * time.Second),
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"checkpoints", "recovery_episodes"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q missing", table)
	}
}

func pragma(t *testing.T, s *Store, name string) string {
	t.Helper()
	var value string
	require.NoError(t, s.db.QueryRow("PRAGMA "+name).Scan(&value))
	return value
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, "wal", pragma(t, s, "journal_mode"))
	assert.Equal(t, "5000", pragma(t, s, "busy_timeout"))
	assert.Equal(t, "1", pragma(t, s, "user_version"))
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 2")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.WriteCheckpoint(context.Background(), record("A", 0, "A-0", nil))
	assert.NoError(t, err)
}

func TestClose_Nil(t *testing.T) {
	var s Store
	assert.NoError(t, s.Close())
}

func TestWriteCheckpoint_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := record("B", 1, "B-1", map[string]string{"A": "A-0", "C": "C-3"})
	rec.Forced = true
	inserted, err := s.WriteCheckpoint(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := s.ReadCheckpoint(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestWriteCheckpoint_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := record("A", 0, "A-0", nil)

	inserted, err := s.WriteCheckpoint(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.WriteCheckpoint(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted, "re-delivered notification must be a no-op")

	all, err := s.ReadCheckpoints(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWriteCheckpoint_SlotConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteCheckpoint(ctx, record("A", 0, "A-0", nil))
	require.NoError(t, err)
	_, err = s.WriteCheckpoint(ctx, record("A", 0, "A-other", nil))
	assert.Error(t, err, "two records cannot share an owner index")
}

func TestReadCheckpoints_DeterministicOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteCheckpoints(ctx, []ir.CheckpointRecord{
		record("B", 1, "B-1", map[string]string{"A": "A-0"}),
		record("A", 0, "A-0", nil),
		record("B", 0, "B-0", nil),
		record("A", 1, "A-1", nil),
	}))

	all, err := s.ReadCheckpoints(ctx)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"A-0", "A-1", "B-0", "B-1"}, ids)

	hist, err := s.ReadOwnerHistory(ctx, "B")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, map[string]string{"A": "A-0"}, hist[1].Dependencies)
	assert.Nil(t, hist[0].Dependencies)

	counts, err := s.CountCheckpoints(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 2}, counts)
}

func TestReadCheckpoints_Empty(t *testing.T) {
	s := createTestStore(t)

	all, err := s.ReadCheckpoints(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestReadCheckpoint_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadCheckpoint(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWriteCheckpoints_RollsBackOnConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WriteCheckpoints(ctx, []ir.CheckpointRecord{
		record("A", 0, "A-0", nil),
		record("A", 0, "A-dup", nil),
	})
	require.Error(t, err)

	all, err := s.ReadCheckpoints(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestEpisodes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastEpisodeSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	line := ir.NewRecoveryLine(false, map[string]string{"A": ir.NoRollback, "B": "B-1"})
	ep := ir.Episode{Seq: 1, Failed: []string{"B"}, Line: line, CreatedAt: t0}
	require.NoError(t, s.WriteEpisode(ctx, ep))
	require.NoError(t, s.WriteEpisode(ctx, ep), "same seq is a no-op")

	ep2 := ir.Episode{
		Seq:       2,
		Line:      ir.NewRecoveryLine(true, map[string]string{"A": "A-0", "B": "B-0"}),
		CreatedAt: t0.Add(time.Minute),
	}
	require.NoError(t, s.WriteEpisode(ctx, ep2))

	got, err := s.ReadEpisodes(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ep, got[0])
	assert.Equal(t, []string{}, got[1].Failed)
	assert.True(t, got[1].Line.Coordinated)
	assert.Equal(t, []string{"A", "B"}, got[1].Line.AffectedInstances)

	seq, err = s.LastEpisodeSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}
