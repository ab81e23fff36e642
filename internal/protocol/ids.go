package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces checkpoint identifiers.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 checkpoint identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identifiers
// sort by creation time, which helps when reading the metadata store.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("A-0", "A-1")
//	gen.Generate() // "A-0"
//	gen.Generate() // "A-1"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics when exhausted so misconfigured tests fail fast.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequentialGenerator produces "<instance>-<n>" style identifiers, counting
// per instance. Deterministic and readable; used by the simulator.
type SequentialGenerator struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewSequentialGenerator creates an empty SequentialGenerator.
func NewSequentialGenerator() *SequentialGenerator {
	return &SequentialGenerator{counts: make(map[string]int)}
}

// Next returns the next identifier for instance.
func (g *SequentialGenerator) Next(instance string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.counts[instance]
	g.counts[instance] = n + 1
	return fmt.Sprintf("%s-%d", instance, n)
}

// GeneratedStorage is a Storage that persists nothing and only mints
// identifiers. Snapshot bytes live outside this subsystem.
type GeneratedStorage struct {
	Gen IDGenerator
}

// TakeCheckpoint implements Storage.
func (s GeneratedStorage) TakeCheckpoint(ctx context.Context, instance string, forced bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	gen := s.Gen
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	return gen.Generate(), nil
}

// SequentialStorage mints "<instance>-<n>" identifiers.
type SequentialStorage struct {
	gen *SequentialGenerator
}

// NewSequentialStorage creates a SequentialStorage.
func NewSequentialStorage() *SequentialStorage {
	return &SequentialStorage{gen: NewSequentialGenerator()}
}

// TakeCheckpoint implements Storage.
func (s *SequentialStorage) TakeCheckpoint(ctx context.Context, instance string, forced bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.gen.Next(instance), nil
}
