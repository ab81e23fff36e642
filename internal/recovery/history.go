package recovery

import (
	"sort"

	"github.com/roach88/recline/internal/ir"
)

// History is the append-only checkpoint history of every instance.
//
// Each owner's records form an ordered sequence, oldest first, whose
// positions equal the records' Index fields. Records are never mutated or
// removed; callers get copies.
//
// Thread-safety: not safe for concurrent use. The coordinator owns the live
// History and hands Snapshot copies to calculators.
type History struct {
	byOwner map[string][]ir.CheckpointRecord
	byID    map[string]ir.CheckpointRecord
	total   int
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{
		byOwner: make(map[string][]ir.CheckpointRecord),
		byID:    make(map[string]ir.CheckpointRecord),
	}
}

// BuildHistory creates a History from records in any order.
func BuildHistory(records []ir.CheckpointRecord) (*History, error) {
	sorted := append([]ir.CheckpointRecord{}, records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Owner != sorted[j].Owner {
			return sorted[i].Owner < sorted[j].Owner
		}
		return sorted[i].Index < sorted[j].Index
	})

	h := NewHistory()
	for _, rec := range sorted {
		if err := h.Append(rec); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Append adds the next record of its owner. The record's Index must equal the
// owner's current length and its ID must be new.
func (h *History) Append(rec ir.CheckpointRecord) error {
	if err := h.Check(rec); err != nil {
		return err
	}

	rec = rec.Clone()
	h.byOwner[rec.Owner] = append(h.byOwner[rec.Owner], rec)
	h.byID[rec.ID] = rec
	h.total++
	return nil
}

// Check reports whether Append would accept rec, without adding it.
func (h *History) Check(rec ir.CheckpointRecord) error {
	if rec.ID == "" {
		return contractErr(ErrCodeDuplicateID, rec.Owner, "record at index %d has an empty id", rec.Index)
	}
	if _, dup := h.byID[rec.ID]; dup {
		return contractErr(ErrCodeDuplicateID, rec.Owner, "checkpoint %q already recorded", rec.ID)
	}
	seq := h.byOwner[rec.Owner]
	if rec.Index != len(seq) {
		return contractErr(ErrCodeIndexGap, rec.Owner,
			"checkpoint %q has index %d, expected %d", rec.ID, rec.Index, len(seq))
	}
	return nil
}

// Owners returns every owner with at least one record, sorted.
func (h *History) Owners() []string {
	out := make([]string, 0, len(h.byOwner))
	for o := range h.byOwner {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Records returns a copy of owner's sequence, oldest first.
func (h *History) Records(owner string) []ir.CheckpointRecord {
	seq := h.byOwner[owner]
	out := make([]ir.CheckpointRecord, len(seq))
	for i, r := range seq {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of records of owner.
func (h *History) Len(owner string) int {
	return len(h.byOwner[owner])
}

// Total returns the number of records across all owners.
func (h *History) Total() int {
	return h.total
}

// Latest returns owner's most recent record.
func (h *History) Latest(owner string) (ir.CheckpointRecord, bool) {
	seq := h.byOwner[owner]
	if len(seq) == 0 {
		return ir.CheckpointRecord{}, false
	}
	return seq[len(seq)-1].Clone(), true
}

// Lookup finds a record by identifier.
func (h *History) Lookup(id string) (ir.CheckpointRecord, bool) {
	rec, ok := h.byID[id]
	if !ok {
		return ir.CheckpointRecord{}, false
	}
	return rec.Clone(), true
}

// at returns the record without copying. Callers must not mutate it.
func (h *History) at(owner string, index int) ir.CheckpointRecord {
	return h.byOwner[owner][index]
}

// Snapshot returns an independent copy that later appends do not affect.
func (h *History) Snapshot() *History {
	out := &History{
		byOwner: make(map[string][]ir.CheckpointRecord, len(h.byOwner)),
		byID:    make(map[string]ir.CheckpointRecord, len(h.byID)),
		total:   h.total,
	}
	for owner, seq := range h.byOwner {
		out.byOwner[owner] = append([]ir.CheckpointRecord(nil), seq...)
	}
	for id, rec := range h.byID {
		out.byID[id] = rec
	}
	return out
}
