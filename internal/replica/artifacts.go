package replica

import (
	"cmp"
	"slices"
	"sync"

	"github.com/cwrk-planet/canvas-rooms/internal/domain"
)

type entry struct {
	artifact domain.Artifact
	present  bool
	stamp    Stamp
	seq      uint64
}

// ArtifactSet is a last-writer-wins element set keyed by artifact id.
// Removed ids keep a tombstone for the lifetime of the set, so a stale insert
// that arrives after its remove is ignored on every replica.
type ArtifactSet struct {
	mu      sync.RWMutex
	origin  string
	clock   uint64
	seq     uint64
	entries map[string]*entry
}

// NewArtifactSet creates an empty set; origin tags locally created operations.
func NewArtifactSet(origin string) *ArtifactSet {
	return &ArtifactSet{
		origin:  origin,
		entries: make(map[string]*entry),
	}
}

// Insert adds a locally created artifact. Returns false without an op when the id is
// already present.
func (s *ArtifactSet) Insert(a domain.Artifact) (Op, bool) {
	if a.ID == "" {
		return Op{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[a.ID]; ok && e.present {
		return Op{}, false
	}
	art := a
	op := Op{Kind: OpInsert, ID: a.ID, Artifact: &art, Stamp: s.tick()}
	s.applyLocked(op)
	return op, true
}

// Remove removes a present artifact. Unknown or already removed ids are a no-op.
func (s *ArtifactSet) Remove(id string) (Op, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || !e.present {
		return Op{}, false
	}
	op := Op{Kind: OpRemove, ID: id, Stamp: s.tick()}
	s.applyLocked(op)
	return op, true
}

// Apply merges an operation from another replica. Returns true when the visible
// list changed.
func (s *ArtifactSet) Apply(op Op) bool {
	if !op.valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(op)
}

// Merge applies a batch, e.g. the snapshot received on join.
func (s *ArtifactSet) Merge(ops []Op) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, op := range ops {
		if !op.valid() {
			continue
		}
		if s.applyLocked(op) {
			changed = true
		}
	}
	return changed
}

func (s *ArtifactSet) applyLocked(op Op) bool {
	if op.Stamp.Clock > s.clock {
		s.clock = op.Stamp.Clock
	}

	e, ok := s.entries[op.ID]
	if ok && !op.Stamp.After(e.stamp) {
		return false
	}
	if !ok {
		e = &entry{}
		s.entries[op.ID] = e
	}

	wasPresent := e.present
	e.stamp = op.Stamp

	switch op.Kind {
	case OpInsert:
		e.artifact = *op.Artifact
		e.present = true
		if !wasPresent {
			s.seq++
			e.seq = s.seq
		}
	case OpRemove:
		e.present = false
	}
	return wasPresent != e.present
}

func (s *ArtifactSet) tick() Stamp {
	s.clock++
	return Stamp{Clock: s.clock, Origin: s.origin}
}

// List returns present artifacts in local insertion order.
func (s *ArtifactSet) List() []domain.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.present {
			live = append(live, e)
		}
	}
	slices.SortFunc(live, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })

	out := make([]domain.Artifact, 0, len(live))
	for _, e := range live {
		out = append(out, e.artifact)
	}
	return out
}

func (s *ArtifactSet) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return ok && e.present
}

func (s *ArtifactSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.present {
			n++
		}
	}
	return n
}

// Snapshot returns the state as operations, tombstones included, so a joining
// replica converges with the same winners.
func (s *ArtifactSet) Snapshot() []Op {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		ea, eb := s.entries[a], s.entries[b]
		if ea.seq != eb.seq {
			return cmp.Compare(ea.seq, eb.seq)
		}
		return cmp.Compare(a, b)
	})

	ops := make([]Op, 0, len(ids))
	for _, id := range ids {
		e := s.entries[id]
		if e.present {
			art := e.artifact
			ops = append(ops, Op{Kind: OpInsert, ID: id, Artifact: &art, Stamp: e.stamp})
		} else {
			ops = append(ops, Op{Kind: OpRemove, ID: id, Stamp: e.stamp})
		}
	}
	return ops
}

// Clock returns the current Lamport clock.
func (s *ArtifactSet) Clock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// Missing returns the local state, as operations, that remote does not already
// carry with the same or a newer stamp. A replica that lost the room (relay
// restart, last member gone) catches up by applying these.
func (s *ArtifactSet) Missing(remote []Op) []Op {
	known := make(map[string]Stamp, len(remote))
	for _, op := range remote {
		if st, ok := known[op.ID]; !ok || op.Stamp.After(st) {
			known[op.ID] = op.Stamp
		}
	}

	var out []Op
	for _, op := range s.Snapshot() {
		if st, ok := known[op.ID]; ok && !op.Stamp.After(st) {
			continue
		}
		out = append(out, op)
	}
	return out
}
