package memory

import (
	"context"
	"sort"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

func cloneNote(n *types.Note) *types.Note {
	cp := *n
	return &cp
}

// UpsertNote enforces (itemId,key) uniqueness and preserves the id on
// update, per spec §4.1.
func (s *Store) UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[note.ItemID]; !ok {
		return nil, types.NewError(types.ErrNotFound, "item not found").WithDetail("itemId", note.ItemID)
	}

	for _, existing := range s.notes {
		if existing.ItemID == note.ItemID && existing.Key == note.Key {
			note.ID = existing.ID
			stored := cloneNote(note)
			s.notes[existing.ID] = stored
			return cloneNote(stored), nil
		}
	}

	if note.ID == "" {
		note.ID = types.NewID()
	}
	stored := cloneNote(note)
	s.notes[stored.ID] = stored
	return cloneNote(stored), nil
}

func (s *Store) DeleteNotes(ctx context.Context, spec store.NoteDeleteSpec) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, n := range s.notes {
		match := false
		switch {
		case spec.ID != "":
			match = id == spec.ID
		case spec.ItemID != "" && spec.Key != "":
			match = n.ItemID == spec.ItemID && n.Key == spec.Key
		case spec.ItemID != "":
			match = n.ItemID == spec.ItemID
		}
		if match {
			delete(s.notes, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) GetNote(ctx context.Context, id string) (*types.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "note not found").WithDetail("id", id)
	}
	return cloneNote(n), nil
}

func (s *Store) GetNoteByKey(ctx context.Context, itemID, key string) (*types.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notes {
		if n.ItemID == itemID && n.Key == key {
			return cloneNote(n), nil
		}
	}
	return nil, types.NewError(types.ErrNotFound, "note not found").WithDetail("itemId", itemID).WithDetail("key", key)
}

func (s *Store) ListNotes(ctx context.Context, itemID string, role *types.Role) ([]*types.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Note
	for _, n := range s.notes {
		if n.ItemID != itemID {
			continue
		}
		if role != nil && n.Role != *role {
			continue
		}
		out = append(out, cloneNote(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
