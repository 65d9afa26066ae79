package memory

import (
	"context"
	"time"

	"github.com/taskgraph/orchestrator/internal/types"
)

func (s *Store) AppendTransition(ctx context.Context, record *types.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = types.NewID()
	}
	if record.At.IsZero() {
		record.At = time.Now()
	}
	cp := *record
	s.transitions = append(s.transitions, &cp)
	return nil
}

func (s *Store) ListTransitions(ctx context.Context, itemID string, since *time.Time) ([]*types.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.TransitionRecord
	for _, t := range s.transitions {
		if t.ItemID != itemID {
			continue
		}
		if since != nil && t.At.Before(*since) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) RecentTransitions(ctx context.Context, since time.Time) ([]*types.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.TransitionRecord
	for _, t := range s.transitions {
		if !t.At.Before(since) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}
