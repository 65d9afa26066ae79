package memory

import (
	"context"
	"sort"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

func cloneDependency(d *types.Dependency) *types.Dependency {
	cp := *d
	if d.UnblockAt != nil {
		r := *d.UnblockAt
		cp.UnblockAt = &r
	}
	return &cp
}

func (s *Store) ListAllDependencyEdges(ctx context.Context) ([]*types.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Dependency, 0, len(s.dependencies))
	for _, d := range s.dependencies {
		out = append(out, cloneDependency(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDependencies(ctx context.Context, itemID string, direction store.DependencyDirection, typeFilter *types.DependencyType) ([]*types.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Dependency
	for _, d := range s.dependencies {
		if typeFilter != nil && d.Type != *typeFilter {
			continue
		}
		switch direction {
		case store.DirectionIncoming:
			if d.ToItemID == itemID {
				out = append(out, cloneDependency(d))
			}
		case store.DirectionOutgoing:
			if d.FromItemID == itemID {
				out = append(out, cloneDependency(d))
			}
		default:
			if d.FromItemID == itemID || d.ToItemID == itemID {
				out = append(out, cloneDependency(d))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// InsertDependencies performs no validation; DependencyEngine has
// already run the incremental cycle check against ListAllDependencyEdges
// plus this proposed batch. The insert itself is all-or-nothing, the Go
// analogue of the single transaction the spec's design notes require.
func (s *Store) InsertDependencies(ctx context.Context, deps []*types.Dependency) ([]*types.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Dependency, 0, len(deps))
	for _, d := range deps {
		if d.ID == "" {
			d.ID = types.NewID()
		}
		stored := cloneDependency(d)
		s.dependencies[stored.ID] = stored
		out = append(out, cloneDependency(stored))
	}
	return out, nil
}

func (s *Store) DeleteDependencies(ctx context.Context, spec store.DependencyDeleteSpec) ([]*types.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []*types.Dependency
	for id, d := range s.dependencies {
		match := false
		switch {
		case spec.ID != "":
			match = id == spec.ID
		case spec.ItemID != "":
			match = d.FromItemID == spec.ItemID || d.ToItemID == spec.ItemID
		case spec.FromItemID != "" && spec.ToItemID != "":
			match = d.FromItemID == spec.FromItemID && d.ToItemID == spec.ToItemID
			if match && spec.Type != nil {
				match = d.Type == *spec.Type
			}
		}
		if match {
			delete(s.dependencies, id)
			deleted = append(deleted, cloneDependency(d))
		}
	}
	return deleted, nil
}
