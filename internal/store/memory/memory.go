// Package memory is an in-process reference implementation of
// internal/store.Store, grounded on the teacher's internal/storage/memory
// package shape (used there for ready/blocked unit tests without a real
// database). It backs the orchestrator's test suite and is a perfectly
// valid production backend for a single-process deployment that doesn't
// need the file survive a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// Store is a sync.RWMutex-protected in-memory Store implementation. All
// returned records are copies, so callers mutating them never corrupt
// the backing maps.
type Store struct {
	mu sync.RWMutex

	items        map[string]*types.WorkItem
	notes        map[string]*types.Note
	dependencies map[string]*types.Dependency
	transitions  []*types.TransitionRecord
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		items:        make(map[string]*types.WorkItem),
		notes:        make(map[string]*types.Note),
		dependencies: make(map[string]*types.Dependency),
	}
}

func (s *Store) Close() error { return nil }

func cloneItem(w *types.WorkItem) *types.WorkItem {
	cp := *w
	if w.ParentID != nil {
		pid := *w.ParentID
		cp.ParentID = &pid
	}
	if w.PreviousRole != nil {
		pr := *w.PreviousRole
		cp.PreviousRole = &pr
	}
	if w.Complexity != nil {
		c := *w.Complexity
		cp.Complexity = &c
	}
	cp.Tags = append([]string(nil), w.Tags...)
	return &cp
}

func (s *Store) CreateItems(ctx context.Context, items []*types.WorkItem) ([]*types.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.WorkItem, 0, len(items))
	staged := make(map[string]*types.WorkItem, len(items))
	for _, item := range items {
		depth := 0
		if item.ParentID != nil && *item.ParentID != "" {
			parent, ok := s.items[*item.ParentID]
			if !ok {
				parent, ok = staged[*item.ParentID]
			}
			if !ok {
				return nil, types.NewError(types.ErrNotFound, "parent item not found").WithDetail("parentId", *item.ParentID)
			}
			depth = parent.Depth + 1
		}
		if err := types.CheckDepth(depth - 1); err != nil {
			return nil, err
		}
		item.Depth = depth
		if item.ID == "" {
			item.ID = types.NewID()
		}
		now := time.Now()
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.ModifiedAt = now
		if item.RoleChangedAt.IsZero() {
			item.RoleChangedAt = now
		}
		if ae := item.Validate(); ae != nil {
			return nil, ae
		}
		stored := cloneItem(item)
		staged[stored.ID] = stored
		out = append(out, cloneItem(stored))
	}
	for id, stored := range staged {
		s.items[id] = stored
	}
	return out, nil
}

func (s *Store) UpdateItems(ctx context.Context, patches []store.ItemPatch) ([]*types.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.WorkItem, 0, len(patches))
	staged := make(map[string]*types.WorkItem, len(patches))
	lookup := func(id string) (*types.WorkItem, bool) {
		if it, ok := staged[id]; ok {
			return it, true
		}
		it, ok := s.items[id]
		return it, ok
	}
	for _, p := range patches {
		existing, ok := lookup(p.ID)
		if !ok {
			return nil, types.NewError(types.ErrNotFound, "item not found").WithDetail("id", p.ID)
		}
		updated := cloneItem(existing)

		if p.Title != nil {
			updated.Title = *p.Title
		}
		if p.Summary != nil {
			updated.Summary = *p.Summary
		}
		if p.Description != nil {
			updated.Description = *p.Description
		}
		if p.ParentID != nil {
			if *p.ParentID == store.NullParent {
				updated.ParentID = nil
				updated.Depth = 0
			} else {
				parent, ok := lookup(*p.ParentID)
				if !ok {
					return nil, types.NewError(types.ErrNotFound, "parent item not found").WithDetail("parentId", *p.ParentID)
				}
				pid := parent.ID
				updated.ParentID = &pid
				updated.Depth = parent.Depth + 1
			}
		}
		if p.Role != nil {
			updated.Role = *p.Role
		}
		if p.PreviousRole != nil {
			updated.PreviousRole = *p.PreviousRole
		}
		if p.StatusLabel != nil {
			updated.StatusLabel = *p.StatusLabel
		}
		if p.Priority != nil {
			updated.Priority = *p.Priority
		}
		if p.Complexity != nil {
			updated.Complexity = *p.Complexity
		}
		if p.Tags != nil {
			updated.Tags = append([]string(nil), (*p.Tags)...)
		}
		if p.RequiresVerification != nil {
			updated.RequiresVerification = *p.RequiresVerification
		}
		if p.RoleChangedAt != nil {
			updated.RoleChangedAt = *p.RoleChangedAt
		}
		updated.ModifiedAt = time.Now()

		if ae := updated.Validate(); ae != nil {
			return nil, ae
		}
		if updated.Depth > types.MaxDepth {
			return nil, types.NewError(types.ErrValidation, "depth exceeds maximum").WithDetail("maxDepth", types.MaxDepth)
		}
		staged[updated.ID] = updated
		out = append(out, cloneItem(updated))
	}
	for id, updated := range staged {
		s.items[id] = updated
	}
	return out, nil
}

func (s *Store) childIDs(parentID string) []string {
	var out []string
	for _, it := range s.items {
		if it.ParentID != nil && *it.ParentID == parentID {
			out = append(out, it.ID)
		}
	}
	return out
}

func (s *Store) DeleteItems(ctx context.Context, ids []string, recursive bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	toDelete := map[string]struct{}{}
	var walk func(id string) error
	walk = func(id string) error {
		if _, ok := toDelete[id]; ok {
			return nil
		}
		if _, ok := s.items[id]; !ok {
			return types.NewError(types.ErrNotFound, "item not found").WithDetail("id", id)
		}
		toDelete[id] = struct{}{}
		children := s.childIDs(id)
		if len(children) > 0 && !recursive {
			return types.NewError(types.ErrConflict, "item has children; recursive delete required").WithDetail("id", id)
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range ids {
		if err := walk(id); err != nil {
			return nil, err
		}
	}

	deleted := make([]string, 0, len(toDelete))
	for id := range toDelete {
		delete(s.items, id)
		deleted = append(deleted, id)
	}
	// Cascade-delete notes and dependencies touching deleted items, and
	// drop transitions for deleted items, keeping the store internally
	// consistent the way a real transactional backend would via FKs.
	for key, n := range s.notes {
		if _, gone := toDelete[n.ItemID]; gone {
			delete(s.notes, key)
		}
	}
	for key, d := range s.dependencies {
		_, fromGone := toDelete[d.FromItemID]
		_, toGone := toDelete[d.ToItemID]
		if fromGone || toGone {
			delete(s.dependencies, key)
		}
	}
	filtered := s.transitions[:0]
	for _, t := range s.transitions {
		if _, gone := toDelete[t.ItemID]; !gone {
			filtered = append(filtered, t)
		}
	}
	s.transitions = filtered

	sort.Strings(deleted)
	return deleted, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "item not found").WithDetail("id", id)
	}
	return cloneItem(item), nil
}

func (s *Store) GetItems(ctx context.Context, ids []string) ([]*types.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.WorkItem, 0, len(ids))
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok {
			return nil, types.NewError(types.ErrNotFound, "item not found").WithDetail("id", id)
		}
		out = append(out, cloneItem(item))
	}
	return out, nil
}

func (s *Store) ChildrenOf(ctx context.Context, parentID string) ([]*types.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.WorkItem
	for _, it := range s.items {
		if it.ParentID != nil && *it.ParentID == parentID {
			out = append(out, cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func matchesFilter(it *types.WorkItem, f types.SearchFilter) bool {
	if f.ParentID != nil {
		if *f.ParentID == store.NullParent {
			if it.ParentID != nil {
				return false
			}
		} else if it.ParentID == nil || *it.ParentID != *f.ParentID {
			return false
		}
	}
	if f.Depth != nil && it.Depth != *f.Depth {
		return false
	}
	if f.Role != nil && it.Role != *f.Role {
		return false
	}
	if f.Priority != nil && it.Priority != *f.Priority {
		return false
	}
	if len(f.TagsAny) > 0 && !types.HasAnyTag(it.Tags, f.TagsAny) {
		return false
	}
	if f.TextMatch != "" {
		needle := strings.ToLower(f.TextMatch)
		if !strings.Contains(strings.ToLower(it.Title), needle) &&
			!strings.Contains(strings.ToLower(it.Summary), needle) {
			return false
		}
	}
	if !f.CreatedRange.Contains(it.CreatedAt) {
		return false
	}
	if !f.ModifiedRange.Contains(it.ModifiedAt) {
		return false
	}
	if !f.RoleChanged.Contains(it.RoleChangedAt) {
		return false
	}
	return true
}

func (s *Store) SearchItems(ctx context.Context, filter types.SearchFilter, sortSpec types.SortSpec, limit, offset int) ([]*types.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.WorkItem
	for _, it := range s.items {
		if matchesFilter(it, filter) {
			out = append(out, cloneItem(it))
		}
	}

	less := func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) }
	switch sortSpec.Field {
	case types.SortModifiedAt:
		less = func(i, j int) bool { return out[i].ModifiedAt.Before(out[j].ModifiedAt) }
	case types.SortPriority:
		less = func(i, j int) bool { return out[i].Priority.Rank() < out[j].Priority.Rank() }
	case types.SortTitle:
		less = func(i, j int) bool { return out[i].Title < out[j].Title }
	}
	if sortSpec.Descending {
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	}
	sort.Slice(out, less)

	if offset > 0 {
		if offset >= len(out) {
			return []*types.WorkItem{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Overview(ctx context.Context, itemID *string) (*store.OverviewResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	countsOf := func(parentID string) store.ChildCounts {
		var c store.ChildCounts
		for _, it := range s.items {
			if it.ParentID == nil || *it.ParentID != parentID {
				continue
			}
			switch it.Role {
			case types.RoleQueue:
				c.Queue++
			case types.RoleWork:
				c.Work++
			case types.RoleReview:
				c.Review++
			case types.RoleBlocked:
				c.Blocked++
			case types.RoleTerminal:
				c.Terminal++
			}
		}
		return c
	}

	if itemID == nil {
		var roots []store.OverviewRow
		for _, it := range s.items {
			if it.ParentID == nil {
				roots = append(roots, store.OverviewRow{Item: cloneItem(it), ChildCounts: countsOf(it.ID)})
			}
		}
		sort.Slice(roots, func(i, j int) bool { return roots[i].Item.CreatedAt.Before(roots[j].Item.CreatedAt) })
		return &store.OverviewResult{Roots: roots}, nil
	}

	item, ok := s.items[*itemID]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "item not found").WithDetail("id", *itemID)
	}
	var children []*types.WorkItem
	for _, it := range s.items {
		if it.ParentID != nil && *it.ParentID == item.ID {
			children = append(children, cloneItem(it))
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].CreatedAt.Before(children[j].CreatedAt) })
	return &store.OverviewResult{Item: cloneItem(item), Children: children, Counts: countsOf(item.ID)}, nil
}
