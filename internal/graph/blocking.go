package graph

import (
	"context"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// Blocker describes one unsatisfied (or satisfied) incoming blocker for a
// target item, used both by the blocking query itself and by responses
// that need to explain why an item can't advance.
type Blocker struct {
	Item               *types.WorkItem
	EffectiveThreshold types.Role
	Satisfied          bool
}

// BlockingStatus is the result of IsBlocked: the full blocker list plus
// the overall verdict.
type BlockingStatus struct {
	Blocked  bool
	Blockers []Blocker
}

// IsBlocked collects X's incoming BLOCKS/IS_BLOCKED_BY edges, resolves
// each blocker's current role, and reports whether any blocker remains
// unsatisfied under the QUEUE < WORK < REVIEW < TERMINAL ordering.
func (e *Engine) IsBlocked(ctx context.Context, itemID string) (*BlockingStatus, error) {
	edges, err := e.store.ListDependencies(ctx, itemID, store.DirectionAll, nil)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabase, "failed to list dependencies", err)
	}

	status := &BlockingStatus{}
	for _, d := range edges {
		if !d.Blocks() {
			continue
		}
		blockerID, blockedID := d.NormalizedBlocker()
		if blockedID != itemID {
			continue
		}
		blocker, err := e.store.GetItem(ctx, blockerID)
		if err != nil {
			continue
		}
		threshold := d.EffectiveThreshold()
		satisfied := blocker.Role.AtLeast(threshold)
		status.Blockers = append(status.Blockers, Blocker{Item: blocker, EffectiveThreshold: threshold, Satisfied: satisfied})
		if !satisfied {
			status.Blocked = true
		}
	}
	return status, nil
}

// UnblockedBy returns the set of items whose blocking status against
// `blockerID` transitions to satisfied once blockerID reaches newRole,
// used to compute advance_item's `unblockedItems` after a commit.
func (e *Engine) UnblockedBy(ctx context.Context, blockerID string, previousRole, newRole types.Role) ([]*types.WorkItem, error) {
	outgoing, err := e.store.ListDependencies(ctx, blockerID, store.DirectionAll, nil)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabase, "failed to list dependencies", err)
	}

	var out []*types.WorkItem
	for _, d := range outgoing {
		if !d.Blocks() {
			continue
		}
		blocker, blocked := d.NormalizedBlocker()
		if blocker != blockerID {
			continue
		}
		threshold := d.EffectiveThreshold()
		wasSatisfied := previousRole.AtLeast(threshold)
		nowSatisfied := newRole.AtLeast(threshold)
		if wasSatisfied || !nowSatisfied {
			continue
		}
		status, err := e.IsBlocked(ctx, blocked)
		if err != nil {
			return nil, err
		}
		if !status.Blocked {
			item, err := e.store.GetItem(ctx, blocked)
			if err == nil {
				out = append(out, item)
			}
		}
	}
	return out, nil
}
