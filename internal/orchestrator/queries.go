package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// defaultStaleAfter is how long an item may sit without a role change
// before get_context's health-check mode reports it as stalled.
const defaultStaleAfter = 24 * time.Hour

// GetContextRequest is get_context's wire input. Mode selects item,
// session-resume, or health-check; the other fields are mode-specific.
type GetContextRequest struct {
	Mode string `json:"mode"` // item | session-resume | health-check

	ItemID string `json:"itemId,omitempty"` // item mode

	Since     time.Time `json:"since,omitempty"`     // session-resume mode
	SessionID string    `json:"sessionId,omitempty"` // session-resume mode

	StaleAfterSeconds int `json:"staleAfterSeconds,omitempty"` // health-check mode
}

// ItemContext is get_context's item-mode result: the item itself plus
// everything a resuming caller needs to act on it without further calls.
type ItemContext struct {
	Item          *types.WorkItem      `json:"item"`
	Notes         []*types.Note        `json:"notes"`
	ExpectedNotes []types.ExpectedNote `json:"expectedNotes"`
	Dependencies  []*types.Dependency  `json:"dependencies"`
}

// SessionResumeContext is get_context's session-resume-mode result:
// everything that happened since a timestamp, plus the caller's
// currently-held locks so a resuming session knows what it still owns.
type SessionResumeContext struct {
	Since       time.Time               `json:"since"`
	Transitions []*types.TransitionRecord `json:"transitions"`
	ActiveLocks []*types.Lock           `json:"activeLocks,omitempty"`
}

// HealthCheckContext is get_context's health-check-mode result: the
// counts and lists an operator dashboard polls.
type HealthCheckContext struct {
	ActiveCount  int               `json:"activeCount"`
	BlockedItems []*types.WorkItem `json:"blockedItems"`
	StalledItems []*types.WorkItem `json:"stalledItems"`
}

func (a *API) GetContext(ctx context.Context, req GetContextRequest) *Response {
	switch req.Mode {
	case "item":
		return a.getItemContext(ctx, req.ItemID)
	case "session-resume":
		return a.getSessionResumeContext(ctx, req)
	case "health-check":
		return a.getHealthCheckContext(ctx, req)
	default:
		return fail(types.NewError(types.ErrValidation, "unknown get_context mode").WithDetail("mode", req.Mode))
	}
}

func (a *API) getItemContext(ctx context.Context, itemID string) *Response {
	item, err := a.store.GetItem(ctx, itemID)
	if err != nil {
		return respond(nil, err)
	}
	notes, err := a.store.ListNotes(ctx, itemID, nil)
	if err != nil {
		return respond(nil, err)
	}
	deps, err := a.store.ListDependencies(ctx, itemID, store.DirectionAll, nil)
	if err != nil {
		return respond(nil, err)
	}
	return ok("item context", ItemContext{
		Item:          item,
		Notes:         notes,
		ExpectedNotes: a.expectedNotesFor(ctx, item),
		Dependencies:  deps,
	})
}

func (a *API) getSessionResumeContext(ctx context.Context, req GetContextRequest) *Response {
	transitions, err := a.store.RecentTransitions(ctx, req.Since)
	if err != nil {
		return respond(nil, err)
	}
	var active []*types.Lock
	if req.SessionID != "" {
		for _, l := range a.locks.Active() {
			if l.SessionID == req.SessionID {
				active = append(active, l)
			}
		}
	}
	return ok("session resume context", SessionResumeContext{
		Since:       req.Since,
		Transitions: transitions,
		ActiveLocks: active,
	})
}

func (a *API) getHealthCheckContext(ctx context.Context, req GetContextRequest) *Response {
	staleAfter := defaultStaleAfter
	if req.StaleAfterSeconds > 0 {
		staleAfter = time.Duration(req.StaleAfterSeconds) * time.Second
	}

	all, err := a.store.SearchItems(ctx, types.SearchFilter{}, types.SortSpec{Field: types.SortCreatedAt}, 0, 0)
	if err != nil {
		return respond(nil, err)
	}

	var active, blocked, stalled []*types.WorkItem
	now := time.Now()
	for _, item := range all {
		if item.IsTerminal() {
			continue
		}
		active = append(active, item)
		if item.Role == types.RoleBlocked {
			blocked = append(blocked, item)
			continue
		}
		status, berr := a.deps.IsBlocked(ctx, item.ID)
		if berr == nil && status.Blocked {
			blocked = append(blocked, item)
		}
		if now.Sub(item.RoleChangedAt) >= staleAfter {
			stalled = append(stalled, item)
		}
	}

	return ok("health check context", HealthCheckContext{
		ActiveCount:  len(active),
		BlockedItems: blocked,
		StalledItems: stalled,
	})
}

// GetNextItemRequest is get_next_item's wire input.
type GetNextItemRequest struct {
	SubtreeRootID string `json:"subtreeRootId,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

func (a *API) GetNextItem(ctx context.Context, req GetNextItemRequest) *Response {
	queueRole := types.RoleQueue
	candidates, err := a.store.SearchItems(ctx, types.SearchFilter{Role: &queueRole}, types.SortSpec{Field: types.SortCreatedAt}, 0, 0)
	if err != nil {
		return respond(nil, err)
	}

	if req.SubtreeRootID != "" {
		scope, err := a.collectSubtree(ctx, req.SubtreeRootID)
		if err != nil {
			return respond(nil, err)
		}
		inScope := make(map[string]struct{}, len(scope))
		for _, id := range scope {
			inScope[id] = struct{}{}
		}
		filtered := candidates[:0]
		for _, item := range candidates {
			if _, ok := inScope[item.ID]; ok {
				filtered = append(filtered, item)
			}
		}
		candidates = filtered
	}

	ready := make([]*types.WorkItem, 0, len(candidates))
	for _, item := range candidates {
		status, berr := a.deps.IsBlocked(ctx, item.ID)
		if berr != nil || status.Blocked {
			continue
		}
		ready = append(ready, item)
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority.Rank() != ready[j].Priority.Rank() {
			return ready[i].Priority.Rank() < ready[j].Priority.Rank()
		}
		ci, cj := complexityOf(ready[i]), complexityOf(ready[j])
		return ci < cj
	})

	if req.Limit > 0 && len(ready) > req.Limit {
		ready = ready[:req.Limit]
	}
	return ok("next items", ready)
}

// complexityOf treats an unset complexity as maximal, so quick-win
// ordering never surfaces a task of unknown size ahead of a known-small
// one.
func complexityOf(item *types.WorkItem) int {
	if item.Complexity == nil {
		return 1 << 30
	}
	return *item.Complexity
}

func (a *API) GetBlockedItems(ctx context.Context) *Response {
	all, err := a.store.SearchItems(ctx, types.SearchFilter{}, types.SortSpec{Field: types.SortCreatedAt}, 0, 0)
	if err != nil {
		return respond(nil, err)
	}

	type blockedResult struct {
		Item     *types.WorkItem `json:"item"`
		Explicit bool            `json:"explicit"`
		Blockers []BlockerInfo   `json:"blockers,omitempty"`
	}

	var out []blockedResult
	for _, item := range all {
		if item.IsTerminal() {
			continue
		}
		if item.Role == types.RoleBlocked {
			out = append(out, blockedResult{Item: item, Explicit: true})
			continue
		}
		status, berr := a.deps.IsBlocked(ctx, item.ID)
		if berr != nil || !status.Blocked {
			continue
		}
		var blockers []BlockerInfo
		for _, b := range status.Blockers {
			blockers = append(blockers, BlockerInfo{ItemID: b.Item.ID, Threshold: b.EffectiveThreshold, Satisfied: b.Satisfied})
		}
		out = append(out, blockedResult{Item: item, Explicit: false, Blockers: blockers})
	}

	return ok("blocked items", out)
}
