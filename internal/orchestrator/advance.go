package orchestrator

import (
	"context"

	"github.com/taskgraph/orchestrator/internal/cascade"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// AdvanceItemRequest is advance_item's wire input: a batch of (itemId,
// trigger) pairs applied independently, each under its own lock.
type AdvanceItemRequest struct {
	Items     []AdvanceSpec `json:"items"`
	SessionID string        `json:"sessionId,omitempty"`
}

type AdvanceSpec struct {
	ItemID  string        `json:"itemId"`
	Trigger types.Trigger `json:"trigger"`
}

// AdvanceResult is one item's outcome within advance_item's batch response.
type AdvanceResult struct {
	ItemID        string               `json:"itemId"`
	PreviousRole  types.Role           `json:"previousRole,omitempty"`
	NewRole       types.Role           `json:"newRole,omitempty"`
	Applied       bool                 `json:"applied"`
	Error         *ErrorBody           `json:"error,omitempty"`
	Blockers      []string             `json:"blockers,omitempty"`
	CascadeEvents []cascade.Event      `json:"cascadeEvents,omitempty"`
	UnblockedItems []*types.WorkItem   `json:"unblockedItems,omitempty"`
	ExpectedNotes []types.ExpectedNote `json:"expectedNotes,omitempty"`
}

func (a *API) AdvanceItem(ctx context.Context, req AdvanceItemRequest) *Response {
	results := make([]AdvanceResult, 0, len(req.Items))
	for _, spec := range req.Items {
		results = append(results, a.advanceOne(ctx, spec, req.SessionID))
	}
	return ok("advance processed", results)
}

// advanceOne applies one trigger under its own WRITE lock (rather than
// a.withLock's bool-success Response shape) since a per-item failure here
// still needs an {applied:false, error} entry in the batch, not a single
// Response for the whole call.
func (a *API) advanceOne(ctx context.Context, spec AdvanceSpec, sessionID string) AdvanceResult {
	acq, aerr := a.locks.Acquire(types.OpWrite, []string{spec.ItemID}, sessionID)
	if aerr != nil {
		ae := types.AsAppError(aerr)
		return AdvanceResult{ItemID: spec.ItemID, Applied: false, Error: &ErrorBody{Code: string(ae.Code), Message: ae.Message}}
	}
	if acq.Lock == nil {
		return AdvanceResult{ItemID: spec.ItemID, Applied: false, Error: &ErrorBody{
			Code:    string(types.ErrConflict),
			Message: "conflicting lock held",
			Details: map[string]any{"conflicts": acq.Conflicts},
		}}
	}
	defer a.locks.Release(acq.Lock.ID)

	item, err := a.store.GetItem(ctx, spec.ItemID)
	if err != nil {
		ae := types.AsAppError(err)
		return AdvanceResult{ItemID: spec.ItemID, Applied: false, Error: &ErrorBody{Code: string(ae.Code), Message: ae.Message}}
	}

	cfg := a.workflowConfig()
	previousRole := item.Role

	result, ae := a.roles.Apply(ctx, item, spec.Trigger, cfg)
	if ae != nil {
		out := AdvanceResult{ItemID: spec.ItemID, Applied: false, Error: &ErrorBody{Code: string(ae.Code), Message: ae.Message, Details: ae.Details}}
		if blockers, has := ae.Details["blockers"]; has {
			if ids, ok := blockers.([]string); ok {
				out.Blockers = ids
			}
		}
		return out
	}

	roleChangedAt := item.RoleChangedAt
	if _, err := a.store.UpdateItems(ctx, []store.ItemPatch{{
		ID:            item.ID,
		Role:          &item.Role,
		PreviousRole:  &item.PreviousRole,
		StatusLabel:   &item.StatusLabel,
		RoleChangedAt: &roleChangedAt,
	}}); err != nil {
		ae := types.WrapError(types.ErrDatabase, "failed to persist transition", err)
		return AdvanceResult{ItemID: spec.ItemID, Applied: false, Error: &ErrorBody{Code: string(ae.Code), Message: ae.Message}}
	}
	if err := a.store.AppendTransition(ctx, &types.TransitionRecord{
		ID:           types.NewID(),
		ItemID:       item.ID,
		PreviousRole: result.Event.PreviousRole,
		NewRole:      result.Event.NewRole,
		Trigger:      spec.Trigger,
	}); err != nil {
		ae := types.WrapError(types.ErrDatabase, "failed to append transition record", err)
		return AdvanceResult{ItemID: spec.ItemID, Applied: false, Error: &ErrorBody{Code: string(ae.Code), Message: ae.Message}}
	}

	cascadeEvents, cerr := a.cascade.Evaluate(ctx, cfg, *result.Event)
	if cerr != nil {
		cascadeEvents = nil
	}

	unblocked, uerr := a.deps.UnblockedBy(ctx, item.ID, previousRole, item.Role)
	if uerr != nil {
		unblocked = nil
	}

	return AdvanceResult{
		ItemID:         spec.ItemID,
		PreviousRole:   previousRole,
		NewRole:        item.Role,
		Applied:        true,
		CascadeEvents:  cascadeEvents,
		UnblockedItems: unblocked,
		ExpectedNotes:  a.expectedNotesFor(ctx, item),
	}
}

// GetNextStatusRequest is get_next_status's wire input.
type GetNextStatusRequest struct {
	ItemID string `json:"itemId"`
}

// GetNextStatusResult reports whether an item is ready to advance, blocked,
// or already terminal.
type GetNextStatusResult struct {
	ItemID string                `json:"itemId"`
	Status string                `json:"status"` // Ready | Blocked | Terminal
	Role   types.Role            `json:"role"`
	Blockers []BlockerInfo     `json:"blockers,omitempty"`
}

// BlockerInfo mirrors graph.Blocker's wire shape without importing the
// package name into an exported field type (keeps the response
// self-contained JSON).
type BlockerInfo struct {
	ItemID    string     `json:"itemId"`
	Threshold types.Role `json:"threshold"`
	Satisfied bool       `json:"satisfied"`
}

func (a *API) GetNextStatus(ctx context.Context, req GetNextStatusRequest) *Response {
	item, err := a.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return respond(nil, err)
	}
	if item.IsTerminal() {
		return ok("next status", GetNextStatusResult{ItemID: item.ID, Status: "Terminal", Role: item.Role})
	}

	status, berr := a.deps.IsBlocked(ctx, req.ItemID)
	if berr != nil {
		return respond(nil, berr)
	}
	result := GetNextStatusResult{ItemID: item.ID, Role: item.Role}
	if status.Blocked || item.Role == types.RoleBlocked {
		result.Status = "Blocked"
		for _, b := range status.Blockers {
			result.Blockers = append(result.Blockers, BlockerInfo{ItemID: b.Item.ID, Threshold: b.EffectiveThreshold, Satisfied: b.Satisfied})
		}
	} else {
		result.Status = "Ready"
	}
	return ok("next status", result)
}
