// Package cascade implements CascadeEngine: after a transition lands, it
// walks the parent chain and emits config-driven follow-up transitions,
// "first child started" and "all children terminal", recursing toward
// the root with each item advanced at most once per originating event.
package cascade

import (
	"context"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/rolemachine"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

const (
	ruleFirstTaskStarted = "first_task_started"
	ruleAllTasksComplete = "all_tasks_complete"
)

// Event reports one attempted parent advance, successful or not, for
// inclusion in an advance_item response's cascadeEvents.
type Event struct {
	ItemID  string `json:"itemId"`
	From    string `json:"from"`
	To      string `json:"to"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// Engine composes Store and RoleMachine to evaluate and apply cascades.
// It writes directly to the Store rather than returning pending patches,
// since cascades are additive, failure-tolerant follow-ons (a failed
// cascade step is reported non-fatally; it never rolls back the
// originating transition per spec §4.6), not a single atomic multi-row
// transaction. The originating transition and each cascade step are
// therefore separate Store writes, not one; a crash between them leaves
// the origin committed with its cascade undelivered.
type Engine struct {
	store store.Store
	roles *rolemachine.Machine
}

func New(s store.Store, roles *rolemachine.Machine) *Engine {
	return &Engine{store: s, roles: roles}
}

// Evaluate examines event's item's parent chain and applies any cascade
// rules that fire, recursing toward the root. Returns one Event per
// parent advance attempted (successful or not); a parentless item or one
// whose parent's current status doesn't match a fired rule's "from"
// yields no events at all.
func (e *Engine) Evaluate(ctx context.Context, cfg *config.WorkflowConfig, event types.TransitionEvent) ([]Event, error) {
	return e.cascadeFrom(ctx, cfg, event.ItemID, event.NewRole, event.Trigger, map[string]bool{})
}

func (e *Engine) cascadeFrom(ctx context.Context, cfg *config.WorkflowConfig, itemID string, newRole types.Role, trigger types.Trigger, advanced map[string]bool) ([]Event, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.ParentID == nil {
		return nil, nil
	}
	parentID := *item.ParentID
	if advanced[parentID] {
		return nil, nil
	}

	parent, err := e.store.GetItem(ctx, parentID)
	if err != nil {
		return nil, err
	}
	containerType := config.ContainerTypeForTags(parent.Tags)
	parentFlow := cfg.FlowForTags(parent.Tags, containerType)

	children, err := e.store.ChildrenOf(ctx, parentID)
	if err != nil {
		return nil, err
	}

	ruleName, fires := detectRule(itemID, newRole, trigger, children)
	if !fires {
		return nil, nil
	}

	rule, ok := cfg.CascadeRule(ruleName, parentFlow)
	if !ok || parent.StatusLabel != rule.From {
		return nil, nil
	}

	advanced[parentID] = true
	ev := Event{ItemID: parentID, From: rule.From, To: rule.To}

	result, ae := e.roles.Apply(ctx, parent, types.TriggerStart, cfg)
	if ae != nil {
		ev.Applied = false
		ev.Reason = ae.Message
		return []Event{ev}, nil
	}

	pr := parent.PreviousRole
	roleChangedAt := parent.RoleChangedAt
	if _, err := e.store.UpdateItems(ctx, []store.ItemPatch{{
		ID:            parent.ID,
		Role:          &parent.Role,
		PreviousRole:  &pr,
		StatusLabel:   &parent.StatusLabel,
		RoleChangedAt: &roleChangedAt,
	}}); err != nil {
		return nil, err
	}
	if err := e.store.AppendTransition(ctx, &types.TransitionRecord{
		ID:           types.NewID(),
		ItemID:       parent.ID,
		PreviousRole: result.Event.PreviousRole,
		NewRole:      result.Event.NewRole,
		Trigger:      types.TriggerStart,
		Summary:      "cascade: " + ruleName,
	}); err != nil {
		return nil, err
	}

	ev.Applied = true
	ev.To = parent.StatusLabel
	events := []Event{ev}

	grandparentEvents, err := e.cascadeFrom(ctx, cfg, parentID, parent.Role, types.TriggerStart, advanced)
	if err != nil {
		return nil, err
	}
	return append(events, grandparentEvents...), nil
}

// detectRule decides which cascade rule (if any) a child's transition
// can trigger on its parent, per spec §4.6's two detection rules.
// childID is excluded from the sibling tallies since the Store already
// reflects its post-transition role by the time CascadeEngine runs.
func detectRule(childID string, newRole types.Role, trigger types.Trigger, siblings []*types.WorkItem) (string, bool) {
	switch {
	case newRole == types.RoleWork:
		for _, s := range siblings {
			if s.ID == childID {
				continue
			}
			if s.Role == types.RoleWork {
				return "", false
			}
		}
		return ruleFirstTaskStarted, true

	case newRole == types.RoleTerminal && (trigger == types.TriggerComplete || trigger == types.TriggerCancel):
		for _, s := range siblings {
			if s.Role != types.RoleTerminal {
				return "", false
			}
		}
		return ruleAllTasksComplete, true
	}
	return "", false
}
