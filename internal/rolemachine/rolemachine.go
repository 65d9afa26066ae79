// Package rolemachine evaluates a trigger against an item's current role
// to compute the next role, enforcing the note-schema and dependency
// gates along the way. All role logic is a single function per trigger,
// a tagged-variant pattern match rather than a role class hierarchy, per
// spec §9's "polymorphic roles without inheritance" design note.
package rolemachine

import (
	"context"
	"time"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/graph"
	"github.com/taskgraph/orchestrator/internal/notegate"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// Machine is the RoleMachine. It composes NoteGate and DependencyEngine to
// enforce gates, but never writes to the Store itself. Apply returns the
// item as it should become; the caller (OrchestratorAPI) persists it with
// Store.UpdateItems and then appends the TransitionRecord as a separate
// Store write.
type Machine struct {
	store store.Store
	gate  *notegate.Gate
	deps  *graph.Engine
}

func New(s store.Store, gate *notegate.Gate, deps *graph.Engine) *Machine {
	return &Machine{store: s, gate: gate, deps: deps}
}

// Result is what a successful Apply produces: the event for the
// transition log and cascade engine, and the item mutated in place with
// its new role fields (not yet persisted).
type Result struct {
	Event *types.TransitionEvent
}

// Apply evaluates trigger against item (which it mutates: Role,
// PreviousRole, StatusLabel) and returns the resulting TransitionEvent,
// or a structured error if the precondition, gate, or dependency policy
// rejects it.
func (m *Machine) Apply(ctx context.Context, item *types.WorkItem, trigger types.Trigger, cfg *config.WorkflowConfig) (*Result, *types.AppError) {
	if !trigger.Valid() {
		return nil, types.NewError(types.ErrValidation, "unknown trigger").WithDetail("trigger", string(trigger))
	}

	previousRole := item.Role

	switch trigger {
	case types.TriggerStart:
		return m.start(ctx, item, cfg, previousRole)
	case types.TriggerComplete:
		return m.complete(ctx, item, cfg, previousRole)
	case types.TriggerBlock, types.TriggerHold:
		return m.block(item, cfg, trigger, previousRole)
	case types.TriggerResume:
		return m.resume(item, cfg, previousRole)
	case types.TriggerCancel:
		return m.cancel(item, cfg, previousRole)
	default:
		return nil, types.NewError(types.ErrInternal, "unhandled trigger")
	}
}

func (m *Machine) start(ctx context.Context, item *types.WorkItem, cfg *config.WorkflowConfig, previousRole types.Role) (*Result, *types.AppError) {
	if previousRole == types.RoleTerminal || previousRole == types.RoleBlocked {
		return nil, types.NewError(types.ErrState, "start is invalid from this role").WithDetail("role", string(previousRole))
	}

	containerType := config.ContainerTypeForTags(item.Tags)
	flowName := cfg.FlowForTags(item.Tags, containerType)
	hasReview := cfg.HasReviewPhase(flowName, containerType)

	switch previousRole {
	case types.RoleQueue:
		status, err := m.deps.IsBlocked(ctx, item.ID)
		if err != nil {
			return nil, types.AsAppError(err)
		}
		if status.Blocked {
			return nil, gateFailureFromBlockers(status)
		}
		if ae := m.checkMissingNotes(ctx, item, cfg, types.RoleQueue); ae != nil {
			return nil, ae
		}

		nextRole := types.RoleWork
		if !hasReview {
			missingWork, err := m.gate.Missing(ctx, item, cfg, []types.Role{types.RoleWork})
			if err != nil {
				return nil, types.AsAppError(err)
			}
			if len(missingWork) == 0 {
				nextRole = types.RoleTerminal
			}
		}
		if nextRole == types.RoleTerminal {
			if ae := checkVerification(ctx, m.store, item); ae != nil {
				return nil, ae
			}
		}
		return m.land(ctx, item, cfg, containerType, flowName, types.TriggerStart, previousRole, nextRole)

	case types.RoleWork:
		if ae := m.checkMissingNotes(ctx, item, cfg, types.RoleWork); ae != nil {
			return nil, ae
		}
		nextRole := types.RoleReview
		if !hasReview {
			nextRole = types.RoleTerminal
		}
		if nextRole == types.RoleTerminal {
			if ae := checkVerification(ctx, m.store, item); ae != nil {
				return nil, ae
			}
		}
		return m.land(ctx, item, cfg, containerType, flowName, types.TriggerStart, previousRole, nextRole)

	case types.RoleReview:
		if ae := m.checkMissingNotes(ctx, item, cfg, types.RoleReview); ae != nil {
			return nil, ae
		}
		if ae := checkVerification(ctx, m.store, item); ae != nil {
			return nil, ae
		}
		return m.land(ctx, item, cfg, containerType, flowName, types.TriggerStart, previousRole, types.RoleTerminal)
	}

	return nil, types.NewError(types.ErrState, "start is invalid from this role").WithDetail("role", string(previousRole))
}

func (m *Machine) complete(ctx context.Context, item *types.WorkItem, cfg *config.WorkflowConfig, previousRole types.Role) (*Result, *types.AppError) {
	if previousRole == types.RoleTerminal || previousRole == types.RoleBlocked {
		return nil, types.NewError(types.ErrState, "complete is invalid from this role").WithDetail("role", string(previousRole))
	}
	if ae := m.checkMissingNotes(ctx, item, cfg, types.RoleQueue, types.RoleWork, types.RoleReview); ae != nil {
		return nil, ae
	}
	if ae := checkVerification(ctx, m.store, item); ae != nil {
		return nil, ae
	}
	containerType := config.ContainerTypeForTags(item.Tags)
	flowName := cfg.FlowForTags(item.Tags, containerType)
	return m.land(ctx, item, cfg, containerType, flowName, types.TriggerComplete, previousRole, types.RoleTerminal)
}

func (m *Machine) block(item *types.WorkItem, cfg *config.WorkflowConfig, trigger types.Trigger, previousRole types.Role) (*Result, *types.AppError) {
	if previousRole == types.RoleTerminal {
		return nil, types.NewError(types.ErrState, "cannot block a terminal item")
	}
	pr := previousRole
	item.PreviousRole = &pr
	item.Role = types.RoleBlocked
	item.StatusLabel = m.canonicalStatus(item, cfg, types.RoleBlocked)
	item.RoleChangedAt = time.Now()
	return &Result{Event: &types.TransitionEvent{ItemID: item.ID, PreviousRole: previousRole, NewRole: types.RoleBlocked, Trigger: trigger}}, nil
}

func (m *Machine) resume(item *types.WorkItem, cfg *config.WorkflowConfig, previousRole types.Role) (*Result, *types.AppError) {
	if previousRole != types.RoleBlocked {
		return nil, types.NewError(types.ErrState, "resume is only valid from BLOCKED")
	}
	if item.PreviousRole == nil {
		return nil, types.NewError(types.ErrInternal, "blocked item missing previousRole")
	}
	restored := *item.PreviousRole
	item.Role = restored
	item.PreviousRole = nil
	item.StatusLabel = m.canonicalStatus(item, cfg, restored)
	item.RoleChangedAt = time.Now()
	return &Result{Event: &types.TransitionEvent{ItemID: item.ID, PreviousRole: previousRole, NewRole: restored, Trigger: types.TriggerResume}}, nil
}

func (m *Machine) cancel(item *types.WorkItem, cfg *config.WorkflowConfig, previousRole types.Role) (*Result, *types.AppError) {
	if previousRole == types.RoleTerminal {
		return nil, types.NewError(types.ErrState, "cannot cancel a terminal item")
	}
	item.Role = types.RoleTerminal
	item.PreviousRole = nil
	item.StatusLabel = "cancelled"
	item.RoleChangedAt = time.Now()
	return &Result{Event: &types.TransitionEvent{ItemID: item.ID, PreviousRole: previousRole, NewRole: types.RoleTerminal, Trigger: types.TriggerCancel}}, nil
}

func (m *Machine) land(ctx context.Context, item *types.WorkItem, cfg *config.WorkflowConfig, containerType config.ContainerType, flowName string, trigger types.Trigger, previousRole, newRole types.Role) (*Result, *types.AppError) {
	item.Role = newRole
	item.PreviousRole = nil
	item.StatusLabel = cfg.CanonicalStatus(newRole, flowName, containerType)
	item.RoleChangedAt = time.Now()
	return &Result{Event: &types.TransitionEvent{ItemID: item.ID, PreviousRole: previousRole, NewRole: newRole, Trigger: trigger}}, nil
}

// canonicalStatus resolves an item's own container/flow before delegating,
// for callers (block/resume) that don't already have them in scope.
func (m *Machine) canonicalStatus(item *types.WorkItem, cfg *config.WorkflowConfig, role types.Role) string {
	containerType := config.ContainerTypeForTags(item.Tags)
	flowName := cfg.FlowForTags(item.Tags, containerType)
	return cfg.CanonicalStatus(role, flowName, containerType)
}

func (m *Machine) checkMissingNotes(ctx context.Context, item *types.WorkItem, cfg *config.WorkflowConfig, phases ...types.Role) *types.AppError {
	missing, err := m.gate.Missing(ctx, item, cfg, phases)
	if err != nil {
		return types.AsAppError(err)
	}
	if len(missing) == 0 {
		return nil
	}
	keys := make([]string, len(missing))
	for i, s := range missing {
		keys[i] = s.Key
	}
	return types.NewError(types.ErrGateFailure, "required notes missing").WithDetail("missingNotes", keys)
}

func gateFailureFromBlockers(status *graph.BlockingStatus) *types.AppError {
	var blockerIDs []string
	for _, b := range status.Blockers {
		if !b.Satisfied {
			blockerIDs = append(blockerIDs, b.Item.ID)
		}
	}
	return types.NewError(types.ErrGateFailure, "item is blocked by unsatisfied dependencies").
		WithDetail("blockers", blockerIDs)
}
