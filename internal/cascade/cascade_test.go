package cascade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/graph"
	"github.com/taskgraph/orchestrator/internal/notegate"
	"github.com/taskgraph/orchestrator/internal/rolemachine"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/store/memory"
	"github.com/taskgraph/orchestrator/internal/types"
)

const testYAML = `
status_progression:
  tasks:
    default_flow: [pending, in-progress, testing]
    terminal_statuses: [completed, cancelled]
    emergency_transitions: [blocked, on-hold]
cascade_rules:
  first_task_started:
    from: pending
    to: in-progress
  all_tasks_complete:
    from: in-progress
    to: testing
`

func newHarness(t *testing.T) (*Engine, *memory.Store, *config.WorkflowConfig) {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)
	s := memory.New()
	deps := graph.New(s)
	gate := notegate.New(s)
	roles := rolemachine.New(s, gate, deps)
	return New(s, roles), s, cfg
}

func createItem(t *testing.T, s *memory.Store, title string, parentID *string) *types.WorkItem {
	t.Helper()
	item := &types.WorkItem{Title: title, Role: types.RoleQueue, Priority: types.PriorityMedium, ParentID: parentID}
	created, err := s.CreateItems(context.Background(), []*types.WorkItem{item})
	require.NoError(t, err)
	return created[0]
}

// landParent puts the parent's StatusLabel in sync with the flow's first
// status, the way CreateWorkTree would via RoleMachine on creation.
func landParent(t *testing.T, s *memory.Store, parent *types.WorkItem, status string) {
	t.Helper()
	_, err := s.UpdateItems(context.Background(), []store.ItemPatch{{ID: parent.ID, StatusLabel: &status}})
	require.NoError(t, err)
}

func TestFirstTaskStartedCascadesParentToInProgress(t *testing.T) {
	engine, s, cfg := newHarness(t)
	ctx := context.Background()

	parent := createItem(t, s, "parent", nil)
	landParent(t, s, parent, "pending")
	child := createItem(t, s, "child", &parent.ID)

	// Simulate the child having just landed on WORK via advance_item.
	_, err := s.UpdateItems(ctx, []store.ItemPatch{{ID: child.ID, Role: roleWork()}})
	require.NoError(t, err)

	events, err := engine.Evaluate(ctx, cfg, types.TransitionEvent{
		ItemID: child.ID, PreviousRole: types.RoleQueue, NewRole: types.RoleWork, Trigger: types.TriggerStart,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Applied)
	require.Equal(t, parent.ID, events[0].ItemID)

	updatedParent, err := s.GetItem(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, types.RoleWork, updatedParent.Role)
}

func TestCascadeDoesNotFireWhenParentStatusDoesNotMatchRuleFrom(t *testing.T) {
	engine, s, cfg := newHarness(t)
	ctx := context.Background()

	parent := createItem(t, s, "parent", nil)
	landParent(t, s, parent, "in-progress") // rule "first_task_started" requires "pending"
	child := createItem(t, s, "child", &parent.ID)

	_, err := s.UpdateItems(ctx, []store.ItemPatch{{ID: child.ID, Role: roleWork()}})
	require.NoError(t, err)

	events, err := engine.Evaluate(ctx, cfg, types.TransitionEvent{
		ItemID: child.ID, PreviousRole: types.RoleQueue, NewRole: types.RoleWork, Trigger: types.TriggerStart,
	})
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestItemWithNoParentYieldsNoCascadeEvents(t *testing.T) {
	engine, s, cfg := newHarness(t)
	ctx := context.Background()
	item := createItem(t, s, "root item", nil)

	events, err := engine.Evaluate(ctx, cfg, types.TransitionEvent{
		ItemID: item.ID, PreviousRole: types.RoleQueue, NewRole: types.RoleWork, Trigger: types.TriggerStart,
	})
	require.NoError(t, err)
	require.Empty(t, events)
}

func roleWork() *types.Role {
	r := types.RoleWork
	return &r
}
