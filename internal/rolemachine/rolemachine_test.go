package rolemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/graph"
	"github.com/taskgraph/orchestrator/internal/notegate"
	"github.com/taskgraph/orchestrator/internal/store/memory"
	"github.com/taskgraph/orchestrator/internal/types"
)

func newMachine() (*Machine, *memory.Store) {
	s := memory.New()
	deps := graph.New(s)
	gate := notegate.New(s)
	return New(s, gate, deps), s
}

func newItem(t *testing.T, s *memory.Store) *types.WorkItem {
	t.Helper()
	created, err := s.CreateItems(context.Background(), []*types.WorkItem{{
		Title: "work item", Role: types.RoleQueue, Priority: types.PriorityMedium,
	}})
	require.NoError(t, err)
	return created[0]
}

func TestStartWalksQueueWorkReviewTerminal(t *testing.T) {
	m, s := newMachine()
	ctx := context.Background()
	item := newItem(t, s)
	cfg := config.Default()

	res, ae := m.Apply(ctx, item, types.TriggerStart, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleWork, item.Role)
	require.Equal(t, types.RoleQueue, res.Event.PreviousRole)

	res, ae = m.Apply(ctx, item, types.TriggerStart, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleReview, item.Role)

	res, ae = m.Apply(ctx, item, types.TriggerStart, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleTerminal, item.Role)
}

func TestStartBlockedByUnsatisfiedDependencyFails(t *testing.T) {
	m, s := newMachine()
	ctx := context.Background()
	blocker := newItem(t, s)
	blocked := newItem(t, s)
	cfg := config.Default()

	deps := graph.New(s)
	_, err := deps.CreateDependencies(ctx, []*types.Dependency{
		{FromItemID: blocker.ID, ToItemID: blocked.ID, Type: types.DepBlocks},
	})
	require.NoError(t, err)

	_, ae := m.Apply(ctx, blocked, types.TriggerStart, cfg)
	require.NotNil(t, ae)
	require.Equal(t, types.ErrGateFailure, ae.Code)
}

func TestCompleteFromWorkLandsTerminal(t *testing.T) {
	m, s := newMachine()
	ctx := context.Background()
	item := newItem(t, s)
	cfg := config.Default()

	_, ae := m.Apply(ctx, item, types.TriggerStart, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleWork, item.Role)

	_, ae = m.Apply(ctx, item, types.TriggerComplete, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleTerminal, item.Role)
}

func TestBlockAndResumeRoundTrip(t *testing.T) {
	m, s := newMachine()
	ctx := context.Background()
	item := newItem(t, s)
	cfg := config.Default()

	_, ae := m.Apply(ctx, item, types.TriggerStart, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleWork, item.Role)

	_, ae = m.Apply(ctx, item, types.TriggerBlock, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleBlocked, item.Role)
	require.NotNil(t, item.PreviousRole)
	require.Equal(t, types.RoleWork, *item.PreviousRole)

	_, ae = m.Apply(ctx, item, types.TriggerResume, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleWork, item.Role)
	require.Nil(t, item.PreviousRole)
}

func TestCancelFromAnyNonTerminalRoleLandsTerminal(t *testing.T) {
	m, s := newMachine()
	ctx := context.Background()
	item := newItem(t, s)
	cfg := config.Default()

	_, ae := m.Apply(ctx, item, types.TriggerCancel, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleTerminal, item.Role)
}

func TestCancelOnTerminalItemRejected(t *testing.T) {
	m, s := newMachine()
	ctx := context.Background()
	item := newItem(t, s)
	cfg := config.Default()

	_, ae := m.Apply(ctx, item, types.TriggerCancel, cfg)
	require.Nil(t, ae)
	require.Equal(t, types.RoleTerminal, item.Role)

	_, ae = m.Apply(ctx, item, types.TriggerCancel, cfg)
	require.NotNil(t, ae)
	require.Equal(t, types.ErrState, ae.Code)
}

func TestResumeRequiresBlockedRole(t *testing.T) {
	m, s := newMachine()
	ctx := context.Background()
	item := newItem(t, s)
	cfg := config.Default()

	_, ae := m.Apply(ctx, item, types.TriggerResume, cfg)
	require.NotNil(t, ae)
	require.Equal(t, types.ErrState, ae.Code)
}
