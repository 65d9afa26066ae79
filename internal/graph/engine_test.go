package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/store/memory"
	"github.com/taskgraph/orchestrator/internal/types"
)

func newItem(s *memory.Store, t *testing.T, title string) *types.WorkItem {
	t.Helper()
	created, err := s.CreateItems(context.Background(), []*types.WorkItem{{
		Title: title, Role: types.RoleQueue, Priority: types.PriorityMedium,
	}})
	require.NoError(t, err)
	return created[0]
}

func TestCreateDependenciesRejectsSelfEdge(t *testing.T) {
	s := memory.New()
	e := New(s)
	a := newItem(s, t, "a")

	_, err := e.CreateDependencies(context.Background(), []*types.Dependency{
		{FromItemID: a.ID, ToItemID: a.ID, Type: types.DepBlocks},
	})
	require.Error(t, err)
}

func TestCreateDependenciesRejectsDuplicateEdge(t *testing.T) {
	s := memory.New()
	e := New(s)
	a, b := newItem(s, t, "a"), newItem(s, t, "b")

	_, err := e.CreateDependencies(context.Background(), []*types.Dependency{
		{FromItemID: a.ID, ToItemID: b.ID, Type: types.DepBlocks},
	})
	require.NoError(t, err)

	_, err = e.CreateDependencies(context.Background(), []*types.Dependency{
		{FromItemID: a.ID, ToItemID: b.ID, Type: types.DepBlocks},
	})
	require.Error(t, err)
}

func TestCreateDependenciesRejectsCycle(t *testing.T) {
	s := memory.New()
	e := New(s)
	a, b, c := newItem(s, t, "a"), newItem(s, t, "b"), newItem(s, t, "c")

	_, err := e.CreateDependencies(context.Background(), []*types.Dependency{
		{FromItemID: a.ID, ToItemID: b.ID, Type: types.DepBlocks},
	})
	require.NoError(t, err)
	_, err = e.CreateDependencies(context.Background(), []*types.Dependency{
		{FromItemID: b.ID, ToItemID: c.ID, Type: types.DepBlocks},
	})
	require.NoError(t, err)

	_, err = e.CreateDependencies(context.Background(), []*types.Dependency{
		{FromItemID: c.ID, ToItemID: a.ID, Type: types.DepBlocks},
	})
	require.Error(t, err, "c -> a would close the a -> b -> c -> a loop")
}

func TestIsBlockedReflectsBlockerRole(t *testing.T) {
	s := memory.New()
	e := New(s)
	ctx := context.Background()
	blocker, blocked := newItem(s, t, "blocker"), newItem(s, t, "blocked")

	_, err := e.CreateDependencies(ctx, []*types.Dependency{
		{FromItemID: blocker.ID, ToItemID: blocked.ID, Type: types.DepBlocks},
	})
	require.NoError(t, err)

	status, err := e.IsBlocked(ctx, blocked.ID)
	require.NoError(t, err)
	require.True(t, status.Blocked, "blocker still QUEUE, default threshold is TERMINAL")

	terminal := types.RoleTerminal
	_, err = s.UpdateItems(ctx, []store.ItemPatch{{ID: blocker.ID, Role: &terminal}})
	require.NoError(t, err)

	status, err = e.IsBlocked(ctx, blocked.ID)
	require.NoError(t, err)
	require.False(t, status.Blocked, "blocker reaching TERMINAL satisfies the default threshold")
}

func TestUnblockedByReturnsNewlySatisfiedDependents(t *testing.T) {
	s := memory.New()
	e := New(s)
	ctx := context.Background()
	blocker, blocked := newItem(s, t, "blocker"), newItem(s, t, "blocked")

	_, err := e.CreateDependencies(ctx, []*types.Dependency{
		{FromItemID: blocker.ID, ToItemID: blocked.ID, Type: types.DepBlocks},
	})
	require.NoError(t, err)

	terminal := types.RoleTerminal
	_, err = s.UpdateItems(ctx, []store.ItemPatch{{ID: blocker.ID, Role: &terminal}})
	require.NoError(t, err)

	unblocked, err := e.UnblockedBy(ctx, blocker.ID, types.RoleQueue, types.RoleTerminal)
	require.NoError(t, err)
	require.Len(t, unblocked, 1)
	require.Equal(t, blocked.ID, unblocked[0].ID)
}

func TestLinearFanOutFanInExpansion(t *testing.T) {
	ids := []string{"a", "b", "c"}
	linear := Linear(ids, nil)
	require.Len(t, linear, 2)
	require.Equal(t, "a", linear[0].FromItemID)
	require.Equal(t, "b", linear[0].ToItemID)

	fanOut := FanOut("src", []string{"x", "y"}, nil)
	require.Len(t, fanOut, 2)
	for _, d := range fanOut {
		require.Equal(t, "src", d.FromItemID)
	}

	fanIn := FanIn([]string{"x", "y"}, "dst", nil)
	require.Len(t, fanIn, 2)
	for _, d := range fanIn {
		require.Equal(t, "dst", d.ToItemID)
	}
}
