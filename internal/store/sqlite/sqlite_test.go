package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), ":memory:", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newItem(title string) *types.WorkItem {
	return &types.WorkItem{Title: title, Role: types.RoleQueue, Priority: types.PriorityMedium}
}

func TestSQLiteCreateAndGetItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateItems(ctx, []*types.WorkItem{newItem("root")})
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.NotEmpty(t, created[0].ID)
	require.Equal(t, 0, created[0].Depth)

	fetched, err := s.GetItem(ctx, created[0].ID)
	require.NoError(t, err)
	require.Equal(t, "root", fetched.Title)
}

func TestSQLiteCreateChildComputesDepthFromParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, err := s.CreateItems(ctx, []*types.WorkItem{newItem("root")})
	require.NoError(t, err)

	child := newItem("child")
	child.ParentID = &root[0].ID
	created, err := s.CreateItems(ctx, []*types.WorkItem{child})
	require.NoError(t, err)
	require.Equal(t, 1, created[0].Depth)
}

func TestSQLiteUpdateItemsPatchSemantics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateItems(ctx, []*types.WorkItem{newItem("original")})
	require.NoError(t, err)

	newTitle := "renamed"
	updated, err := s.UpdateItems(ctx, []store.ItemPatch{{ID: created[0].ID, Title: &newTitle}})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated[0].Title)
	require.Equal(t, types.RoleQueue, updated[0].Role)
}

func TestSQLiteDeleteItemsRecursive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, err := s.CreateItems(ctx, []*types.WorkItem{newItem("root")})
	require.NoError(t, err)
	child := newItem("child")
	child.ParentID = &root[0].ID
	_, err = s.CreateItems(ctx, []*types.WorkItem{child})
	require.NoError(t, err)

	_, err = s.DeleteItems(ctx, []string{root[0].ID}, false)
	require.Error(t, err, "deleting a parent without recursive must fail while children exist")

	deleted, err := s.DeleteItems(ctx, []string{root[0].ID}, true)
	require.NoError(t, err)
	require.Len(t, deleted, 2)

	_, err = s.GetItem(ctx, root[0].ID)
	require.Error(t, err)
}

func TestSQLiteSearchItemsByRoleAndTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newItem("alpha")
	a.Tags = []string{"backend"}
	b := newItem("beta")
	b.Tags = []string{"frontend"}
	b.Role = types.RoleWork
	_, err := s.CreateItems(ctx, []*types.WorkItem{a, b})
	require.NoError(t, err)

	queueRole := types.RoleQueue
	results, err := s.SearchItems(ctx, types.SearchFilter{Role: &queueRole}, types.SortSpec{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "alpha", results[0].Title)

	results, err = s.SearchItems(ctx, types.SearchFilter{TagsAny: []string{"frontend"}}, types.SortSpec{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "beta", results[0].Title)
}

func TestSQLiteUpsertNotePreservesIDAcrossUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item, err := s.CreateItems(ctx, []*types.WorkItem{newItem("with notes")})
	require.NoError(t, err)

	created, err := s.UpsertNote(ctx, &types.Note{ItemID: item[0].ID, Key: "design", Role: types.RoleWork, Body: "draft"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	updated, err := s.UpsertNote(ctx, &types.Note{ItemID: item[0].ID, Key: "design", Role: types.RoleWork, Body: "revised"})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)

	notes, err := s.ListNotes(ctx, item[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "revised", notes[0].Body)
}

func TestSQLiteDependenciesInsertListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items, err := s.CreateItems(ctx, []*types.WorkItem{newItem("a"), newItem("b")})
	require.NoError(t, err)

	dep := &types.Dependency{FromItemID: items[0].ID, ToItemID: items[1].ID, Type: types.DepBlocks}
	inserted, err := s.InsertDependencies(ctx, []*types.Dependency{dep})
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	edges, err := s.ListAllDependencyEdges(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	incoming, err := s.ListDependencies(ctx, items[1].ID, store.DirectionIncoming, nil)
	require.NoError(t, err)
	require.Len(t, incoming, 1)

	deleted, err := s.DeleteDependencies(ctx, store.DependencyDeleteSpec{ID: inserted[0].ID})
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	edges, err = s.ListAllDependencyEdges(ctx)
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestSQLiteTransitionsAppendAndListSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items, err := s.CreateItems(ctx, []*types.WorkItem{newItem("tracked")})
	require.NoError(t, err)

	require.NoError(t, s.AppendTransition(ctx, &types.TransitionRecord{
		ItemID: items[0].ID, PreviousRole: types.RoleQueue, NewRole: types.RoleWork, Trigger: types.TriggerStart,
	}))

	all, err := s.ListTransitions(ctx, items[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)

	future := time.Now().Add(time.Hour)
	none, err := s.RecentTransitions(ctx, future)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestSQLiteOverviewRootListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, err := s.CreateItems(ctx, []*types.WorkItem{newItem("root")})
	require.NoError(t, err)
	child := newItem("child")
	child.ParentID = &root[0].ID
	_, err = s.CreateItems(ctx, []*types.WorkItem{child})
	require.NoError(t, err)

	overview, err := s.Overview(ctx, nil)
	require.NoError(t, err)
	require.Len(t, overview.Roots, 1)
	require.Equal(t, 1, overview.Roots[0].ChildCounts.Queue)
}
