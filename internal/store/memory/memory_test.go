package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

func newItem(title string) *types.WorkItem {
	return &types.WorkItem{Title: title, Role: types.RoleQueue, Priority: types.PriorityMedium}
}

func TestCreateItemsAssignsDepthFromParent(t *testing.T) {
	s := New()
	ctx := context.Background()

	roots, err := s.CreateItems(ctx, []*types.WorkItem{newItem("root")})
	require.NoError(t, err)
	require.Equal(t, 0, roots[0].Depth)

	child := newItem("child")
	child.ParentID = &roots[0].ID
	children, err := s.CreateItems(ctx, []*types.WorkItem{child})
	require.NoError(t, err)
	require.Equal(t, 1, children[0].Depth)
}

func TestCreateItemsRejectsDepthOverflow(t *testing.T) {
	s := New()
	ctx := context.Background()

	parentID := ""
	for i := 0; i < types.MaxDepth+2; i++ {
		item := newItem("level")
		if parentID != "" {
			item.ParentID = &parentID
		}
		created, err := s.CreateItems(ctx, []*types.WorkItem{item})
		if i <= types.MaxDepth {
			require.NoError(t, err, "level %d should still fit within MaxDepth", i)
			parentID = created[0].ID
			continue
		}
		require.Error(t, err)
	}
}

func TestUpdateItemsPatchSemantics(t *testing.T) {
	s := New()
	ctx := context.Background()
	created, err := s.CreateItems(ctx, []*types.WorkItem{newItem("original")})
	require.NoError(t, err)

	newTitle := "renamed"
	updated, err := s.UpdateItems(ctx, []store.ItemPatch{{ID: created[0].ID, Title: &newTitle}})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated[0].Title)
	require.Equal(t, types.RoleQueue, updated[0].Role, "omitted fields must retain their value")
}

func TestUpdateItemsMoveToRootClearsParent(t *testing.T) {
	s := New()
	ctx := context.Background()
	root, err := s.CreateItems(ctx, []*types.WorkItem{newItem("root")})
	require.NoError(t, err)
	child := newItem("child")
	child.ParentID = &root[0].ID
	children, err := s.CreateItems(ctx, []*types.WorkItem{child})
	require.NoError(t, err)

	nullParent := store.NullParent
	updated, err := s.UpdateItems(ctx, []store.ItemPatch{{ID: children[0].ID, ParentID: &nullParent}})
	require.NoError(t, err)
	require.Nil(t, updated[0].ParentID)
	require.Equal(t, 0, updated[0].Depth)
}

func TestDeleteItemsRequiresRecursiveWithChildren(t *testing.T) {
	s := New()
	ctx := context.Background()
	root, err := s.CreateItems(ctx, []*types.WorkItem{newItem("root")})
	require.NoError(t, err)
	child := newItem("child")
	child.ParentID = &root[0].ID
	_, err = s.CreateItems(ctx, []*types.WorkItem{child})
	require.NoError(t, err)

	_, err = s.DeleteItems(ctx, []string{root[0].ID}, false)
	require.Error(t, err)

	deleted, err := s.DeleteItems(ctx, []string{root[0].ID}, true)
	require.NoError(t, err)
	require.Len(t, deleted, 2)
}

func TestSearchItemsFilterByRoleAndTag(t *testing.T) {
	s := New()
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

func TestUpsertNoteCreatesThenUpdates(t *testing.T) {
	s := New()
	ctx := context.Background()
	item, err := s.CreateItems(ctx, []*types.WorkItem{newItem("with notes")})
	require.NoError(t, err)

	note := &types.Note{ItemID: item[0].ID, Key: "design", Role: types.RoleWork, Body: "first draft"}
	created, err := s.UpsertNote(ctx, note)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	update := &types.Note{ItemID: item[0].ID, Key: "design", Role: types.RoleWork, Body: "revised"}
	updated, err := s.UpsertNote(ctx, update)
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID, "upsert must preserve the id across an update")

	notes, err := s.ListNotes(ctx, item[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "revised", notes[0].Body)
}

func TestInsertAndDeleteDependencies(t *testing.T) {
	s := New()
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

	deleted, err := s.DeleteDependencies(ctx, store.DependencyDeleteSpec{ID: inserted[0].ID})
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	edges, err = s.ListAllDependencyEdges(ctx)
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestTransitionsRecordedAndListed(t *testing.T) {
	s := New()
	ctx := context.Background()
	items, err := s.CreateItems(ctx, []*types.WorkItem{newItem("tracked")})
	require.NoError(t, err)

	require.NoError(t, s.AppendTransition(ctx, &types.TransitionRecord{
		ItemID: items[0].ID, PreviousRole: types.RoleQueue, NewRole: types.RoleWork, Trigger: types.TriggerStart,
	}))

	all, err := s.ListTransitions(ctx, items[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
