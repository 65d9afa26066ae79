package notegate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/store/memory"
	"github.com/taskgraph/orchestrator/internal/types"
)

const gateYAML = `
status_progression:
  tasks:
    default_flow: [pending, in-progress, testing]
    terminal_statuses: [completed, cancelled]
    emergency_transitions: [blocked, on-hold]
note_schemas:
  backend:
    - key: design
      role: WORK
      required: true
      description: design notes before implementation
    - key: test-plan
      role: REVIEW
      required: true
      description: test plan before review
    - key: scratch
      role: WORK
      required: false
      description: optional working notes
`

func newGateHarness(t *testing.T) (*Gate, *memory.Store, *config.WorkflowConfig) {
	t.Helper()
	cfg, err := config.Parse([]byte(gateYAML))
	require.NoError(t, err)
	s := memory.New()
	return New(s), s, cfg
}

func newTaggedItem(t *testing.T, s *memory.Store, tags []string) *types.WorkItem {
	t.Helper()
	created, err := s.CreateItems(context.Background(), []*types.WorkItem{{
		Title: "gated item", Role: types.RoleQueue, Priority: types.PriorityMedium, Tags: tags,
	}})
	require.NoError(t, err)
	return created[0]
}

func TestMissingReturnsNilWhenNoSchemaMatchesTags(t *testing.T) {
	g, s, cfg := newGateHarness(t)
	item := newTaggedItem(t, s, []string{"no-match-here"})

	missing, err := g.Missing(context.Background(), item, cfg, []types.Role{types.RoleWork})
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestMissingFlagsRequiredNoteAbsentInScopedPhase(t *testing.T) {
	g, s, cfg := newGateHarness(t)
	item := newTaggedItem(t, s, []string{"backend"})

	missing, err := g.Missing(context.Background(), item, cfg, []types.Role{types.RoleWork})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "design", missing[0].Key)
}

func TestMissingIgnoresOutOfScopePhases(t *testing.T) {
	g, s, cfg := newGateHarness(t)
	item := newTaggedItem(t, s, []string{"backend"})

	missing, err := g.Missing(context.Background(), item, cfg, []types.Role{types.RoleReview})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "test-plan", missing[0].Key)
}

func TestMissingTreatsWhitespaceOnlyBodyAsUnfilled(t *testing.T) {
	g, s, cfg := newGateHarness(t)
	item := newTaggedItem(t, s, []string{"backend"})

	_, err := s.UpsertNote(context.Background(), &types.Note{ItemID: item.ID, Key: "design", Role: types.RoleWork, Body: "   \n\t  "})
	require.NoError(t, err)

	missing, err := g.Missing(context.Background(), item, cfg, []types.Role{types.RoleWork})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "design", missing[0].Key)
}

func TestMissingClearsOnceNoteIsFilled(t *testing.T) {
	g, s, cfg := newGateHarness(t)
	item := newTaggedItem(t, s, []string{"backend"})

	_, err := s.UpsertNote(context.Background(), &types.Note{ItemID: item.ID, Key: "design", Role: types.RoleWork, Body: "the actual design"})
	require.NoError(t, err)

	missing, err := g.Missing(context.Background(), item, cfg, []types.Role{types.RoleWork})
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestMissingIgnoresOptionalNotes(t *testing.T) {
	g, s, cfg := newGateHarness(t)
	item := newTaggedItem(t, s, []string{"backend"})

	missing, err := g.Missing(context.Background(), item, cfg, []types.Role{types.RoleWork})
	require.NoError(t, err)
	for _, m := range missing {
		require.NotEqual(t, "scratch", m.Key, "optional notes must never appear in the missing set")
	}
}

func TestExpectedNotesReportsAllSpecsRegardlessOfPhase(t *testing.T) {
	g, s, cfg := newGateHarness(t)
	item := newTaggedItem(t, s, []string{"backend"})

	_, err := s.UpsertNote(context.Background(), &types.Note{ItemID: item.ID, Key: "design", Role: types.RoleWork, Body: "filled"})
	require.NoError(t, err)

	report, err := g.ExpectedNotes(context.Background(), item, cfg)
	require.NoError(t, err)
	require.Len(t, report, 3)

	byKey := make(map[string]types.ExpectedNote, len(report))
	for _, r := range report {
		byKey[r.Key] = r
	}
	require.True(t, byKey["design"].Exists)
	require.True(t, byKey["design"].Filled)
	require.False(t, byKey["test-plan"].Exists)
	require.False(t, byKey["test-plan"].Filled)
	require.False(t, byKey["scratch"].Required)
}
