package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgraph/orchestrator/internal/types"
)

const workflowYAML = `
status_progression:
  tasks:
    default_flow: [pending, in-progress, testing]
    in_progress_flow: [pending, in-progress]
    terminal_statuses: [completed, cancelled]
    emergency_transitions: [blocked, on-hold]
    flow_mappings:
      - tags: [quick]
        flow: in_progress
  features:
    default_flow: [planned, building]
    terminal_statuses: [shipped, archived]
    emergency_transitions: [blocked]
note_schemas:
  backend:
    - key: design
      role: WORK
      required: true
      description: design before implementation
cascade_rules:
  first_task_started:
    from: pending
    to: in-progress
flows:
  in_progress:
    event_overrides:
      first_task_started:
        from: pending
        to: in-progress-fast
`

func mustParse(t *testing.T) *WorkflowConfig {
	t.Helper()
	cfg, err := Parse([]byte(workflowYAML))
	require.NoError(t, err)
	return cfg
}

func TestFlowForTagsUsesDefaultWithNoMatchingMapping(t *testing.T) {
	cfg := mustParse(t)
	require.Equal(t, "default", cfg.FlowForTags([]string{"unmatched"}, ContainerTask))
}

func TestFlowForTagsAppliesMatchingFlowMapping(t *testing.T) {
	cfg := mustParse(t)
	require.Equal(t, "in_progress", cfg.FlowForTags([]string{"quick"}, ContainerTask))
}

func TestStatusesForFlowFallsBackToDefaultFlow(t *testing.T) {
	cfg := mustParse(t)
	require.Equal(t, []string{"pending", "in-progress", "testing"}, cfg.StatusesForFlow("", ContainerTask))
	require.Equal(t, []string{"pending", "in-progress", "testing"}, cfg.StatusesForFlow("no-such-flow", ContainerTask))
}

func TestStatusesForFlowResolvesNamedFlow(t *testing.T) {
	cfg := mustParse(t)
	require.Equal(t, []string{"pending", "in-progress"}, cfg.StatusesForFlow("in_progress", ContainerTask))
}

func TestRoleForStatusMapsFlowPositions(t *testing.T) {
	cfg := mustParse(t)
	require.Equal(t, types.RoleQueue, cfg.RoleForStatus("pending", "default", ContainerTask))
	require.Equal(t, types.RoleWork, cfg.RoleForStatus("in-progress", "default", ContainerTask))
	require.Equal(t, types.RoleReview, cfg.RoleForStatus("testing", "default", ContainerTask))
}

func TestRoleForStatusMapsTerminalAndEmergencyRegardlessOfPosition(t *testing.T) {
	cfg := mustParse(t)
	require.Equal(t, types.RoleTerminal, cfg.RoleForStatus("completed", "default", ContainerTask))
	require.Equal(t, types.RoleTerminal, cfg.RoleForStatus("cancelled", "default", ContainerTask))
	require.Equal(t, types.RoleBlocked, cfg.RoleForStatus("blocked", "default", ContainerTask))
	require.Equal(t, types.RoleBlocked, cfg.RoleForStatus("on-hold", "default", ContainerTask))
}

func TestRoleForStatusOnTwoStatusFlowNeverReturnsReview(t *testing.T) {
	cfg := mustParse(t)
	// in_progress_flow has only 2 entries; the last position maps to WORK,
	// not REVIEW, since a review phase only exists on flows of length >= 3.
	require.Equal(t, types.RoleWork, cfg.RoleForStatus("in-progress", "in_progress", ContainerTask))
}

func TestCanonicalStatusIsInverseOfRoleForStatus(t *testing.T) {
	cfg := mustParse(t)
	for _, role := range []types.Role{types.RoleQueue, types.RoleWork, types.RoleReview} {
		status := cfg.CanonicalStatus(role, "default", ContainerTask)
		require.Equal(t, role, cfg.RoleForStatus(status, "default", ContainerTask),
			"canonical status for %s must map back to %s", role, role)
	}
}

func TestCanonicalStatusForTerminalUsesFirstConfiguredTerminalStatus(t *testing.T) {
	cfg := mustParse(t)
	require.Equal(t, "completed", cfg.CanonicalStatus(types.RoleTerminal, "default", ContainerTask))
}

func TestHasReviewPhaseReflectsFlowLength(t *testing.T) {
	cfg := mustParse(t)
	require.True(t, cfg.HasReviewPhase("default", ContainerTask))
	require.False(t, cfg.HasReviewPhase("in_progress", ContainerTask))
}

func TestCascadeRulePrefersFlowOverrideOverGlobalRule(t *testing.T) {
	cfg := mustParse(t)

	globalRule, ok := cfg.CascadeRule("first_task_started", "default")
	require.True(t, ok)
	require.Equal(t, "in-progress", globalRule.To)

	overridden, ok := cfg.CascadeRule("first_task_started", "in_progress")
	require.True(t, ok)
	require.Equal(t, "in-progress-fast", overridden.To)
}

func TestCascadeRuleMissesUnknownEvent(t *testing.T) {
	cfg := mustParse(t)
	_, ok := cfg.CascadeRule("no_such_event", "default")
	require.False(t, ok)
}

func TestNoteSchemaForTagsMatchesFirstMatchingTag(t *testing.T) {
	cfg := mustParse(t)
	specs := cfg.NoteSchemaForTags([]string{"unrelated", "backend"})
	require.Len(t, specs, 1)
	require.Equal(t, "design", specs[0].Key)
	require.Equal(t, types.RoleWork, specs[0].Role, "Role must normalize to the upper-case enum form, not NormalizeStatus's lower-case one")
}

func TestNoteSchemaForTagsReturnsNilForUnmatchedTags(t *testing.T) {
	cfg := mustParse(t)
	require.Nil(t, cfg.NoteSchemaForTags([]string{"nothing-here"}))
}

func TestContainerFallsBackToTaskWhenTypeUndefined(t *testing.T) {
	cfg := mustParse(t)
	// "projects" is never defined in workflowYAML; it must fall back to
	// the tasks container rather than panicking or using an empty one.
	require.Equal(t, []string{"pending", "in-progress", "testing"}, cfg.StatusesForFlow("default", ContainerProject))
}

func TestContainerTypeForTagsDefaultsToTask(t *testing.T) {
	require.Equal(t, ContainerTask, ContainerTypeForTags([]string{"random"}))
	require.Equal(t, ContainerFeature, ContainerTypeForTags([]string{"feature"}))
	require.Equal(t, ContainerProject, ContainerTypeForTags([]string{"project"}))
}

func TestDefaultMapsQAReviewSynonymToReviewRole(t *testing.T) {
	cfg := Default()
	require.Equal(t, types.RoleReview, cfg.RoleForStatus("qa-review", "default", ContainerTask),
		"qa-review must map to REVIEW even though it never occupies the flow's review position")
	require.Equal(t, types.RoleReview, cfg.RoleForStatus("testing", "default", ContainerTask),
		"testing is the review position in the default flow")
}
