package config

import "github.com/taskgraph/orchestrator/internal/types"

// Default returns the hardcoded fallback config used when no
// .taskorchestrator/config.yaml is found: statuses {completed, archived}
// are terminal for features; task roles map pending->queue,
// in-progress->work, testing|qa-review->review,
// completed|cancelled->terminal, blocked|on-hold->blocked.
func Default() *WorkflowConfig {
	tasks := &containerConfig{
		flows: map[string][]string{
			defaultFlowName: {"pending", "in-progress", "testing"},
		},
		terminalStatuses: map[string]struct{}{
			"completed": {},
			"cancelled": {},
		},
		emergencyTransitions: map[string]struct{}{
			"blocked": {},
			"on-hold": {},
		},
		reviewSynonyms: map[string]struct{}{
			"qa-review": {},
		},
	}

	features := &containerConfig{
		flows: map[string][]string{
			defaultFlowName: {"pending", "in-progress", "testing"},
		},
		terminalStatuses: map[string]struct{}{
			"completed": {},
			"archived":  {},
		},
		emergencyTransitions: map[string]struct{}{
			"blocked": {},
			"on-hold": {},
		},
	}

	projects := &containerConfig{
		flows: map[string][]string{
			defaultFlowName: {"pending", "in-progress", "testing"},
		},
		terminalStatuses: map[string]struct{}{
			"completed": {},
			"archived":  {},
		},
		emergencyTransitions: map[string]struct{}{
			"blocked": {},
			"on-hold": {},
		},
	}

	return &WorkflowConfig{
		containers: map[ContainerType]*containerConfig{
			ContainerTask:    tasks,
			ContainerFeature: features,
			ContainerProject: projects,
		},
		noteSchemas:        map[string][]types.NoteSpec{},
		cascadeRules:       map[string]CascadeRule{},
		flowEventOverrides: map[string]map[string]CascadeRule{},
	}
}
