package config

import "github.com/taskgraph/orchestrator/internal/types"

// ContainerType groups WorkItems into one of the three shapes the workflow
// config keys its flows under. It is derived from an item's tags
// (task/feature/project), the same tag-driven matching flowMappings and
// noteSchemas use, defaulting to Task when no tag names a container type.
type ContainerType string

const (
	ContainerTask    ContainerType = "tasks"
	ContainerFeature ContainerType = "features"
	ContainerProject ContainerType = "projects"
)

// ContainerTypeForTags inspects an item's tags for an explicit container
// marker ("task", "feature", "project") and falls back to Task.
func ContainerTypeForTags(tags []string) ContainerType {
	for _, t := range tags {
		switch types.NormalizeTag(t) {
		case "feature", "features":
			return ContainerFeature
		case "project", "projects":
			return ContainerProject
		case "task", "tasks":
			return ContainerTask
		}
	}
	return ContainerTask
}

// FlowMapping overrides which flow applies to an item whose tags match.
type FlowMapping struct {
	Tags []string `yaml:"tags"`
	Flow string   `yaml:"flow"`
}

// CascadeRule is a from->to status rewrite fired when a cascade event's
// condition is met.
type CascadeRule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CompletionCleanup governs whether a feature reaching a terminal status
// deletes its child tasks.
type CompletionCleanup struct {
	Enabled    bool     `yaml:"enabled"`
	RetainTags []string `yaml:"retain_tags"`
}

// rawContainerSection mirrors one status_progression.<container> block.
// Flow membership is dynamic (default_flow plus any number of
// "<name>_flow" keys), so it is decoded into a generic map and picked
// apart in parseContainer.
type rawContainerSection map[string]any

// rawConfig mirrors the top-level YAML document described in spec §6.2.
type rawConfig struct {
	StatusProgression map[string]rawContainerSection `yaml:"status_progression"`
	NoteSchemas       map[string][]types.NoteSpec    `yaml:"note_schemas"`
	CompletionCleanup CompletionCleanup               `yaml:"completion_cleanup"`
	CascadeRules      map[string]CascadeRule          `yaml:"cascade_rules"`
	Flows             map[string]rawFlowOverrides     `yaml:"flows"`
}

type rawFlowOverrides struct {
	EventOverrides map[string]CascadeRule `yaml:"event_overrides"`
}
