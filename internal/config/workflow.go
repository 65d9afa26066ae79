package config

import (
	"fmt"
	"strings"

	"github.com/taskgraph/orchestrator/internal/types"
	"gopkg.in/yaml.v3"
)

// WorkflowConfig is the in-memory, derived-from-YAML workflow definition:
// flows per container type, note schemas per tag, and cascade rules. It is
// immutable once built: a reload builds a new instance and the Manager
// swaps the active pointer atomically, so callers never observe a
// half-updated config.
type WorkflowConfig struct {
	containers         map[ContainerType]*containerConfig
	noteSchemas        map[string][]types.NoteSpec
	cascadeRules       map[string]CascadeRule
	flowEventOverrides map[string]map[string]CascadeRule
	completionCleanup  CompletionCleanup
}

// Parse decodes a workflow config document from YAML bytes.
func Parse(data []byte) (*WorkflowConfig, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse workflow config: %w", err)
	}

	wc := &WorkflowConfig{
		containers:         make(map[ContainerType]*containerConfig),
		noteSchemas:        make(map[string][]types.NoteSpec),
		cascadeRules:       make(map[string]CascadeRule),
		flowEventOverrides: make(map[string]map[string]CascadeRule),
		completionCleanup:  raw.CompletionCleanup,
	}

	for key, section := range raw.StatusProgression {
		ct := ContainerType(key)
		cc, err := parseContainer(section)
		if err != nil {
			return nil, fmt.Errorf("status_progression.%s: %w", key, err)
		}
		wc.containers[ct] = cc
	}

	for key, specs := range raw.NoteSchemas {
		normalized := make([]types.NoteSpec, len(specs))
		for i, s := range specs {
			// NoteSpec.Role holds a Role enum value (QUEUE/WORK/...), not a
			// status label, so it normalizes to upper case rather than
			// through NormalizeStatus's lower-case form.
			s.Role = types.Role(strings.ToUpper(strings.TrimSpace(string(s.Role))))
			normalized[i] = s
		}
		wc.noteSchemas[types.NormalizeTag(key)] = normalized
	}

	for event, rule := range raw.CascadeRules {
		wc.cascadeRules[event] = CascadeRule{
			From: types.NormalizeStatus(rule.From),
			To:   types.NormalizeStatus(rule.To),
		}
	}

	for flowName, overrides := range raw.Flows {
		m := make(map[string]CascadeRule, len(overrides.EventOverrides))
		for event, rule := range overrides.EventOverrides {
			m[event] = CascadeRule{
				From: types.NormalizeStatus(rule.From),
				To:   types.NormalizeStatus(rule.To),
			}
		}
		wc.flowEventOverrides[flowName] = m
	}

	return wc, nil
}

func (wc *WorkflowConfig) container(ct ContainerType) *containerConfig {
	if cc, ok := wc.containers[ct]; ok {
		return cc
	}
	// Fall back to the task container when a caller asks about a
	// container type the loaded file never defined; the hardcoded
	// defaults populate tasks, features and projects, so this only
	// applies to a parsed file that omits a section.
	if cc, ok := wc.containers[ContainerTask]; ok {
		return cc
	}
	return emptyContainer()
}

// FlowForTags returns the flow name that applies to an item with these
// tags within containerType: the first flow_mappings entry whose tags
// intersect, else "default".
func (wc *WorkflowConfig) FlowForTags(tags []string, containerType ContainerType) string {
	return wc.container(containerType).flowForTags(tags)
}

// StatusesForFlow returns the ordered, normalized phase list for flowName
// within containerType.
func (wc *WorkflowConfig) StatusesForFlow(flowName string, containerType ContainerType) []string {
	return wc.container(containerType).statuses(flowName)
}

// TerminalStatuses returns the terminal status set for containerType.
func (wc *WorkflowConfig) TerminalStatuses(containerType ContainerType) map[string]struct{} {
	return wc.container(containerType).terminalStatuses
}

// NoteSchemaForTags returns the first matching note schema for an item's
// tags; an item has at most one schema.
func (wc *WorkflowConfig) NoteSchemaForTags(tags []string) []types.NoteSpec {
	for _, tag := range tags {
		if specs, ok := wc.noteSchemas[types.NormalizeTag(tag)]; ok {
			return specs
		}
	}
	return nil
}

// CascadeRule returns the from->to rewrite for event within flowName, if
// any is defined, preferring a per-flow override over the global rule.
func (wc *WorkflowConfig) CascadeRule(event, flowName string) (CascadeRule, bool) {
	if overrides, ok := wc.flowEventOverrides[flowName]; ok {
		if rule, ok := overrides[event]; ok {
			return rule, true
		}
	}
	rule, ok := wc.cascadeRules[event]
	return rule, ok
}

// RoleForStatus maps a status label to its semantic Role within flowName
// and containerType.
func (wc *WorkflowConfig) RoleForStatus(status, flowName string, containerType ContainerType) types.Role {
	return wc.container(containerType).roleForStatus(status, flowName)
}

// HasReviewPhase reports whether flowName within containerType defines a
// status that maps to REVIEW.
func (wc *WorkflowConfig) HasReviewPhase(flowName string, containerType ContainerType) bool {
	return wc.container(containerType).hasReviewPhase(flowName)
}

// CanonicalStatus returns the representative flow status label for role,
// used to keep WorkItem.StatusLabel in sync with the configured flow.
func (wc *WorkflowConfig) CanonicalStatus(role types.Role, flowName string, containerType ContainerType) string {
	return wc.container(containerType).canonicalStatus(role, flowName)
}

// CompletionCleanup returns the configured cleanup policy.
func (wc *WorkflowConfig) CompletionCleanup() CompletionCleanup {
	return wc.completionCleanup
}

func emptyContainer() *containerConfig {
	return &containerConfig{
		flows:                map[string][]string{defaultFlowName: {}},
		terminalStatuses:     map[string]struct{}{},
		emergencyTransitions: map[string]struct{}{},
	}
}
