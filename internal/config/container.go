package config

import (
	"fmt"

	"github.com/taskgraph/orchestrator/internal/types"
)

// containerConfig is the normalized form of one status_progression section:
// every flow (default plus any named alternates) as an ordered, normalized
// status list, plus the container's terminal/emergency status sets and its
// tag-based flow overrides.
type containerConfig struct {
	flows                map[string][]string
	terminalStatuses     map[string]struct{}
	terminalStatusList   []string
	emergencyTransitions map[string]struct{}
	emergencyStatusList  []string
	flowMappings         []FlowMapping
	// reviewSynonyms holds statuses that map to RoleReview without
	// occupying the review position in any flow's ordered list, e.g. the
	// hardcoded default's testing|qa-review->review many-to-one mapping.
	reviewSynonyms map[string]struct{}
}

const defaultFlowName = "default"

func parseContainer(raw rawContainerSection) (*containerConfig, error) {
	cc := &containerConfig{
		flows:                make(map[string][]string),
		terminalStatuses:     make(map[string]struct{}),
		emergencyTransitions: make(map[string]struct{}),
	}

	for key, value := range raw {
		switch key {
		case "default_flow":
			cc.flows[defaultFlowName] = normalizeStatusList(value)
		case "terminal_statuses":
			cc.terminalStatusList = normalizeStatusList(value)
			for _, s := range cc.terminalStatusList {
				cc.terminalStatuses[s] = struct{}{}
			}
		case "emergency_transitions":
			cc.emergencyStatusList = normalizeStatusList(value)
			for _, s := range cc.emergencyStatusList {
				cc.emergencyTransitions[s] = struct{}{}
			}
		case "flow_mappings":
			mappings, err := parseFlowMappings(value)
			if err != nil {
				return nil, err
			}
			cc.flowMappings = mappings
		default:
			if len(key) > len("_flow") && key[len(key)-len("_flow"):] == "_flow" {
				name := key[:len(key)-len("_flow")]
				cc.flows[name] = normalizeStatusList(value)
			}
		}
	}

	if _, ok := cc.flows[defaultFlowName]; !ok {
		return nil, fmt.Errorf("status_progression section is missing default_flow")
	}
	return cc, nil
}

func normalizeStatusList(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, types.NormalizeStatus(s))
		}
	}
	return out
}

func parseFlowMappings(value any) ([]FlowMapping, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]FlowMapping, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("flow_mappings entry must be a mapping")
		}
		fm := FlowMapping{}
		if flow, ok := m["flow"].(string); ok {
			fm.Flow = flow
		}
		if tagsRaw, ok := m["tags"].([]any); ok {
			for _, t := range tagsRaw {
				if s, ok := t.(string); ok {
					fm.Tags = append(fm.Tags, s)
				}
			}
		}
		out = append(out, fm)
	}
	return out, nil
}

func (cc *containerConfig) flowForTags(tags []string) string {
	for _, m := range cc.flowMappings {
		if types.HasAnyTag(tags, m.Tags) {
			return m.Flow
		}
	}
	return defaultFlowName
}

func (cc *containerConfig) statuses(flowName string) []string {
	if flowName == "" {
		flowName = defaultFlowName
	}
	if s, ok := cc.flows[flowName]; ok {
		return s
	}
	return cc.flows[defaultFlowName]
}

func (cc *containerConfig) isTerminal(status string) bool {
	_, ok := cc.terminalStatuses[status]
	return ok
}

func (cc *containerConfig) isEmergency(status string) bool {
	_, ok := cc.emergencyTransitions[status]
	return ok
}

// roleForStatus derives a Role from the status's position within flowName's
// ordered, non-terminal status list and the container's terminal set, per
// spec: the implementation must not hardcode status strings into any
// control-flow decision outside WorkflowConfig itself.
func (cc *containerConfig) roleForStatus(status, flowName string) types.Role {
	status = types.NormalizeStatus(status)
	if cc.isTerminal(status) {
		return types.RoleTerminal
	}
	if cc.isEmergency(status) {
		return types.RoleBlocked
	}

	flow := cc.statuses(flowName)
	n := len(flow)
	for i, s := range flow {
		if s != status {
			continue
		}
		switch {
		case i == 0:
			return types.RoleQueue
		case i == n-1 && n >= 3:
			return types.RoleReview
		default:
			return types.RoleWork
		}
	}
	if _, ok := cc.reviewSynonyms[status]; ok {
		return types.RoleReview
	}
	// Status not found anywhere in this flow, the terminal/emergency
	// sets, or the review synonyms: treat it as mid-flow work rather
	// than erroring, since roleForStatus has no error return in the
	// spec's operation list.
	return types.RoleWork
}

// hasReviewPhase reports whether flowName's ordered list contains a
// position the role-mapping algorithm assigns REVIEW to.
func (cc *containerConfig) hasReviewPhase(flowName string) bool {
	return len(cc.statuses(flowName)) >= 3
}

// canonicalStatus is the inverse of roleForStatus: the representative
// flow-position status label for a Role, used to keep WorkItem.StatusLabel
// in sync with the configured flow so cascade rules (which match on
// status strings, e.g. "in-development" -> "testing") can fire. TERMINAL
// and BLOCKED fall back to the first configured terminal/emergency status.
func (cc *containerConfig) canonicalStatus(role types.Role, flowName string) string {
	flow := cc.statuses(flowName)
	n := len(flow)

	switch role {
	case types.RoleQueue:
		if n > 0 {
			return flow[0]
		}
	case types.RoleWork:
		switch {
		case n >= 3:
			return flow[1]
		case n >= 1:
			return flow[n-1]
		}
	case types.RoleReview:
		if n >= 3 {
			return flow[n-1]
		}
	case types.RoleTerminal:
		if len(cc.terminalStatusList) > 0 {
			return cc.terminalStatusList[0]
		}
		return "completed"
	case types.RoleBlocked:
		if len(cc.emergencyStatusList) > 0 {
			return cc.emergencyStatusList[0]
		}
		return "blocked"
	}
	return ""
}
