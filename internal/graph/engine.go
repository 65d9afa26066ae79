// Package graph implements the DependencyEngine: edge creation with cycle
// prevention, the blocking query, and graph traversal (topological sort,
// critical path, bottlenecks, parallel groups), grounded on the teacher's
// internal/storage/dolt/dependencies.go cycle-detection DFS and dependency
// tree walk, generalized from a whole-graph scan to spec.md §4.3's
// incremental per-batch check.
package graph

import (
	"context"
	"fmt"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// Engine is the DependencyEngine. It holds no state of its own (the
// graph lives in the Store), so a single Engine can be shared across
// requests.
type Engine struct {
	store store.Store
}

func New(s store.Store) *Engine {
	return &Engine{store: s}
}

// edge is the direction-normalized (blocker -> blocked) pair used for
// cycle detection; only BLOCKS/IS_BLOCKED_BY edges participate.
type edge struct {
	from string
	to   string
}

// CreateDependencies validates and inserts a batch of proposed edges,
// per spec §4.3: reject self-edges, reject RELATES_TO with a threshold,
// reject in-batch and store duplicates, then run the incremental DFS
// cycle check before the all-or-nothing insert.
func (e *Engine) CreateDependencies(ctx context.Context, proposed []*types.Dependency) ([]*types.Dependency, error) {
	if len(proposed) == 0 {
		return nil, nil
	}

	for _, d := range proposed {
		if ae := d.Validate(); ae != nil {
			return nil, ae
		}
	}

	existing, err := e.store.ListAllDependencyEdges(ctx)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabase, "failed to load dependency graph", err)
	}

	seen := make(map[string]struct{}, len(existing)+len(proposed))
	for _, d := range existing {
		seen[tripleKey(d.FromItemID, d.ToItemID, d.Type)] = struct{}{}
	}

	adjacency := buildBlockerAdjacency(existing)

	for _, d := range proposed {
		key := tripleKey(d.FromItemID, d.ToItemID, d.Type)
		if _, dup := seen[key]; dup {
			return nil, types.NewError(types.ErrConflict, "duplicate dependency").
				WithDetail("fromItemId", d.FromItemID).
				WithDetail("toItemId", d.ToItemID).
				WithDetail("type", string(d.Type))
		}
		seen[key] = struct{}{}

		if !d.Blocks() {
			continue
		}
		blocker, blocked := d.NormalizedBlocker()
		if reachable(adjacency, blocked, blocker) {
			return nil, types.NewError(types.ErrConflict, "dependency batch would create a cycle").
				WithDetail("fromItemId", d.FromItemID).
				WithDetail("toItemId", d.ToItemID)
		}
		adjacency[blocker] = append(adjacency[blocker], blocked)
	}

	inserted, err := e.store.InsertDependencies(ctx, proposed)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabase, "failed to insert dependencies", err)
	}
	return inserted, nil
}

func tripleKey(from, to string, t types.DependencyType) string {
	return from + "\x00" + to + "\x00" + string(t)
}

// buildBlockerAdjacency builds a forward adjacency map (blocker ->
// blocked...) over only the edges that participate in the blocking graph.
func buildBlockerAdjacency(edges []*types.Dependency) map[string][]string {
	adj := make(map[string][]string)
	for _, d := range edges {
		if !d.Blocks() {
			continue
		}
		blocker, blocked := d.NormalizedBlocker()
		adj[blocker] = append(adj[blocker], blocked)
	}
	return adj
}

// reachable runs a DFS from start looking for target.
func reachable(adj map[string][]string, start, target string) bool {
	if start == target {
		return true
	}
	visited := map[string]struct{}{}
	var stack []string
	stack = append(stack, start)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}
		stack = append(stack, adj[n]...)
	}
	return false
}

// DeleteDependencies removes edges matching spec and returns what was
// removed, so callers can verify round-trip restoration.
func (e *Engine) DeleteDependencies(ctx context.Context, spec store.DependencyDeleteSpec) ([]*types.Dependency, error) {
	deleted, err := e.store.DeleteDependencies(ctx, spec)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabase, "failed to delete dependencies", err)
	}
	return deleted, nil
}

// Linear expands a->b->c->... into explicit BLOCKS edges with the given
// threshold (nil means TERMINAL).
func Linear(ids []string, unblockAt *types.Role) []*types.Dependency {
	var out []*types.Dependency
	for i := 0; i+1 < len(ids); i++ {
		out = append(out, &types.Dependency{FromItemID: ids[i], ToItemID: ids[i+1], Type: types.DepBlocks, UnblockAt: unblockAt})
	}
	return out
}

// FanOut expands one source blocking many targets.
func FanOut(source string, targets []string, unblockAt *types.Role) []*types.Dependency {
	out := make([]*types.Dependency, 0, len(targets))
	for _, t := range targets {
		out = append(out, &types.Dependency{FromItemID: source, ToItemID: t, Type: types.DepBlocks, UnblockAt: unblockAt})
	}
	return out
}

// FanIn expands many sources all blocking one target.
func FanIn(sources []string, target string, unblockAt *types.Role) []*types.Dependency {
	out := make([]*types.Dependency, 0, len(sources))
	for _, s := range sources {
		out = append(out, &types.Dependency{FromItemID: s, ToItemID: target, Type: types.DepBlocks, UnblockAt: unblockAt})
	}
	return out
}

// ExpandPattern dispatches to Linear/FanOut/FanIn by name, as used by
// manage_dependencies's pattern-based creation mode.
func ExpandPattern(pattern string, ids []string, source string, targets []string, sources []string, target string, unblockAt *types.Role) ([]*types.Dependency, error) {
	switch pattern {
	case "linear":
		return Linear(ids, unblockAt), nil
	case "fan-out":
		return FanOut(source, targets, unblockAt), nil
	case "fan-in":
		return FanIn(sources, target, unblockAt), nil
	default:
		return nil, fmt.Errorf("unknown dependency pattern %q", pattern)
	}
}
