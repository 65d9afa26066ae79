package graph

import (
	"context"
	"sort"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// Analysis is the result of a graph traversal from a start item: the
// discovered subgraph's topological order, a depth map, the critical
// path, bottleneck nodes, and parallel-execution groups. Empty/singleton
// graphs return a trivial result (single-node chain, depth 0, no
// bottlenecks), per spec §4.3.
type Analysis struct {
	Nodes          []string       `json:"nodes"`
	Order          []string       `json:"topologicalOrder"`
	HasCycle       bool           `json:"hasCycle"`
	Depth          map[string]int `json:"depth"`
	CriticalPath   []string       `json:"criticalPath"`
	Bottlenecks    []string       `json:"bottlenecks"`
	ParallelGroups [][]string     `json:"parallelGroups"`
}

// Analyze runs BFS discovery from start in the given direction (optionally
// filtered by dependency type), then topologically sorts, depth-maps, and
// summarizes the discovered subgraph.
func (e *Engine) Analyze(ctx context.Context, start string, direction store.DependencyDirection, typeFilter *types.DependencyType) (*Analysis, error) {
	all, err := e.store.ListAllDependencyEdges(ctx)
	if err != nil {
		return nil, types.WrapError(types.ErrDatabase, "failed to load dependency graph", err)
	}
	if typeFilter != nil {
		filtered := all[:0:0]
		for _, d := range all {
			if d.Type == *typeFilter {
				filtered = append(filtered, d)
			}
		}
		all = filtered
	}

	discovered := discover(all, start, direction)

	precede := make(map[string][]string) // blocker -> blocked, restricted to discovered
	indegree := make(map[string]int)
	for n := range discovered {
		indegree[n] = 0
	}
	for _, d := range all {
		if !d.Blocks() {
			continue
		}
		blocker, blocked := d.NormalizedBlocker()
		if _, ok := discovered[blocker]; !ok {
			continue
		}
		if _, ok := discovered[blocked]; !ok {
			continue
		}
		precede[blocker] = append(precede[blocker], blocked)
		indegree[blocked]++
	}

	order, hasCycle := kahn(discovered, precede, indegree)
	depth := depthMap(order, precede)
	critical := criticalPath(depth, precede)
	bottlenecks := bottlenecks(precede)
	groups := parallelGroups(order, depth, precede)

	nodes := make([]string, 0, len(discovered))
	for n := range discovered {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	return &Analysis{
		Nodes:          nodes,
		Order:          order,
		HasCycle:       hasCycle,
		Depth:          depth,
		CriticalPath:   critical,
		Bottlenecks:    bottlenecks,
		ParallelGroups: groups,
	}, nil
}

func discover(edges []*types.Dependency, start string, direction store.DependencyDirection) map[string]struct{} {
	forward := make(map[string][]string)
	reverse := make(map[string][]string)
	for _, d := range edges {
		forward[d.FromItemID] = append(forward[d.FromItemID], d.ToItemID)
		reverse[d.ToItemID] = append(reverse[d.ToItemID], d.FromItemID)
	}

	visited := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		var next []string
		switch direction {
		case store.DirectionOutgoing:
			next = forward[n]
		case store.DirectionIncoming:
			next = reverse[n]
		default:
			next = append(append([]string{}, forward[n]...), reverse[n]...)
		}
		for _, m := range next {
			if _, ok := visited[m]; !ok {
				visited[m] = struct{}{}
				queue = append(queue, m)
			}
		}
	}
	return visited
}

// kahn runs Kahn's algorithm over the discovered subgraph. If any nodes
// remain with in-degree > 0 after the queue drains, those are cyclic
// leftovers; they're appended (sorted for determinism) so the result is
// still a total order, per spec §4.3 step 2.
func kahn(nodes map[string]struct{}, precede map[string][]string, indegree map[string]int) ([]string, bool) {
	working := make(map[string]int, len(indegree))
	for k, v := range indegree {
		working[k] = v
	}

	var queue []string
	for n := range nodes {
		if working[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		sort.Strings(queue)
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, m := range precede[n] {
			working[m]--
			if working[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	hasCycle := len(order) != len(nodes)
	if hasCycle {
		done := make(map[string]struct{}, len(order))
		for _, n := range order {
			done[n] = struct{}{}
		}
		var leftover []string
		for n := range nodes {
			if _, ok := done[n]; !ok {
				leftover = append(leftover, n)
			}
		}
		sort.Strings(leftover)
		order = append(order, leftover...)
	}
	return order, hasCycle
}

// depthMap computes depth(n) = 1 + max(depth(p) for p in predecessors),
// roots at 0, via DP in topological order.
func depthMap(order []string, precede map[string][]string) map[string]int {
	depth := make(map[string]int, len(order))
	for _, n := range order {
		if _, ok := depth[n]; !ok {
			depth[n] = 0
		}
	}
	for _, n := range order {
		for _, m := range precede[n] {
			if d := depth[n] + 1; d > depth[m] {
				depth[m] = d
			}
		}
	}
	return depth
}

// criticalPath picks a node of maximum depth and walks backwards via any
// predecessor whose depth is current-1 until a root is reached.
func criticalPath(depth map[string]int, precede map[string][]string) []string {
	if len(depth) == 0 {
		return nil
	}
	predecessors := make(map[string][]string)
	for from, tos := range precede {
		for _, to := range tos {
			predecessors[to] = append(predecessors[to], from)
		}
	}

	var deepest string
	best := -1
	var ids []string
	for id := range depth {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if depth[id] > best {
			best = depth[id]
			deepest = id
		}
	}

	path := []string{deepest}
	current := deepest
	for depth[current] > 0 {
		preds := predecessors[current]
		sort.Strings(preds)
		found := false
		for _, p := range preds {
			if depth[p] == depth[current]-1 {
				path = append(path, p)
				current = p
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	// reverse to root-first order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// bottlenecks returns nodes whose out-degree >= 2, sorted by out-degree
// descending (ties broken by id for determinism).
func bottlenecks(precede map[string][]string) []string {
	type entry struct {
		id     string
		degree int
	}
	var entries []entry
	for id, out := range precede {
		if len(out) >= 2 {
			entries = append(entries, entry{id, len(out)})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].degree != entries[j].degree {
			return entries[i].degree > entries[j].degree
		}
		return entries[i].id < entries[j].id
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

// parallelGroups returns, for each depth level with >= 2 nodes, the
// subset with no intra-level edges between them.
func parallelGroups(order []string, depth map[string]int, precede map[string][]string) [][]string {
	byDepth := make(map[int][]string)
	for _, n := range order {
		byDepth[depth[n]] = append(byDepth[depth[n]], n)
	}

	intraEdge := make(map[string]map[string]struct{})
	for from, tos := range precede {
		for _, to := range tos {
			if depth[from] == depth[to] {
				if intraEdge[from] == nil {
					intraEdge[from] = make(map[string]struct{})
				}
				intraEdge[from][to] = struct{}{}
				if intraEdge[to] == nil {
					intraEdge[to] = make(map[string]struct{})
				}
				intraEdge[to][from] = struct{}{}
			}
		}
	}

	var levels []int
	for d := range byDepth {
		levels = append(levels, d)
	}
	sort.Ints(levels)

	var groups [][]string
	for _, d := range levels {
		nodes := byDepth[d]
		if len(nodes) < 2 {
			continue
		}
		var group []string
		for _, n := range nodes {
			connected := false
			for _, other := range nodes {
				if other == n {
					continue
				}
				if _, ok := intraEdge[n][other]; ok {
					connected = true
					break
				}
			}
			if !connected {
				group = append(group, n)
			}
		}
		if len(group) >= 2 {
			sort.Strings(group)
			groups = append(groups, group)
		}
	}
	return groups
}
