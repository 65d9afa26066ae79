package orchestrator

import (
	"context"
	"sort"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/types"
)

// TreeNodeInput is one node (root or child) within create_work_tree's
// batch, referencing its parent within the same batch by a local `ref`
// string rather than an already-assigned id.
type TreeNodeInput struct {
	Ref                  string    `json:"ref"`
	ParentRef            string    `json:"parentRef,omitempty"` // empty for the root
	Title                string    `json:"title"`
	Summary              string    `json:"summary,omitempty"`
	Description          string    `json:"description,omitempty"`
	Priority             types.Priority `json:"priority,omitempty"`
	Complexity           *int      `json:"complexity,omitempty"`
	Tags                 []string  `json:"tags,omitempty"`
	RequiresVerification bool      `json:"requiresVerification,omitempty"`
	BlankNotes           bool      `json:"blankNotes,omitempty"`
}

// TreeEdgeInput is one declared dependency within the batch, referencing
// endpoints by ref.
type TreeEdgeInput struct {
	FromRef   string               `json:"fromRef"`
	ToRef     string               `json:"toRef"`
	Type      types.DependencyType `json:"type"`
	UnblockAt *types.Role          `json:"unblockAt,omitempty"`
}

// CreateWorkTreeRequest is create_work_tree's wire input: one root, its
// children (each carrying a ParentRef into this same batch), declared
// edges by ref, and whether blank notes should be stamped in from each
// item's matching note schema.
type CreateWorkTreeRequest struct {
	ParentID  *string         `json:"parentId,omitempty"` // existing item the whole tree attaches under
	Root      TreeNodeInput   `json:"root"`
	Children  []TreeNodeInput `json:"children,omitempty"`
	Edges     []TreeEdgeInput `json:"edges,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

const rootRef = "__root__"

func (a *API) CreateWorkTree(ctx context.Context, req CreateWorkTreeRequest) *Response {
	entityIDs := []string{}
	if req.ParentID != nil {
		entityIDs = append(entityIDs, *req.ParentID)
	}
	resp, err := a.withLock(types.OpStructureChange, entityIDs, req.SessionID, func() (*Response, error) {
		cfg := a.workflowConfig()
		refToID := make(map[string]string)

		root, err := a.createTreeNode(ctx, cfg, req.Root, req.ParentID)
		if err != nil {
			return nil, err
		}
		refToID[rootRef] = root.ID
		if req.Root.Ref != "" {
			refToID[req.Root.Ref] = root.ID
		}
		created := []*types.WorkItem{root}
		createdInputs := []TreeNodeInput{req.Root}

		pending := append([]TreeNodeInput(nil), req.Children...)
		for len(pending) > 0 {
			progressed := false
			var next []TreeNodeInput
			for _, child := range pending {
				parentRef := child.ParentRef
				if parentRef == "" {
					parentRef = rootRef
				}
				parentID, resolved := refToID[parentRef]
				if !resolved {
					next = append(next, child)
					continue
				}
				item, err := a.createTreeNode(ctx, cfg, child, &parentID)
				if err != nil {
					return nil, err
				}
				refToID[child.Ref] = item.ID
				created = append(created, item)
				createdInputs = append(createdInputs, child)
				progressed = true
			}
			if !progressed && len(next) > 0 {
				return nil, types.NewError(types.ErrValidation, "create_work_tree: unresolved parentRef").
					WithDetail("unresolved", len(next))
			}
			pending = next
		}

		var deps []*types.Dependency
		for _, e := range req.Edges {
			from, ok1 := refToID[e.FromRef]
			to, ok2 := refToID[e.ToRef]
			if !ok1 || !ok2 {
				return nil, types.NewError(types.ErrValidation, "create_work_tree: edge references unknown ref")
			}
			deps = append(deps, &types.Dependency{FromItemID: from, ToItemID: to, Type: e.Type, UnblockAt: e.UnblockAt})
		}
		var insertedDeps []*types.Dependency
		if len(deps) > 0 {
			insertedDeps, err = a.deps.CreateDependencies(ctx, deps)
			if err != nil {
				return nil, err
			}
		}

		results := make([]ItemResult, 0, len(created))
		for i, item := range created {
			if createdInputs[i].BlankNotes {
				for _, spec := range cfg.NoteSchemaForTags(item.Tags) {
					if _, err := a.store.UpsertNote(ctx, &types.Note{ItemID: item.ID, Key: spec.Key, Role: spec.Role, Body: ""}); err != nil {
						return nil, err
					}
				}
			}
			results = append(results, ItemResult{Item: item, ExpectedNotes: a.expectedNotesFor(ctx, item)})
		}

		return ok("work tree created", map[string]any{"items": results, "dependencies": insertedDeps}), nil
	})
	return respond(resp, err)
}

func (a *API) createTreeNode(ctx context.Context, cfg *config.WorkflowConfig, in TreeNodeInput, parentID *string) (*types.WorkItem, error) {
	priority := in.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}
	item := &types.WorkItem{
		ParentID:             parentID,
		Title:                in.Title,
		Summary:              in.Summary,
		Description:          in.Description,
		Role:                 types.RoleQueue,
		Priority:             priority,
		Complexity:           in.Complexity,
		Tags:                 in.Tags,
		RequiresVerification: in.RequiresVerification,
	}
	containerType := config.ContainerTypeForTags(item.Tags)
	item.StatusLabel = cfg.CanonicalStatus(types.RoleQueue, cfg.FlowForTags(item.Tags, containerType), containerType)

	created, err := a.store.CreateItems(ctx, []*types.WorkItem{item})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CompleteTreeRequest is complete_tree's wire input: either a subtree root
// or an explicit item set, all driven through the same trigger.
type CompleteTreeRequest struct {
	RootID    string        `json:"rootId,omitempty"`
	ItemIDs   []string      `json:"itemIds,omitempty"`
	Trigger   types.Trigger `json:"trigger"` // complete | cancel
	SessionID string        `json:"sessionId,omitempty"`
}

// CompleteTreeItemResult is one item's outcome within complete_tree.
type CompleteTreeItemResult struct {
	ItemID         string     `json:"itemId"`
	Applied        bool       `json:"applied"`
	GateError      *ErrorBody `json:"gateError,omitempty"`
	SkippedReason  string     `json:"skippedReason,omitempty"`
}

func (a *API) CompleteTree(ctx context.Context, req CompleteTreeRequest) *Response {
	if req.Trigger != types.TriggerComplete && req.Trigger != types.TriggerCancel {
		return fail(types.NewError(types.ErrValidation, "complete_tree trigger must be complete or cancel").WithDetail("trigger", string(req.Trigger)))
	}

	ids := req.ItemIDs
	if req.RootID != "" {
		set, err := a.collectSubtree(ctx, req.RootID)
		if err != nil {
			return respond(nil, err)
		}
		ids = set
	}
	if len(ids) == 0 {
		return ok("complete_tree processed", []CompleteTreeItemResult{})
	}

	order, blockerOf, err := a.topoOrderWithinSet(ctx, ids)
	if err != nil {
		return respond(nil, err)
	}

	results := make(map[string]*CompleteTreeItemResult, len(ids))
	skipped := make(map[string]string)

	for _, id := range order {
		if reason, isSkipped := skipped[id]; isSkipped {
			results[id] = &CompleteTreeItemResult{ItemID: id, Applied: false, SkippedReason: reason}
			continue
		}

		adv := a.advanceOne(ctx, AdvanceSpec{ItemID: id, Trigger: req.Trigger}, req.SessionID)
		if adv.Applied {
			results[id] = &CompleteTreeItemResult{ItemID: id, Applied: true}
			continue
		}

		results[id] = &CompleteTreeItemResult{ItemID: id, Applied: false, GateError: adv.Error}
		if req.Trigger == types.TriggerComplete {
			for _, dependent := range blockerOf[id] {
				propagateSkip(dependent, blockerOf, skipped)
			}
		}
	}

	out := make([]CompleteTreeItemResult, 0, len(order))
	for _, id := range order {
		out = append(out, *results[id])
	}
	return ok("complete_tree processed", out)
}

// propagateSkip marks id and every item transitively blocked by it (within
// the processed set) as skipped, unless already marked.
func propagateSkip(id string, blockerOf map[string][]string, skipped map[string]string) {
	if _, already := skipped[id]; already {
		return
	}
	skipped[id] = "dependency gate failed"
	for _, dependent := range blockerOf[id] {
		propagateSkip(dependent, blockerOf, skipped)
	}
}

func (a *API) collectSubtree(ctx context.Context, rootID string) ([]string, error) {
	root, err := a.store.GetItem(ctx, rootID)
	if err != nil {
		return nil, err
	}
	ids := []string{root.ID}
	queue := []string{root.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := a.store.ChildrenOf(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			ids = append(ids, c.ID)
			queue = append(queue, c.ID)
		}
	}
	return ids, nil
}

// topoOrderWithinSet orders ids so that every blocker precedes what it
// blocks, restricted to BLOCKS/IS_BLOCKED_BY edges with both endpoints in
// the set; cyclic leftovers are appended in id order. blockerOf maps an
// item to the dependents (within the set) it blocks, for skip propagation.
func (a *API) topoOrderWithinSet(ctx context.Context, ids []string) (order []string, blockerOf map[string][]string, err error) {
	inSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		inSet[id] = struct{}{}
	}

	edges, err := a.store.ListAllDependencyEdges(ctx)
	if err != nil {
		return nil, nil, err
	}

	blockerOf = make(map[string][]string)
	indegree := make(map[string]int, len(ids))
	for _, id := range ids {
		indegree[id] = 0
	}
	for _, d := range edges {
		if !d.Blocks() {
			continue
		}
		blocker, blocked := d.NormalizedBlocker()
		if _, ok := inSet[blocker]; !ok {
			continue
		}
		if _, ok := inSet[blocked]; !ok {
			continue
		}
		blockerOf[blocker] = append(blockerOf[blocker], blocked)
		indegree[blocked]++
	}

	var queue []string
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	working := make(map[string]int, len(indegree))
	for k, v := range indegree {
		working[k] = v
	}
	for len(queue) > 0 {
		sort.Strings(queue)
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dependent := range blockerOf[id] {
			working[dependent]--
			if working[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if len(order) != len(ids) {
		done := make(map[string]struct{}, len(order))
		for _, id := range order {
			done[id] = struct{}{}
		}
		var leftover []string
		for _, id := range ids {
			if _, ok := done[id]; !ok {
				leftover = append(leftover, id)
			}
		}
		sort.Strings(leftover)
		order = append(order, leftover...)
	}
	return order, blockerOf, nil
}
