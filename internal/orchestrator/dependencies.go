package orchestrator

import (
	"context"

	"github.com/taskgraph/orchestrator/internal/graph"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// DependencyInput is one explicit edge within manage_dependencies's batch
// create mode.
type DependencyInput struct {
	FromItemID string              `json:"fromItemId"`
	ToItemID   string              `json:"toItemId"`
	Type       types.DependencyType `json:"type"`
	UnblockAt  *types.Role         `json:"unblockAt,omitempty"`
}

// ManageDependenciesRequest is manage_dependencies's wire input. Pattern
// mode (linear/fan-out/fan-in) and explicit-batch mode are mutually
// exclusive on create.
type ManageDependenciesRequest struct {
	Operation string `json:"operation"` // create | delete

	Dependencies []DependencyInput `json:"dependencies,omitempty"`

	Pattern   string   `json:"pattern,omitempty"` // linear | fan-out | fan-in
	IDs       []string `json:"ids,omitempty"`
	Source    string   `json:"source,omitempty"`
	Targets   []string `json:"targets,omitempty"`
	Sources   []string `json:"sources,omitempty"`
	Target    string   `json:"target,omitempty"`
	UnblockAt *types.Role `json:"unblockAt,omitempty"`

	ID         string                `json:"id,omitempty"`
	FromItemID string                `json:"fromItemId,omitempty"`
	ToItemID   string                `json:"toItemId,omitempty"`
	Type       *types.DependencyType `json:"type,omitempty"`
	ItemID     string                `json:"itemId,omitempty"` // deleteAll scope

	SessionID string `json:"sessionId,omitempty"`
}

func (a *API) ManageDependencies(ctx context.Context, req ManageDependenciesRequest) *Response {
	switch req.Operation {
	case "create":
		return a.createDependencies(ctx, req)
	case "delete":
		return a.deleteDependencies(ctx, req)
	default:
		return fail(types.NewError(types.ErrValidation, "unknown manage_dependencies operation").WithDetail("operation", req.Operation))
	}
}

func (a *API) createDependencies(ctx context.Context, req ManageDependenciesRequest) *Response {
	var proposed []*types.Dependency
	if req.Pattern != "" {
		expanded, err := graph.ExpandPattern(req.Pattern, req.IDs, req.Source, req.Targets, req.Sources, req.Target, req.UnblockAt)
		if err != nil {
			return fail(types.NewError(types.ErrValidation, err.Error()))
		}
		proposed = expanded
	} else {
		for _, d := range req.Dependencies {
			proposed = append(proposed, &types.Dependency{
				FromItemID: d.FromItemID,
				ToItemID:   d.ToItemID,
				Type:       d.Type,
				UnblockAt:  d.UnblockAt,
			})
		}
	}

	entityIDs := make([]string, 0, len(proposed)*2)
	for _, d := range proposed {
		entityIDs = append(entityIDs, d.FromItemID, d.ToItemID)
	}

	resp, err := a.withLock(types.OpStructureChange, entityIDs, req.SessionID, func() (*Response, error) {
		created, err := a.deps.CreateDependencies(ctx, proposed)
		if err != nil {
			return nil, err
		}
		return ok("dependencies created", created), nil
	})
	return respond(resp, err)
}

func (a *API) deleteDependencies(ctx context.Context, req ManageDependenciesRequest) *Response {
	entityIDs := []string{req.ItemID, req.FromItemID, req.ToItemID}
	resp, err := a.withLock(types.OpStructureChange, entityIDs, req.SessionID, func() (*Response, error) {
		deleted, err := a.deps.DeleteDependencies(ctx, store.DependencyDeleteSpec{
			ID:         req.ID,
			FromItemID: req.FromItemID,
			ToItemID:   req.ToItemID,
			Type:       req.Type,
			ItemID:     req.ItemID,
		})
		if err != nil {
			return nil, err
		}
		return ok("dependencies deleted", deleted), nil
	})
	return respond(resp, err)
}

// QueryDependenciesRequest is query_dependencies's wire input.
type QueryDependenciesRequest struct {
	ItemID        string                    `json:"itemId"`
	Direction     store.DependencyDirection `json:"direction,omitempty"`
	Type          *types.DependencyType     `json:"type,omitempty"`
	NeighborsOnly bool                      `json:"neighborsOnly"`
}

func (a *API) QueryDependencies(ctx context.Context, req QueryDependenciesRequest) *Response {
	direction := req.Direction
	if direction == "" {
		direction = store.DirectionAll
	}

	if req.NeighborsOnly {
		edges, err := a.store.ListDependencies(ctx, req.ItemID, direction, req.Type)
		if err != nil {
			return respond(nil, err)
		}
		return ok("dependencies listed", edges)
	}

	analysis, err := a.deps.Analyze(ctx, req.ItemID, direction, req.Type)
	if err != nil {
		return respond(nil, err)
	}
	return ok("dependency graph analysis", analysis)
}
