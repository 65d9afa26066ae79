package orchestrator

import (
	"context"

	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// ItemInput is one WorkItem's create/update payload within ManageItems.
type ItemInput struct {
	ID                   string          `json:"id,omitempty"`
	ParentID             *string         `json:"parentId,omitempty"`
	Title                *string         `json:"title,omitempty"`
	Summary              *string         `json:"summary,omitempty"`
	Description          *string         `json:"description,omitempty"`
	Priority             *types.Priority `json:"priority,omitempty"`
	Complexity           **int           `json:"complexity,omitempty"`
	Tags                 *[]string       `json:"tags,omitempty"`
	RequiresVerification *bool           `json:"requiresVerification,omitempty"`
}

// ManageItemsRequest is manage_items's wire input.
type ManageItemsRequest struct {
	Operation string      `json:"operation"` // create | update | delete
	Items     []ItemInput `json:"items,omitempty"`
	IDs       []string    `json:"ids,omitempty"`
	ParentID  *string     `json:"parentId,omitempty"`
	Recursive bool        `json:"recursive,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
}

// ItemResult is one item in ManageItems's response, carrying its
// expectedNotes report when its tags match a schema, per spec §6.1.
type ItemResult struct {
	Item          *types.WorkItem      `json:"item"`
	ExpectedNotes []types.ExpectedNote `json:"expectedNotes,omitempty"`
}

func (a *API) ManageItems(ctx context.Context, req ManageItemsRequest) *Response {
	switch req.Operation {
	case "create":
		return a.createItems(ctx, req)
	case "update":
		return a.updateItems(ctx, req)
	case "delete":
		return a.deleteItems(ctx, req)
	default:
		return fail(types.NewError(types.ErrValidation, "unknown manage_items operation").WithDetail("operation", req.Operation))
	}
}

func (a *API) createItems(ctx context.Context, req ManageItemsRequest) *Response {
	entityIDs := []string{}
	if req.ParentID != nil {
		entityIDs = append(entityIDs, *req.ParentID)
	}
	resp, err := a.withLock(types.OpCreate, entityIDs, req.SessionID, func() (*Response, error) {
		cfg := a.workflowConfig()
		items := make([]*types.WorkItem, 0, len(req.Items))
		for _, in := range req.Items {
			parentID := req.ParentID
			if in.ParentID != nil {
				parentID = in.ParentID
			}
			title := ""
			if in.Title != nil {
				title = *in.Title
			}
			item := &types.WorkItem{
				ParentID: parentID,
				Title:    title,
				Role:     types.RoleQueue,
				Priority: types.PriorityMedium,
			}
			if in.Summary != nil {
				item.Summary = *in.Summary
			}
			if in.Description != nil {
				item.Description = *in.Description
			}
			if in.Priority != nil {
				item.Priority = *in.Priority
			}
			if in.Complexity != nil {
				item.Complexity = *in.Complexity
			}
			if in.Tags != nil {
				item.Tags = *in.Tags
			}
			if in.RequiresVerification != nil {
				item.RequiresVerification = *in.RequiresVerification
			}
			containerType := config.ContainerTypeForTags(item.Tags)
			item.StatusLabel = cfg.CanonicalStatus(types.RoleQueue, cfg.FlowForTags(item.Tags, containerType), containerType)
			items = append(items, item)
		}

		created, err := a.store.CreateItems(ctx, items)
		if err != nil {
			return nil, err
		}

		results := make([]ItemResult, 0, len(created))
		for _, it := range created {
			results = append(results, ItemResult{Item: it, ExpectedNotes: a.expectedNotesFor(ctx, it)})
		}
		return ok("items created", results), nil
	})
	return respond(resp, err)
}

func (a *API) updateItems(ctx context.Context, req ManageItemsRequest) *Response {
	entityIDs := make([]string, 0, len(req.Items))
	for _, in := range req.Items {
		entityIDs = append(entityIDs, in.ID)
	}
	resp, err := a.withLock(types.OpWrite, entityIDs, req.SessionID, func() (*Response, error) {
		patches := make([]store.ItemPatch, 0, len(req.Items))
		for _, in := range req.Items {
			patches = append(patches, store.ItemPatch{
				ID:                   in.ID,
				Title:                in.Title,
				Summary:              in.Summary,
				Description:          in.Description,
				ParentID:             in.ParentID,
				Priority:             in.Priority,
				Complexity:           in.Complexity,
				Tags:                 in.Tags,
				RequiresVerification: in.RequiresVerification,
			})
		}
		updated, err := a.store.UpdateItems(ctx, patches)
		if err != nil {
			return nil, err
		}
		results := make([]ItemResult, 0, len(updated))
		for _, it := range updated {
			results = append(results, ItemResult{Item: it, ExpectedNotes: a.expectedNotesFor(ctx, it)})
		}
		return ok("items updated", results), nil
	})
	return respond(resp, err)
}

func (a *API) deleteItems(ctx context.Context, req ManageItemsRequest) *Response {
	kind := types.OpDelete
	if req.Recursive {
		kind = types.OpStructureChange
	}
	resp, err := a.withLock(kind, req.IDs, req.SessionID, func() (*Response, error) {
		deleted, err := a.store.DeleteItems(ctx, req.IDs, req.Recursive)
		if err != nil {
			return nil, err
		}
		return ok("items deleted", map[string]any{"deletedIds": deleted, "count": len(deleted)}), nil
	})
	return respond(resp, err)
}

// respond normalizes the (resp, err) pair withLock's body returns: a
// structured AppError becomes a failed Response, any other error
// propagates as a generic internal failure.
func respond(resp *Response, err error) *Response {
	if err != nil {
		if ae := types.AsAppError(err); ae != nil {
			return fail(ae)
		}
		return fail(types.WrapError(types.ErrInternal, "operation failed", err))
	}
	return resp
}
