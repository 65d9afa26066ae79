package orchestrator

import (
	"context"
	"time"

	"github.com/taskgraph/orchestrator/internal/types"
)

// QueryItemsRequest is query_items's wire input. Mode selects get/search/overview.
type QueryItemsRequest struct {
	Mode     string   `json:"mode"` // get | search | overview
	IDs      []string `json:"ids,omitempty"`
	ItemID   *string  `json:"itemId,omitempty"` // overview scope, or tree-view root

	// search filters
	ParentID      *string       `json:"parentId,omitempty"`
	Depth         *int          `json:"depth,omitempty"`
	Role          *types.Role   `json:"role,omitempty"`
	Priority      *types.Priority `json:"priority,omitempty"`
	TagsAny       []string      `json:"tagsAny,omitempty"`
	TextMatch     string        `json:"textMatch,omitempty"`
	CreatedAfter  *time.Time    `json:"createdAfter,omitempty"`
	CreatedBefore *time.Time    `json:"createdBefore,omitempty"`

	SortField  types.SortField `json:"sortField,omitempty"`
	Descending bool            `json:"descending,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

func (a *API) QueryItems(ctx context.Context, req QueryItemsRequest) *Response {
	switch req.Mode {
	case "get":
		items, err := a.store.GetItems(ctx, req.IDs)
		if err != nil {
			return respond(nil, err)
		}
		return ok("items fetched", items)

	case "overview":
		result, err := a.store.Overview(ctx, req.ItemID)
		if err != nil {
			return respond(nil, err)
		}
		return ok("overview", result)

	case "search":
		filter := types.SearchFilter{
			ParentID:  req.ParentID,
			Depth:     req.Depth,
			Role:      req.Role,
			Priority:  req.Priority,
			TagsAny:   req.TagsAny,
			TextMatch: req.TextMatch,
		}
		if req.CreatedAfter != nil {
			filter.CreatedRange.After = *req.CreatedAfter
		}
		if req.CreatedBefore != nil {
			filter.CreatedRange.Before = *req.CreatedBefore
		}
		sortField := req.SortField
		if sortField == "" {
			sortField = types.SortCreatedAt
		}
		items, err := a.store.SearchItems(ctx, filter, types.SortSpec{Field: sortField, Descending: req.Descending}, req.Limit, req.Offset)
		if err != nil {
			return respond(nil, err)
		}
		return ok("search results", items)

	default:
		return fail(types.NewError(types.ErrValidation, "unknown query_items mode").WithDetail("mode", req.Mode))
	}
}
