package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/taskgraph/orchestrator/internal/types"
)

// Operation names the 13-operation tool surface a caller selects by
// string, mirroring the teacher's Request.Operation dispatch.
type Operation string

const (
	OpManageItems        Operation = "manage_items"
	OpQueryItems         Operation = "query_items"
	OpCreateWorkTree     Operation = "create_work_tree"
	OpCompleteTree       Operation = "complete_tree"
	OpManageNotes        Operation = "manage_notes"
	OpQueryNotes         Operation = "query_notes"
	OpManageDependencies Operation = "manage_dependencies"
	OpQueryDependencies  Operation = "query_dependencies"
	OpAdvanceItem        Operation = "advance_item"
	OpGetNextStatus      Operation = "get_next_status"
	OpGetContext         Operation = "get_context"
	OpGetNextItem        Operation = "get_next_item"
	OpGetBlockedItems    Operation = "get_blocked_items"
)

// Request is one call into Dispatch: an operation name plus its
// operation-specific argument object, still encoded.
type Request struct {
	Operation Operation       `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Dispatch decodes args into the request struct Operation names, calls
// the matching API method, and returns its Response. This is the single
// seam a transport (unix socket, stdio, HTTP) wraps; it never returns a
// bare error, since a malformed request is itself a valid Response.
func (a *API) Dispatch(ctx context.Context, operation Operation, args json.RawMessage) *Response {
	switch operation {
	case OpManageItems:
		var req ManageItemsRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.ManageItems(ctx, req)

	case OpQueryItems:
		var req QueryItemsRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.QueryItems(ctx, req)

	case OpCreateWorkTree:
		var req CreateWorkTreeRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.CreateWorkTree(ctx, req)

	case OpCompleteTree:
		var req CompleteTreeRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.CompleteTree(ctx, req)

	case OpManageNotes:
		var req ManageNotesRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.ManageNotes(ctx, req)

	case OpQueryNotes:
		var req QueryNotesRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.QueryNotes(ctx, req)

	case OpManageDependencies:
		var req ManageDependenciesRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.ManageDependencies(ctx, req)

	case OpQueryDependencies:
		var req QueryDependenciesRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.QueryDependencies(ctx, req)

	case OpAdvanceItem:
		var req AdvanceItemRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.AdvanceItem(ctx, req)

	case OpGetNextStatus:
		var req GetNextStatusRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.GetNextStatus(ctx, req)

	case OpGetContext:
		var req GetContextRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.GetContext(ctx, req)

	case OpGetNextItem:
		var req GetNextItemRequest
		if resp, ok := decode(args, &req); !ok {
			return resp
		}
		return a.GetNextItem(ctx, req)

	case OpGetBlockedItems:
		return a.GetBlockedItems(ctx)

	default:
		return fail(types.NewError(types.ErrValidation, "unknown operation").WithDetail("operation", string(operation)))
	}
}

// decode unmarshals args into out, returning ok=false with a ready-made
// failure Response on malformed input.
func decode(args json.RawMessage, out interface{}) (*Response, bool) {
	if len(args) == 0 {
		return nil, true
	}
	if err := json.Unmarshal(args, out); err != nil {
		return fail(types.NewError(types.ErrValidation, "invalid request arguments: "+err.Error())), false
	}
	return nil, true
}
