package orchestrator

import (
	"context"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// ManageNotesRequest is manage_notes's wire input.
type ManageNotesRequest struct {
	Operation string  `json:"operation"` // upsert | delete
	ID        string  `json:"id,omitempty"`
	ItemID    string  `json:"itemId,omitempty"`
	Key       string  `json:"key,omitempty"`
	Role      types.Role `json:"role,omitempty"`
	Body      string  `json:"body,omitempty"`
	SessionID string  `json:"sessionId,omitempty"`
}

func (a *API) ManageNotes(ctx context.Context, req ManageNotesRequest) *Response {
	switch req.Operation {
	case "upsert":
		resp, err := a.withLock(types.OpSectionEdit, []string{req.ItemID}, req.SessionID, func() (*Response, error) {
			note := &types.Note{ID: req.ID, ItemID: req.ItemID, Key: req.Key, Role: req.Role, Body: req.Body}
			saved, err := a.store.UpsertNote(ctx, note)
			if err != nil {
				return nil, err
			}
			return ok("note upserted", saved), nil
		})
		return respond(resp, err)

	case "delete":
		entityID := req.ItemID
		if entityID == "" {
			entityID = req.ID
		}
		resp, err := a.withLock(types.OpSectionEdit, []string{entityID}, req.SessionID, func() (*Response, error) {
			count, err := a.store.DeleteNotes(ctx, store.NoteDeleteSpec{ID: req.ID, ItemID: req.ItemID, Key: req.Key})
			if err != nil {
				return nil, err
			}
			return ok("notes deleted", map[string]any{"count": count}), nil
		})
		return respond(resp, err)

	default:
		return fail(types.NewError(types.ErrValidation, "unknown manage_notes operation").WithDetail("operation", req.Operation))
	}
}

// QueryNotesRequest is query_notes's wire input.
type QueryNotesRequest struct {
	Mode        string      `json:"mode"` // get | list
	ID          string      `json:"id,omitempty"`
	ItemID      string      `json:"itemId,omitempty"`
	Role        *types.Role `json:"role,omitempty"`
	IncludeBody bool        `json:"includeBody,omitempty"`
}

func (a *API) QueryNotes(ctx context.Context, req QueryNotesRequest) *Response {
	switch req.Mode {
	case "get":
		note, err := a.store.GetNote(ctx, req.ID)
		if err != nil {
			return respond(nil, err)
		}
		return ok("note fetched", redactBody(note, req.IncludeBody))

	case "list":
		notes, err := a.store.ListNotes(ctx, req.ItemID, req.Role)
		if err != nil {
			return respond(nil, err)
		}
		out := make([]*types.Note, len(notes))
		for i, n := range notes {
			out[i] = redactBody(n, req.IncludeBody)
		}
		return ok("notes listed", out)

	default:
		return fail(types.NewError(types.ErrValidation, "unknown query_notes mode").WithDetail("mode", req.Mode))
	}
}

// redactBody blanks a note's body when the caller didn't ask for it,
// keeping list responses lightweight per spec §6.1's "body inclusion toggle".
func redactBody(n *types.Note, includeBody bool) *types.Note {
	if n == nil || includeBody {
		return n
	}
	cp := *n
	cp.Body = ""
	return &cp
}
