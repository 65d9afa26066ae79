package types

import "time"

// WorkItem is the single unit of work in the graph: a node that advances
// through a workflow-configurable sequence of roles.
type WorkItem struct {
	ID                   string    `json:"id"`
	ParentID             *string   `json:"parentId,omitempty"`
	Depth                int       `json:"depth"`
	Title                string    `json:"title"`
	Summary              string    `json:"summary,omitempty"`
	Description          string    `json:"description,omitempty"`
	Role                 Role      `json:"role"`
	PreviousRole         *Role     `json:"previousRole,omitempty"`
	StatusLabel          string    `json:"statusLabel,omitempty"`
	Priority             Priority  `json:"priority"`
	Complexity           *int      `json:"complexity,omitempty"`
	Tags                 []string  `json:"tags,omitempty"`
	RequiresVerification bool      `json:"requiresVerification"`
	CreatedAt            time.Time `json:"createdAt"`
	ModifiedAt           time.Time `json:"modifiedAt"`
	RoleChangedAt        time.Time `json:"roleChangedAt"`
}

// Validate checks the invariants that are cheap to check in isolation
// (depth cap, BLOCKED/previousRole pairing, non-empty title). Invariants
// that need the parent's record (parent depth, parent existence) are
// checked by the Store/OrchestratorAPI where the parent is already loaded.
func (w *WorkItem) Validate() *AppError {
	if w.Title == "" {
		return NewError(ErrValidation, "title is required")
	}
	if w.Depth < 0 || w.Depth > MaxDepth {
		return NewError(ErrValidation, "depth exceeds maximum").WithDetail("maxDepth", MaxDepth)
	}
	if !w.Role.Valid() {
		return NewError(ErrValidation, "invalid role").WithDetail("role", string(w.Role))
	}
	if w.Role == RoleBlocked && w.PreviousRole == nil {
		return NewError(ErrValidation, "blocked item must carry previousRole")
	}
	if w.Role != RoleBlocked && w.PreviousRole != nil {
		return NewError(ErrValidation, "previousRole must be empty outside BLOCKED")
	}
	if w.Priority == "" {
		w.Priority = PriorityMedium
	}
	if !w.Priority.Valid() {
		return NewError(ErrValidation, "invalid priority").WithDetail("priority", string(w.Priority))
	}
	if w.Complexity != nil && (*w.Complexity < 1 || *w.Complexity > 10) {
		return NewError(ErrValidation, "complexity must be between 1 and 10")
	}
	return nil
}

// IsTerminal reports whether the item has reached TERMINAL, after which it
// never transitions again; even cancel rejects a TERMINAL item with
// STATE_ERROR.
func (w *WorkItem) IsTerminal() bool {
	return w.Role == RoleTerminal
}
