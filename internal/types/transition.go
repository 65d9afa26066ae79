package types

import "time"

// TransitionRecord is an append-only log entry written on every applied
// role change.
type TransitionRecord struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"itemId"`
	PreviousRole Role      `json:"previousRole"`
	NewRole      Role      `json:"newRole"`
	Trigger      Trigger   `json:"trigger"`
	At           time.Time `json:"at"`
	Summary      string    `json:"summary,omitempty"`
}

// TransitionEvent is what RoleMachine emits on a successful transition,
// consumed by CascadeEngine and turned into a TransitionRecord by the
// caller (OrchestratorAPI) after it has persisted the item.
type TransitionEvent struct {
	ItemID       string
	PreviousRole Role
	NewRole      Role
	Trigger      Trigger
}
