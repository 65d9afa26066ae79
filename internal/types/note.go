package types

import "strings"

// Note is keyed text attached to a WorkItem; (itemId, key) is unique.
type Note struct {
	ID     string `json:"id"`
	ItemID string `json:"itemId"`
	Key    string `json:"key"`
	Role   Role   `json:"role"`
	Body   string `json:"body"`
}

// Filled reports whether the note counts as satisfying a gate: an empty
// or whitespace-only body is treated as unfilled.
func (n *Note) Filled() bool {
	return strings.TrimSpace(n.Body) != ""
}

// NoteSpec describes one required (or optional) note slot in a workflow's
// note schema, as loaded from config.
type NoteSpec struct {
	Key         string `yaml:"key" json:"key"`
	Role        Role   `yaml:"role" json:"role"`
	Required    bool   `yaml:"required" json:"required"`
	Description string `yaml:"description" json:"description,omitempty"`
	Guidance    string `yaml:"guidance" json:"guidance,omitempty"`
}

// ExpectedNote is the per-spec status line returned in API responses so a
// caller can see what documentation is still missing.
type ExpectedNote struct {
	Key         string `json:"key"`
	Role        Role   `json:"role"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	Exists      bool   `json:"exists"`
	Filled      bool   `json:"filled"`
}
