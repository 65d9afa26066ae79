package types

import "github.com/google/uuid"

// MaxDepth is the maximum nesting level for a WorkItem hierarchy. A root
// item sits at depth 0; its great-grandchildren sit at depth 3, which is
// as deep as the graph is allowed to go.
const MaxDepth = 3

// NewID returns a fresh 128-bit identifier suitable for any entity in the
// graph (WorkItem, Note, Dependency, TransitionRecord, Lock).
func NewID() string {
	return uuid.NewString()
}

// CheckDepth reports whether a child placed under a parent at parentDepth
// would stay within MaxDepth.
func CheckDepth(parentDepth int) error {
	childDepth := parentDepth + 1
	if childDepth > MaxDepth {
		return NewError(ErrValidation, "maximum work item depth exceeded").
			WithDetail("maxDepth", MaxDepth).
			WithDetail("attemptedDepth", childDepth)
	}
	return nil
}
