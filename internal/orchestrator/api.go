// Package orchestrator composes Store, WorkflowConfig, DependencyEngine,
// RoleMachine, NoteGate, CascadeEngine, and LockManager into the 13-operation
// outward surface described in spec §4.8/§6.1. Every state-changing
// operation follows the same shape: parse & validate, acquire a lock over
// the affected entity ids, read state, delegate to the relevant component,
// write state (role changes also append TransitionRecords and run
// cascades), release the lock, and build a response that carries
// expectedNotes/unblockedItems/cascadeEvents where they apply. The read-only
// query operations take no lock. The envelope is directly grounded on
// untoldecay-BeadsLog's
// internal/rpc/protocol.go Request/Response shape.
package orchestrator

import (
	"context"

	"github.com/taskgraph/orchestrator/internal/cascade"
	"github.com/taskgraph/orchestrator/internal/config"
	"github.com/taskgraph/orchestrator/internal/graph"
	"github.com/taskgraph/orchestrator/internal/lockmanager"
	"github.com/taskgraph/orchestrator/internal/notegate"
	"github.com/taskgraph/orchestrator/internal/rolemachine"
	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

// API is the OrchestratorAPI. It holds no request-scoped state; one
// instance is shared across all callers.
type API struct {
	store   store.Store
	cfg     *config.Manager
	deps    *graph.Engine
	roles   *rolemachine.Machine
	notes   *notegate.Gate
	cascade *cascade.Engine
	locks   *lockmanager.Manager
}

// New wires the full operation surface over an already-open Store and an
// already-started config.Manager.
func New(s store.Store, cfg *config.Manager, locks *lockmanager.Manager) *API {
	deps := graph.New(s)
	gate := notegate.New(s)
	roles := rolemachine.New(s, gate, deps)
	return &API{
		store:   s,
		cfg:     cfg,
		deps:    deps,
		roles:   roles,
		notes:   gate,
		cascade: cascade.New(s, roles),
		locks:   locks,
	}
}

// Response is the common envelope every operation returns, per spec §6.1.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is Response.Error's shape: a structured AppError flattened for
// wire transport.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func ok(message string, data interface{}) *Response {
	return &Response{Success: true, Message: message, Data: data}
}

func fail(ae *types.AppError) *Response {
	return &Response{
		Success: false,
		Error:   &ErrorBody{Code: string(ae.Code), Message: ae.Message, Details: ae.Details},
	}
}

// withLock wraps op's body with a LockManager admission for the given
// operation kind and entity id set, per spec §4.8 step 2/7: acquire
// before reading/writing, release once the body returns (success or
// error); Go's defer stands in for the teacher's suspension-point
// cancellation-safe unlock pattern.
func (a *API) withLock(kind types.OperationKind, entityIDs []string, sessionID string, op func() (*Response, error)) (*Response, error) {
	acq, aerr := a.locks.Acquire(kind, entityIDs, sessionID)
	if aerr != nil {
		if ae := types.AsAppError(aerr); ae != nil {
			return fail(ae), nil
		}
		return nil, aerr
	}
	if acq.Lock == nil {
		return &Response{
			Success: false,
			Error: &ErrorBody{
				Code:    string(types.ErrConflict),
				Message: "conflicting lock held",
				Details: map[string]any{"conflicts": acq.Conflicts},
			},
		}, nil
	}
	defer a.locks.Release(acq.Lock.ID)
	return op()
}

func (a *API) workflowConfig() *config.WorkflowConfig {
	a.cfg.MaybeReload()
	return a.cfg.Current()
}

// expectedNotesFor builds the expectedNotes report for an item, swallowing
// the (rare) store error into an empty slice since this is a best-effort
// status supplement on an otherwise-successful response.
func (a *API) expectedNotesFor(ctx context.Context, item *types.WorkItem) []types.ExpectedNote {
	en, err := a.notes.ExpectedNotes(ctx, item, a.workflowConfig())
	if err != nil {
		return nil
	}
	return en
}
