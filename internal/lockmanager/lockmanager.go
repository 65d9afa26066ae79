// Package lockmanager provides LockManager: atomic, in-process admission
// control over overlapping entity-id sets, keyed by OperationKind. It
// deliberately keeps its table in memory only; per spec §6.3 a restart
// does not preserve Locks, so there is nothing to persist through Store.
// Grounded on the teacher's cmd/bd/daemon_lock.go PID+TTL admission idiom,
// reshaped into a finer-grained entity-set/operation-kind conflict matrix.
package lockmanager

import (
	"sort"
	"sync"
	"time"

	"github.com/taskgraph/orchestrator/internal/types"
)

// Manager is the process-wide lock table. All state is protected by a
// single mutex, matching spec §4.7's "under a single process-wide mutex"
// acquire procedure.
type Manager struct {
	mu    sync.Mutex
	ttl   time.Duration
	locks map[string]*types.Lock
}

func New() *Manager {
	return &Manager{ttl: types.DefaultLockTTL, locks: make(map[string]*types.Lock)}
}

// NewWithTTL overrides the default expiry, for tests that want to exercise
// sweep behavior without sleeping.
func NewWithTTL(ttl time.Duration) *Manager {
	return &Manager{ttl: ttl, locks: make(map[string]*types.Lock)}
}

// AcquireResult is the outcome of an Acquire call.
type AcquireResult struct {
	Lock      *types.Lock
	Conflicts []*types.Lock
}

// Acquire sweeps expired locks, checks the incoming operation against
// every currently-held lock via conflictMatrix, and either admits a new
// lock or returns the conflicting set untouched.
func (m *Manager) Acquire(kind types.OperationKind, entityIDs []string, sessionID string) (*AcquireResult, error) {
	if !kind.Valid() {
		return nil, types.NewError(types.ErrValidation, "unknown operation kind").WithDetail("operationKind", string(kind))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.sweepLocked(now)

	incoming := toSet(entityIDs)
	var conflicts []*types.Lock
	for _, held := range m.locks {
		if !conflictMatrix[kind][held.OperationKind] {
			continue
		}
		if intersects(incoming, held.EntityIDs) {
			conflicts = append(conflicts, held)
		}
	}
	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ID < conflicts[j].ID })
		return &AcquireResult{Conflicts: conflicts}, nil
	}

	lock := &types.Lock{
		ID:            types.NewID(),
		OperationKind: kind,
		EntityIDs:     append([]string(nil), entityIDs...),
		AcquiredAt:    now,
		ExpiresAt:     now.Add(m.ttl),
		SessionID:     sessionID,
	}
	m.locks[lock.ID] = lock
	return &AcquireResult{Lock: lock}, nil
}

// Release drops a lock; releasing an unknown or already-released id is a
// no-op, per spec's idempotence guarantee.
func (m *Manager) Release(lockID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, lockID)
}

// Sweep drops every lock whose ExpiresAt has passed, independent of an
// acquire call; used by the background sweeper in cmd/taskorchestratord.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.locks)
	m.sweepLocked(time.Now())
	return before - len(m.locks)
}

// Active returns a snapshot of every currently-held, unexpired lock, for
// get_context's health-check mode and Scenario 6-style diagnostics.
func (m *Manager) Active() []*types.Lock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(time.Now())
	out := make([]*types.Lock, 0, len(m.locks))
	for _, l := range m.locks {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) sweepLocked(now time.Time) {
	for id, l := range m.locks {
		if l.Expired(now) {
			delete(m.locks, id)
		}
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func intersects(set map[string]struct{}, ids []string) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// conflictMatrix[incoming][held] reports whether an incoming operation of
// kind S conflicts with an already-held lock of kind T, per spec §4.7's
// table. READ never conflicts with READ, WRITE, CREATE, or SECTION_EDIT;
// DELETE and STRUCTURE_CHANGE conflict with everything.
var conflictMatrix = map[types.OperationKind]map[types.OperationKind]bool{
	types.OpRead: {
		types.OpDelete:          true,
		types.OpStructureChange: true,
	},
	types.OpWrite: {
		types.OpWrite:           true,
		types.OpDelete:          true,
		types.OpStructureChange: true,
	},
	types.OpCreate: {
		types.OpCreate:          true,
		types.OpDelete:          true,
		types.OpStructureChange: true,
	},
	types.OpDelete: {
		types.OpRead:            true,
		types.OpWrite:           true,
		types.OpCreate:          true,
		types.OpDelete:          true,
		types.OpSectionEdit:     true,
		types.OpStructureChange: true,
	},
	types.OpSectionEdit: {
		types.OpDelete:          true,
		types.OpStructureChange: true,
	},
	types.OpStructureChange: {
		types.OpRead:            true,
		types.OpWrite:           true,
		types.OpCreate:          true,
		types.OpDelete:          true,
		types.OpSectionEdit:     true,
		types.OpStructureChange: true,
	},
}
