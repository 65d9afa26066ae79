package lockmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskgraph/orchestrator/internal/types"
)

func TestAcquireGrantsNonConflictingReads(t *testing.T) {
	m := New()
	res, err := m.Acquire(types.OpRead, []string{"item-1"}, "session-a")
	require.NoError(t, err)
	require.NotNil(t, res.Lock)
	require.Empty(t, res.Conflicts)

	res2, err := m.Acquire(types.OpRead, []string{"item-1"}, "session-b")
	require.NoError(t, err)
	require.NotNil(t, res2.Lock, "READ does not conflict with a held READ")
}

func TestAcquireRejectsOverlappingWrites(t *testing.T) {
	m := New()
	first, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-a")
	require.NoError(t, err)
	require.NotNil(t, first.Lock)

	second, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-b")
	require.NoError(t, err)
	require.Nil(t, second.Lock)
	require.Len(t, second.Conflicts, 1)
	require.Equal(t, first.Lock.ID, second.Conflicts[0].ID)
}

func TestAcquireAllowsNonOverlappingEntitySets(t *testing.T) {
	m := New()
	first, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-a")
	require.NoError(t, err)
	require.NotNil(t, first.Lock)

	second, err := m.Acquire(types.OpWrite, []string{"item-2"}, "session-b")
	require.NoError(t, err)
	require.NotNil(t, second.Lock, "disjoint entity sets never conflict regardless of kind")
}

func TestAcquireDeleteConflictsWithEverything(t *testing.T) {
	m := New()
	read, err := m.Acquire(types.OpRead, []string{"item-1"}, "session-a")
	require.NoError(t, err)
	require.NotNil(t, read.Lock)

	del, err := m.Acquire(types.OpDelete, []string{"item-1"}, "session-b")
	require.NoError(t, err)
	require.Nil(t, del.Lock)
	require.Len(t, del.Conflicts, 1)
}

func TestAcquireRejectsUnknownOperationKind(t *testing.T) {
	m := New()
	_, err := m.Acquire(types.OperationKind("BOGUS"), []string{"item-1"}, "session-a")
	require.Error(t, err)
	ae := types.AsAppError(err)
	require.NotNil(t, ae)
	require.Equal(t, types.ErrValidation, ae.Code)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := New()
	res, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-a")
	require.NoError(t, err)

	m.Release(res.Lock.ID)
	require.Empty(t, m.Active())

	m.Release(res.Lock.ID) // releasing twice must not panic
	m.Release("never-existed")
}

func TestReleaseFreesTheEntitySetForNewAcquires(t *testing.T) {
	m := New()
	first, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-a")
	require.NoError(t, err)
	m.Release(first.Lock.ID)

	second, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-b")
	require.NoError(t, err)
	require.NotNil(t, second.Lock)
}

func TestSweepExpiresLocksPastTTL(t *testing.T) {
	m := NewWithTTL(time.Millisecond)
	_, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-a")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	cleared := m.Sweep()
	require.Equal(t, 1, cleared)
	require.Empty(t, m.Active())
}

func TestAcquireSweepsExpiredLocksBeforeCheckingConflicts(t *testing.T) {
	m := NewWithTTL(time.Millisecond)
	_, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-a")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second, err := m.Acquire(types.OpWrite, []string{"item-1"}, "session-b")
	require.NoError(t, err)
	require.NotNil(t, second.Lock, "the expired write lock must not block a fresh acquire")
}

func TestActiveReturnsSortedSnapshot(t *testing.T) {
	m := New()
	_, err := m.Acquire(types.OpRead, []string{"item-1"}, "session-a")
	require.NoError(t, err)
	_, err = m.Acquire(types.OpRead, []string{"item-2"}, "session-b")
	require.NoError(t, err)

	active := m.Active()
	require.Len(t, active, 2)
	require.True(t, active[0].ID < active[1].ID)
}
