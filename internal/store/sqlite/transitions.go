package sqlite

import (
	"context"
	"time"

	"github.com/taskgraph/orchestrator/internal/types"
)

func scanTransition(row interface{ Scan(...any) error }) (*types.TransitionRecord, error) {
	t := &types.TransitionRecord{}
	if err := row.Scan(&t.ID, &t.ItemID, &t.PreviousRole, &t.NewRole, &t.Trigger, &t.At, &t.Summary); err != nil {
		return nil, err
	}
	return t, nil
}

const transitionColumns = `id, item_id, previous_role, new_role, trigger, at, summary`

func (s *Store) AppendTransition(ctx context.Context, record *types.TransitionRecord) error {
	if record.ID == "" {
		record.ID = types.NewID()
	}
	if record.At.IsZero() {
		record.At = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (id, item_id, previous_role, new_role, trigger, at, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ItemID, string(record.PreviousRole), string(record.NewRole), string(record.Trigger), record.At, record.Summary); err != nil {
		return wrapDBError("append transition", err)
	}
	return nil
}

func (s *Store) ListTransitions(ctx context.Context, itemID string, since *time.Time) ([]*types.TransitionRecord, error) {
	query := `SELECT ` + transitionColumns + ` FROM transitions WHERE item_id = ?`
	args := []any{itemID}
	if since != nil {
		query += ` AND at >= ?`
		args = append(args, *since)
	}
	query += ` ORDER BY at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list transitions", err)
	}
	defer rows.Close()
	var out []*types.TransitionRecord
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, wrapDBError("scan transition", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) RecentTransitions(ctx context.Context, since time.Time) ([]*types.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+transitionColumns+` FROM transitions WHERE at >= ? ORDER BY at`, since)
	if err != nil {
		return nil, wrapDBError("list recent transitions", err)
	}
	defer rows.Close()
	var out []*types.TransitionRecord
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, wrapDBError("scan transition", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
