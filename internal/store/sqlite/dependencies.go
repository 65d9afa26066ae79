package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

func scanDependency(row interface{ Scan(...any) error }) (*types.Dependency, error) {
	var d types.Dependency
	var unblockAt sql.NullString
	if err := row.Scan(&d.ID, &d.FromItemID, &d.ToItemID, &d.Type, &unblockAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	if unblockAt.Valid {
		r := types.Role(unblockAt.String)
		d.UnblockAt = &r
	}
	return &d, nil
}

const dependencyColumns = `id, from_item_id, to_item_id, type, unblock_at, created_at`

func (s *Store) ListAllDependencyEdges(ctx context.Context) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+dependencyColumns+` FROM dependencies ORDER BY created_at`)
	if err != nil {
		return nil, wrapDBError("list dependency edges", err)
	}
	defer rows.Close()
	var out []*types.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListDependencies(ctx context.Context, itemID string, direction store.DependencyDirection, typeFilter *types.DependencyType) ([]*types.Dependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM dependencies WHERE `
	args := []any{}
	switch direction {
	case store.DirectionIncoming:
		query += `to_item_id = ?`
		args = append(args, itemID)
	case store.DirectionOutgoing:
		query += `from_item_id = ?`
		args = append(args, itemID)
	default:
		query += `(from_item_id = ? OR to_item_id = ?)`
		args = append(args, itemID, itemID)
	}
	if typeFilter != nil {
		query += ` AND type = ?`
		args = append(args, string(*typeFilter))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list dependencies", err)
	}
	defer rows.Close()
	var out []*types.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertDependencies performs no validation; DependencyEngine has already
// run the incremental cycle check against ListAllDependencyEdges plus this
// proposed batch. The insert is all-or-nothing via a single transaction.
func (s *Store) InsertDependencies(ctx context.Context, deps []*types.Dependency) ([]*types.Dependency, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]*types.Dependency, 0, len(deps))
	for _, d := range deps {
		if d.ID == "" {
			d.ID = types.NewID()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now()
		}
		var unblockAt any
		if d.UnblockAt != nil {
			unblockAt = string(*d.UnblockAt)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dependencies (id, from_item_id, to_item_id, type, unblock_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, d.FromItemID, d.ToItemID, string(d.Type), unblockAt, d.CreatedAt); err != nil {
			return nil, wrapDBError("insert dependency", err)
		}
		out = append(out, d)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("commit transaction", err)
	}
	return out, nil
}

func (s *Store) DeleteDependencies(ctx context.Context, spec store.DependencyDeleteSpec) ([]*types.Dependency, error) {
	var toDelete []*types.Dependency
	var err error
	switch {
	case spec.ID != "":
		row := s.db.QueryRowContext(ctx, `SELECT `+dependencyColumns+` FROM dependencies WHERE id = ?`, spec.ID)
		d, scanErr := scanDependency(row)
		if isNoRows(scanErr) {
			return nil, nil
		} else if scanErr != nil {
			return nil, wrapDBError("lookup dependency", scanErr)
		}
		toDelete = []*types.Dependency{d}
	case spec.ItemID != "":
		toDelete, err = s.ListDependencies(ctx, spec.ItemID, store.DirectionAll, nil)
	case spec.FromItemID != "" && spec.ToItemID != "":
		query := `SELECT ` + dependencyColumns + ` FROM dependencies WHERE from_item_id = ? AND to_item_id = ?`
		args := []any{spec.FromItemID, spec.ToItemID}
		if spec.Type != nil {
			query += ` AND type = ?`
			args = append(args, string(*spec.Type))
		}
		rows, qerr := s.db.QueryContext(ctx, query, args...)
		if qerr != nil {
			return nil, wrapDBError("lookup dependencies", qerr)
		}
		defer rows.Close()
		for rows.Next() {
			d, serr := scanDependency(rows)
			if serr != nil {
				return nil, wrapDBError("scan dependency", serr)
			}
			toDelete = append(toDelete, d)
		}
		err = rows.Err()
	}
	if err != nil {
		return nil, err
	}
	if len(toDelete) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, d := range toDelete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, d.ID); err != nil {
			return nil, wrapDBError("delete dependency", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("commit transaction", err)
	}
	return toDelete, nil
}
