package sqlite

import (
	"context"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

func scanNote(row interface{ Scan(...any) error }) (*types.Note, error) {
	n := &types.Note{}
	if err := row.Scan(&n.ID, &n.ItemID, &n.Key, &n.Role, &n.Body); err != nil {
		return nil, err
	}
	return n, nil
}

// UpsertNote enforces (itemId,key) uniqueness and preserves the id across
// an update, per spec §4.1, mirrored here via a SELECT-then-
// INSERT-or-UPDATE since SQLite's UPSERT needs a matching unique index,
// which the schema already declares on (item_id, key).
func (s *Store) UpsertNote(ctx context.Context, note *types.Note) (*types.Note, error) {
	if _, err := s.GetItem(ctx, note.ItemID); err != nil {
		return nil, err
	}

	var existingID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM notes WHERE item_id = ? AND key = ?`, note.ItemID, note.Key).Scan(&existingID)
	switch {
	case isNoRows(err):
		if note.ID == "" {
			note.ID = types.NewID()
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO notes (id, item_id, key, role, body) VALUES (?, ?, ?, ?, ?)`,
			note.ID, note.ItemID, note.Key, string(note.Role), note.Body); err != nil {
			return nil, wrapDBError("insert note", err)
		}
	case err != nil:
		return nil, wrapDBError("lookup note", err)
	default:
		note.ID = existingID
		if _, err := s.db.ExecContext(ctx, `UPDATE notes SET role = ?, body = ? WHERE id = ?`,
			string(note.Role), note.Body, note.ID); err != nil {
			return nil, wrapDBError("update note", err)
		}
	}
	return note, nil
}

func (s *Store) DeleteNotes(ctx context.Context, spec store.NoteDeleteSpec) (int, error) {
	var res interface {
		RowsAffected() (int64, error)
	}
	var err error
	switch {
	case spec.ID != "":
		res, err = s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, spec.ID)
	case spec.ItemID != "" && spec.Key != "":
		res, err = s.db.ExecContext(ctx, `DELETE FROM notes WHERE item_id = ? AND key = ?`, spec.ItemID, spec.Key)
	case spec.ItemID != "":
		res, err = s.db.ExecContext(ctx, `DELETE FROM notes WHERE item_id = ?`, spec.ItemID)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, wrapDBError("delete notes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("count deleted notes", err)
	}
	return int(n), nil
}

func (s *Store) GetNote(ctx context.Context, id string) (*types.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, item_id, key, role, body FROM notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if isNoRows(err) {
		return nil, types.NewError(types.ErrNotFound, "note not found").WithDetail("id", id)
	} else if err != nil {
		return nil, wrapDBError("lookup note", err)
	}
	return note, nil
}

func (s *Store) GetNoteByKey(ctx context.Context, itemID, key string) (*types.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, item_id, key, role, body FROM notes WHERE item_id = ? AND key = ?`, itemID, key)
	note, err := scanNote(row)
	if isNoRows(err) {
		return nil, types.NewError(types.ErrNotFound, "note not found").WithDetail("itemId", itemID).WithDetail("key", key)
	} else if err != nil {
		return nil, wrapDBError("lookup note", err)
	}
	return note, nil
}

func (s *Store) ListNotes(ctx context.Context, itemID string, role *types.Role) ([]*types.Note, error) {
	query := `SELECT id, item_id, key, role, body FROM notes WHERE item_id = ?`
	args := []any{itemID}
	if role != nil {
		query += ` AND role = ?`
		args = append(args, string(*role))
	}
	query += ` ORDER BY key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list notes", err)
	}
	defer rows.Close()
	var out []*types.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, wrapDBError("scan note", err)
		}
		out = append(out, note)
	}
	return out, rows.Err()
}
