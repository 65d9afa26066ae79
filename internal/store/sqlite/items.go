package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/taskgraph/orchestrator/internal/store"
	"github.com/taskgraph/orchestrator/internal/types"
)

type itemRow struct {
	id                   string
	parentID             sql.NullString
	depth                int
	title                string
	summary              string
	description          string
	role                 string
	previousRole         sql.NullString
	statusLabel          string
	priority             string
	complexity           sql.NullInt64
	tags                 string
	requiresVerification bool
	createdAt            time.Time
	modifiedAt           time.Time
	roleChangedAt        time.Time
}

func scanItem(row interface{ Scan(...any) error }) (*types.WorkItem, error) {
	var r itemRow
	if err := row.Scan(&r.id, &r.parentID, &r.depth, &r.title, &r.summary, &r.description,
		&r.role, &r.previousRole, &r.statusLabel, &r.priority, &r.complexity, &r.tags,
		&r.requiresVerification, &r.createdAt, &r.modifiedAt, &r.roleChangedAt); err != nil {
		return nil, err
	}

	item := &types.WorkItem{
		ID:                   r.id,
		Depth:                r.depth,
		Title:                r.title,
		Summary:              r.summary,
		Description:          r.description,
		Role:                 types.Role(r.role),
		StatusLabel:          r.statusLabel,
		Priority:             types.Priority(r.priority),
		RequiresVerification: r.requiresVerification,
		CreatedAt:            r.createdAt,
		ModifiedAt:           r.modifiedAt,
		RoleChangedAt:        r.roleChangedAt,
	}
	if r.parentID.Valid {
		item.ParentID = &r.parentID.String
	}
	if r.previousRole.Valid {
		pr := types.Role(r.previousRole.String)
		item.PreviousRole = &pr
	}
	if r.complexity.Valid {
		c := int(r.complexity.Int64)
		item.Complexity = &c
	}
	if r.tags != "" {
		var tags []string
		if err := json.Unmarshal([]byte(r.tags), &tags); err == nil {
			item.Tags = tags
		}
	}
	return item, nil
}

const itemColumns = `id, parent_id, depth, title, summary, description, role, previous_role,
	status_label, priority, complexity, tags, requires_verification, created_at, modified_at, role_changed_at`

func (s *Store) CreateItems(ctx context.Context, items []*types.WorkItem) ([]*types.WorkItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]*types.WorkItem, 0, len(items))
	for _, item := range items {
		depth := 0
		if item.ParentID != nil && *item.ParentID != "" {
			var parentDepth int
			err := tx.QueryRowContext(ctx, `SELECT depth FROM work_items WHERE id = ?`, *item.ParentID).Scan(&parentDepth)
			if isNoRows(err) {
				return nil, types.NewError(types.ErrNotFound, "parent item not found").WithDetail("parentId", *item.ParentID)
			} else if err != nil {
				return nil, wrapDBError("lookup parent item", err)
			}
			depth = parentDepth + 1
		}
		if err := types.CheckDepth(depth - 1); err != nil {
			return nil, err
		}
		item.Depth = depth
		if item.ID == "" {
			item.ID = types.NewID()
		}
		now := time.Now()
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.ModifiedAt = now
		if item.RoleChangedAt.IsZero() {
			item.RoleChangedAt = now
		}
		if item.Priority == "" {
			item.Priority = types.PriorityMedium
		}
		if ae := item.Validate(); ae != nil {
			return nil, ae
		}

		tagsJSON, _ := json.Marshal(item.Tags)
		var parentID any
		if item.ParentID != nil {
			parentID = *item.ParentID
		}
		var previousRole any
		if item.PreviousRole != nil {
			previousRole = string(*item.PreviousRole)
		}
		var complexity any
		if item.Complexity != nil {
			complexity = *item.Complexity
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO work_items (id, parent_id, depth, title, summary, description, role,
				previous_role, status_label, priority, complexity, tags, requires_verification,
				created_at, modified_at, role_changed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, parentID, item.Depth, item.Title, item.Summary, item.Description,
			string(item.Role), previousRole, item.StatusLabel, string(item.Priority), complexity,
			string(tagsJSON), item.RequiresVerification, item.CreatedAt, item.ModifiedAt, item.RoleChangedAt)
		if err != nil {
			return nil, wrapDBError("insert work item", err)
		}
		out = append(out, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("commit transaction", err)
	}
	return out, nil
}

func (s *Store) UpdateItems(ctx context.Context, patches []store.ItemPatch) ([]*types.WorkItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]*types.WorkItem, 0, len(patches))
	for _, p := range patches {
		existing, err := getItemTx(ctx, tx, p.ID)
		if err != nil {
			return nil, err
		}

		if p.Title != nil {
			existing.Title = *p.Title
		}
		if p.Summary != nil {
			existing.Summary = *p.Summary
		}
		if p.Description != nil {
			existing.Description = *p.Description
		}
		if p.ParentID != nil {
			if *p.ParentID == store.NullParent {
				existing.ParentID = nil
				existing.Depth = 0
			} else {
				var parentDepth int
				err := tx.QueryRowContext(ctx, `SELECT depth FROM work_items WHERE id = ?`, *p.ParentID).Scan(&parentDepth)
				if isNoRows(err) {
					return nil, types.NewError(types.ErrNotFound, "parent item not found").WithDetail("parentId", *p.ParentID)
				} else if err != nil {
					return nil, wrapDBError("lookup parent item", err)
				}
				parentID := *p.ParentID
				existing.ParentID = &parentID
				existing.Depth = parentDepth + 1
			}
		}
		if p.Role != nil {
			existing.Role = *p.Role
		}
		if p.PreviousRole != nil {
			existing.PreviousRole = *p.PreviousRole
		}
		if p.StatusLabel != nil {
			existing.StatusLabel = *p.StatusLabel
		}
		if p.Priority != nil {
			existing.Priority = *p.Priority
		}
		if p.Complexity != nil {
			existing.Complexity = *p.Complexity
		}
		if p.Tags != nil {
			existing.Tags = append([]string(nil), (*p.Tags)...)
		}
		if p.RequiresVerification != nil {
			existing.RequiresVerification = *p.RequiresVerification
		}
		if p.RoleChangedAt != nil {
			existing.RoleChangedAt = *p.RoleChangedAt
		}
		existing.ModifiedAt = time.Now()

		if ae := existing.Validate(); ae != nil {
			return nil, ae
		}
		if existing.Depth > types.MaxDepth {
			return nil, types.NewError(types.ErrValidation, "depth exceeds maximum").WithDetail("maxDepth", types.MaxDepth)
		}

		tagsJSON, _ := json.Marshal(existing.Tags)
		var parentID any
		if existing.ParentID != nil {
			parentID = *existing.ParentID
		}
		var previousRole any
		if existing.PreviousRole != nil {
			previousRole = string(*existing.PreviousRole)
		}
		var complexity any
		if existing.Complexity != nil {
			complexity = *existing.Complexity
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE work_items SET parent_id=?, depth=?, title=?, summary=?, description=?, role=?,
				previous_role=?, status_label=?, priority=?, complexity=?, tags=?,
				requires_verification=?, modified_at=?, role_changed_at=?
			WHERE id=?`,
			parentID, existing.Depth, existing.Title, existing.Summary, existing.Description,
			string(existing.Role), previousRole, existing.StatusLabel, string(existing.Priority),
			complexity, string(tagsJSON), existing.RequiresVerification, existing.ModifiedAt,
			existing.RoleChangedAt, existing.ID)
		if err != nil {
			return nil, wrapDBError("update work item", err)
		}
		out = append(out, existing)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("commit transaction", err)
	}
	return out, nil
}

func getItemTx(ctx context.Context, tx *sql.Tx, id string) (*types.WorkItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if isNoRows(err) {
		return nil, types.NewError(types.ErrNotFound, "item not found").WithDetail("id", id)
	} else if err != nil {
		return nil, wrapDBError("lookup work item", err)
	}
	return item, nil
}

func childIDsTx(ctx context.Context, tx *sql.Tx, parentID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM work_items WHERE parent_id = ?`, parentID)
	if err != nil {
		return nil, wrapDBError("query children", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan child id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) DeleteItems(ctx context.Context, ids []string, recursive bool) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	toDelete := map[string]struct{}{}
	var walk func(id string) error
	walk = func(id string) error {
		if _, ok := toDelete[id]; ok {
			return nil
		}
		if _, err := getItemTx(ctx, tx, id); err != nil {
			return err
		}
		toDelete[id] = struct{}{}
		children, err := childIDsTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if len(children) > 0 && !recursive {
			return types.NewError(types.ErrConflict, "item has children; recursive delete required").WithDetail("id", id)
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range ids {
		if err := walk(id); err != nil {
			return nil, err
		}
	}

	deleted := make([]string, 0, len(toDelete))
	for id := range toDelete {
		deleted = append(deleted, id)
	}
	if len(deleted) > 0 {
		placeholders := make([]string, len(deleted))
		args := make([]any, len(deleted))
		for i, id := range deleted {
			placeholders[i] = "?"
			args[i] = id
		}
		in := "(" + strings.Join(placeholders, ",") + ")"
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE item_id IN `+in, args...); err != nil {
			return nil, wrapDBError("delete notes", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE from_item_id IN `+in+` OR to_item_id IN `+in, append(append([]any{}, args...), args...)...); err != nil {
			return nil, wrapDBError("delete dependencies", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transitions WHERE item_id IN `+in, args...); err != nil {
			return nil, wrapDBError("delete transitions", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id IN `+in, args...); err != nil {
			return nil, wrapDBError("delete work items", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("commit transaction", err)
	}
	return deleted, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if isNoRows(err) {
		return nil, types.NewError(types.ErrNotFound, "item not found").WithDetail("id", id)
	} else if err != nil {
		return nil, wrapDBError("lookup work item", err)
	}
	return item, nil
}

func (s *Store) GetItems(ctx context.Context, ids []string) ([]*types.WorkItem, error) {
	out := make([]*types.WorkItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) ChildrenOf(ctx context.Context, parentID string) ([]*types.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE parent_id = ? ORDER BY created_at`, parentID)
	if err != nil {
		return nil, wrapDBError("query children", err)
	}
	defer rows.Close()
	var out []*types.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapDBError("scan work item", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// SearchItems builds a dynamic WHERE clause from filter, grounded on the
// teacher's GetReadyWork query-builder idiom (whereClauses []string + args
// []any, joined and appended to positionally).
func (s *Store) SearchItems(ctx context.Context, filter types.SearchFilter, sortSpec types.SortSpec, limit, offset int) ([]*types.WorkItem, error) {
	where := []string{"1=1"}
	var args []any

	if filter.ParentID != nil {
		if *filter.ParentID == store.NullParent {
			where = append(where, "parent_id IS NULL")
		} else {
			where = append(where, "parent_id = ?")
			args = append(args, *filter.ParentID)
		}
	}
	if filter.Depth != nil {
		where = append(where, "depth = ?")
		args = append(args, *filter.Depth)
	}
	if filter.Role != nil {
		where = append(where, "role = ?")
		args = append(args, string(*filter.Role))
	}
	if filter.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, string(*filter.Priority))
	}
	if filter.TextMatch != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(summary) LIKE ?)")
		needle := "%" + strings.ToLower(filter.TextMatch) + "%"
		args = append(args, needle, needle)
	}
	if !filter.CreatedRange.After.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedRange.After)
	}
	if !filter.CreatedRange.Before.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, filter.CreatedRange.Before)
	}
	if !filter.ModifiedRange.After.IsZero() {
		where = append(where, "modified_at >= ?")
		args = append(args, filter.ModifiedRange.After)
	}
	if !filter.ModifiedRange.Before.IsZero() {
		where = append(where, "modified_at <= ?")
		args = append(args, filter.ModifiedRange.Before)
	}
	if !filter.RoleChanged.After.IsZero() {
		where = append(where, "role_changed_at >= ?")
		args = append(args, filter.RoleChanged.After)
	}
	if !filter.RoleChanged.Before.IsZero() {
		where = append(where, "role_changed_at <= ?")
		args = append(args, filter.RoleChanged.Before)
	}

	orderCol := "created_at"
	switch sortSpec.Field {
	case types.SortModifiedAt:
		orderCol = "modified_at"
	case types.SortTitle:
		orderCol = "title"
	case types.SortPriority:
		orderCol = "CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END"
	}
	direction := "ASC"
	if sortSpec.Descending {
		direction = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM work_items WHERE %s ORDER BY %s %s`,
		itemColumns, strings.Join(where, " AND "), orderCol, direction)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	} else if offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("search work items", err)
	}
	defer rows.Close()

	var out []*types.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapDBError("scan work item", err)
		}
		if len(filter.TagsAny) > 0 && !types.HasAnyTag(item.Tags, filter.TagsAny) {
			continue
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) Overview(ctx context.Context, itemID *string) (*store.OverviewResult, error) {
	countsOf := func(parentID string) (store.ChildCounts, error) {
		var c store.ChildCounts
		rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM work_items WHERE parent_id = ? GROUP BY role`, parentID)
		if err != nil {
			return c, wrapDBError("count children", err)
		}
		defer rows.Close()
		for rows.Next() {
			var role string
			var count int
			if err := rows.Scan(&role, &count); err != nil {
				return c, wrapDBError("scan child count", err)
			}
			switch types.Role(role) {
			case types.RoleQueue:
				c.Queue = count
			case types.RoleWork:
				c.Work = count
			case types.RoleReview:
				c.Review = count
			case types.RoleBlocked:
				c.Blocked = count
			case types.RoleTerminal:
				c.Terminal = count
			}
		}
		return c, rows.Err()
	}

	if itemID == nil {
		rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE parent_id IS NULL ORDER BY created_at`)
		if err != nil {
			return nil, wrapDBError("list root items", err)
		}
		defer rows.Close()
		var roots []store.OverviewRow
		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				return nil, wrapDBError("scan work item", err)
			}
			counts, err := countsOf(item.ID)
			if err != nil {
				return nil, err
			}
			roots = append(roots, store.OverviewRow{Item: item, ChildCounts: counts})
		}
		return &store.OverviewResult{Roots: roots}, rows.Err()
	}

	item, err := s.GetItem(ctx, *itemID)
	if err != nil {
		return nil, err
	}
	children, err := s.ChildrenOf(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	counts, err := countsOf(item.ID)
	if err != nil {
		return nil, err
	}
	return &store.OverviewResult{Item: item, Children: children, Counts: counts}, nil
}
