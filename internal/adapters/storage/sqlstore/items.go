package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/domain"
)

const itemColumns = `id, title, description, owner_id, owner_name, status, created_at, updated_at`

// CreateItem creates item.
func (r *Repository) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := r.exec(ctx, "insert item", `
		INSERT INTO items(`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Title, item.Description, item.OwnerID, item.OwnerName, string(item.Status), ts(item.CreatedAt), ts(item.UpdatedAt))
	return err
}

// GetItem returns item.
func (r *Repository) GetItem(ctx context.Context, id string) (domain.Item, error) {
	row := r.queryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		return domain.Item{}, storeErr("get item", err)
	}
	return item, nil
}

// UpdateItem writes the owner-editable fields of an item.
func (r *Repository) UpdateItem(ctx context.Context, item domain.Item) error {
	res, err := r.exec(ctx, "update item", `
		UPDATE items
		SET title = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, item.Title, item.Description, ts(item.UpdatedAt), item.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// SetItemStatus writes one item status, conditionally when allowedFrom is set.
func (r *Repository) SetItemStatus(ctx context.Context, id string, to domain.ItemStatus, at time.Time, allowedFrom ...domain.ItemStatus) error {
	query := `UPDATE items SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{string(to), ts(at), id}
	if len(allowedFrom) > 0 {
		query += ` AND status IN (` + placeholders(len(allowedFrom)) + `)`
		for _, status := range allowedFrom {
			args = append(args, string(status))
		}
	}
	res, err := r.exec(ctx, "set item status", query, args...)
	if err != nil {
		return err
	}
	err = translateNoRows(res)
	if errors.Is(err, app.ErrNotFound) && len(allowedFrom) > 0 {
		return r.conflictOrMissing(ctx, "items", id)
	}
	return err
}

// DeleteItem deletes item.
func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	res, err := r.exec(ctx, "delete item", `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListItemsByStatus lists items in one status, newest first.
func (r *Repository) ListItemsByStatus(ctx context.Context, status domain.ItemStatus) ([]domain.Item, error) {
	return r.listItems(ctx, `WHERE status = ?`, string(status))
}

// ListItemsByOwner lists items owned by ownerID, newest first.
func (r *Repository) ListItemsByOwner(ctx context.Context, ownerID string) ([]domain.Item, error) {
	return r.listItems(ctx, `WHERE owner_id = ?`, ownerID)
}

// listItems runs one filtered item listing.
func (r *Repository) listItems(ctx context.Context, where string, args ...any) ([]domain.Item, error) {
	rows, err := r.query(ctx, "list items", `
		SELECT `+itemColumns+`
		FROM items
		`+where+`
		ORDER BY created_at DESC, `+r.insertOrder()+` DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("scan item", err)
		}
		out = append(out, item)
	}
	return out, storeErr("list items", rows.Err())
}

// conflictOrMissing explains a conditional write that matched no rows.
func (r *Repository) conflictOrMissing(ctx context.Context, table, id string) error {
	var status string
	err := r.queryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = ?`, table), id).Scan(&status)
	if err != nil {
		return storeErr("get "+table+" status", err)
	}
	return fmt.Errorf("%s %s is %s: %w", table, id, status, app.ErrStatusConflict)
}

// scanItem handles scan item.
func scanItem(s scanner) (domain.Item, error) {
	var (
		item       domain.Item
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&item.ID, &item.Title, &item.Description, &item.OwnerID, &item.OwnerName, &status, &createdRaw, &updatedRaw); err != nil {
		return domain.Item{}, err
	}
	item.Status = domain.ItemStatus(status)
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	return item, nil
}
