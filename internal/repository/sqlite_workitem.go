package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alexanderramin/treeline/internal/db"
	"github.com/alexanderramin/treeline/internal/domain"
)

// workItemColumns is the canonical SELECT column list for work_items.
const workItemColumns = `id, project_id, parent_id, title, order_key, version, created_at, updated_at`

// SQLiteWorkItemRepo implements WorkItemRepo over a db.DBTX.
type SQLiteWorkItemRepo struct {
	db db.DBTX
}

// NewSQLiteWorkItemRepo creates a new SQLiteWorkItemRepo.
func NewSQLiteWorkItemRepo(dbtx db.DBTX) *SQLiteWorkItemRepo {
	return &SQLiteWorkItemRepo{db: dbtx}
}

func (r *SQLiteWorkItemRepo) Create(ctx context.Context, w *domain.WorkItem) error {
	query := `INSERT INTO work_items (id, project_id, parent_id, title, order_key, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		w.ID,
		w.ProjectID,
		w.ParentID, // *string: nil becomes SQL NULL
		w.Title,
		w.OrderKey,
		w.Version,
		w.CreatedAt.Format(time.RFC3339),
		w.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting work item: %w", err)
	}
	return nil
}

func (r *SQLiteWorkItemRepo) GetByID(ctx context.Context, id string) (*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	return r.scanItem(row)
}

func (r *SQLiteWorkItemRepo) ListByProject(ctx context.Context, projectID string) ([]*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE project_id = ? ORDER BY COALESCE(parent_id, ''), order_key`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing work items by project: %w", err)
	}
	defer rows.Close()
	return r.scanItems(rows)
}

func (r *SQLiteWorkItemRepo) ListChildren(ctx context.Context, projectID string, parentID *string) ([]*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items
		WHERE project_id = ? AND COALESCE(parent_id, '') = COALESCE(?, '')
		ORDER BY order_key`
	rows, err := r.db.QueryContext(ctx, query, projectID, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	defer rows.Close()
	return r.scanItems(rows)
}

func (r *SQLiteWorkItemRepo) NextSibling(ctx context.Context, projectID string, parentID *string, afterKey string) (*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items
		WHERE project_id = ? AND COALESCE(parent_id, '') = COALESCE(?, '') AND order_key > ?
		ORDER BY order_key LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, projectID, parentID, afterKey)
	item, err := r.scanItem(row)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *SQLiteWorkItemRepo) PrevSibling(ctx context.Context, projectID string, parentID *string, beforeKey string) (*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items
		WHERE project_id = ? AND COALESCE(parent_id, '') = COALESCE(?, '') AND order_key < ?
		ORDER BY order_key DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, projectID, parentID, beforeKey)
	item, err := r.scanItem(row)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *SQLiteWorkItemRepo) LastChild(ctx context.Context, projectID string, parentID *string) (*domain.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items
		WHERE project_id = ? AND COALESCE(parent_id, '') = COALESCE(?, '')
		ORDER BY order_key DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, projectID, parentID)
	item, err := r.scanItem(row)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *SQLiteWorkItemRepo) UpdateStructure(ctx context.Context, id string, parentID *string, orderKey string, version int64) error {
	query := `UPDATE work_items SET parent_id = ?, order_key = ?, version = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		parentID,
		orderKey,
		version,
		nowUTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating work item structure: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking structure update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("work item %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteWorkItemRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM work_items WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deleting work item: %w", err)
	}
	return nil
}

// scanItem scans a single work item from a *sql.Row.
func (r *SQLiteWorkItemRepo) scanItem(row *sql.Row) (*domain.WorkItem, error) {
	var w domain.WorkItem
	var parentID sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(&w.ID, &w.ProjectID, &parentID, &w.Title, &w.OrderKey, &w.Version, &createdAtStr, &updatedAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("work item: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning work item: %w", err)
	}
	return r.populateItem(&w, parentID, createdAtStr, updatedAtStr)
}

// scanItems scans multiple work items from *sql.Rows.
func (r *SQLiteWorkItemRepo) scanItems(rows *sql.Rows) ([]*domain.WorkItem, error) {
	var items []*domain.WorkItem
	for rows.Next() {
		var w domain.WorkItem
		var parentID sql.NullString
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(&w.ID, &w.ProjectID, &parentID, &w.Title, &w.OrderKey, &w.Version, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning work item row: %w", err)
		}
		item, err := r.populateItem(&w, parentID, createdAtStr, updatedAtStr)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating work items: %w", err)
	}
	return items, nil
}

// populateItem fills in parsed fields on a WorkItem after scanning raw strings.
func (r *SQLiteWorkItemRepo) populateItem(w *domain.WorkItem, parentID sql.NullString, createdAtStr, updatedAtStr string) (*domain.WorkItem, error) {
	if parentID.Valid {
		w.ParentID = &parentID.String
	}

	var parseErr error
	w.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAtStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	w.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAtStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return w, nil
}
