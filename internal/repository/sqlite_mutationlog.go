package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alexanderramin/treeline/internal/db"
	"github.com/alexanderramin/treeline/internal/domain"
)

// SQLiteMutationLogRepo implements MutationLogRepo over a db.DBTX.
type SQLiteMutationLogRepo struct {
	db db.DBTX
}

// NewSQLiteMutationLogRepo creates a new SQLiteMutationLogRepo.
func NewSQLiteMutationLogRepo(dbtx db.DBTX) *SQLiteMutationLogRepo {
	return &SQLiteMutationLogRepo{db: dbtx}
}

func (r *SQLiteMutationLogRepo) Append(ctx context.Context, e *domain.MutationLogEntry) error {
	query := `INSERT INTO mutation_log (id, project_id, item_id, kind, detail, committed_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.ProjectID,
		e.ItemID,
		string(e.Kind),
		e.Detail,
		e.CommittedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("appending mutation log entry: %w", err)
	}
	return nil
}

func (r *SQLiteMutationLogRepo) ListByProject(ctx context.Context, projectID string, limit int) ([]*domain.MutationLogEntry, error) {
	query := `SELECT id, project_id, item_id, kind, detail, committed_at FROM mutation_log
		WHERE project_id = ? ORDER BY committed_at DESC, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing mutation log: %w", err)
	}
	defer rows.Close()

	var entries []*domain.MutationLogEntry
	for rows.Next() {
		var e domain.MutationLogEntry
		var itemID sql.NullString
		var kindStr, committedAtStr string
		if err := rows.Scan(&e.ID, &e.ProjectID, &itemID, &kindStr, &e.Detail, &committedAtStr); err != nil {
			return nil, fmt.Errorf("scanning mutation log row: %w", err)
		}
		if itemID.Valid {
			e.ItemID = itemID.String
		}
		e.Kind = domain.MutationKind(kindStr)
		e.CommittedAt, err = time.Parse(time.RFC3339, committedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing committed_at: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mutation log: %w", err)
	}
	return entries, nil
}
