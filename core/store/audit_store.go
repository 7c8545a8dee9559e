package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"wikiadm/core/utils"
)

// AuditStore appends and queries the change log. Entries are never
// updated once written.
type AuditStore interface {
	Log(ctx context.Context, entry *ChangeLogEntry) error
	List(ctx context.Context, filter ChangeLogFilter) ([]ChangeLogEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditStore struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewAuditStore(db *sql.DB, logger *utils.Logger) AuditStore {
	return &auditStore{db: db, logger: logger}
}

func (s *auditStore) Log(ctx context.Context, entry *ChangeLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = utils.NowUTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO change_log(action, target_id, target_name, actor, reason, old_value, new_value, created_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		strings.TrimSpace(entry.Action), entry.TargetID, strings.TrimSpace(entry.TargetName),
		strings.TrimSpace(entry.Actor), strings.TrimSpace(entry.Reason),
		entry.OldValue, entry.NewValue, entry.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	entry.ID = id
	return nil
}

func (s *auditStore) List(ctx context.Context, filter ChangeLogFilter) ([]ChangeLogEntry, error) {
	query := `SELECT id, action, target_id, target_name, actor, reason, old_value, new_value, created_at FROM change_log`
	var clauses []string
	var args []any
	if a := strings.TrimSpace(filter.Action); a != "" {
		clauses = append(clauses, "action=?")
		args = append(args, a)
	}
	if t := strings.TrimSpace(filter.Target); t != "" {
		clauses = append(clauses, "target_name=?")
		args = append(args, t)
	}
	if a := strings.TrimSpace(filter.Actor); a != "" {
		clauses = append(clauses, "actor=?")
		args = append(args, a)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at>=?")
		args = append(args, filter.Since)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangeLogEntry
	for rows.Next() {
		var e ChangeLogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.TargetID, &e.TargetName, &e.Actor,
			&e.Reason, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *auditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM change_log WHERE created_at<?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
