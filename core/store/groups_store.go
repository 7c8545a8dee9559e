package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"wikiadm/core/utils"
)

// GroupsStore manages the named groups a wiki account can belong to.
// ApplyDelta is the only mutation path and records the membership
// change in the change log itself, so callers never double-log it.
type GroupsStore interface {
	Known(ctx context.Context) ([]string, error)
	OfUser(ctx context.Context, userID int64) ([]string, error)
	EnsureKnown(ctx context.Context, names ...string) error
	ApplyDelta(ctx context.Context, delta GroupDelta) error
}

type groupsStore struct {
	db     *sql.DB
	audits AuditStore
	logger *utils.Logger
}

func NewGroupsStore(db *sql.DB, audits AuditStore, logger *utils.Logger) GroupsStore {
	return &groupsStore{db: db, audits: audits, logger: logger}
}

func (s *groupsStore) Known(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *groupsStore) OfUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_name FROM user_groups WHERE user_id=? ORDER BY group_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *groupsStore) EnsureKnown(ctx context.Context, names ...string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO groups(name) VALUES(?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDelta reconciles one user's memberships and appends a single
// change log entry describing the whole delta. A delta with nothing to
// add or remove is a no-op and leaves the log untouched.
func (s *groupsStore) ApplyDelta(ctx context.Context, delta GroupDelta) error {
	if len(delta.Add) == 0 && len(delta.Remove) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, name := range delta.Remove {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_groups WHERE user_id=? AND group_name=?`, delta.UserID, strings.TrimSpace(name)); err != nil {
			tx.Rollback()
			return err
		}
	}
	for _, name := range delta.Add {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_groups(user_id, group_name) VALUES(?,?) ON CONFLICT (user_id, group_name) DO NOTHING`, delta.UserID, strings.TrimSpace(name)); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.audits.Log(ctx, &ChangeLogEntry{
		Action:     ActionRightsChange,
		TargetID:   delta.UserID,
		TargetName: delta.TargetName,
		Actor:      delta.Actor,
		Reason:     delta.Reason,
		OldValue:   joinGroups(delta.Old),
		NewValue:   joinGroups(delta.New),
	})
}

func joinGroups(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
