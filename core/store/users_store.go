package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"wikiadm/core/utils"
)

// UsersStore is the persistence surface for platform accounts. Lookup
// methods return nil without error when no account matches.
type UsersStore interface {
	Get(ctx context.Context, id int64) (*User, error)
	FindByName(ctx context.Context, username string) (*User, error)
	IDFromName(ctx context.Context, username string) (int64, error)
	Create(ctx context.Context, u *User) (int64, error)
	Save(ctx context.Context, u *User) error
	List(ctx context.Context, query string, limit int) ([]User, error)
	UserRoles(ctx context.Context, userID int64) ([]string, error)
	SetRoles(ctx context.Context, userID int64, roles []string) error
}

type usersStore struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewUsersStore(db *sql.DB, logger *utils.Logger) UsersStore {
	return &usersStore{db: db, logger: logger}
}

const userColumns = `id, username, real_name, email, email_authenticated_at, password_hash, salt, require_password_change, edit_count, last_edit_at, active, registered_at, touched_at`

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *usersStore) FindByName(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, strings.TrimSpace(username))
	return scanUser(row)
}

// IDFromName returns 0 when no account carries the name.
func (s *usersStore) IDFromName(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username=?`, strings.TrimSpace(username)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *usersStore) Create(ctx context.Context, u *User) (int64, error) {
	now := utils.NowUTC()
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = now
	}
	u.TouchedAt = now
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users(username, real_name, email, email_authenticated_at, password_hash, salt, require_password_change, edit_count, last_edit_at, active, registered_at, touched_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		strings.TrimSpace(u.Username), strings.TrimSpace(u.RealName), strings.TrimSpace(u.Email),
		u.EmailAuthenticatedAt, u.PasswordHash, u.Salt, boolToInt(u.RequirePasswordChange),
		u.EditCount, u.LastEditAt, boolToInt(u.Active), u.RegisteredAt, u.TouchedAt)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	return id, nil
}

func (s *usersStore) Save(ctx context.Context, u *User) error {
	u.TouchedAt = utils.NowUTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username=?, real_name=?, email=?, email_authenticated_at=?, password_hash=?, salt=?, require_password_change=?, edit_count=?, last_edit_at=?, active=?, touched_at=?
		WHERE id=?`,
		strings.TrimSpace(u.Username), strings.TrimSpace(u.RealName), strings.TrimSpace(u.Email),
		u.EmailAuthenticatedAt, u.PasswordHash, u.Salt, boolToInt(u.RequirePasswordChange),
		u.EditCount, u.LastEditAt, boolToInt(u.Active), u.TouchedAt, u.ID)
	return err
}

func (s *usersStore) List(ctx context.Context, query string, limit int) ([]User, error) {
	q := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if needle := strings.TrimSpace(query); needle != "" {
		q += ` WHERE LOWER(username) LIKE ? OR LOWER(real_name) LIKE ?`
		p := "%" + strings.ToLower(needle) + "%"
		args = append(args, p, p)
	}
	q += ` ORDER BY username`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *usersStore) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id=? ORDER BY role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *usersStore) SetRoles(ctx context.Context, userID int64, roles []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id=?`, userID); err != nil {
		tx.Rollback()
		return err
	}
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_roles(user_id, role) VALUES(?,?)`, userID, role); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func scanUserRow(row rowScanner) (*User, error) {
	var u User
	var requireChange, active int
	var emailAuth, lastEdit sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.RealName, &u.Email, &emailAuth,
		&u.PasswordHash, &u.Salt, &requireChange, &u.EditCount, &lastEdit, &active,
		&u.RegisteredAt, &u.TouchedAt); err != nil {
		return nil, err
	}
	if emailAuth.Valid {
		t := emailAuth.Time
		u.EmailAuthenticatedAt = &t
	}
	if lastEdit.Valid {
		t := lastEdit.Time
		u.LastEditAt = &t
	}
	u.RequirePasswordChange = intToBool(requireChange)
	u.Active = intToBool(active)
	return &u, nil
}
