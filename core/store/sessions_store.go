package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"wikiadm/core/utils"
)

type SessionStore interface {
	SaveSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID int64) error
	UpdateActivity(ctx context.Context, id string, seenAt, expiresAt time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionStore struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewSessionStore(db *sql.DB, logger *utils.Logger) SessionStore {
	return &sessionStore{db: db, logger: logger}
}

func (s *sessionStore) SaveSession(ctx context.Context, rec *SessionRecord) error {
	rolesJSON, _ := json.Marshal(rec.Roles)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, user_id, username, roles, csrf_token, ip, user_agent, created_at, last_seen_at, expires_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.Username, string(rolesJSON), rec.CSRFToken,
		rec.IP, rec.UserAgent, rec.CreatedAt, rec.LastSeenAt, rec.ExpiresAt)
	return err
}

func (s *sessionStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, username, roles, csrf_token, ip, user_agent, created_at, last_seen_at, expires_at
		FROM sessions WHERE id=?`, id)
	var rec SessionRecord
	var rolesJSON string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Username, &rolesJSON, &rec.CSRFToken,
		&rec.IP, &rec.UserAgent, &rec.CreatedAt, &rec.LastSeenAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rolesJSON != "" {
		_ = json.Unmarshal([]byte(rolesJSON), &rec.Roles)
	}
	return &rec, nil
}

func (s *sessionStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	return err
}

func (s *sessionStore) DeleteAllForUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, userID)
	return err
}

func (s *sessionStore) UpdateActivity(ctx context.Context, id string, seenAt, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, expires_at=? WHERE id=?`, seenAt, expiresAt, id)
	return err
}

func (s *sessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at<?`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
