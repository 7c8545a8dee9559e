package auth

import (
	"context"
	"errors"
	"time"

	"wikiadm/config"
	"wikiadm/core/store"
	"wikiadm/core/utils"

	"github.com/gofrs/uuid/v5"
)

type contextKey string

// SessionContextKey carries the authenticated session record through
// request contexts.
const SessionContextKey contextKey = "session"

type Session struct {
	ID         string
	UserID     int64
	Username   string
	Roles      []string
	IP         string
	UserAgent  string
	CSRFToken  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

type SessionManager struct {
	store  store.SessionStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewSessionManager(store store.SessionStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: store, cfg: cfg, logger: logger}
}

func (m *SessionManager) Create(ctx context.Context, user *store.User, roles []string, ip, userAgent string) (*Session, error) {
	id := uuid.Must(uuid.NewV4()).String()
	var csrf string
	var err error
	if m.cfg.CSRFKey != "" {
		csrf, err = GenerateCSRF(m.cfg.CSRFKey, id)
	} else {
		csrf, err = utils.RandString(32)
	}
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	sessionTTL := m.cfg.EffectiveSessionTTL()
	sess := &Session{
		ID:         id,
		UserID:     user.ID,
		Username:   user.Username,
		Roles:      roles,
		IP:         ip,
		UserAgent:  userAgent,
		CSRFToken:  csrf,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(sessionTTL),
	}
	if err := m.store.SaveSession(ctx, &store.SessionRecord{
		ID:         sess.ID,
		UserID:     sess.UserID,
		Username:   sess.Username,
		Roles:      sess.Roles,
		IP:         sess.IP,
		UserAgent:  sess.UserAgent,
		CSRFToken:  sess.CSRFToken,
		CreatedAt:  sess.CreatedAt,
		LastSeenAt: sess.LastSeenAt,
		ExpiresAt:  sess.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a live session; expired or unknown ids come back nil.
func (m *SessionManager) Get(ctx context.Context, sessID string) (*Session, error) {
	rec, err := m.store.GetSession(ctx, sessID)
	if err != nil || rec == nil {
		return nil, err
	}
	if utils.NowUTC().After(rec.ExpiresAt) {
		_ = m.store.DeleteSession(ctx, sessID)
		return nil, nil
	}
	return &Session{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Username:   rec.Username,
		Roles:      rec.Roles,
		IP:         rec.IP,
		UserAgent:  rec.UserAgent,
		CSRFToken:  rec.CSRFToken,
		CreatedAt:  rec.CreatedAt,
		LastSeenAt: rec.LastSeenAt,
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

func (m *SessionManager) Refresh(ctx context.Context, sessID string) error {
	now := utils.NowUTC()
	return m.store.UpdateActivity(ctx, sessID, now, now.Add(m.cfg.EffectiveSessionTTL()))
}

func (m *SessionManager) Rotate(ctx context.Context, sessID string) (*Session, error) {
	old, err := m.store.GetSession(ctx, sessID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, errors.New("session not found")
	}
	_ = m.store.DeleteSession(ctx, sessID)
	return m.Create(ctx, &store.User{ID: old.UserID, Username: old.Username}, old.Roles, old.IP, old.UserAgent)
}

func (m *SessionManager) Delete(ctx context.Context, sessID string) error {
	return m.store.DeleteSession(ctx, sessID)
}

// FromContext extracts the session record placed by the auth middleware.
func FromContext(ctx context.Context) *store.SessionRecord {
	rec, _ := ctx.Value(SessionContextKey).(*store.SessionRecord)
	return rec
}
