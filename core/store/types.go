package store

import "time"

// User is one account record of the hosting platform.
type User struct {
	ID                    int64      `json:"id"`
	Username              string     `json:"username"`
	RealName              string     `json:"real_name"`
	Email                 string     `json:"email"`
	EmailAuthenticatedAt  *time.Time `json:"email_authenticated_at,omitempty"`
	PasswordHash          string     `json:"-"`
	Salt                  string     `json:"-"`
	RequirePasswordChange bool       `json:"require_password_change"`
	EditCount             int        `json:"edit_count"`
	LastEditAt            *time.Time `json:"last_edit_at,omitempty"`
	Active                bool       `json:"active"`
	RegisteredAt          time.Time  `json:"registered_at"`
	TouchedAt             time.Time  `json:"touched_at"`
}

// ChangeLogEntry is one append-only audit record. Every applied mutation
// of an account produces exactly one entry.
type ChangeLogEntry struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	TargetID   int64     `json:"target_id"`
	TargetName string    `json:"target_name"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChangeLogFilter struct {
	Action string
	Target string
	Actor  string
	Since  time.Time
	Limit  int
}

type SessionRecord struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Roles      []string  `json:"roles"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	CSRFToken  string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// GroupDelta describes one reconciliation of a user's group memberships.
type GroupDelta struct {
	UserID     int64
	TargetName string
	Add        []string
	Remove     []string
	Old        []string
	New        []string
	Actor      string
	Reason     string
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func intToBool(v int) bool { return v != 0 }
