package store

import (
	"context"
	"database/sql"
	"strings"

	"wikiadm/core/utils"
)

// PagesStore tracks the wiki page titles the admin UI may link back to.
type PagesStore interface {
	IsKnown(ctx context.Context, title string) (bool, error)
	Ensure(ctx context.Context, titles ...string) error
}

type pagesStore struct {
	db     *sql.DB
	logger *utils.Logger
}

func NewPagesStore(db *sql.DB, logger *utils.Logger) PagesStore {
	return &pagesStore{db: db, logger: logger}
}

func (s *pagesStore) IsKnown(ctx context.Context, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM pages WHERE title=?`, title).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *pagesStore) Ensure(ctx context.Context, titles ...string) error {
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO pages(title) VALUES(?) ON CONFLICT (title) DO NOTHING`, title); err != nil {
			return err
		}
	}
	return nil
}
