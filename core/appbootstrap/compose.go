package appbootstrap

import (
	"context"
	"database/sql"

	"wikiadm/api"
	"wikiadm/config"
	"wikiadm/core/auth"
	"wikiadm/core/janitor"
	"wikiadm/core/mailer"
	"wikiadm/core/rbac"
	"wikiadm/core/store"
	"wikiadm/core/useradmin"
	"wikiadm/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db, logger)
	sessions := store.NewSessionStore(db, logger)
	audits := store.NewAuditStore(db, logger)
	groups := store.NewGroupsStore(db, audits, logger)
	pages := store.NewPagesStore(db, logger)

	policy, err := rbac.NewPolicy()
	if err != nil {
		return nil, err
	}
	mail := mailer.NewSMTPMailer(cfg.Mail, logger)
	sessionManager := auth.NewSessionManager(sessions, cfg, logger)
	editSvc := useradmin.NewService(users, groups, pages, audits, mail, cfg, logger)
	sweeper := janitor.New(cfg.Janitor, sessions, audits, logger)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Users:      users,
			Groups:     groups,
			Pages:      pages,
			Sessions:   sessions,
			Audits:     audits,
			Policy:     policy,
			Mailer:     mail,
			EditSvc:    editSvc,
			SessionMgr: sessionManager,
		},
		workers: []api.BackgroundWorker{sweeper},
	}, nil
}

// Run migrates the database, wires the runtime together and serves
// until ctx is cancelled.
func Run(ctx context.Context, cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) error {
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return err
	}
	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}
	srv := api.NewServer(cfg, comp.serverDeps, logger, comp.workers...)
	return srv.Serve(ctx)
}
