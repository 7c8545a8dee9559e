package api

import (
	"context"
	"net/http"

	"wikiadm/api/handlers"
	"wikiadm/config"
	"wikiadm/core/auth"
	"wikiadm/core/mailer"
	"wikiadm/core/rbac"
	"wikiadm/core/store"
	"wikiadm/core/useradmin"
	"wikiadm/core/utils"

	"github.com/go-chi/chi/v5"
)

// BackgroundWorker is anything the server starts alongside the HTTP
// listener and stops on shutdown.
type BackgroundWorker interface {
	Start()
	Stop()
}

type ServerDeps struct {
	Users      store.UsersStore
	Groups     store.GroupsStore
	Pages      store.PagesStore
	Sessions   store.SessionStore
	Audits     store.AuditStore
	Policy     *rbac.Policy
	Mailer     mailer.Mailer
	EditSvc    *useradmin.Service
	SessionMgr *auth.SessionManager
}

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	users           store.UsersStore
	groups          store.GroupsStore
	pages           store.PagesStore
	sessions        store.SessionStore
	audits          store.AuditStore
	policy          *rbac.Policy
	mail            mailer.Mailer
	editSvc         *useradmin.Service
	sessionManager  *auth.SessionManager
	activityTracker *sessionActivity
	workers         []BackgroundWorker
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger, workers ...BackgroundWorker) *Server {
	return &Server{
		cfg:             cfg,
		logger:          logger,
		users:           deps.Users,
		groups:          deps.Groups,
		pages:           deps.Pages,
		sessions:        deps.Sessions,
		audits:          deps.Audits,
		policy:          deps.Policy,
		mail:            deps.Mailer,
		editSvc:         deps.EditSvc,
		sessionManager:  deps.SessionMgr,
		activityTracker: newSessionActivity(),
		workers:         workers,
	}
}

type routeHandlers struct {
	auth     *handlers.AuthHandler
	edituser *handlers.EditUserHandler
	logs     *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:     handlers.NewAuthHandler(s.cfg, s.users, s.sessions, s.sessionManager, s.logger),
		edituser: handlers.NewEditUserHandler(s.cfg, s.editSvc, s.groups, s.logger),
		logs:     handlers.NewLogsHandler(s.audits),
	}
}

// Router assembles the full middleware and route tree.
func (s *Server) Router() http.Handler {
	h := s.newRouteHandlers()

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	r.MethodFunc("GET", "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.MethodFunc("POST", "/auth/login", h.auth.Login)
		apiRouter.MethodFunc("POST", "/auth/logout", s.withSession(h.auth.Logout))
		apiRouter.MethodFunc("GET", "/auth/me", s.withSession(h.auth.Me))
		apiRouter.MethodFunc("GET", "/logs", s.withSession(s.requirePermission(rbac.PermLogsView)(h.logs.List)))
		apiRouter.MethodFunc("GET", "/logs/export", s.withSession(s.requirePermission(rbac.PermLogsView)(h.logs.Export)))
	})

	guard := func(next http.HandlerFunc) http.HandlerFunc {
		return s.withSession(s.requirePermission(rbac.PermAccountsManage)(next))
	}
	r.Route("/admin/edituser", func(editRouter chi.Router) {
		editRouter.MethodFunc("GET", "/", guard(h.edituser.Show))
		editRouter.MethodFunc("GET", "/{name}", guard(h.edituser.Show))
		editRouter.MethodFunc("POST", "/", guard(h.edituser.Submit))
	})
	return r
}

// Serve starts the background workers and blocks on the listener until
// ctx is cancelled, then drains both.
func (s *Server) Serve(ctx context.Context) error {
	for _, w := range s.workers {
		w.Start()
	}
	defer func() {
		for _, w := range s.workers {
			w.Stop()
		}
	}()

	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	if s.logger != nil {
		s.logger.Printf("listening on %s", s.cfg.ListenAddr)
	}
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
