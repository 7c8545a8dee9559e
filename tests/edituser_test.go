package tests

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"wikiadm/api/handlers"
	"wikiadm/config"
	"wikiadm/core/auth"
	"wikiadm/core/store"
	"wikiadm/core/useradmin"
	"wikiadm/core/utils"
)

type mockMailer struct {
	sent []sentMail
	fail bool
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.fail {
		return errors.New("smtp connect refused")
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type editEnv struct {
	cfg     *config.AppConfig
	users   store.UsersStore
	groups  store.GroupsStore
	pages   store.PagesStore
	audits  store.AuditStore
	mail    *mockMailer
	svc     *useradmin.Service
	handler *handlers.EditUserHandler
}

func setupEditEnv(t *testing.T) *editEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		DBPath:       filepath.Join(dir, "edituser.db"),
		Pepper:       "pepper",
		CSRFKey:      "csrf-test-key",
		SiteName:     "testwiki",
		SiteURL:      "http://wiki.local",
		ReturnToPage: "Special:UserAdmin",
		SessionTTL:   time.Hour,
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	users := store.NewUsersStore(db, logger)
	audits := store.NewAuditStore(db, logger)
	groups := store.NewGroupsStore(db, audits, logger)
	pages := store.NewPagesStore(db, logger)
	mail := &mockMailer{}
	svc := useradmin.NewService(users, groups, pages, audits, mail, cfg, logger)
	handler := handlers.NewEditUserHandler(cfg, svc, groups, logger)
	return &editEnv{cfg: cfg, users: users, groups: groups, pages: pages, audits: audits, mail: mail, svc: svc, handler: handler}
}

func (e *editEnv) createUser(t *testing.T, username, email string, memberOf ...string) *store.User {
	t.Helper()
	ctx := context.Background()
	u := &store.User{Username: username, Email: email, Active: true}
	if _, err := e.users.Create(ctx, u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	if len(memberOf) > 0 {
		if err := e.groups.EnsureKnown(ctx, memberOf...); err != nil {
			t.Fatalf("ensure groups: %v", err)
		}
		delta := store.GroupDelta{UserID: u.ID, TargetName: username, Add: memberOf, New: memberOf, Actor: "setup", Reason: "setup"}
		if err := e.groups.ApplyDelta(ctx, delta); err != nil {
			t.Fatalf("assign groups: %v", err)
		}
		// Setup membership is not part of the behavior under test.
		e.clearLog(t)
	}
	return u
}

func (e *editEnv) clearLog(t *testing.T) {
	t.Helper()
	if _, err := e.audits.DeleteOlderThan(context.Background(), time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("clear change log: %v", err)
	}
}

func (e *editEnv) logEntries(t *testing.T) []store.ChangeLogEntry {
	t.Helper()
	items, err := e.audits.List(context.Background(), store.ChangeLogFilter{})
	if err != nil {
		t.Fatalf("list change log: %v", err)
	}
	return items
}

const testSessionID = "sess-test-1"

func adminContext(r *http.Request) *http.Request {
	sr := &store.SessionRecord{
		ID:       testSessionID,
		UserID:   1,
		Username: "admin",
		Roles:    []string{"useradmin"},
	}
	return r.WithContext(context.WithValue(r.Context(), auth.SessionContextKey, sr))
}

func (e *editEnv) editToken(targetID int64) string {
	return auth.EditToken(e.cfg.CSRFKey, testSessionID, targetID)
}

func (e *editEnv) submitForm(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/edituser/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = adminContext(req)
	rr := httptest.NewRecorder()
	e.handler.Submit(rr, req)
	return rr
}

func saveForm(u *store.User, token string) url.Values {
	return url.Values{
		"action":    {"saveuser"},
		"userid":    {strconv.FormatInt(u.ID, 10)},
		"username":  {u.Username},
		"realname":  {u.RealName},
		"email":     {u.Email},
		"pwdaction": {"nochange"},
		"reason":    {"routine maintenance"},
		"edittoken": {token},
	}
}

func TestShowUnknownUserIDRendersSearchForm(t *testing.T) {
	env := setupEditEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/edituser/?userid=999", nil)
	req = adminContext(req)
	rr := httptest.NewRecorder()
	env.handler.Show(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "No account with id") || !strings.Contains(body, "999") {
		t.Fatalf("expected unknown user message, got %q", body)
	}
	if !strings.Contains(body, "Find a user to edit") {
		t.Fatalf("expected search form")
	}
	if strings.Contains(body, `name="userid"`) {
		t.Fatalf("bad userid parameter must not be retained in the form")
	}
}

func TestShowBySubpageName(t *testing.T) {
	env := setupEditEnv(t)
	env.createUser(t, "alice", "alice@example.com")
	req := httptest.NewRequest(http.MethodGet, "/admin/edituser/alice", nil)
	req = adminContext(req)
	rr := httptest.NewRecorder()
	env.handler.Show(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `value="alice"`) || !strings.Contains(body, `value="alice@example.com"`) {
		t.Fatalf("expected prefilled edit form, got %q", body)
	}
	if !strings.Contains(body, `name="edittoken"`) {
		t.Fatalf("expected edit token in form")
	}
}

func TestSubmitRenameCollision(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")
	env.createUser(t, "bob", "bob@example.com")

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("username", "bob")
	rr := env.submitForm(t, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.Contains(loc, "errkey=edituser.usernameInUse") {
		t.Fatalf("expected username-in-use error, got %s", loc)
	}
	stored, _ := env.users.Get(context.Background(), alice.ID)
	if stored.Username != "alice" {
		t.Fatalf("account must not be mutated on collision, got %s", stored.Username)
	}
	if entries := env.logEntries(t); len(entries) != 0 {
		t.Fatalf("expected no change log entries, got %d", len(entries))
	}
}

func TestSubmitPasswordMismatchPreservesFields(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("username", "alice-renamed")
	form.Set("email", "new@example.com")
	form.Set("pwdaction", "manual")
	form.Set("password1", "abc")
	form.Set("password2", "xyz")
	rr := env.submitForm(t, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.Contains(loc, "errkey=edituser.passwordsMustMatch") {
		t.Fatalf("expected mismatch error, got %s", loc)
	}
	parsed, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := parsed.Query()
	if q.Get("username") != "alice-renamed" || q.Get("email") != "new@example.com" {
		t.Fatalf("submitted values must be preserved, got %v", q)
	}
	stored, _ := env.users.Get(context.Background(), alice.ID)
	if stored.Username != "alice" || stored.Email != "alice@example.com" {
		t.Fatalf("no field may be saved on a failed submission")
	}
	if entries := env.logEntries(t); len(entries) != 0 {
		t.Fatalf("expected no change log entries, got %d", len(entries))
	}
}

func TestGroupToggleLogsSingleDelta(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com", "editor")
	if err := env.groups.EnsureKnown(context.Background(), "sysop"); err != nil {
		t.Fatalf("ensure sysop: %v", err)
	}

	form := saveForm(alice, env.editToken(alice.ID))
	form["groups[]"] = []string{"editor", "sysop"}
	rr := env.submitForm(t, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); !strings.Contains(loc, "saved=groups") {
		t.Fatalf("expected groups in saved categories, got %s", loc)
	}
	entries := env.logEntries(t)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one change log entry, got %d", len(entries))
	}
	if entries[0].Action != store.ActionRightsChange {
		t.Fatalf("expected rights change entry, got %s", entries[0].Action)
	}
	memberOf, _ := env.groups.OfUser(context.Background(), alice.ID)
	if len(memberOf) != 2 {
		t.Fatalf("expected two memberships, got %v", memberOf)
	}
}

func TestRenameSuccess(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "")

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("username", "alice2")
	form.Set("email", "a@x.com")
	form.Set("reason", "rename")
	rr := env.submitForm(t, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.Contains(loc, "alice2") || !strings.Contains(loc, "saved=profile") {
		t.Fatalf("success redirect must mention the new name, got %s", loc)
	}
	entries := env.logEntries(t)
	renames, passwords := 0, 0
	for _, e := range entries {
		switch e.Action {
		case store.ActionUserRename:
			renames++
			if e.OldValue != "alice" || e.NewValue != "alice2" {
				t.Fatalf("rename entry must carry old/new values, got %+v", e)
			}
		case store.ActionPasswordSet, store.ActionPasswordEmail, store.ActionWelcomeEmail:
			passwords++
		}
	}
	if renames != 1 {
		t.Fatalf("expected one rename entry, got %d", renames)
	}
	if passwords != 0 {
		t.Fatalf("expected no password entries, got %d", passwords)
	}
	stored, _ := env.users.Get(context.Background(), alice.ID)
	if stored.Username != "alice2" || stored.Email != "a@x.com" {
		t.Fatalf("expected saved account, got %+v", stored)
	}
}

func TestIdempotentResubmit(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")
	before, _ := env.users.Get(context.Background(), alice.ID)

	rr := env.submitForm(t, saveForm(alice, env.editToken(alice.ID)))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); strings.Contains(loc, "saved=") {
		t.Fatalf("unchanged submission must not report saved categories, got %s", loc)
	}
	if entries := env.logEntries(t); len(entries) != 0 {
		t.Fatalf("unchanged submission must log nothing, got %d entries", len(entries))
	}
	after, _ := env.users.Get(context.Background(), alice.ID)
	if !after.TouchedAt.Equal(before.TouchedAt) {
		t.Fatalf("unchanged submission must not save the account")
	}
}

func TestManualPasswordSet(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("pwdaction", "manual")
	form.Set("password1", "newpass123")
	form.Set("password2", "newpass123")
	rr := env.submitForm(t, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.Contains(loc, "saved=password") {
		t.Fatalf("expected password category, got %s", loc)
	}
	stored, _ := env.users.Get(context.Background(), alice.ID)
	ok, err := auth.VerifyPassword("newpass123", stored.Salt, env.cfg.Pepper, stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored password must verify: ok=%v err=%v", ok, err)
	}
	entries := env.logEntries(t)
	if len(entries) != 1 || entries[0].Action != store.ActionPasswordSet {
		t.Fatalf("expected one password set entry, got %+v", entries)
	}
}

func TestManualPasswordPolicyAbortsWithoutSave(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("realname", "Alice A.")
	form.Set("pwdaction", "manual")
	form.Set("password1", "short")
	form.Set("password2", "short")
	rr := env.submitForm(t, form)
	if loc := rr.Header().Get("Location"); !strings.Contains(loc, "errkey=edituser.passwordError") {
		t.Fatalf("expected password policy error, got %s", loc)
	}
	stored, _ := env.users.Get(context.Background(), alice.ID)
	if stored.RealName != "" {
		t.Fatalf("profile change must not survive an aborted password action")
	}
	if entries := env.logEntries(t); len(entries) != 0 {
		t.Fatalf("aborted submission must log nothing, got %d", len(entries))
	}
}

func TestEmailPasswordSendsMail(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("pwdaction", "email")
	rr := env.submitForm(t, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if len(env.mail.sent) != 1 || env.mail.sent[0].To != "alice@example.com" {
		t.Fatalf("expected one mail to alice, got %+v", env.mail.sent)
	}
	if !strings.Contains(env.mail.sent[0].Subject, "testwiki") {
		t.Fatalf("subject must carry the site name, got %q", env.mail.sent[0].Subject)
	}
	stored, _ := env.users.Get(context.Background(), alice.ID)
	if !stored.RequirePasswordChange {
		t.Fatalf("mailed password must be temporary")
	}
	entries := env.logEntries(t)
	if len(entries) != 1 || entries[0].Action != store.ActionPasswordEmail {
		t.Fatalf("expected one password email entry, got %+v", entries)
	}
}

func TestMailFailureAbortsWithoutSave(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")
	env.mail.fail = true

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("realname", "Alice A.")
	form.Set("pwdaction", "emailwelcome")
	rr := env.submitForm(t, form)
	if loc := rr.Header().Get("Location"); !strings.Contains(loc, "errkey=edituser.mailError") {
		t.Fatalf("expected mail error, got %s", loc)
	}
	stored, _ := env.users.Get(context.Background(), alice.ID)
	if stored.RealName != "" || stored.PasswordHash != "" {
		t.Fatalf("mail failure must discard all pending changes")
	}
	if entries := env.logEntries(t); len(entries) != 0 {
		t.Fatalf("aborted submission must log nothing, got %d", len(entries))
	}
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
}

func TestEditTokenBoundToTarget(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")
	bob := env.createUser(t, "bob", "bob@example.com")

	// Token minted for bob must not authorize edits of alice.
	form := saveForm(alice, env.editToken(bob.ID))
	rr := env.submitForm(t, form)
	if loc := rr.Header().Get("Location"); !strings.Contains(loc, "errkey=edituser.formSubmissionError") {
		t.Fatalf("expected token error, got %s", loc)
	}
}

func TestUnknownFormAction(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")
	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("action", "dropuser")
	rr := env.submitForm(t, form)
	if loc := rr.Header().Get("Location"); !strings.Contains(loc, "errkey=edituser.formSubmissionError") {
		t.Fatalf("expected form submission error, got %s", loc)
	}
}

func TestPreviewRoundTripKeepsEdits(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("action", "emailpwdpreview")
	form.Set("username", "alice-edited")
	rr := env.submitForm(t, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if !strings.Contains(loc, "preview=password") {
		t.Fatalf("expected preview mode in redirect, got %s", loc)
	}

	req := httptest.NewRequest(http.MethodGet, loc, nil)
	req = adminContext(req)
	getRR := httptest.NewRecorder()
	env.handler.Show(getRR, req)
	body := getRR.Body.String()
	if !strings.Contains(body, `value="alice-edited"`) {
		t.Fatalf("edited username must survive the preview round trip")
	}
	if !strings.Contains(body, "<textarea") || !strings.Contains(body, "disabled") {
		t.Fatalf("expected a disabled mail preview")
	}
	if len(env.mail.sent) != 0 {
		t.Fatalf("preview must not send mail")
	}
	if entries := env.logEntries(t); len(entries) != 0 {
		t.Fatalf("preview must not mutate anything")
	}
}

func TestPreviewPreselectsEmailAction(t *testing.T) {
	env := setupEditEnv(t)
	alice := env.createUser(t, "alice", "alice@example.com")

	form := saveForm(alice, env.editToken(alice.ID))
	form.Set("action", "emailpwdpreview")
	form.Set("pwdaction", "nochange")
	rr := env.submitForm(t, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	parsed, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	q := parsed.Query()
	if q.Get("pwdaction") != "email" || q.Get("preview") != "password" {
		t.Fatalf("preview redirect must pin the previewed action, got %v", q)
	}

	req := httptest.NewRequest(http.MethodGet, rr.Header().Get("Location"), nil)
	req = adminContext(req)
	getRR := httptest.NewRecorder()
	env.handler.Show(getRR, req)
	if body := getRR.Body.String(); !strings.Contains(body, `value="email" checked`) {
		t.Fatalf("previewed radio must come back pre-selected")
	}

	form.Set("action", "emailwelcomepreview")
	rr = env.submitForm(t, form)
	parsed, err = url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if q := parsed.Query(); q.Get("pwdaction") != "emailwelcome" || q.Get("preview") != "welcome" {
		t.Fatalf("welcome preview must pin its action, got %v", q)
	}
}

func TestFailedNameLookupPrefillsSearch(t *testing.T) {
	env := setupEditEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/edituser/?username=ghost", nil)
	req = adminContext(req)
	rr := httptest.NewRecorder()
	env.handler.Show(rr, req)
	body := rr.Body.String()
	if !strings.Contains(body, `No account named "ghost" exists`) {
		t.Fatalf("expected unknown name message, got %q", body)
	}
	if !strings.Contains(body, `name="username" value="ghost"`) {
		t.Fatalf("failed lookup name must stay in the search field")
	}
}

func TestLastEditDateShown(t *testing.T) {
	env := setupEditEnv(t)
	lastEdit := time.Date(2024, 3, 5, 11, 30, 0, 0, time.UTC)
	u := &store.User{Username: "alice", Email: "alice@example.com", Active: true, LastEditAt: &lastEdit}
	if _, err := env.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/admin/edituser/alice", nil)
	req = adminContext(req)
	rr := httptest.NewRecorder()
	env.handler.Show(rr, req)
	if body := rr.Body.String(); !strings.Contains(body, "2024-03-05 11:30") {
		t.Fatalf("expected last edit date row, got %q", body)
	}
}

func TestDuplicateInsertsAreNoOps(t *testing.T) {
	env := setupEditEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "alice@example.com", "editor")

	if err := env.groups.EnsureKnown(ctx, "editor"); err != nil {
		t.Fatalf("re-ensuring a known group must not fail: %v", err)
	}
	delta := store.GroupDelta{UserID: alice.ID, TargetName: "alice", Add: []string{"editor"}, Old: []string{"editor"}, New: []string{"editor"}, Actor: "admin", Reason: "noop"}
	if err := env.groups.ApplyDelta(ctx, delta); err != nil {
		t.Fatalf("re-adding a held membership must not fail: %v", err)
	}
	memberOf, err := env.groups.OfUser(ctx, alice.ID)
	if err != nil || len(memberOf) != 1 {
		t.Fatalf("membership must stay single, got %v err=%v", memberOf, err)
	}
	if err := env.pages.Ensure(ctx, "Main Page", "Main Page"); err != nil {
		t.Fatalf("re-ensuring a page must not fail: %v", err)
	}
}

func TestReturnToFallsBackToDefault(t *testing.T) {
	env := setupEditEnv(t)
	ctx := context.Background()
	if err := env.pages.Ensure(ctx, "Main Page"); err != nil {
		t.Fatalf("ensure page: %v", err)
	}
	if got := env.svc.ResolveReturnTo(ctx, "Main Page"); got != "Main Page" {
		t.Fatalf("known page must be kept, got %s", got)
	}
	if got := env.svc.ResolveReturnTo(ctx, "No Such Page"); got != "Special:UserAdmin" {
		t.Fatalf("unknown page must silently reset to default, got %s", got)
	}
}
