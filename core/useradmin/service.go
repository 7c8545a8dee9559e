package useradmin

import (
	"context"
	"strings"

	"wikiadm/config"
	"wikiadm/core/auth"
	"wikiadm/core/mailer"
	"wikiadm/core/store"
	"wikiadm/core/utils"
)

// LookupError reports an unresolvable account lookup. Field names the
// request parameter that failed so the form can point at it.
type LookupError struct {
	Field string
	Key   string
	Args  []string
}

// SubmissionError is the first validation or apply failure of a POST.
// Key and Args localize into the banner message.
type SubmissionError struct {
	Field string
	Key   string
	Args  []string
}

// Summary describes what one applied submission actually changed.
type Summary struct {
	Profile   bool
	Password  bool
	Groups    bool
	PwdAction string
	EmailedTo string
}

// Changed reports whether anything was modified at all.
func (s *Summary) Changed() bool {
	return s.Profile || s.Password || s.Groups
}

// Service carries the user administration workflow: resolve a target
// account, validate a submission, apply it field by field with a change
// log entry per mutation.
type Service struct {
	users  store.UsersStore
	groups store.GroupsStore
	pages  store.PagesStore
	audits store.AuditStore
	mail   mailer.Mailer
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewService(users store.UsersStore, groups store.GroupsStore, pages store.PagesStore,
	audits store.AuditStore, mail mailer.Mailer, cfg *config.AppConfig, logger *utils.Logger) *Service {
	return &Service{users: users, groups: groups, pages: pages, audits: audits,
		mail: mail, cfg: cfg, logger: logger}
}

// Resolve finds the target account. Numeric id wins over the subpage
// name, which wins over the free-text username field. A request naming
// no target resolves to (nil, nil, nil) and yields the search form.
func (s *Service) Resolve(ctx context.Context, req *EditRequest) (*store.User, *LookupError, error) {
	if req.HasTargetID() {
		if req.UserID <= 0 {
			return nil, &LookupError{Field: "userid", Key: "edituser.invalidUserId", Args: []string{req.RawUserID}}, nil
		}
		u, err := s.users.Get(ctx, req.UserID)
		if err != nil {
			return nil, nil, err
		}
		if u == nil {
			return nil, &LookupError{Field: "userid", Key: "edituser.invalidUserId", Args: []string{req.RawUserID}}, nil
		}
		return u, nil, nil
	}
	for _, name := range []string{req.Subpage, req.Username} {
		if name == "" {
			continue
		}
		u, err := s.users.FindByName(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		if u == nil {
			return nil, &LookupError{Field: "username", Key: "edituser.userNoExist", Args: []string{name}}, nil
		}
		return u, nil, nil
	}
	return nil, nil, nil
}

// ResolveReturnTo validates the requested return-to page and silently
// falls back to the configured default when it is unknown.
func (s *Service) ResolveReturnTo(ctx context.Context, requested string) string {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		known, err := s.pages.IsKnown(ctx, requested)
		if err == nil && known {
			return requested
		}
	}
	return s.cfg.ReturnToPage
}

// ValidateSubmission runs the write-path checks in order and returns
// the first failure. target may be nil when lookup already failed.
func (s *Service) ValidateSubmission(ctx context.Context, sessionID string, req *EditRequest, target *store.User) (*SubmissionError, error) {
	if target == nil {
		return &SubmissionError{Field: "userid", Key: "edituser.invalidUserId", Args: []string{req.RawUserID}}, nil
	}
	if req.Username == "" {
		return &SubmissionError{Field: "username", Key: "edituser.fieldRequired", Args: []string{"username"}}, nil
	}
	if req.Username != target.Username {
		otherID, err := s.users.IDFromName(ctx, req.Username)
		if err != nil {
			return nil, err
		}
		if otherID != 0 && otherID != target.ID {
			return &SubmissionError{Field: "username", Key: "edituser.usernameInUse", Args: []string{req.Username}}, nil
		}
		if !utils.IsCreatableName(req.Username) {
			return &SubmissionError{Field: "username", Key: "edituser.invalidUsername"}, nil
		}
	}
	if !auth.MatchEditToken(s.cfg.CSRFKey, sessionID, target.ID, req.EditToken) {
		return &SubmissionError{Field: "edittoken", Key: "edituser.formSubmissionError"}, nil
	}
	if req.Email == "" {
		return &SubmissionError{Field: "email", Key: "edituser.fieldRequired", Args: []string{"email"}}, nil
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		return &SubmissionError{Field: "email", Key: "edituser.invalidEmail"}, nil
	}
	if req.Reason == "" {
		return &SubmissionError{Field: "reason", Key: "edituser.fieldRequired", Args: []string{"reason"}}, nil
	}
	if !req.KnownPwdAction() {
		return &SubmissionError{Field: "pwdaction", Key: "edituser.formSubmissionError"}, nil
	}
	if req.PwdAction == PwdActionManual {
		if req.Password1 == "" || req.Password2 == "" {
			return &SubmissionError{Field: "password1", Key: "edituser.fieldRequired", Args: []string{"password"}}, nil
		}
		if req.Password1 != req.Password2 {
			return &SubmissionError{Field: "password2", Key: "edituser.passwordsMustMatch"}, nil
		}
	}
	return nil, nil
}

// Apply mutates the validated target. Field changes are staged with
// their log entries and written only when the submission reaches the
// save path, so a password or mail failure aborts without persisting
// anything and an unchanged resubmission logs nothing.
func (s *Service) Apply(ctx context.Context, req *EditRequest, target *store.User, actor, lang string) (*Summary, *SubmissionError, error) {
	summary := &Summary{PwdAction: req.PwdAction}
	var staged []store.ChangeLogEntry

	stage := func(action, oldValue, newValue string) {
		staged = append(staged, store.ChangeLogEntry{
			Action:     action,
			TargetID:   target.ID,
			TargetName: target.Username,
			Actor:      actor,
			Reason:     req.Reason,
			OldValue:   oldValue,
			NewValue:   newValue,
		})
	}

	if req.Username != target.Username {
		stage(store.ActionUserRename, target.Username, req.Username)
		target.Username = req.Username
		summary.Profile = true
	}
	if req.RealName != target.RealName {
		stage(store.ActionUserRealName, target.RealName, req.RealName)
		target.RealName = req.RealName
		summary.Profile = true
	}
	if req.Email != target.Email {
		stage(store.ActionUserEmail, target.Email, req.Email)
		target.Email = req.Email
		// A new address starts unconfirmed.
		target.EmailAuthenticatedAt = nil
		summary.Profile = true
	}

	switch req.PwdAction {
	case PwdActionManual:
		if err := utils.ValidatePassword(req.Password1); err != nil {
			return nil, &SubmissionError{Field: "password1", Key: "edituser.passwordError", Args: []string{err.Error()}}, nil
		}
		if err := s.setPassword(target, req.Password1, false); err != nil {
			return nil, nil, err
		}
		stage(store.ActionPasswordSet, "", "")
		summary.Password = true
	case PwdActionEmail, PwdActionEmailWelcome:
		password, err := utils.RandString(12)
		if err != nil {
			return nil, nil, err
		}
		var msg mailer.Message
		action := store.ActionPasswordEmail
		if req.PwdAction == PwdActionEmailWelcome {
			msg = mailer.ComposeWelcomeMail(s.cfg, lang, target.Username, password)
			action = store.ActionWelcomeEmail
		} else {
			msg = mailer.ComposePasswordMail(s.cfg, lang, target.Username, password)
		}
		if err := s.mail.Send(ctx, target.Email, msg.Subject, msg.Body); err != nil {
			return nil, &SubmissionError{Field: "pwdaction", Key: "edituser.mailError", Args: []string{err.Error()}}, nil
		}
		if err := s.setPassword(target, password, true); err != nil {
			return nil, nil, err
		}
		stage(action, "", target.Email)
		summary.Password = true
		summary.EmailedTo = target.Email
	case PwdActionNoChange:
	}

	current, err := s.groups.OfUser(ctx, target.ID)
	if err != nil {
		return nil, nil, err
	}
	add, remove := groupDelta(current, req.Groups)
	if len(add) > 0 || len(remove) > 0 {
		if err := s.groups.ApplyDelta(ctx, store.GroupDelta{
			UserID:     target.ID,
			TargetName: target.Username,
			Add:        add,
			Remove:     remove,
			Old:        current,
			New:        req.Groups,
			Actor:      actor,
			Reason:     req.Reason,
		}); err != nil {
			return nil, nil, err
		}
		summary.Groups = true
	}

	if summary.Profile || summary.Password {
		for i := range staged {
			if err := s.audits.Log(ctx, &staged[i]); err != nil {
				return nil, nil, err
			}
		}
		if err := s.users.Save(ctx, target); err != nil {
			return nil, nil, err
		}
	}
	return summary, nil, nil
}

func (s *Service) setPassword(target *store.User, password string, requireChange bool) error {
	salt, err := auth.NewSalt()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password, salt, s.cfg.Pepper)
	if err != nil {
		return err
	}
	target.Salt = salt
	target.PasswordHash = hash
	target.RequirePasswordChange = requireChange
	return nil
}

func groupDelta(current, submitted []string) (add, remove []string) {
	have := make(map[string]bool, len(current))
	for _, g := range current {
		have[g] = true
	}
	want := make(map[string]bool, len(submitted))
	for _, g := range submitted {
		want[g] = true
		if !have[g] {
			add = append(add, g)
		}
	}
	for _, g := range current {
		if !want[g] {
			remove = append(remove, g)
		}
	}
	return add, remove
}
