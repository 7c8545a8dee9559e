package useradmin

import (
	"net/url"
	"strconv"
	"strings"
)

// Password action choices accepted on the wire.
const (
	PwdActionManual       = "manual"
	PwdActionEmail        = "email"
	PwdActionEmailWelcome = "emailwelcome"
	PwdActionNoChange     = "nochange"
)

// Form action verbs accepted on POST.
const (
	FormActionSave           = "saveuser"
	FormActionPwdPreview     = "emailpwdpreview"
	FormActionWelcomePreview = "emailwelcomepreview"
)

// Preview modes for the read path.
const (
	PreviewNone     = ""
	PreviewPassword = "password"
	PreviewWelcome  = "welcome"
)

// EditRequest is the decoded form state of one edit page request. It
// lives for a single request only.
type EditRequest struct {
	RawUserID string
	UserID    int64
	Subpage   string
	Username  string
	RealName  string
	Email     string
	Groups    []string
	PwdAction string
	Password1 string
	Password2 string
	Reason    string
	EditToken string
	ReturnTo  string
	Preview   string
	Action    string
}

// HasTargetID reports whether the caller addressed the target by
// numeric id. When true, submitted query values win over stored ones so
// a preview round trip keeps unsaved edits.
func (r *EditRequest) HasTargetID() bool {
	return strings.TrimSpace(r.RawUserID) != ""
}

// KnownPwdAction reports whether the password action is one of the
// recognized choices.
func (r *EditRequest) KnownPwdAction() bool {
	switch r.PwdAction {
	case PwdActionManual, PwdActionEmail, PwdActionEmailWelcome, PwdActionNoChange:
		return true
	}
	return false
}

// ParseEditRequest decodes form values into an EditRequest. A return-to
// value is accepted as-is here; the handler validates it against known
// pages and falls back to defaultReturnTo. An unparseable userid keeps
// its raw text so lookup can report it verbatim.
func ParseEditRequest(values url.Values, subpage, defaultReturnTo string) *EditRequest {
	req := &EditRequest{
		RawUserID: strings.TrimSpace(values.Get("userid")),
		Subpage:   strings.TrimSpace(subpage),
		Username:  strings.TrimSpace(values.Get("username")),
		RealName:  strings.TrimSpace(values.Get("realname")),
		Email:     strings.TrimSpace(values.Get("email")),
		PwdAction: strings.TrimSpace(values.Get("pwdaction")),
		Password1: values.Get("password1"),
		Password2: values.Get("password2"),
		Reason:    strings.TrimSpace(values.Get("reason")),
		EditToken: strings.TrimSpace(values.Get("edittoken")),
		ReturnTo:  strings.TrimSpace(values.Get("returnto")),
		Preview:   strings.TrimSpace(values.Get("preview")),
		Action:    strings.TrimSpace(values.Get("action")),
	}
	if req.RawUserID != "" {
		if id, err := strconv.ParseInt(req.RawUserID, 10, 64); err == nil && id > 0 {
			req.UserID = id
		}
	}
	if req.PwdAction == "" {
		req.PwdAction = PwdActionNoChange
	}
	if req.ReturnTo == "" {
		req.ReturnTo = defaultReturnTo
	}
	groups := values["groups[]"]
	if len(groups) == 0 {
		groups = values["groups"]
	}
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if g != "" {
			req.Groups = append(req.Groups, g)
		}
	}
	return req
}
