package handlers

import (
	"time"

	"wikiadm/core/store"
	"wikiadm/core/useradmin"
)

type bannerView struct {
	Error    bool
	Messages []string
}

type groupOption struct {
	Name    string
	Checked bool
}

type previewView struct {
	Subject string
	Body    string
}

type editFormView struct {
	UserID             int64
	Username           string
	RealName           string
	Email              string
	EmailAuthenticated string
	Registered         string
	Touched            string
	EditCount          int
	LastEdit           string
	Groups             []groupOption
	PwdAction          string
	Reason             string
	EditToken          string
	Preview            *previewView
	PreviewMode        string
}

type editUserPage struct {
	Lang        string
	Banner      *bannerView
	SearchValue string
	Form        *editFormView
	ReturnTo    string
}

const viewTimeFormat = "2006-01-02 15:04"

func formatViewTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(viewTimeFormat)
}

// buildFormView merges stored account state with the request. Submitted
// values win when the target was addressed by id, so a preview round
// trip keeps unsaved edits on screen.
func buildFormView(target *store.User, req *useradmin.EditRequest, known, current []string, groupsSubmitted bool, editToken string) *editFormView {
	form := &editFormView{
		UserID:     target.ID,
		Username:   target.Username,
		RealName:   target.RealName,
		Email:      target.Email,
		Registered: formatViewTime(target.RegisteredAt),
		Touched:    formatViewTime(target.TouchedAt),
		EditCount:  target.EditCount,
		PwdAction:  req.PwdAction,
		Reason:     req.Reason,
		EditToken:  editToken,
	}
	if target.EmailAuthenticatedAt != nil {
		form.EmailAuthenticated = formatViewTime(*target.EmailAuthenticatedAt)
	}
	if target.LastEditAt != nil {
		form.LastEdit = formatViewTime(*target.LastEditAt)
	}
	memberOf := current
	if req.HasTargetID() {
		if req.Username != "" {
			form.Username = req.Username
		}
		if req.RealName != "" {
			form.RealName = req.RealName
		}
		if req.Email != "" {
			form.Email = req.Email
		}
		if groupsSubmitted {
			memberOf = req.Groups
		}
	}
	checked := make(map[string]bool, len(memberOf))
	for _, g := range memberOf {
		checked[g] = true
	}
	for _, g := range known {
		form.Groups = append(form.Groups, groupOption{Name: g, Checked: checked[g]})
	}
	return form
}
