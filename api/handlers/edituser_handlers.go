package handlers

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"wikiadm/config"
	"wikiadm/core/auth"
	"wikiadm/core/mailer"
	"wikiadm/core/store"
	"wikiadm/core/useradmin"
	"wikiadm/core/utils"
	"wikiadm/gui"
)

// EditUserHandler serves the admin user edit page: a GET form and a
// POST that applies the submitted changes. Errors and confirmations
// travel through redirect query parameters so no submitted value is
// lost on failure.
type EditUserHandler struct {
	cfg    *config.AppConfig
	svc    *useradmin.Service
	groups store.GroupsStore
	logger *utils.Logger
	tmpl   *template.Template
}

func NewEditUserHandler(cfg *config.AppConfig, svc *useradmin.Service, groups store.GroupsStore, logger *utils.Logger) *EditUserHandler {
	return &EditUserHandler{cfg: cfg, svc: svc, groups: groups, logger: logger, tmpl: gui.Templates()}
}

const editUserPath = "/admin/edituser/"

func (h *EditUserHandler) Show(w http.ResponseWriter, r *http.Request) {
	lang := preferredLang(r)
	q := r.URL.Query()
	req := useradmin.ParseEditRequest(q, pathParams(r)["name"], h.cfg.ReturnToPage)
	page := &editUserPage{
		Lang:     lang,
		ReturnTo: h.svc.ResolveReturnTo(r.Context(), req.ReturnTo),
	}

	target, lookupErr, err := h.svc.Resolve(r.Context(), req)
	if err != nil {
		h.serverError(w, lang, err)
		return
	}

	switch {
	case lookupErr != nil:
		// A bad userid is dropped so the search form comes back clean;
		// a failed name lookup stays in the search field for another try.
		page.Banner = &bannerView{Error: true, Messages: []string{localized(lang, lookupErr.Key, lookupErr.Args...)}}
		if lookupErr.Field == "username" && len(lookupErr.Args) > 0 {
			page.SearchValue = lookupErr.Args[0]
		}
	case q.Get("errkey") != "":
		page.Banner = &bannerView{Error: true, Messages: []string{localized(lang, q.Get("errkey"), q["errarg"]...)}}
	case q.Get("saved") != "":
		page.Banner = &bannerView{Messages: successMessages(lang, q)}
	}

	if target != nil {
		known, err := h.groups.Known(r.Context())
		if err != nil {
			h.serverError(w, lang, err)
			return
		}
		current, err := h.groups.OfUser(r.Context(), target.ID)
		if err != nil {
			h.serverError(w, lang, err)
			return
		}
		sess := sessionFromCtx(r)
		token := auth.EditToken(h.cfg.CSRFKey, sess.ID, target.ID)
		groupsSubmitted := len(q["groups[]"]) > 0 || len(q["groups"]) > 0
		form := buildFormView(target, req, known, current, groupsSubmitted, token)
		h.attachPreview(form, req, lang)
		page.Form = form
	}
	h.render(w, page)
}

func (h *EditUserHandler) Submit(w http.ResponseWriter, r *http.Request) {
	lang := preferredLang(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req := useradmin.ParseEditRequest(r.Form, "", h.cfg.ReturnToPage)

	switch req.Action {
	case useradmin.FormActionPwdPreview:
		// The previewed choice comes back pre-selected.
		req.PwdAction = useradmin.PwdActionEmail
		h.redirectToForm(w, r, req, url.Values{"preview": {useradmin.PreviewPassword}})
	case useradmin.FormActionWelcomePreview:
		req.PwdAction = useradmin.PwdActionEmailWelcome
		h.redirectToForm(w, r, req, url.Values{"preview": {useradmin.PreviewWelcome}})
	case useradmin.FormActionSave:
		h.save(w, r, req, lang)
	default:
		h.redirectToForm(w, r, req, url.Values{"errkey": {"edituser.formSubmissionError"}})
	}
}

func (h *EditUserHandler) save(w http.ResponseWriter, r *http.Request, req *useradmin.EditRequest, lang string) {
	target, _, err := h.svc.Resolve(r.Context(), req)
	if err != nil {
		h.serverError(w, lang, err)
		return
	}
	sess := sessionFromCtx(r)
	subErr, err := h.svc.ValidateSubmission(r.Context(), sess.ID, req, target)
	if err != nil {
		h.serverError(w, lang, err)
		return
	}
	if subErr != nil {
		h.redirectWithError(w, r, req, subErr)
		return
	}
	summary, subErr, err := h.svc.Apply(r.Context(), req, target, sess.Username, lang)
	if err != nil {
		h.serverError(w, lang, err)
		return
	}
	if subErr != nil {
		h.redirectWithError(w, r, req, subErr)
		return
	}

	vals := url.Values{}
	vals.Set("userid", req.RawUserID)
	vals.Set("username", target.Username)
	if req.ReturnTo != "" {
		vals.Set("returnto", req.ReturnTo)
	}
	var cats []string
	if summary.Profile {
		cats = append(cats, "profile")
	}
	if summary.Password {
		cats = append(cats, "password")
		vals.Set("pwdaction", summary.PwdAction)
		if summary.EmailedTo != "" {
			vals.Set("emailedto", summary.EmailedTo)
		}
	}
	if summary.Groups {
		cats = append(cats, "groups")
	}
	if len(cats) > 0 {
		vals.Set("saved", strings.Join(cats, ","))
	}
	http.Redirect(w, r, editUserPath+"?"+vals.Encode(), http.StatusSeeOther)
}

// previewPasswordMask stands in for the random password, which is only
// generated when the mail is actually sent.
const previewPasswordMask = "************"

func (h *EditUserHandler) attachPreview(form *editFormView, req *useradmin.EditRequest, lang string) {
	var msg mailer.Message
	switch req.Preview {
	case useradmin.PreviewPassword:
		msg = mailer.ComposePasswordMail(h.cfg, lang, form.Username, previewPasswordMask)
	case useradmin.PreviewWelcome:
		msg = mailer.ComposeWelcomeMail(h.cfg, lang, form.Username, previewPasswordMask)
	default:
		return
	}
	form.Preview = &previewView{Subject: msg.Subject, Body: msg.Body}
	form.PreviewMode = req.Preview
}

// redirectToForm sends the browser back to the GET form with every
// submitted value preserved, except the passwords.
func (h *EditUserHandler) redirectToForm(w http.ResponseWriter, r *http.Request, req *useradmin.EditRequest, extra url.Values) {
	vals := url.Values{}
	if req.RawUserID != "" {
		vals.Set("userid", req.RawUserID)
	}
	if req.Username != "" {
		vals.Set("username", req.Username)
	}
	if req.RealName != "" {
		vals.Set("realname", req.RealName)
	}
	if req.Email != "" {
		vals.Set("email", req.Email)
	}
	if req.Reason != "" {
		vals.Set("reason", req.Reason)
	}
	if req.ReturnTo != "" {
		vals.Set("returnto", req.ReturnTo)
	}
	vals.Set("pwdaction", req.PwdAction)
	for _, g := range req.Groups {
		vals.Add("groups[]", g)
	}
	for key, list := range extra {
		for _, v := range list {
			vals.Add(key, v)
		}
	}
	http.Redirect(w, r, editUserPath+"?"+vals.Encode(), http.StatusSeeOther)
}

func (h *EditUserHandler) redirectWithError(w http.ResponseWriter, r *http.Request, req *useradmin.EditRequest, subErr *useradmin.SubmissionError) {
	extra := url.Values{"errkey": {subErr.Key}}
	for _, arg := range subErr.Args {
		extra.Add("errarg", arg)
	}
	h.redirectToForm(w, r, req, extra)
}

func (h *EditUserHandler) render(w http.ResponseWriter, page *editUserPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, "edituser.html", page); err != nil && h.logger != nil {
		h.logger.Errorf("edituser render: %v", err)
	}
}

func (h *EditUserHandler) serverError(w http.ResponseWriter, lang string, err error) {
	if h.logger != nil {
		h.logger.Errorf("edituser: %v", err)
	}
	http.Error(w, localized(lang, "common.serverError"), http.StatusInternalServerError)
}

func successMessages(lang string, q url.Values) []string {
	username := q.Get("username")
	var out []string
	for _, cat := range strings.Split(q.Get("saved"), ",") {
		switch strings.TrimSpace(cat) {
		case "profile":
			out = append(out, localized(lang, "edituser.profileSaved", username))
		case "password":
			switch q.Get("pwdaction") {
			case useradmin.PwdActionEmail:
				out = append(out, localized(lang, "edituser.passwordEmailed", username, q.Get("emailedto")))
			case useradmin.PwdActionEmailWelcome:
				out = append(out, localized(lang, "edituser.welcomeEmailed", username, q.Get("emailedto")))
			default:
				out = append(out, localized(lang, "edituser.passwordChanged", username))
			}
		case "groups":
			out = append(out, localized(lang, "edituser.groupsChanged", username))
		}
	}
	return out
}
