package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"wikiadm/core/auth"
	"wikiadm/core/i18n"
	"wikiadm/core/store"
)

const (
	SessionCookieName = "wikiadm_session"
	CSRFCookieName    = "wikiadm_csrf"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func currentUser(r *http.Request) string {
	if sr := auth.FromContext(r.Context()); sr != nil {
		return sr.Username
	}
	return ""
}

func sessionFromCtx(r *http.Request) *store.SessionRecord {
	return auth.FromContext(r.Context())
}

func preferredLang(r *http.Request) string {
	if lang := strings.TrimSpace(r.URL.Query().Get("uselang")); lang != "" && i18n.Has(lang, "edituser.title") {
		return lang
	}
	al := r.Header.Get("Accept-Language")
	if strings.HasPrefix(strings.ToLower(al), "ru") {
		return "ru"
	}
	return "en"
}

func localized(lang, key string, args ...string) string {
	return i18n.Localize(lang, key, args...)
}
