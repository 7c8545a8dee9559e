package mailer

import (
	"wikiadm/config"
	"wikiadm/core/i18n"
)

// Message is a composed subject and body pair, ready to send or to show
// as a preview.
type Message struct {
	Subject string
	Body    string
}

// ComposePasswordMail builds the password-reset notification for a user.
// Placeholders: username, password, sign-in url, site name.
func ComposePasswordMail(cfg *config.AppConfig, lang, username, password string) Message {
	return Message{
		Subject: i18n.Localize(lang, "mail.passwordSubject", cfg.SiteName),
		Body:    i18n.Localize(lang, "mail.passwordBody", username, password, cfg.SiteURL, cfg.SiteName),
	}
}

// ComposeWelcomeMail builds the welcome notification for a new user.
func ComposeWelcomeMail(cfg *config.AppConfig, lang, username, password string) Message {
	return Message{
		Subject: i18n.Localize(lang, "mail.welcomeSubject", cfg.SiteName),
		Body:    i18n.Localize(lang, "mail.welcomeBody", username, password, cfg.SiteURL, cfg.SiteName),
	}
}
