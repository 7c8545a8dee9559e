package gui

import (
	"embed"
	"html/template"

	"wikiadm/core/i18n"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Templates parses the embedded page templates. The msg helper resolves
// localized strings at render time.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"msg": i18n.Localize,
	}).ParseFS(templateFiles, "templates/*.html"))
}
