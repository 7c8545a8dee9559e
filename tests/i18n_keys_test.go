package tests

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"

	"wikiadm/core/i18n"
)

var reTemplateMsg = regexp.MustCompile(`msg\s+[$.]+Lang\s+"([^"]+)"`)

func mustLoadLang(t *testing.T, path string) map[string]string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	table := map[string]string{}
	if err := json.Unmarshal(raw, &table); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return table
}

func diffKeys(a, b map[string]string) []string {
	var missing []string
	for key := range a {
		if _, ok := b[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func TestLocaleKeyParity(t *testing.T) {
	en := mustLoadLang(t, filepath.Join("..", "core", "i18n", "locales", "en.json"))
	ru := mustLoadLang(t, filepath.Join("..", "core", "i18n", "locales", "ru.json"))
	if missing := diffKeys(en, ru); len(missing) > 0 {
		t.Fatalf("keys missing in ru: %v", missing)
	}
	if missing := diffKeys(ru, en); len(missing) > 0 {
		t.Fatalf("keys missing in en: %v", missing)
	}
}

func TestTemplateKeysExist(t *testing.T) {
	en := mustLoadLang(t, filepath.Join("..", "core", "i18n", "locales", "en.json"))
	raw, err := os.ReadFile(filepath.Join("..", "gui", "templates", "edituser.html"))
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	matches := reTemplateMsg.FindAllStringSubmatch(string(raw), -1)
	if len(matches) == 0 {
		t.Fatalf("expected msg references in template")
	}
	for _, m := range matches {
		if _, ok := en[m[1]]; !ok {
			t.Fatalf("template references unknown key %q", m[1])
		}
	}
}

func TestLocalizeSubstitutionAndFallback(t *testing.T) {
	got := i18n.Localize("en", "edituser.userNoExist", "ghost")
	if got != `No account named "ghost" exists` {
		t.Fatalf("unexpected message %q", got)
	}
	if i18n.Localize("de", "edituser.title") != "Edit user" {
		t.Fatalf("unknown language must fall back to english")
	}
	if i18n.Localize("en", "no.such.key") != "<no.such.key>" {
		t.Fatalf("unknown keys must come back angle-bracketed")
	}
	body := i18n.Localize("ru", "mail.passwordBody", "alice", "secret12", "http://wiki.local", "wiki")
	for _, want := range []string{"alice", "secret12", "http://wiki.local"} {
		if !regexp.MustCompile(regexp.QuoteMeta(want)).MatchString(body) {
			t.Fatalf("mail body must substitute %q, got %q", want, body)
		}
	}
}
