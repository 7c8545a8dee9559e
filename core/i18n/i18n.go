package i18n

import (
	"embed"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
)

//go:embed locales/*.json
var localeFiles embed.FS

var (
	once   sync.Once
	tables map[string]map[string]string
)

func load() {
	tables = map[string]map[string]string{}
	entries, err := localeFiles.ReadDir("locales")
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := localeFiles.ReadFile("locales/" + name)
		if err != nil {
			continue
		}
		table := map[string]string{}
		if err := json.Unmarshal(raw, &table); err != nil {
			continue
		}
		tables[strings.TrimSuffix(name, ".json")] = table
	}
}

// Languages lists the bundled locale codes.
func Languages() []string {
	once.Do(load)
	out := make([]string, 0, len(tables))
	for lang := range tables {
		out = append(out, lang)
	}
	return out
}

// Has reports whether key exists in the given language table.
func Has(lang, key string) bool {
	once.Do(load)
	table, ok := tables[lang]
	if !ok {
		return false
	}
	_, ok = table[key]
	return ok
}

// Localize resolves key in lang, falling back to English, substituting
// positional $1..$n placeholders. Unknown keys come back angle-bracketed
// so they stand out on screen instead of vanishing.
func Localize(lang, key string, args ...string) string {
	once.Do(load)
	table, ok := tables[lang]
	if !ok {
		table = tables["en"]
	}
	msg, ok := table[key]
	if !ok {
		if en, found := tables["en"][key]; found {
			msg = en
		} else {
			return "<" + key + ">"
		}
	}
	for i := len(args); i >= 1; i-- {
		msg = strings.ReplaceAll(msg, "$"+strconv.Itoa(i), args[i-1])
	}
	return msg
}
