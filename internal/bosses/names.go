// Package bosses centralizes boss-name handling: canonical spelling, alias lookup,
// raid categories and the YAML boss catalog used to seed respawn windows.
package bosses

import (
	"strings"
)

// aliases maps lowercase alternative spellings to the canonical name. Keys are
// compared after whitespace normalization.
var aliases = map[string]string{
	"chizzoron":             "Chizzoron the Distorter",
	"zulazza":               "Zulazza the Corruptor",
	"blightfather":          "The Blightfather",
	"foulscale":             "Grand Mother Foulscale",
	"grandmother foulscale": "Grand Mother Foulscale",
	"rotworm queen":         "Rotworm Queen",
}

// CanonicalName normalizes a user- or API-supplied boss name. Surrounding and repeated
// whitespace is removed, a space before a location suffix is dropped
// ("Zomba (East)" → "Zomba(East)") and known aliases are replaced by their canonical
// spelling, keeping the location suffix. Otherwise case is preserved.
func CanonicalName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	name = strings.ReplaceAll(name, " (", "(")
	name = strings.ReplaceAll(name, "( ", "(")
	name = strings.ReplaceAll(name, " )", ")")

	base, suffix := splitLocation(name)
	if canonical, ok := aliases[strings.ToLower(base)]; ok {
		return canonical + suffix
	}
	return name
}

// BaseName returns the lowercase name without its location suffix, used to match
// names from external sources: "Fleabringer(NW)" → "fleabringer".
func BaseName(raw string) string {
	base, _ := splitLocation(CanonicalName(raw))
	return strings.ToLower(base)
}

// Location returns the parenthesized location of a boss name, or ""
func Location(raw string) string {
	_, suffix := splitLocation(CanonicalName(raw))
	return strings.TrimSuffix(strings.TrimPrefix(suffix, "("), ")")
}

func splitLocation(name string) (string, string) {
	i := strings.Index(name, "(")
	if i < 0 {
		return name, ""
	}
	return strings.TrimSpace(name[:i]), name[i:]
}
