// Package locale resolves BCP 47 language codes to display names for use in
// "respond in language X" model instructions.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DisplayName returns the English display name of a language code, e.g.
// "en-US" -> "American English", "zh-CN" -> "Mandarin Chinese". Input that
// does not parse as a language tag (including an already-resolved display
// name) is returned unchanged.
func DisplayName(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
