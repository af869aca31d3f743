// Package slugify derives filesystem-safe document identifiers from
// uploaded file names.
package slugify

import (
	"strings"
	"unicode"
)

const maxSlugLen = 80

// Make lowercases the input, strips everything that is not a letter, digit,
// underscore or dash and folds whitespace/dash runs into single dashes. An
// input that reduces to nothing yields "document".
func Make(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := true
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128, r == '_':
			b.WriteRune(r)
			lastDash = false
		case unicode.IsSpace(r), r == '-', r == '.':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "document"
	}
	return slug
}
