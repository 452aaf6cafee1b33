package staging

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxNameBytes keeps staged names well under common filesystem limits.
const maxNameBytes = 200

// fallbackName is used when nothing of a display name survives sanitizing.
const fallbackName = "file"

// SanitizeName reduces a user-supplied file name to a single safe path
// element: directories are dropped, separators and control characters are
// replaced, and the result is length-capped with the extension preserved.
func SanitizeName(display string) string {
	name := strings.ReplaceAll(display, `\`, "/")
	name = filepath.Base(name)
	if name == "/" || name == "." || name == ".." {
		return fallbackName
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case r == utf8.RuneError:
			return '_'
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`/:*?"<>|`, r):
			return '_'
		default:
			return r
		}
	}, name)
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." {
		return fallbackName
	}
	return truncateName(name, maxNameBytes)
}

func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > limit/2 {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	cut := limit - len(ext)
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	return stem[:cut] + ext
}
