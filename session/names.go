package session

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ytwritergod/archivetoziptest/types"
)

// MaxArchiveName caps the archive base name in bytes. It leaves room
// under the 255-byte file name limit for the extension, a ".partNNN"
// suffix and the ".partial" temp suffix.
const MaxArchiveName = 200

// ArchiveBaseName turns a user-typed name into a safe file base name.
// The extension always comes from f; a typed extension matching f is
// dropped so "bundle.zip" does not become "bundle.zip.zip".
// Returns "" when nothing usable remains.
func ArchiveBaseName(input string, f types.Format) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`:*?"<>|`, r):
			return '_'
		}
		return r
	}, input)
	name = strings.TrimSpace(name)

	if ext := f.Extension(); ext != "" && len(name) >= len(ext) &&
		strings.EqualFold(name[len(name)-len(ext):], ext) {
		name = strings.TrimSpace(name[:len(name)-len(ext)])
	}
	name = strings.TrimLeft(name, ". ")

	if len(name) > MaxArchiveName {
		cut := MaxArchiveName
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return strings.TrimRight(name, " ")
}
