// Package types defines the core domain types shared by the archival pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// Format is an archive container format.
type Format string

// Supported archive formats.
const (
	FormatZip      Format = "zip"
	FormatSevenZip Format = "sevenzip"
)

// Formats lists the supported formats in presentation order.
func Formats() []Format {
	return []Format{FormatZip, FormatSevenZip}
}

// ParseFormat maps a user or button token to a Format.
// Accepts "zip", "7z", "7zip" and "sevenzip", case-insensitively.
func ParseFormat(token string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "zip":
		return FormatZip, nil
	case "7z", "7zip", "sevenzip":
		return FormatSevenZip, nil
	default:
		return "", fmt.Errorf("unsupported format %q (must be zip or 7z)", token)
	}
}

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatZip:
		return ".zip"
	case FormatSevenZip:
		return ".7z"
	default:
		return ""
	}
}

// Label is the short display label used in chat buttons.
func (f Format) Label() string {
	switch f {
	case FormatZip:
		return "ZIP"
	case FormatSevenZip:
		return "7Z"
	default:
		return string(f)
	}
}

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	return f == FormatZip || f == FormatSevenZip
}
