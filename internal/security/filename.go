// Package security guards file names built from catalog data.
package security

import (
	"fmt"
	"strings"
)

// maxComponentLen bounds one generated path element.
const maxComponentLen = 128

// FileComponent returns s if it can be embedded in a file name without
// changing the directory it lands in. Values read from catalogs (a tract
// column, a run name) go through here before they become part of an output
// path.
func FileComponent(s string) (string, error) {
	switch {
	case s == "":
		return "", fmt.Errorf("empty file name component")
	case s == "." || s == "..":
		return "", fmt.Errorf("file name component %q is a directory reference", s)
	case len(s) > maxComponentLen:
		return "", fmt.Errorf("file name component too long: %d bytes (max %d)", len(s), maxComponentLen)
	}
	for _, r := range s {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("file name component %q contains %q", s, r)
		}
	}
	return s, nil
}

// SanitizeFilename makes a safe file name from an arbitrary string. Anything
// other than ASCII letters, digits, dot, underscore or dash becomes an
// underscore, runs of underscores collapse, and the result is capped at
// maxComponentLen.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxComponentLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
