package utils

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// SanitizeFilename reduces a client-supplied filename to a safe flat name.
// Path separators become underscores, anything outside [A-Za-z0-9._-] is
// dropped, and leading/trailing dots and underscores are stripped, so
// traversal input like "../../etc/passwd" collapses to "etc_passwd".
// Returns "" when nothing usable remains; callers must reject that.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", " ")
	name = strings.ReplaceAll(name, "/", " ")
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}

	return strings.Trim(b.String(), "._")
}

// FileExtension returns the lowercased extension of name without the dot,
// or "" when the name has none.
func FileExtension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// RandomHex returns n random bytes hex-encoded, i.e. a 2n character string.
// Used for the unguessable prefixes on stored blob names.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
