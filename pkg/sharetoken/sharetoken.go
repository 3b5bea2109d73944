// Package sharetoken mints the opaque capability strings that anonymous
// share links are keyed by.
package sharetoken

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes is the entropy per token. 16 random bytes keep links
// unguessable while the encoded form stays short enough for a URL segment.
const tokenBytes = 16

// New returns a fresh URL-safe token. A token is minted exactly once when
// its entity is created and never rotated afterwards; disabling a link is
// done by flipping the entity's visibility, not by replacing the token.
func New() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
