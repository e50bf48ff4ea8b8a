// Package token owns the gateway bearer token lifecycle. A token is minted
// once on first run and then reused verbatim for the life of the install:
// rotating it would invalidate every control UI URL handed out so far.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// entropyBytes is the raw entropy per token; hex-encoded this yields
// a 48-character lowercase token.
const entropyBytes = 24

var wellFormed = regexp.MustCompile(`^[0-9a-f]{48}$`)

// WellFormed reports whether s has the exact shape New produces.
func WellFormed(s string) bool {
	return wellFormed.MatchString(s)
}

// Resolve returns the existing token unchanged when it is a non-empty
// trimmed string, and mints a fresh one otherwise.
func Resolve(existing string) (string, error) {
	if tok := strings.TrimSpace(existing); tok != "" {
		return tok, nil
	}
	return New()
}

// New generates a cryptographically random token, lowercase hex encoded.
// A failure here means the platform random source is unavailable; callers
// treat that as a fatal startup error since the shell cannot operate
// without a secret.
func New() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random source: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
