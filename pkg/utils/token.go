package utils

import (
	"crypto/rand"
	"encoding/base64"
	"path/filepath"
	"strings"
)

// GenerateURLToken returns a URL-safe random token of about 4/3*n
// characters. n defaults to 24.
func GenerateURLToken(n int) (string, error) {
	if n <= 0 {
		n = 24
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	// RawURLEncoding: no '=' padding, no '+' or '/'
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SafeFilename strips directories and anything outside [A-Za-z0-9._-] from
// an uploaded file name.
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
