package joincode

import (
	"crypto/rand"
	"encoding/base64"
)

const byteLength = 24

// New returns a URL-safe random token of 32 characters.
func New() (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func Valid(code string) bool {
	if len(code) < 20 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
