package payment

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/go-faster/errors"
)

const returnTokenBytes = 32

// NewReturnToken returns a URL-safe one-time token built from 32 random bytes.
func NewReturnToken() (string, error) {
	b := make([]byte, returnTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "read random")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
