package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/go-faster/errors"

	"github.com/xenking/breeze-gateway/pkg/canonjson"
)

// Sign computes the webhook signature of data: the base64 HMAC-SHA256 of its
// canonical form keyed with secret.
func Sign(secret string, data []byte) (string, error) {
	canonical, err := canonjson.Canonicalize(data)
	if err != nil {
		return "", errors.Wrap(err, "canonicalize")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature checks signature against data. An empty secret rejects
// everything.
func VerifySignature(secret string, data []byte, signature string) error {
	if secret == "" {
		return ErrWebhookSecretMissing
	}
	if signature == "" {
		return ErrInvalidSignature
	}
	expected, err := Sign(secret, data)
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
