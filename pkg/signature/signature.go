// Package signature authenticates webhook deliveries with an HMAC-SHA256
// digest of the raw request body.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const prefix = "sha256="

// Sign returns the lowercase hex HMAC-SHA256 of body keyed by secret
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided is the signature of body under secret.
// The comparison takes constant time with respect to the digest contents.
// An empty secret or signature never verifies.
func Verify(body []byte, provided, secret string) bool {
	if secret == "" {
		return false
	}

	provided = strings.TrimSpace(provided)
	if len(provided) > len(prefix) && strings.EqualFold(provided[:len(prefix)], prefix) {
		provided = provided[len(prefix):]
	}
	if provided == "" {
		return false
	}

	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SecretSource supplies the current signing secret
type SecretSource interface {
	Secret(ctx context.Context) string
}

// StaticSecret is a SecretSource with a fixed value
type StaticSecret string

// Secret returns s
func (s StaticSecret) Secret(context.Context) string {
	return string(s)
}

// Verifier checks request signatures against a configured secret
type Verifier struct {
	secrets SecretSource
}

// NewVerifier creates a Verifier reading its secret from source
func NewVerifier(source SecretSource) *Verifier {
	if source == nil {
		source = StaticSecret("")
	}
	return &Verifier{secrets: source}
}

// VerifyRequest reports whether sig authenticates body. A missing secret
// rejects every request.
func (v *Verifier) VerifyRequest(ctx context.Context, body []byte, sig string) bool {
	return Verify(body, sig, v.secrets.Secret(ctx))
}

// HasSecret reports whether a signing secret is configured
func (v *Verifier) HasSecret(ctx context.Context) bool {
	return v.secrets.Secret(ctx) != ""
}
