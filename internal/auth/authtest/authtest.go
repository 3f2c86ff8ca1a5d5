// Package authtest issues signed bearer tokens for tests.
//
// The dashboard never signs tokens in production; the API does. Tests still
// need realistic three-part tokens with a known expiry, so this package signs
// them with a fixed HMAC secret.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret-at-least-16-chars!!"

// Token returns a signed HS256 token for subject expiring at exp. extra
// claims are merged into the payload.
func Token(t testing.TB, subject string, exp time.Time, extra map[string]any) string {
	t.Helper()

	c := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	}
	for k, v := range extra {
		c[k] = v
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("authtest: signing token: %v", err)
	}
	return signed
}

// TokenIn is Token with an expiry relative to now.
func TokenIn(t testing.TB, subject string, d time.Duration) string {
	t.Helper()
	return Token(t, subject, time.Now().Add(d), nil)
}
