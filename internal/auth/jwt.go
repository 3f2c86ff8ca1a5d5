// Package auth holds the client side of authentication: decoding bearer
// tokens, building OAuth login URLs, parsing the login callback and sealing
// tokens for storage.
//
// TOKEN STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"42","exp":1700000000,...}
//	- Signature: only the API can check it
//
// The dashboard is not a trust boundary. It reads the payload to learn when
// the token expires so it can renew it in time, and never checks the
// signature: the API is authoritative and rejects forged tokens itself.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/gitviz/internal/apperror"
)

// Claims is the decoded token payload. Unknown fields are kept as-is so a
// newer API can add claims without breaking older dashboards.
type Claims jwt.MapClaims

// Expiry returns the "exp" claim. ok is false when the claim is absent or
// not a number.
func (c Claims) Expiry() (exp time.Time, ok bool) {
	date, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// Subject returns the "sub" claim, or "" if it is absent.
func (c Claims) Subject() string {
	sub, err := jwt.MapClaims(c).GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// parser is safe for concurrent use; the options only affect Parse, and we
// only call ParseUnverified.
var parser = jwt.NewParser()

// Decode extracts the payload of a bearer token without a network call and
// without verifying the signature.
//
// Every failure is an apperror.ErrDecode:
//   - not exactly three dot-separated segments
//   - a header or payload segment that is not base64url
//   - a payload that is not a JSON object
//
// The "alg" header is not looked at.
func Decode(raw string) (Claims, error) {
	if raw == "" {
		return nil, apperror.Decode("auth: token is empty", nil)
	}

	claims := jwt.MapClaims{}
	_, parts, err := parser.ParseUnverified(raw, claims)
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		// Unknown or missing alg. The payload was decoded before the
		// lookup failed; only the signature segment is left to check.
		err = nil
		if _, segErr := parser.DecodeSegment(parts[2]); segErr != nil {
			err = fmt.Errorf("could not base64 decode signature: %w", errors.Join(jwt.ErrTokenMalformed, segErr))
		}
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, apperror.Decode(fmt.Sprintf("auth: malformed token: %v", err), err)
		}
		return nil, apperror.Decode(fmt.Sprintf("auth: decoding token: %v", err), err)
	}

	return Claims(claims), nil
}

// ExpiryOf is a shorthand for Decode followed by Claims.Expiry. A token that
// decodes but carries no expiry returns ok=false and a nil error.
func ExpiryOf(raw string) (exp time.Time, ok bool, err error) {
	claims, err := Decode(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	exp, ok = claims.Expiry()
	return exp, ok, nil
}
