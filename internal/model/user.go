// Package model defines the data structures exchanged with the git-analyser API.
package model

// User is the authenticated account as returned by GET /apiV1/user.
//
// A User is immutable once fetched for a given access token; a new sign-in
// replaces it wholesale rather than patching fields.
//
// WHY Email string (not *string)?
// The API omits the email when the identity provider hides it. An empty
// string is the zero value and is safe to display, so there is no need for a
// nullable pointer.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	PictureURL string `json:"pictureUrl"`
	Email      string `json:"email,omitempty"`
}

// TokenPair is the access+refresh token pair issued by the OAuth callback
// and by POST /apiV1/refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
