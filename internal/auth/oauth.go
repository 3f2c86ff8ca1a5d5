package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/model"
)

// Provider is an identity provider the git-analyser API can federate with.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// ParseProvider accepts only the providers the API registers OAuth clients for.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(s)); p {
	case ProviderGitHub, ProviderGitLab:
		return p, nil
	default:
		return "", apperror.ValidationFailed("provider", fmt.Sprintf("unsupported identity provider %q", s))
	}
}

// LoginURL returns the API URL that starts the OAuth authorization code flow.
//
// LOGIN FLOW OVERVIEW:
//  1. The browser is redirected to <api>/oauth2/authorization/<provider>
//  2. The API performs the code exchange with GitHub/GitLab server-side
//  3. The API redirects back to the dashboard's /login page with the token
//     pair in the URL FRAGMENT: /login#accessToken=...&refreshToken=...
//  4. The /login page posts the fragment to POST /api/session
//
// The fragment never reaches any server in step 3 (browsers do not send it),
// so the tokens cannot leak into access logs.
func LoginURL(apiBase string, provider Provider) (string, error) {
	base, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("auth: parsing API base URL: %w", err)
	}
	return base.JoinPath("oauth2", "authorization", string(provider)).String(), nil
}

// ParseFragment extracts the token pair from a login callback fragment.
// The leading '#' is optional. Both tokens are required; a fragment that
// carries a single bare token is rejected.
func ParseFragment(fragment string) (model.TokenPair, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return model.TokenPair{}, apperror.ValidationFailed("fragment", "login callback carried no tokens")
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return model.TokenPair{}, apperror.ValidationFailed("fragment", fmt.Sprintf("login callback fragment is malformed: %v", err))
	}

	pair := model.TokenPair{
		AccessToken:  values.Get("accessToken"),
		RefreshToken: values.Get("refreshToken"),
	}
	if pair.AccessToken == "" {
		return model.TokenPair{}, apperror.ValidationFailed("accessToken", "login callback is missing accessToken")
	}
	if pair.RefreshToken == "" {
		return model.TokenPair{}, apperror.ValidationFailed("refreshToken", "login callback is missing refreshToken")
	}

	return pair, nil
}
