package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gitviz/internal/apperror"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"github", ProviderGitHub, false},
		{"GitLab", ProviderGitLab, false},
		{"bitbucket", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperror.ErrValidation), "want ErrValidation, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoginURL(t *testing.T) {
	got, err := LoginURL("http://localhost:8081/", ProviderGitLab)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081/oauth2/authorization/gitlab", got)

	got, err = LoginURL("https://api.example.com/analyser", ProviderGitHub)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/analyser/oauth2/authorization/github", got)
}

func TestParseFragment(t *testing.T) {
	t.Run("both tokens with leading hash", func(t *testing.T) {
		pair, err := ParseFragment("#accessToken=a.b.c&refreshToken=r-1")
		require.NoError(t, err)
		assert.Equal(t, "a.b.c", pair.AccessToken)
		assert.Equal(t, "r-1", pair.RefreshToken)
	})

	t.Run("without hash", func(t *testing.T) {
		pair, err := ParseFragment("refreshToken=r-2&accessToken=x.y.z")
		require.NoError(t, err)
		assert.Equal(t, "x.y.z", pair.AccessToken)
		assert.Equal(t, "r-2", pair.RefreshToken)
	})

	t.Run("single bare token is not supported", func(t *testing.T) {
		_, err := ParseFragment("#a.b.c")
		assert.True(t, errors.Is(err, apperror.ErrValidation))
	})

	t.Run("missing refresh token", func(t *testing.T) {
		_, err := ParseFragment("#accessToken=a.b.c")
		var appErr *apperror.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "refreshToken", appErr.Field)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseFragment("#")
		assert.True(t, errors.Is(err, apperror.ErrValidation))
	})
}
