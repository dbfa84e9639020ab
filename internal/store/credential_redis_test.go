package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanmorrow/mailpurge/internal/auth"
)

func TestCredentialRoundTrip(t *testing.T) {
	s := NewRedisCredentialStore(newTestClient(t))
	ctx := context.Background()

	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cred := auth.Credential{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenURI:     "https://oauth2.googleapis.com/token",
		ClientID:     "cid",
		ClientSecret: "secret",
		Scopes:       []string{"https://mail.google.com/"},
		Expiry:       &expiry,
	}
	require.NoError(t, s.Put(ctx, "u@example.com", cred))

	got, ok, err := s.Get(ctx, "u@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cred.AccessToken, got.AccessToken)
	assert.Equal(t, cred.RefreshToken, got.RefreshToken)
	require.NotNil(t, got.Expiry)
	assert.True(t, got.Expiry.Equal(expiry))
}

func TestCredentialMissing(t *testing.T) {
	s := NewRedisCredentialStore(newTestClient(t))

	_, ok, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialDelete(t *testing.T) {
	s := NewRedisCredentialStore(newTestClient(t))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u", auth.Credential{AccessToken: "at"}))
	require.NoError(t, s.Delete(ctx, "u"))

	_, ok, err := s.Get(ctx, "u")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing credential is not an error.
	require.NoError(t, s.Delete(ctx, "u"))
}

func TestCredentialsIsolatedPerUser(t *testing.T) {
	s := NewRedisCredentialStore(newTestClient(t))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", auth.Credential{AccessToken: "token-a"}))
	require.NoError(t, s.Put(ctx, "b", auth.Credential{AccessToken: "token-b"}))
	require.NoError(t, s.Delete(ctx, "a"))

	got, ok, err := s.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "token-b", got.AccessToken)
}
