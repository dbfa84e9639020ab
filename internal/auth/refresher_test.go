package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleRefresherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	r := NewGoogleRefresher()
	before := time.Now()
	cred, err := r.Refresh(context.Background(), Credential{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "rt-1",
		TokenURI:     srv.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, "at-2", cred.AccessToken)
	assert.Equal(t, "rt-1", cred.RefreshToken, "refresh token is retained")
	require.NotNil(t, cred.Expiry)
	assert.WithinDuration(t, before.Add(time.Hour), *cred.Expiry, 10*time.Second)
}

func TestGoogleRefresherInvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked."}`))
	}))
	defer srv.Close()

	r := NewGoogleRefresher()
	_, err := r.Refresh(context.Background(), Credential{RefreshToken: "revoked", TokenURI: srv.URL})
	assert.True(t, errors.Is(err, ErrInvalidGrant), "got %v", err)
}

func TestGoogleRefresherServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewGoogleRefresher()
	_, err := r.Refresh(context.Background(), Credential{RefreshToken: "rt", TokenURI: srv.URL})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidGrant), "5xx must not be treated as a dead token: %v", err)
}

func TestGoogleRefresherMissingRefreshToken(t *testing.T) {
	r := NewGoogleRefresher()
	_, err := r.Refresh(context.Background(), Credential{})
	assert.True(t, errors.Is(err, ErrInvalidGrant), "got %v", err)
}
