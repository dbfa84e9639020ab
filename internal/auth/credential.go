// Package auth supplies valid Gmail credentials per user, refreshing access
// tokens before they expire. It is the only component that writes credential
// state.
package auth

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the persisted OAuth state for one user's mailbox.
type Credential struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenURI     string     `json:"token_uri"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"client_secret"`
	Scopes       []string   `json:"scopes"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// refreshWindow is how close to expiry a token may get before we refresh it
// proactively.
const refreshWindow = 5 * time.Minute

// ExpiresWithin reports whether the access token's known expiry falls inside
// now+window. Unknown expiry reports false; the token may still be rejected
// remotely, in which case the next Obtain refreshes reactively.
func (c Credential) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c.Expiry == nil {
		return false
	}
	return c.Expiry.Sub(now) < window
}

// TokenSource exposes the access token to the Google API client. The supplier
// refreshes before handing credentials out, so a static source is enough for
// the lifetime of one bulk operation.
func (c Credential) TokenSource() oauth2.TokenSource {
	tok := &oauth2.Token{AccessToken: c.AccessToken, TokenType: "Bearer"}
	if c.Expiry != nil {
		tok.Expiry = *c.Expiry
	}
	return oauth2.StaticTokenSource(tok)
}

// Store is the per-user credential persistence the supplier reads and writes.
type Store interface {
	Get(ctx context.Context, user string) (Credential, bool, error)
	Put(ctx context.Context, user string, cred Credential) error
	Delete(ctx context.Context, user string) error
}
