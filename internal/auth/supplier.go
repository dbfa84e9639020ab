package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotConnected means the user has never linked a mailbox.
	ErrNotConnected = errors.New("gmail account not connected")

	// ErrReAuthRequired means the refresh token is permanently invalid and the
	// user must authorize again.
	ErrReAuthRequired = errors.New("gmail re-authorization required")

	// ErrInvalidGrant is returned by a Refresher when the token endpoint
	// rejects the refresh token itself.
	ErrInvalidGrant = errors.New("refresh token invalid")
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, cred Credential) (Credential, error)
}

// Supplier produces a usable credential for a user, refreshing proactively
// when the token is within five minutes of expiry.
type Supplier struct {
	Store     Store
	Refresher Refresher
	Logger    *slog.Logger
	Clock     func() time.Time
}

func NewSupplier(store Store, refresher Refresher, logger *slog.Logger) *Supplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supplier{Store: store, Refresher: refresher, Logger: logger, Clock: time.Now}
}

// Obtain returns a credential ready for use against the remote API.
//
// A refresh that fails with an invalid grant deletes the stored credential and
// surfaces ErrReAuthRequired. Any other refresh failure is treated as
// transient: the existing, possibly stale credential is returned so callers
// can ride out short token-endpoint outages instead of forcing the user back
// through authorization.
func (s *Supplier) Obtain(ctx context.Context, user string) (Credential, error) {
	cred, ok, err := s.Store.Get(ctx, user)
	if err != nil {
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}
	if !ok {
		return Credential{}, ErrNotConnected
	}

	if !cred.ExpiresWithin(s.Clock(), refreshWindow) {
		return cred, nil
	}

	refreshed, err := s.Refresher.Refresh(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			s.Logger.ErrorContext(ctx, "refresh token rejected, clearing credential",
				"user", user, "error", err)
			if delErr := s.Store.Delete(ctx, user); delErr != nil {
				s.Logger.ErrorContext(ctx, "delete invalid credential", "user", user, "error", delErr)
			}
			return Credential{}, ErrReAuthRequired
		}
		s.Logger.WarnContext(ctx, "token refresh failed, continuing with stale credential",
			"user", user, "error", err)
		return cred, nil
	}

	if err := s.Store.Put(ctx, user, refreshed); err != nil {
		return Credential{}, fmt.Errorf("persist refreshed credential: %w", err)
	}
	s.Logger.InfoContext(ctx, "access token refreshed", "user", user)
	return refreshed, nil
}
