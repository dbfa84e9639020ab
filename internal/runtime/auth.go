package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/evanmorrow/mailpurge/internal/gmail"
)

// NewLocalClient builds a client from gmailctl's local credential store. Used
// by the CLI binaries, where a single mailbox is authorized interactively on
// first run.
func NewLocalClient(ctx context.Context, cfgDir string) (gc.Client, error) {
	svc, err := (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, gmailapi.MailGoogleComScope)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc), nil
}

// NewTokenClient builds a client from an already-obtained OAuth token. Used by
// server deployments, where the credential supplier refreshes tokens per user.
func NewTokenClient(ctx context.Context, src oauth2.TokenSource) (gc.Client, error) {
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGoogleAPIClient(svc), nil
}

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
