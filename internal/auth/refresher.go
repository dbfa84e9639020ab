package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
)

// GoogleRefresher calls the token endpoint directly so the response can be
// classified: an invalid_grant response means the refresh token is dead, not
// that the service hiccuped.
type GoogleRefresher struct {
	httpClient *http.Client
}

func NewGoogleRefresher() *GoogleRefresher {
	return &GoogleRefresher{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (g *GoogleRefresher) Refresh(ctx context.Context, cred Credential) (Credential, error) {
	if cred.RefreshToken == "" {
		return Credential{}, fmt.Errorf("%w: no refresh token", ErrInvalidGrant)
	}

	endpoint := cred.TokenURI
	if endpoint == "" {
		endpoint = google.Endpoint.TokenURL
	}
	form := url.Values{
		"client_id":     {cred.ClientID},
		"client_secret": {cred.ClientSecret},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("refresh request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credential{}, fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Error == "invalid_grant" {
			return Credential{}, fmt.Errorf("%w: %s", ErrInvalidGrant, apiErr.Error)
		}
		return Credential{}, fmt.Errorf("refresh failed: status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Credential{}, fmt.Errorf("parse refresh response: %w", err)
	}

	refreshed := cred
	refreshed.AccessToken = result.AccessToken
	expiry := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	refreshed.Expiry = &expiry
	return refreshed, nil
}
