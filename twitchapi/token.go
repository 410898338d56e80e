package twitchapi

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const defaultTokenURL = "https://id.twitch.tv/oauth2/token"

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// NOTE: This token CANNOT be used for IRC chat; chat requires a user (bot) OAuth token with chat:read/chat:edit scopes.
type TokenSource struct {
	src oauth2.TokenSource
}

// NewTokenSource builds an app token source for the given credentials. The
// optional HTTP client is used for token requests (nil means http.DefaultClient).
func NewTokenSource(clientID, clientSecret string, hc *http.Client) *TokenSource {
	return newTokenSource(clientID, clientSecret, defaultTokenURL, hc)
}

func newTokenSource(clientID, clientSecret, tokenURL string, hc *http.Client) *TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		// Twitch wants credentials in the form body, not basic auth.
		AuthStyle: oauth2.AuthStyleInParams,
	}
	ctx := context.Background()
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	return &TokenSource{src: cfg.TokenSource(ctx)}
}

// StaticTokenSource returns a source that always yields the given token.
// Test use only.
func StaticTokenSource(token string) *TokenSource {
	return &TokenSource{src: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})}
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	tok, err := ts.src.Token()
	if err != nil {
		return "", fmt.Errorf("twitch app token: %w", err)
	}
	return tok.AccessToken, nil
}
