package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenSourceFetchesAndCaches(t *testing.T) {
	tokenRequests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("client_id"); got != "test-client-id" {
			t.Errorf("client_id = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "app-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	ts := newTokenSource("test-client-id", "test-secret", server.URL, nil)
	ctx := context.Background()

	tok, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if tok != "app-token" {
		t.Errorf("Get() = %q, want app-token", tok)
	}

	// Second call reuses the cached token.
	if _, err := ts.Get(ctx); err != nil {
		t.Fatalf("Get() second call error = %v", err)
	}
	if tokenRequests != 1 {
		t.Errorf("token endpoint hit %d times, want 1", tokenRequests)
	}
}

func TestTokenSourceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid client"}`, http.StatusForbidden)
	}))
	defer server.Close()

	ts := newTokenSource("bad", "creds", server.URL, nil)
	if _, err := ts.Get(context.Background()); err == nil {
		t.Error("expected error from rejected token request")
	}
}

func TestStaticTokenSource(t *testing.T) {
	ts := StaticTokenSource("fixed")
	tok, err := ts.Get(context.Background())
	if err != nil || tok != "fixed" {
		t.Errorf("Get() = %q, %v; want fixed, nil", tok, err)
	}
}
