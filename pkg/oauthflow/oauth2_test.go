package oauthflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/domain"
)

func TestBeginAndResolveOAuth2State(t *testing.T) {
	c := NewCoordinator([]byte("test-signing-key"))
	cfg := &domain.OAuth2ClientConfig{
		ClientID: "client-id", ClientSecret: "secret",
		AuthorizeURL: "https://provider.example.com/authorize",
		TokenURL:     "https://provider.example.com/token",
	}

	authURL, err := c.BeginOAuth2(cfg, "box", "user-1", "https://gateway.example.com/callback", "https://app.example.com/done")
	if err != nil {
		t.Fatalf("BeginOAuth2() error = %v", err)
	}
	if authURL == "" {
		t.Fatal("BeginOAuth2() returned empty URL")
	}

	u, err := parseQueryState(authURL)
	if err != nil {
		t.Fatalf("parsing auth URL: %v", err)
	}

	pending, err := c.ResolveState(u)
	if err != nil {
		t.Fatalf("ResolveState() error = %v", err)
	}
	if pending.ServiceID != "box" || pending.UserID != "user-1" {
		t.Errorf("ResolveState() = %+v", pending)
	}
}

func parseQueryState(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Query().Get("state"), nil
}

func TestResolveState_RejectsTamperedToken(t *testing.T) {
	c := NewCoordinator([]byte("key-a"))
	other := NewCoordinator([]byte("key-b"))

	signed, err := c.signState("box", "user-1", "https://app.example.com/done")
	if err != nil {
		t.Fatalf("signState() error = %v", err)
	}

	if _, err := other.ResolveState(signed); err == nil {
		t.Error("ResolveState() with wrong signing key: want error, got nil")
	}
}

func TestCompleteOAuth2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	c := NewCoordinator([]byte("key"))
	cfg := &domain.OAuth2ClientConfig{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}

	creds, err := c.CompleteOAuth2(context.Background(), cfg, "https://gateway.example.com/callback", "auth-code")
	if err != nil {
		t.Fatalf("CompleteOAuth2() error = %v", err)
	}
	if creds.AccessToken != "at" || creds.RefreshToken != "rt" {
		t.Errorf("CompleteOAuth2() = %+v", creds)
	}
}

func TestRefresh_PreservesRefreshTokenForQuirkyProviders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-at","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	c := NewCoordinator([]byte("key"))
	cfg := &domain.OAuth2ClientConfig{
		ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL,
		Quirks: domain.QuirkRefreshDoesNotRotateRefreshToken,
	}
	current, err := credentials.NewOAuth2("old-at", "stays-the-same", time.Now().Add(-time.Hour).Unix())
	if err != nil {
		t.Fatalf("NewOAuth2() error = %v", err)
	}

	refreshed, err := c.Refresh(context.Background(), cfg, current)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.AccessToken != "new-at" {
		t.Errorf("refreshed.AccessToken = %q, want new-at", refreshed.AccessToken)
	}
	if refreshed.RefreshToken != "stays-the-same" {
		t.Errorf("refreshed.RefreshToken = %q, want original preserved under quirk", refreshed.RefreshToken)
	}
}

// TestRefresh_ConcurrentCallsCoalesceIntoOneTokenExchange drives the
// spec's single-flight testable property directly: N concurrent Refresh
// calls for the same credentials must hit the token endpoint exactly
// once and every caller must observe the one resulting access token.
func TestRefresh_ConcurrentCallsCoalesceIntoOneTokenExchange(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"AT_new","refresh_token":"RT","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	c := NewCoordinator([]byte("key"))
	cfg := &domain.OAuth2ClientConfig{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
	current, err := credentials.NewOAuth2("AT_old", "RT", time.Now().Add(-time.Hour).Unix())
	if err != nil {
		t.Fatalf("NewOAuth2() error = %v", err)
	}

	const n = 10
	results := make([]credentials.OAuth2, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Refresh(context.Background(), cfg, current)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("token endpoint called %d times, want exactly 1", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: Refresh() error = %v", i, err)
		}
		if results[i].AccessToken != "AT_new" {
			t.Errorf("caller %d: AccessToken = %q, want AT_new", i, results[i].AccessToken)
		}
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	noExpiry := credentials.OAuth2{AccessToken: "a", ExpiresAtUTC: 0}
	if NeedsRefresh(noExpiry, time.Minute, now) {
		t.Error("NeedsRefresh() = true for a token with no expiry")
	}

	expiringSoon := credentials.OAuth2{AccessToken: "a", ExpiresAtUTC: now.Add(30 * time.Second).Unix()}
	if !NeedsRefresh(expiringSoon, time.Minute, now) {
		t.Error("NeedsRefresh() = false for a token expiring within the leeway window")
	}

	freshEnough := credentials.OAuth2{AccessToken: "a", ExpiresAtUTC: now.Add(time.Hour).Unix()}
	if NeedsRefresh(freshEnough, time.Minute, now) {
		t.Error("NeedsRefresh() = true for a token well within its expiry")
	}
}
