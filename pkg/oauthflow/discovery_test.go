package oauthflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiscoverOAuth2Endpoints(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
		})
	}))
	defer srv.Close()

	cfg, err := DiscoverOAuth2Endpoints(context.Background(), srv.URL, "client-id", "client-secret")
	if err != nil {
		t.Fatalf("DiscoverOAuth2Endpoints() error = %v", err)
	}
	if cfg.AuthorizeURL != srv.URL+"/authorize" || cfg.TokenURL != srv.URL+"/token" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ClientID != "client-id" || cfg.ClientSecret != "client-secret" {
		t.Errorf("cfg credentials = %+v", cfg)
	}
}

func TestDiscoverOAuth2Endpoints_UnreachableIssuer(t *testing.T) {
	if _, err := DiscoverOAuth2Endpoints(context.Background(), "http://127.0.0.1:0", "id", "secret"); err == nil {
		t.Error("DiscoverOAuth2Endpoints() for an unreachable issuer: want error, got nil")
	}
}
