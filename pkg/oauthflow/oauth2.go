// Package oauthflow implements the OAuth Coordinator: driving OAuth1a and
// OAuth2 handshakes to completion, and keeping OAuth2 access tokens fresh
// via single-flight-coalesced refresh, using the standard
// golang.org/x/oauth2 config/token shapes for the OAuth2 leg.
package oauthflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/logger"
	"github.com/cos/gravyvalet/pkg/storage"
)

// refreshLeeway is how far ahead of actual expiry RefreshAndPersist
// attempts a refresh, shared by every surface (the Invocation Engine, the
// Waterbutler credential lookup) that calls it rather than Refresh
// directly.
const refreshLeeway = 60 * time.Second

// stateClaims is the JSON payload signed into the OAuth2 state parameter,
// correlating the callback back to the AuthorizedAccount being created
// and guarding against CSRF the way the original's state-token table did,
// without needing a separate database table to look it up.
type stateClaims struct {
	jwt.RegisteredClaims
	ServiceID  string `json:"service_id"`
	UserID     string `json:"user_id"`
	CallbackURL string `json:"callback_url"`
}

// Coordinator drives OAuth1/OAuth2 handshakes and refreshes for any
// ExternalService; each call takes that service's client configuration.
type Coordinator struct {
	stateSigningKey []byte
	refreshGroup    singleflight.Group
}

// NewCoordinator builds a Coordinator. stateSigningKey signs the state
// parameter JWT; it should be the gateway's own secret, not the
// provider's.
func NewCoordinator(stateSigningKey []byte) *Coordinator {
	return &Coordinator{stateSigningKey: stateSigningKey}
}

func (c *Coordinator) oauth2Config(cfg *domain.OAuth2ClientConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthorizeURL, TokenURL: cfg.TokenURL},
		RedirectURL:  redirectURL,
		Scopes:       cfg.DefaultScopes,
	}
}

// BeginOAuth2 returns the authorization URL to redirect the user's browser
// to, encoding serviceID/userID/callbackURL into a signed state token so
// CompleteOAuth2 can correlate the callback without a server-side session.
func (c *Coordinator) BeginOAuth2(cfg *domain.OAuth2ClientConfig, serviceID, userID, redirectURL, callbackURL string) (string, error) {
	state, err := c.signState(serviceID, userID, callbackURL)
	if err != nil {
		return "", err
	}

	oc := c.oauth2Config(cfg, redirectURL)
	opts := []oauth2.AuthCodeOption{}
	if cfg.Quirks.Has(domain.QuirkRequiresAccessTypeOffline) {
		opts = append(opts, oauth2.AccessTypeOffline)
	}
	if cfg.Quirks.Has(domain.QuirkRequiresApprovalPromptForce) {
		opts = append(opts, oauth2.SetAuthURLParam("approval_prompt", "force"))
	}
	return oc.AuthCodeURL(state, opts...), nil
}

func (c *Coordinator) signState(serviceID, userID, callbackURL string) (string, error) {
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ServiceID:   serviceID,
		UserID:      userID,
		CallbackURL: callbackURL,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.stateSigningKey)
	if err != nil {
		return "", errors.NewUnexpectedAddonError("signing oauth2 state token", err)
	}
	return signed, nil
}

// PendingAccount is what the state token resolves to: which service and
// platform user the inbound callback belongs to.
type PendingAccount struct {
	ServiceID   string
	UserID      string
	CallbackURL string
}

// ResolveState validates and decodes a state token produced by
// BeginOAuth2, rejecting expired or tampered tokens.
func (c *Coordinator) ResolveState(state string) (PendingAccount, error) {
	var claims stateClaims
	token, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return c.stateSigningKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return PendingAccount{}, errors.NewUnauthorized("oauth2 state token is invalid or expired", err)
	}
	return PendingAccount{ServiceID: claims.ServiceID, UserID: claims.UserID, CallbackURL: claims.CallbackURL}, nil
}

// CompleteOAuth2 exchanges an authorization code for a token, mirroring
// oauth2_callback_view's get_initial_access_token step.
func (c *Coordinator) CompleteOAuth2(ctx context.Context, cfg *domain.OAuth2ClientConfig, redirectURL, code string) (credentials.OAuth2, error) {
	oc := c.oauth2Config(cfg, redirectURL)
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return credentials.OAuth2{}, errors.NewCredentialError("exchanging authorization code for a token", err)
	}
	creds, err := toOAuth2Credentials(tok, cfg.Quirks)
	if err != nil {
		return credentials.OAuth2{}, err
	}
	logger.Infow("oauth2 handshake completed", "audit", marshalForAudit(cfg.ClientID, creds.RefreshToken != ""))
	return creds, nil
}

func toOAuth2Credentials(tok *oauth2.Token, quirks domain.OAuth2Quirks) (credentials.OAuth2, error) {
	var expiresAt int64
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.Unix()
	}
	if tok.RefreshToken == "" && quirks.Has(domain.QuirkOnlyAccessToken) {
		return credentials.NewOAuth2AccessTokenOnly(tok.AccessToken, expiresAt)
	}
	return credentials.NewOAuth2(tok.AccessToken, tok.RefreshToken, expiresAt)
}

// Refresh exchanges a refresh token for a fresh access token. Concurrent
// Refresh calls for the same refreshToken are coalesced via singleflight
// so a burst of invocations racing to refresh an expiring token results in
// exactly one upstream refresh call, not one per invocation. The upstream
// exchange is bounded to 10 seconds.
func (c *Coordinator) Refresh(ctx context.Context, cfg *domain.OAuth2ClientConfig, current credentials.OAuth2) (credentials.OAuth2, error) {
	if current.RefreshToken == "" {
		return credentials.OAuth2{}, errors.NewCredentialError("credential has no refresh token", nil)
	}

	// Callers coalesced onto this refresh wait on the same bounded exchange.
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	key := cfg.ClientID + "|" + current.RefreshToken
	v, err, _ := c.refreshGroup.Do(key, func() (any, error) {
		oc := c.oauth2Config(cfg, "")
		src := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
		fresh, err := src.Token()
		if err != nil {
			return nil, errors.NewCredentialError("refreshing oauth2 token", err)
		}
		if fresh.RefreshToken == "" && cfg.Quirks.Has(domain.QuirkRefreshDoesNotRotateRefreshToken) {
			fresh.RefreshToken = current.RefreshToken
		}
		return toOAuth2Credentials(fresh, cfg.Quirks)
	})
	if err != nil {
		return credentials.OAuth2{}, err
	}
	refreshed := v.(credentials.OAuth2)
	logger.Infow("oauth2 token refreshed", "audit", marshalForAudit(cfg.ClientID, refreshed.RefreshToken != ""))
	return refreshed, nil
}

// RefreshAndPersist refreshes creds through Refresh when it is an OAuth2
// credential close enough to expiry, sealing and persisting the result
// through accounts/ring before returning it. Non-OAuth2 credentials and
// services with no OAuth2Config pass through unchanged. This is the single
// refresh-before-use contract the Invocation Engine (before building an
// Imp) and the Waterbutler credential-lookup surface both apply, so an
// expiring token never reaches either as stale.
func (c *Coordinator) RefreshAndPersist(ctx context.Context, ring *crypto.Ring, accounts *storage.AccountRepository, cfgAddon domain.ConfiguredAddon, service domain.ExternalService, creds credentials.Credentials) (credentials.Credentials, error) {
	oauth2Creds, ok := creds.(credentials.OAuth2)
	if !ok || service.OAuth2Config == nil {
		return creds, nil
	}
	if !NeedsRefresh(oauth2Creds, refreshLeeway, time.Now().UTC()) {
		return creds, nil
	}
	refreshed, err := c.Refresh(ctx, service.OAuth2Config, oauth2Creds)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.EncryptJSON(ring, cfgAddon.Account.Credentials.Sealed.Params, refreshed)
	if err != nil {
		return nil, err
	}
	if err := accounts.UpdateCredentials(ctx, cfgAddon.Account.ID, sealed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// NeedsRefresh reports whether c's access token is expired or close enough
// to expiry (within the leeway the Invocation Engine uses before dispatch)
// that a refresh should be attempted first.
func NeedsRefresh(c credentials.OAuth2, leeway time.Duration, now time.Time) bool {
	if c.ExpiresAtUTC == 0 {
		return false
	}
	return now.Add(leeway).Unix() >= c.ExpiresAtUTC
}

// marshalForAudit renders a redacted summary of a token exchange for
// structured logging, never including the token values themselves.
func marshalForAudit(clientID string, hasRefresh bool) string {
	b, _ := json.Marshal(map[string]any{"client_id": clientID, "has_refresh_token": hasRefresh})
	return string(b)
}
