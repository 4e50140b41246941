package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Common verification errors.
var (
	ErrNoToken           = errors.New("no token provided")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidIssuer     = errors.New("invalid issuer")
	ErrInvalidAudience   = errors.New("invalid audience")
	ErrMissingJWKSURL    = errors.New("missing JWKS URL")
	ErrMissingKeyID      = errors.New("token header missing kid")
	ErrUnsupportedMethod = errors.New("unsupported signing method")
)

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	// Issuer is the expected "iss" claim. Empty skips the check.
	Issuer string
	// Audience is the expected "aud" claim. Empty skips the check.
	Audience string
	// JWKSURL is fetched and cached by httprc on a background refresh loop.
	JWKSURL string
}

// Validator verifies caller-token signatures against a cached JWKS and
// checks the standard registered claims.
type Validator struct {
	issuer   string
	audience string
	cache    *jwk.Cache
	jwksURL  string
}

// NewValidator starts the JWKS cache's background refresh loop (via
// httprc) and registers jwksURL with it. The cache is shared for the
// lifetime of ctx; callers typically pass a process-lifetime context.
func NewValidator(ctx context.Context, cfg ValidatorConfig) (*Validator, error) {
	if cfg.JWKSURL == "" {
		return nil, ErrMissingJWKSURL
	}

	client := httprc.NewClient()
	cache, err := jwk.NewCache(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("creating JWKS cache: %w", err)
	}
	if err := cache.Register(ctx, cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("registering JWKS URL: %w", err)
	}

	return &Validator{issuer: cfg.Issuer, audience: cfg.Audience, cache: cache, jwksURL: cfg.JWKSURL}, nil
}

// Verify parses and verifies rawToken, returning the resolved Identity.
func (v *Validator) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, ErrNoToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return v.keyForToken(ctx, token)
	}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if v.issuer != "" {
		iss, err := claims.GetIssuer()
		if err != nil || iss != v.issuer {
			return nil, ErrInvalidIssuer
		}
	}
	if v.audience != "" {
		aud, err := claims.GetAudience()
		if err != nil || !containsString(aud, v.audience) {
			return nil, ErrInvalidAudience
		}
	}

	identity, err := claimsToIdentity(claims, rawToken)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (v *Validator) keyForToken(ctx context.Context, token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMethod, token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, ErrMissingKeyID
	}

	set, err := v.cache.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("no key with kid %q in JWKS", kid)
	}

	var raw interface{}
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("exporting JWKS key: %w", err)
	}
	return raw, nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
