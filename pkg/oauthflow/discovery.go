package oauthflow

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
)

// DiscoverOAuth2Endpoints fetches issuer's `.well-known/openid-configuration`
// document and returns an OAuth2ClientConfig with AuthorizeURL/TokenURL
// populated from it, so a service registration only needs to name the
// issuer for providers that support OIDC discovery rather than hand-enter
// both endpoint URLs.
func DiscoverOAuth2Endpoints(ctx context.Context, issuer, clientID, clientSecret string) (*domain.OAuth2ClientConfig, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.NewUnexpectedAddonError("oidc discovery failed for issuer "+issuer, err)
	}

	var claims struct {
		AuthorizationEndpoint string `json:"authorization_endpoint"`
		TokenEndpoint         string `json:"token_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, errors.NewUnexpectedAddonError("decoding oidc discovery document", err)
	}

	return &domain.OAuth2ClientConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthorizeURL: claims.AuthorizationEndpoint,
		TokenURL:     claims.TokenEndpoint,
	}, nil
}
