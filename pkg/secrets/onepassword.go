package secrets

import (
	"context"
	"fmt"

	onepassword "github.com/1password/onepassword-sdk-go"

	"github.com/cos/gravyvalet/pkg/errors"
)

// OnePasswordResolver resolves op://vault/item/field references via the
// 1Password SDK, authenticating with a service account token.
type OnePasswordResolver struct {
	client *onepassword.Client
}

// NewOnePasswordResolver builds a resolver authenticated with
// serviceAccountToken.
func NewOnePasswordResolver(ctx context.Context, serviceAccountToken string) (*OnePasswordResolver, error) {
	client, err := onepassword.NewClient(ctx,
		onepassword.WithServiceAccountToken(serviceAccountToken),
		onepassword.WithIntegrationInfo("GravyValet", "v1"),
	)
	if err != nil {
		return nil, errors.NewCredentialError("creating 1Password client", err)
	}
	return &OnePasswordResolver{client: client}, nil
}

func (r *OnePasswordResolver) Resolve(ctx context.Context, rest string) (string, error) {
	secret, err := r.client.Secrets.Resolve(ctx, "op://"+rest)
	if err != nil {
		return "", errors.NewCredentialError(fmt.Sprintf("resolving 1Password secret %q", rest), err)
	}
	return secret, nil
}
