package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/cos/gravyvalet/pkg/errors"
)

// AWSSecretsManagerResolver resolves awssm://secret-id references against
// AWS Secrets Manager, using the ambient AWS credential chain (env vars,
// shared config, or an assumed role via STS).
type AWSSecretsManagerResolver struct {
	client *secretsmanager.Client
}

// NewAWSSecretsManagerResolver loads the default AWS config for the given
// region and builds a resolver against it.
func NewAWSSecretsManagerResolver(ctx context.Context, region string) (*AWSSecretsManagerResolver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.NewCredentialError("loading AWS config", err)
	}
	return &AWSSecretsManagerResolver{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func (r *AWSSecretsManagerResolver) Resolve(ctx context.Context, secretID string) (string, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", errors.NewCredentialError(fmt.Sprintf("fetching AWS secret %q", secretID), err)
	}
	if out.SecretString == nil {
		return "", errors.NewCredentialError(fmt.Sprintf("AWS secret %q has no string value", secretID), nil)
	}
	return *out.SecretString, nil
}
