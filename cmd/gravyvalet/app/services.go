package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cos/gravyvalet/pkg/config"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/secrets"
	"github.com/cos/gravyvalet/pkg/storage"
)

func newServicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Administer ExternalService rows",
	}
	cmd.AddCommand(newServicesListCmd())
	cmd.AddCommand(newServicesCreateCmd())
	return cmd
}

func newServicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered ExternalServices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			db, err := storage.Open(cmd.Context(), cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer db.Close()

			services, err := storage.NewServiceRepository(db).ListAll(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range services {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.AddonImpKey, s.AuthType)
			}
			return nil
		},
	}
}

func newServicesCreateCmd() *cobra.Command {
	var (
		id, name, impKey, baseURL, authType        string
		oauth2ClientID, oauth2ClientSecretRef      string
		oauth2AuthorizeURL, oauth2TokenURL         string
		oauth1ConsumerKey, oauth1ConsumerSecretRef string
		oauth1RequestTokenURL, oauth1AuthorizeURL  string
		oauth1AccessTokenURL                       string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new ExternalService",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			db, err := storage.Open(cmd.Context(), cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer db.Close()

			registry := secretsRegistry(cmd.Context())

			service := domain.ExternalService{
				ID:          id,
				Name:        name,
				AddonImpKey: impKey,
				BaseURL:     baseURL,
				AuthType:    domain.AuthType(authType),
			}

			switch service.AuthType {
			case domain.AuthOAuth2:
				clientSecret, err := registry.Resolve(cmd.Context(), oauth2ClientSecretRef)
				if err != nil {
					return fmt.Errorf("resolving oauth2 client secret: %w", err)
				}
				service.OAuth2Config = &domain.OAuth2ClientConfig{
					ClientID:     oauth2ClientID,
					ClientSecret: clientSecret,
					AuthorizeURL: oauth2AuthorizeURL,
					TokenURL:     oauth2TokenURL,
				}
			case domain.AuthOAuth1:
				consumerSecret, err := registry.Resolve(cmd.Context(), oauth1ConsumerSecretRef)
				if err != nil {
					return fmt.Errorf("resolving oauth1 consumer secret: %w", err)
				}
				service.OAuth1Config = &domain.OAuth1ClientConfig{
					ConsumerKey:     oauth1ConsumerKey,
					ConsumerSecret:  consumerSecret,
					RequestTokenURL: oauth1RequestTokenURL,
					AuthorizeURL:    oauth1AuthorizeURL,
					AccessTokenURL:  oauth1AccessTokenURL,
				}
			}

			if err := storage.NewServiceRepository(db).Create(cmd.Context(), service); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created service %s\n", service.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Stable service identifier")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&impKey, "imp-key", "", "Registered provider implementation key")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Provider API base URL")
	cmd.Flags().StringVar(&authType, "auth-type", "", "oauth1, oauth2, or static_token")
	cmd.Flags().StringVar(&oauth2ClientID, "oauth2-client-id", "", "OAuth2 client id")
	cmd.Flags().StringVar(&oauth2ClientSecretRef, "oauth2-client-secret-ref", "", "OAuth2 client secret reference (env://, keyring://, op://, awssm://)")
	cmd.Flags().StringVar(&oauth2AuthorizeURL, "oauth2-authorize-url", "", "OAuth2 authorize endpoint")
	cmd.Flags().StringVar(&oauth2TokenURL, "oauth2-token-url", "", "OAuth2 token endpoint")
	cmd.Flags().StringVar(&oauth1ConsumerKey, "oauth1-consumer-key", "", "OAuth1 consumer key")
	cmd.Flags().StringVar(&oauth1ConsumerSecretRef, "oauth1-consumer-secret-ref", "", "OAuth1 consumer secret reference")
	cmd.Flags().StringVar(&oauth1RequestTokenURL, "oauth1-request-token-url", "", "OAuth1 request token endpoint")
	cmd.Flags().StringVar(&oauth1AuthorizeURL, "oauth1-authorize-url", "", "OAuth1 authorize endpoint")
	cmd.Flags().StringVar(&oauth1AccessTokenURL, "oauth1-access-token-url", "", "OAuth1 access token endpoint")
	return cmd
}

// secretsRegistry wires every backend pkg/secrets supports; an operator
// need only use the reference scheme matching whichever one they've
// configured for a given secret. The keyring and env backends always
// work since they need no further configuration; the 1Password and AWS
// backends are best-effort and only registered when their own
// environment is present, since an uninitialized SDK client is worse than
// a scheme that simply isn't registered.
func secretsRegistry(ctx context.Context) *secrets.Registry {
	registry := secrets.NewRegistry()
	registry.Register(secrets.SchemeEnv, secrets.EnvResolver{})
	registry.Register(secrets.SchemeKeyring, secrets.KeyringResolver{})

	if token := os.Getenv("OP_SERVICE_ACCOUNT_TOKEN"); token != "" {
		if resolver, err := secrets.NewOnePasswordResolver(ctx, token); err == nil {
			registry.Register(secrets.SchemeOnePassword, resolver)
		}
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		if resolver, err := secrets.NewAWSSecretsManagerResolver(ctx, region); err == nil {
			registry.Register(secrets.SchemeAWSSecretsManager, resolver)
		}
	}
	return registry
}
