package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cos/gravyvalet/pkg/addon"
	"github.com/cos/gravyvalet/pkg/api"
	"github.com/cos/gravyvalet/pkg/auth"
	"github.com/cos/gravyvalet/pkg/authz"
	"github.com/cos/gravyvalet/pkg/config"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/invocation"
	"github.com/cos/gravyvalet/pkg/logger"
	"github.com/cos/gravyvalet/pkg/oauthflow"
	"github.com/cos/gravyvalet/pkg/queue"
	"github.com/cos/gravyvalet/pkg/storage"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the GravyValet HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger.Initialize(cfg.Debug)

	salt, err := base64.StdEncoding.DecodeString(cfg.CryptoSaltBase64)
	if err != nil {
		return fmt.Errorf("decoding crypto.salt: %w", err)
	}
	if err := crypto.Configure(salt, cfg.CryptoScryptCost, cfg.CryptoScryptBlockSize, cfg.CryptoScryptParallelization); err != nil {
		return fmt.Errorf("configuring key parameters: %w", err)
	}
	ring := crypto.NewRing(cfg.CurrentCredentialsSecret, cfg.PriorCredentialsSecrets...)

	db, err := storage.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	accounts := storage.NewAccountRepository(db)
	addons := storage.NewAddonRepository(db, accounts)
	services := storage.NewServiceRepository(db)
	invocations := storage.NewInvocationRepository(db)

	q := queue.New(redisClient)
	factory := addon.NewFactory(http.DefaultClient)

	authorizer, err := authz.NewAuthorizer(authz.ConfigOptions{Policies: authz.DefaultPolicies()})
	if err != nil {
		return fmt.Errorf("constructing authorizer: %w", err)
	}

	coordinator := oauthflow.NewCoordinator([]byte(cfg.StateSigningKey))

	workerID := workerIdentity()
	engine := invocation.New(invocations, factory, authorizer, q, workerID, coordinator, accounts, ring)

	worker := invocation.NewWorker(engine, q, invocations, addons, services, ring, cfg.WorkerConcurrency)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go func() {
		if err := worker.Run(workerCtx); err != nil {
			logger.Errorf("deferred invocation worker stopped with error: %v", err)
		}
	}()

	validator, err := auth.NewValidator(ctx, auth.ValidatorConfig{
		JWKSURL:  cfg.CallerJWKSURL,
		Issuer:   cfg.CallerIssuer,
		Audience: cfg.CallerAudience,
	})
	if err != nil {
		return fmt.Errorf("constructing caller token validator: %w", err)
	}

	return api.Serve(ctx, cfg, api.Dependencies{
		DB:          db,
		Ring:        ring,
		Engine:      engine,
		Coordinator: coordinator,
		Accounts:    accounts,
		Addons:      addons,
		Services:    services,
		Invocations: invocations,
		Validator:   validator,
		HMACSecret:  []byte(cfg.WaterbutlerHMACSecret),
		HTTPClient:  http.DefaultClient,
	})
}

// workerIdentity builds a stable-per-process, deployment-unique dibs
// holder identity out of the host name and process id.
func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
