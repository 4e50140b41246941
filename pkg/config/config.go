// Package config loads GravyValet's runtime configuration: the HTTP bind
// address, SQLite and Redis connection strings, the crypto key parameters
// and key ring, and the JWKS endpoint used to verify inbound caller
// tokens. It reads from a YAML file plus environment variable overrides
// via Viper, with environment variables taking precedence over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cos/gravyvalet/pkg/errors"
)

// Config is the fully-resolved, immutable runtime configuration. Build one
// with Load and pass it down explicitly rather than reading Viper globals
// from deep in the call stack.
type Config struct {
	HTTPAddr string

	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// CryptoSalt, in its raw (not base64-decoded) configuration form, and
	// the scrypt cost parameters for the currently-active key.
	CryptoSaltBase64           string
	CryptoScryptCost           int
	CryptoScryptBlockSize      int
	CryptoScryptParallelization int

	// CurrentCredentialsSecret encrypts new and re-wrapped credentials;
	// PriorCredentialsSecrets are tried in order on decrypt, letting an
	// operator rotate CurrentCredentialsSecret without a flag day.
	CurrentCredentialsSecret string
	PriorCredentialsSecrets  []string

	// StateSigningKey signs the short-lived OAuth state/pending-account
	// tokens the OAuth Coordinator hands the caller across a redirect.
	StateSigningKey string

	// CallerJWKSURL is the JWKS endpoint GravyValet's inbound auth
	// middleware fetches to verify the parent platform's caller tokens.
	CallerJWKSURL  string
	CallerIssuer   string
	CallerAudience string

	// WaterbutlerHMACSecret authenticates the Waterbutler-compatible
	// credential lookup surface; distinct from CurrentCredentialsSecret
	// since it's shared with a different caller population.
	WaterbutlerHMACSecret string

	// WorkerConcurrency bounds the deferred-invocation worker pool.
	WorkerConcurrency int

	DibsLeaseDuration time.Duration

	Debug bool
}

// Load reads configuration from configPath (if non-empty) and GRAVYVALET_*
// environment variables, env taking precedence over the file.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("gravyvalet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.NewInvalidArguments(fmt.Sprintf("reading config file %q", configPath), err)
		}
	}

	cfg := Config{
		HTTPAddr:                    v.GetString("http.addr"),
		SQLitePath:                  v.GetString("sqlite.path"),
		RedisAddr:                   v.GetString("redis.addr"),
		RedisPassword:               v.GetString("redis.password"),
		RedisDB:                     v.GetInt("redis.db"),
		CryptoSaltBase64:            v.GetString("crypto.salt"),
		CryptoScryptCost:            v.GetInt("crypto.scrypt_cost"),
		CryptoScryptBlockSize:       v.GetInt("crypto.scrypt_block_size"),
		CryptoScryptParallelization: v.GetInt("crypto.scrypt_parallelization"),
		CurrentCredentialsSecret:    v.GetString("crypto.current_secret"),
		PriorCredentialsSecrets:     v.GetStringSlice("crypto.prior_secrets"),
		StateSigningKey:             v.GetString("oauth.state_signing_key"),
		CallerJWKSURL:               v.GetString("auth.caller_jwks_url"),
		CallerIssuer:                v.GetString("auth.caller_issuer"),
		CallerAudience:              v.GetString("auth.caller_audience"),
		WaterbutlerHMACSecret:       v.GetString("waterbutler.hmac_secret"),
		WorkerConcurrency:           v.GetInt("invocation.worker_concurrency"),
		DibsLeaseDuration:           v.GetDuration("invocation.dibs_lease"),
		Debug:                       v.GetBool("debug"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", "127.0.0.1:8080")
	v.SetDefault("sqlite.path", "gravyvalet.db")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("crypto.scrypt_cost", 1<<15)
	v.SetDefault("crypto.scrypt_block_size", 8)
	v.SetDefault("crypto.scrypt_parallelization", 1)
	v.SetDefault("invocation.dibs_lease", 2*time.Minute)
	v.SetDefault("invocation.worker_concurrency", 4)
	v.SetDefault("debug", false)
}

func (c Config) validate() error {
	if c.CurrentCredentialsSecret == "" {
		return errors.NewInvalidArguments("crypto.current_secret must be set", nil)
	}
	if c.StateSigningKey == "" {
		return errors.NewInvalidArguments("oauth.state_signing_key must be set", nil)
	}
	if c.WaterbutlerHMACSecret == "" {
		return errors.NewInvalidArguments("waterbutler.hmac_secret must be set", nil)
	}
	if c.CallerJWKSURL == "" {
		return errors.NewInvalidArguments("auth.caller_jwks_url must be set", nil)
	}
	return nil
}
