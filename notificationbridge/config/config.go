// --- File: notificationbridge/config/config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-notification-bridge/internal/auth"
)

// Provider APIs.
const (
	ProviderLegacy = "legacy"
	ProviderV1     = "v1"
	ProviderSDK    = "sdk"
)

// Directory backends.
const (
	BackendREST      = "rest"
	BackendFirestore = "firestore"
)

const (
	DefaultListenAddr      = ":8080"
	DefaultRoute           = "/send-notification"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultProviderTimeout = 10 * time.Second
	DefaultAdminRole       = "admin"
	DefaultRedisTTL        = 60 * time.Second
)

type CredentialsConfig struct {
	Strategy string
	TokenURL string

	// Secrets, environment only.
	ServerKey            string
	ServiceAccountJSON   string
	ServiceAccountBase64 string

	// ServiceAccount is the parsed key file, set during validation when
	// service-account material is present.
	ServiceAccount *auth.ServiceAccount
}

type ProviderConfig struct {
	API         string
	Timeout     time.Duration
	ChannelID   string
	ClickAction string
}

type DirectoryConfig struct {
	Backend    string
	BaseURL    string
	APIKey     string
	Collection string
	RoleField  string
	TokenField string
	AdminRole  string
	PageSize   int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID      string
	ListenAddr     string
	Route          string
	RequestTimeout time.Duration
	MaxConcurrency int

	Credentials CredentialsConfig
	Provider    ProviderConfig
	Directory   DirectoryConfig
	Redis       RedisConfig

	// Optional Pub/Sub ingress, enabled by SubscriptionID.
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	PubsubConsumerConfig   *messagepipeline.GooglePubsubConsumerConfig
}

// IngestionEnabled reports whether the Pub/Sub ingress is configured.
func (c *Config) IngestionEnabled() bool {
	return c.SubscriptionID != ""
}

// CredentialRequired reports whether requests need a provider credential. The
// sdk sender authenticates itself, so only a REST directory without an API key
// still needs one.
func (c *Config) CredentialRequired() bool {
	if c.Provider.API != ProviderSDK {
		return true
	}
	return c.Directory.Backend == BackendREST && c.Directory.APIKey == ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	override := func(key string, target *string) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*target = val
		}
	}
	override("PROJECT_ID", &cfg.ProjectID)
	override("PROVIDER_API", &cfg.Provider.API)
	override("CREDENTIAL_STRATEGY", &cfg.Credentials.Strategy)
	override("DIRECTORY_BACKEND", &cfg.Directory.Backend)
	override("ADMIN_ROLE", &cfg.Directory.AdminRole)
	override("TOPIC_ID", &cfg.TopicID)
	override("SUBSCRIPTION_DLQ_TOPIC_ID", &cfg.SubscriptionDLQTopicID)

	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("REQUEST_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
		}
		logger.Debug("Overriding config value", "key", "REQUEST_TIMEOUT", "source", "env")
		cfg.RequestTimeout = d
	}
	if val := os.Getenv("MAX_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			logger.Debug("Overriding config value", "key", "MAX_CONCURRENCY", "source", "env")
			cfg.MaxConcurrency = n
		}
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Secrets, environment only. Never logged.
	cfg.Credentials.ServerKey = os.Getenv("FCM_SERVER_KEY")
	cfg.Credentials.ServiceAccountJSON = os.Getenv("FIREBASE_SERVICE_ACCOUNT")
	cfg.Credentials.ServiceAccountBase64 = os.Getenv("FIREBASE_SERVICE_ACCOUNT_BASE64")
	cfg.Directory.APIKey = os.Getenv("DIRECTORY_API_KEY")

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// 2. Defaults
	applyDefaults(cfg)

	// 3. Final Validation
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger.Debug("Configuration finalized and validated successfully",
		"provider_api", cfg.Provider.API,
		"credential_strategy", cfg.Credentials.Strategy,
		"directory_backend", cfg.Directory.Backend,
		"redis_enabled", cfg.Redis.Enabled,
		"ingestion_enabled", cfg.IngestionEnabled(),
	)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.Route == "" {
		cfg.Route = DefaultRoute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Provider.API == "" {
		cfg.Provider.API = ProviderV1
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = DefaultProviderTimeout
	}
	if cfg.Credentials.Strategy == "" {
		cfg.Credentials.Strategy = auth.StrategySignedAssertion
	}
	if cfg.Directory.Backend == "" {
		cfg.Directory.Backend = BackendREST
	}
	if cfg.Directory.AdminRole == "" {
		cfg.Directory.AdminRole = DefaultAdminRole
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}
}

func validate(cfg *Config) error {
	switch cfg.Provider.API {
	case ProviderLegacy:
		if cfg.Credentials.Strategy != auth.StrategyStaticKey {
			return fmt.Errorf("provider api %q requires credential strategy %q", ProviderLegacy, auth.StrategyStaticKey)
		}
	case ProviderV1:
		if cfg.Credentials.Strategy != auth.StrategySignedAssertion && cfg.Credentials.Strategy != auth.StrategyManaged {
			return fmt.Errorf("provider api %q requires credential strategy %q or %q",
				ProviderV1, auth.StrategySignedAssertion, auth.StrategyManaged)
		}
	case ProviderSDK:
		if cfg.CredentialRequired() &&
			cfg.Credentials.Strategy != auth.StrategySignedAssertion && cfg.Credentials.Strategy != auth.StrategyManaged {
			return fmt.Errorf("provider api %q with a keyless %q directory requires credential strategy %q or %q",
				ProviderSDK, BackendREST, auth.StrategySignedAssertion, auth.StrategyManaged)
		}
	default:
		return fmt.Errorf("unknown provider api %q (set via YAML or PROVIDER_API env var)", cfg.Provider.API)
	}

	switch cfg.Credentials.Strategy {
	case auth.StrategyStaticKey, auth.StrategySignedAssertion, auth.StrategyManaged:
	default:
		return fmt.Errorf("unknown credential strategy %q (set via YAML or CREDENTIAL_STRATEGY env var)", cfg.Credentials.Strategy)
	}

	switch cfg.Directory.Backend {
	case BackendREST:
		// A static key is not a directory credential; the legacy setup reads
		// the directory with an API key instead.
		if cfg.Credentials.Strategy == auth.StrategyStaticKey && cfg.Directory.APIKey == "" {
			return fmt.Errorf("directory backend %q with strategy %q requires DIRECTORY_API_KEY", BackendREST, auth.StrategyStaticKey)
		}
	case BackendFirestore:
	default:
		return fmt.Errorf("unknown directory backend %q (set via YAML or DIRECTORY_BACKEND env var)", cfg.Directory.Backend)
	}

	needsAccount := cfg.Credentials.Strategy != auth.StrategyStaticKey ||
		cfg.Provider.API == ProviderSDK ||
		cfg.Directory.Backend == BackendFirestore
	hasMaterial := cfg.Credentials.ServiceAccountJSON != "" || cfg.Credentials.ServiceAccountBase64 != ""

	if needsAccount || hasMaterial {
		sa, err := auth.LoadServiceAccount(cfg.Credentials.ServiceAccountJSON, cfg.Credentials.ServiceAccountBase64)
		if err != nil {
			if needsAccount {
				return fmt.Errorf("service account required (set FIREBASE_SERVICE_ACCOUNT or FIREBASE_SERVICE_ACCOUNT_BASE64): %w", err)
			}
		} else {
			cfg.Credentials.ServiceAccount = sa
			if cfg.ProjectID == "" {
				cfg.ProjectID = sa.ProjectID
			}
		}
	}

	needsProject := cfg.Provider.API != ProviderLegacy ||
		cfg.Directory.Backend == BackendFirestore ||
		(cfg.Directory.Backend == BackendREST && cfg.Directory.BaseURL == "") ||
		cfg.IngestionEnabled()
	if needsProject && cfg.ProjectID == "" {
		return fmt.Errorf("project_id is required (set via YAML, PROJECT_ID env var or the service account)")
	}

	if cfg.IngestionEnabled() && cfg.TopicID == "" {
		return fmt.Errorf("topic_id is required when subscription_id is set")
	}
	return nil
}
