// --- File: notificationbridge/config/yaml_config.go ---
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

type YamlCredentialsConfig struct {
	Strategy string `yaml:"strategy"`
	TokenURL string `yaml:"token_url"`
}

type YamlProviderConfig struct {
	API         string `yaml:"api"`
	Timeout     string `yaml:"timeout"`
	ChannelID   string `yaml:"channel_id"`
	ClickAction string `yaml:"click_action"`
}

type YamlDirectoryConfig struct {
	Backend    string `yaml:"backend"`
	BaseURL    string `yaml:"base_url"`
	Collection string `yaml:"collection"`
	RoleField  string `yaml:"role_field"`
	TokenField string `yaml:"token_field"`
	AdminRole  string `yaml:"admin_role"`
	PageSize   int    `yaml:"page_size"`
}

type YamlDispatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

type YamlRedisConfig struct {
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	Enabled bool   `yaml:"enabled"`
	TTL     string `yaml:"ttl"`
}

type YamlIngestionConfig struct {
	TopicID                string `yaml:"topic_id"`
	SubscriptionID         string `yaml:"subscription_id"`
	SubscriptionDLQTopicID string `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int    `yaml:"num_pipeline_workers"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
// Secrets have no YAML keys; they are read from the environment only.
type YamlConfig struct {
	ProjectID      string                `yaml:"project_id"`
	ListenAddr     string                `yaml:"listen_addr"`
	Route          string                `yaml:"route"`
	RequestTimeout string                `yaml:"request_timeout"`
	Credentials    YamlCredentialsConfig `yaml:"credentials"`
	Provider       YamlProviderConfig    `yaml:"provider"`
	Directory      YamlDirectoryConfig   `yaml:"directory"`
	Dispatch       YamlDispatchConfig    `yaml:"dispatch"`
	RedisConfig    YamlRedisConfig       `yaml:"redis"`
	Ingestion      YamlIngestionConfig   `yaml:"ingestion"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	requestTimeout, err := parseDuration("request_timeout", baseCfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	providerTimeout, err := parseDuration("provider.timeout", baseCfg.Provider.Timeout)
	if err != nil {
		return nil, err
	}
	redisTTL, err := parseDuration("redis.ttl", baseCfg.RedisConfig.TTL)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		Route:          baseCfg.Route,
		RequestTimeout: requestTimeout,
		Credentials: CredentialsConfig{
			Strategy: baseCfg.Credentials.Strategy,
			TokenURL: baseCfg.Credentials.TokenURL,
		},
		Provider: ProviderConfig{
			API:         baseCfg.Provider.API,
			Timeout:     providerTimeout,
			ChannelID:   baseCfg.Provider.ChannelID,
			ClickAction: baseCfg.Provider.ClickAction,
		},
		Directory: DirectoryConfig{
			Backend:    baseCfg.Directory.Backend,
			BaseURL:    baseCfg.Directory.BaseURL,
			Collection: baseCfg.Directory.Collection,
			RoleField:  baseCfg.Directory.RoleField,
			TokenField: baseCfg.Directory.TokenField,
			AdminRole:  baseCfg.Directory.AdminRole,
			PageSize:   baseCfg.Directory.PageSize,
		},
		MaxConcurrency: baseCfg.Dispatch.MaxConcurrency,
		Redis: RedisConfig{
			Addr:    baseCfg.RedisConfig.Addr,
			DB:      baseCfg.RedisConfig.DB,
			Enabled: baseCfg.RedisConfig.Enabled,
			TTL:     redisTTL,
		},
		TopicID:                baseCfg.Ingestion.TopicID,
		SubscriptionID:         baseCfg.Ingestion.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.Ingestion.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.Ingestion.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"provider_api", cfg.Provider.API,
		"credential_strategy", cfg.Credentials.Strategy,
		"directory_backend", cfg.Directory.Backend,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
