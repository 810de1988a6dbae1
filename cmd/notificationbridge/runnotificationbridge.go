// --- File: cmd/notificationbridge/runnotificationbridge.go ---
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-notification-bridge/internal/auth"
	"github.com/tinywideclouds/go-notification-bridge/internal/pipeline"
	"github.com/tinywideclouds/go-notification-bridge/internal/platform/fcm"
	"github.com/tinywideclouds/go-notification-bridge/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-notification-bridge/internal/storage/firestore"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"

	"github.com/tinywideclouds/go-notification-bridge/notificationbridge"
	"github.com/tinywideclouds/go-notification-bridge/notificationbridge/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-notification-bridge")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}
	if cfg.CredentialRequired() && cfg.Credentials.Strategy == auth.StrategyStaticKey && cfg.Credentials.ServerKey == "" {
		logger.Warn("FCM_SERVER_KEY missing. Every request will fail until it is set.")
	}

	// Outbound HTTP for token exchange, directory REST and provider REST.
	httpClient := &http.Client{Timeout: cfg.Provider.Timeout}
	clientOpts := googleClientOptions(cfg)

	// --- Credential Resolver (skipped when nothing consumes a credential) ---
	var credentials dispatch.CredentialResolver
	if cfg.CredentialRequired() {
		credentials, err = auth.NewResolver(auth.Settings{
			Strategy:       cfg.Credentials.Strategy,
			ServerKey:      cfg.Credentials.ServerKey,
			ServiceAccount: cfg.Credentials.ServiceAccount,
			TokenURL:       cfg.Credentials.TokenURL,
		}, httpClient, logger.With("component", "CredentialResolver"))
		if err != nil {
			logger.Error("Credential resolver failed", "err", err)
			os.Exit(1)
		}
		logger.Info("Credential resolver initialized", "strategy", cfg.Credentials.Strategy)
	} else {
		logger.Info("Credential resolver skipped", "provider_api", cfg.Provider.API, "directory_backend", cfg.Directory.Backend)
	}

	// --- Directory (Decorated) ---
	fields := directoryFields(cfg.Directory)
	var directory dispatch.Directory
	switch cfg.Directory.Backend {
	case config.BackendFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			logger.Error("Firestore client failed", "err", err)
			os.Exit(1)
		}
		defer fsClient.Close()
		directory = fsStore.NewDirectoryStore(fsClient, fields)
	default:
		baseURL := cfg.Directory.BaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf(fsStore.DefaultRESTBaseURL, cfg.ProjectID)
		}
		directory = fsStore.NewRESTDirectory(baseURL, cfg.Directory.APIKey, fields, httpClient)
	}
	logger.Info("Directory initialized", "type", cfg.Directory.Backend, "collection", fields.Collection)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		directory = cache.NewCachedDirectory(directory, redisClient, cfg.Redis.TTL)
		logger.Info("Directory upgraded", "type", "redis_cached_"+cfg.Directory.Backend, "ttl", cfg.Redis.TTL)
	}

	// --- Provider Sender ---
	opts := fcm.Options{ChannelID: cfg.Provider.ChannelID, ClickAction: cfg.Provider.ClickAction}
	senderLogger := logger.With("component", "Sender", "api", cfg.Provider.API)
	var sender dispatch.Sender
	switch cfg.Provider.API {
	case config.ProviderLegacy:
		sender = fcm.NewLegacySender(fcm.DefaultLegacyURL, opts, httpClient, senderLogger)
	case config.ProviderSDK:
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
		if err != nil {
			logger.Error("Failed to initialize Firebase App", "err", err)
			os.Exit(1)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			logger.Error("Failed to create FCM messaging client", "err", err)
			os.Exit(1)
		}
		sender = fcm.NewSDKSender(fcmMessaging, opts, senderLogger)
	default:
		sender = fcm.NewV1Sender(fmt.Sprintf(fcm.DefaultV1URLFormat, cfg.ProjectID), opts, httpClient, senderLogger)
	}

	// --- Bridge ---
	bridge := pipeline.NewBridge(
		credentials,
		pipeline.NewRecipients(directory, cfg.Directory.AdminRole, cfg.Directory.PageSize, logger),
		pipeline.NewFanOut(sender, cfg.MaxConcurrency, logger),
		logger.With("component", "Bridge"),
	)

	// --- Consumer (optional) & Service ---
	var consumer messagepipeline.MessageConsumer
	if cfg.IngestionEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Ingestion consumer failed", "err", err)
			os.Exit(1)
		}
	}

	service, err := notificationbridge.New(cfg, consumer, bridge, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		sig := monitorSignals(syscall.SIGINT, syscall.SIGTERM)
		logger.Info("Signal received, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...", "addr", cfg.ListenAddr, "route", cfg.Route)
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// googleClientOptions authenticates Google clients with the configured
// service account, falling back to application default credentials.
func googleClientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.Credentials.ServiceAccount == nil {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsJSON(cfg.Credentials.ServiceAccount.JSON())}
}

func directoryFields(dc config.DirectoryConfig) fsStore.Fields {
	fields := fsStore.DefaultFields
	if dc.Collection != "" {
		fields.Collection = dc.Collection
	}
	if dc.RoleField != "" {
		fields.Role = dc.RoleField
	}
	if dc.TokenField != "" {
		fields.Token = dc.TokenField
	}
	return fields
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    10,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}

func monitorSignals(signals ...os.Signal) os.Signal {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, signals...)
	return <-signalChan
}
