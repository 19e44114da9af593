package di

import (
	"context"
	"errors"
	"fmt"

	"webhook-ingest/backend/internal/audit"
	"webhook-ingest/backend/internal/service"
	"webhook-ingest/backend/internal/store"
	"webhook-ingest/backend/pkg/config"
	"webhook-ingest/backend/pkg/health"
	"webhook-ingest/backend/pkg/logger"
	"webhook-ingest/backend/pkg/secrets"
	"webhook-ingest/backend/pkg/signature"

	"github.com/redis/go-redis/v9"
)

// Container holds all the dependencies for the application
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    *store.GormStore
	Verifier *signature.Verifier
	Audit    audit.Recorder
	Redis    *redis.Client
	Health   *health.Checker

	IngestService *service.IngestService
	QueryService  *service.QueryService
	StatsService  *service.StatsService
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("di: nil config")
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	messageStore, err := store.Open(ctx, store.Options{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		OpTimeout:      cfg.Database.Timeout,
		ConnectRetries: cfg.Database.ConnectRetries,
		RetryDelay:     cfg.Database.RetryDelay,
		Verbose:        cfg.Logging.Level == string(logger.LevelDebug),
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}

	c := &Container{
		Config: cfg,
		Logger: log,
		Store:  messageStore,
		Health: health.NewChecker(log),
	}

	source, err := secretSource(cfg, log)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Verifier = signature.NewVerifier(source)

	recorders := audit.Multi{audit.NewLogRecorder(log)}
	if cfg.Audit.RedisURL != "" {
		client, err := audit.NewRedisClient(cfg.Audit.RedisURL)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Redis = client

		stream := audit.NewRedisStreamRecorder(client, cfg.Audit.Stream, cfg.Audit.StreamMaxLen)
		recorders = append(recorders, stream)
		c.Health.RegisterCheck(health.ComponentAuditSink, false, func(ctx context.Context) (health.Status, string, error) {
			if err := stream.Ping(ctx); err != nil {
				return health.StatusDown, "Audit stream unreachable", err
			}
			return health.StatusUp, "Audit stream reachable", nil
		})
		log.Info("Audit stream enabled", "stream", cfg.Audit.Stream)
	}
	c.Audit = recorders

	c.Health.RegisterDatabaseCheck(messageStore.Ping)
	c.Health.RegisterSecretCheck(c.Verifier.HasSecret)

	c.IngestService = service.NewIngestService(c.Verifier, messageStore, c.Audit, log)
	c.QueryService = service.NewQueryService(messageStore, log)
	c.StatsService = service.NewStatsService(messageStore)

	log.Info("Dependency container ready",
		"dialect", string(messageStore.Dialect()),
		"audit_sinks", len(recorders),
		"vault", cfg.Vault.Enabled,
	)

	return c, nil
}

// secretSource picks where the webhook signing secret comes from. With Vault
// enabled the configured value only serves as a fallback.
func secretSource(cfg *config.Config, log *logger.Logger) (signature.SecretSource, error) {
	if !cfg.Vault.Enabled {
		return signature.StaticSecret(cfg.Webhook.Secret), nil
	}

	manager, err := secrets.NewVaultManager(secrets.VaultConfig{
		Address:     cfg.Vault.Address,
		Token:       cfg.Vault.Token,
		Namespace:   cfg.Vault.Namespace,
		SecretsPath: cfg.Vault.SecretsPath,
		Enabled:     true,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault manager: %w", err)
	}

	log.Info("Webhook secret resolved through Vault", "path", cfg.Vault.SecretsPath, "key", cfg.Vault.SecretKey)
	return secrets.KeySource{
		Manager: manager,
		Key:     cfg.Vault.SecretKey,
		Default: cfg.Webhook.Secret,
	}, nil
}

// Close releases the store and the audit client
func (c *Container) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
