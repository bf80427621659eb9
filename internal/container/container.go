package container

import (
	"context"

	"pollhub/internal/config"
	"pollhub/internal/repository"
	"pollhub/internal/service"
	"pollhub/internal/service/auth"
	"pollhub/pkg/database"
	"pollhub/pkg/logger"
	"pollhub/pkg/redis"
)

// Container holds all application dependencies, constructed once at startup
// and injected downward; nothing here is a process-wide singleton.
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.PostgresDB
	RedisClient *redis.Client
	PollRepo    repository.PollRepository
	AuthGateway service.AuthGateway
	PollService *service.PollService
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// Redis is optional; the service runs uncached without it.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	pollRepo := repository.NewPollRepository(db)
	authGateway := auth.NewService(cfg.AuthJWTSecret, log)
	pollService := service.NewPollService(pollRepo, authGateway, redisClient, log.Logger)

	return &Container{
		Config:      cfg,
		Logger:      log,
		DB:          db,
		RedisClient: redisClient,
		PollRepo:    pollRepo,
		AuthGateway: authGateway,
		PollService: pollService,
	}, nil
}

// Close releases the container's connections in dependency order.
func (c *Container) Close() {
	if c.RedisClient != nil {
		_ = c.RedisClient.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

// HasRedis returns true if a Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}
