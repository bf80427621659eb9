package service

import (
	"context"
	"encoding/json"
	"time"

	"pollhub/internal/domain"
	"pollhub/pkg/redis"

	"go.uber.org/zap"
)

// CacheService provides cache-aside reads over the hot aggregate views and
// invalidation on mutation. A nil Redis client disables caching; every
// method degrades to a miss or a no-op, and cache failures never fail the
// operation that triggered them.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// GetPollList returns the cached active-poll list, or (nil, false) on miss.
func (c *CacheService) GetPollList(ctx context.Context) ([]domain.PollWithAggregates, bool) {
	if c.redis == nil {
		return nil, false
	}

	key := c.redis.KeyBuilder.KeyPollsList()
	cached, err := c.redis.Get(ctx, key)
	if err != nil || cached == "" {
		if err != nil && err != redis.Nil {
			c.logger.Warn("Poll list cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var polls []domain.PollWithAggregates
	if err := json.Unmarshal([]byte(cached), &polls); err != nil {
		c.logger.Warn("Poll list cache corrupted", zap.Error(err))
		return nil, false
	}
	return polls, true
}

// SetPollList caches the active-poll list with a short TTL.
func (c *CacheService) SetPollList(ctx context.Context, polls []domain.PollWithAggregates) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(polls)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyPollsList(), string(data), redis.TTLList); err != nil {
		c.logger.Warn("Poll list cache write failed", zap.Error(err))
	}
}

// GetPollStats returns a poll's cached options-with-stats view, or
// (nil, false) on miss.
func (c *CacheService) GetPollStats(ctx context.Context, pollID string) (*domain.VoteResult, bool) {
	if c.redis == nil {
		return nil, false
	}

	key := c.redis.KeyBuilder.KeyPollStats(pollID)
	cached, err := c.redis.Get(ctx, key)
	if err != nil || cached == "" {
		if err != nil && err != redis.Nil {
			c.logger.Warn("Poll stats cache read failed",
				zap.String("poll_id", pollID),
				zap.Error(err))
		}
		return nil, false
	}

	var stats domain.VoteResult
	if err := json.Unmarshal([]byte(cached), &stats); err != nil {
		c.logger.Warn("Poll stats cache corrupted",
			zap.String("poll_id", pollID),
			zap.Error(err))
		return nil, false
	}
	return &stats, true
}

// SetPollStats caches a poll's options-with-stats view. The cached copy
// never carries user-specific data.
func (c *CacheService) SetPollStats(ctx context.Context, pollID string, stats *domain.VoteResult) {
	if c.redis == nil {
		return
	}

	scrubbed := *stats
	scrubbed.UserVote = ""
	data, err := json.Marshal(&scrubbed)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyPollStats(pollID), string(data), redis.TTLStats); err != nil {
		c.logger.Warn("Poll stats cache write failed",
			zap.String("poll_id", pollID),
			zap.Error(err))
	}
}

// GetPollDetail returns a poll's cached detail view, or (nil, false) on
// miss. The cached copy is the anonymous view and carries no caller vote.
func (c *CacheService) GetPollDetail(ctx context.Context, pollID string) (*domain.PollDetail, bool) {
	if c.redis == nil {
		return nil, false
	}

	key := c.redis.KeyBuilder.KeyPollDetail(pollID)
	cached, err := c.redis.Get(ctx, key)
	if err != nil || cached == "" {
		if err != nil && err != redis.Nil {
			c.logger.Warn("Poll detail cache read failed",
				zap.String("poll_id", pollID),
				zap.Error(err))
		}
		return nil, false
	}

	var detail domain.PollDetail
	if err := json.Unmarshal([]byte(cached), &detail); err != nil {
		c.logger.Warn("Poll detail cache corrupted",
			zap.String("poll_id", pollID),
			zap.Error(err))
		return nil, false
	}
	return &detail, true
}

// SetPollDetail caches a poll's detail view. The cached copy never carries
// user-specific data.
func (c *CacheService) SetPollDetail(ctx context.Context, pollID string, detail *domain.PollDetail) {
	if c.redis == nil {
		return
	}

	scrubbed := *detail
	scrubbed.UserVote = ""
	scrubbed.UserHasVoted = false
	data, err := json.Marshal(&scrubbed)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyPollDetail(pollID), string(data), redis.TTLDetail); err != nil {
		c.logger.Warn("Poll detail cache write failed",
			zap.String("poll_id", pollID),
			zap.Error(err))
	}
}

// CacheUserVote records which option a user voted for on a poll.
func (c *CacheService) CacheUserVote(ctx context.Context, pollID, userID, optionID string) {
	if c.redis == nil {
		return
	}

	key := c.redis.KeyBuilder.KeyUserVote(pollID, userID)
	if err := c.redis.Set(ctx, key, optionID, redis.TTLUserVote); err != nil {
		c.logger.Warn("User vote cache write failed",
			zap.String("poll_id", pollID),
			zap.Error(err))
	}
}

// GetUserVote returns the cached option a user voted for, or ("", false).
func (c *CacheService) GetUserVote(ctx context.Context, pollID, userID string) (string, bool) {
	if c.redis == nil {
		return "", false
	}

	val, err := c.redis.Get(ctx, c.redis.KeyBuilder.KeyUserVote(pollID, userID))
	if err != nil || val == "" {
		return "", false
	}
	return val, true
}

// InvalidatePoll drops every cached view touched by a mutation of the given
// poll: its stats, its detail, the global list, and, when a user is given,
// that user's cached vote.
func (c *CacheService) InvalidatePoll(ctx context.Context, pollID, userID string) {
	if c.redis == nil {
		return
	}

	keys := []string{
		c.redis.KeyBuilder.KeyPollStats(pollID),
		c.redis.KeyBuilder.KeyPollDetail(pollID),
		c.redis.KeyBuilder.KeyPollsList(),
	}
	if userID != "" {
		keys = append(keys, c.redis.KeyBuilder.KeyUserVote(pollID, userID))
	}

	if err := c.redis.Delete(ctx, keys...); err != nil {
		c.logger.Warn("Cache invalidation failed",
			zap.String("poll_id", pollID),
			zap.Error(err))
	}
}

// TryIdempotencyLock attempts to acquire a short-lived lock for the given
// key. Returns true when acquired (first submission) and false when the key
// already exists within the TTL. Advisory only: with Redis absent or failing
// the caller proceeds.
func (c *CacheService) TryIdempotencyLock(ctx context.Context, key string, ttl time.Duration) bool {
	if c.redis == nil {
		return true
	}

	ok, err := c.redis.SetNX(ctx, c.redis.KeyBuilder.KeyIdem(key), "1", ttl)
	if err != nil {
		c.logger.Warn("Idempotency lock check failed", zap.Error(err))
		return true
	}
	return ok
}

// ReleaseIdempotencyLock drops a lock acquired by TryIdempotencyLock so a
// retry is not suppressed after the guarded operation failed.
func (c *CacheService) ReleaseIdempotencyLock(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}

	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyIdem(key)); err != nil {
		c.logger.Warn("Idempotency lock release failed", zap.Error(err))
	}
}

// HealthCheck verifies the cache connection when one is configured.
func (c *CacheService) HealthCheck(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Health(ctx)
}
