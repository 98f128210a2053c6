package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/voiceloop/backend/internal/models"
)

// Cache key templates
const (
	ActiveProfileKey = "profile:%s:%s"  // user_id, model_type
	UserPatternsKey  = "patterns:%s"    // user_id
	SystemHealthKey  = "system:health"
)

// Cache is a read-through cache in front of the document store. Writers must
// invalidate the relevant key; readers fall back to the store on miss.
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// CacheActiveProfile caches the active profile for a (user, model type) pair.
func (c *Cache) CacheActiveProfile(ctx context.Context, profile *models.Profile, expiration time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	key := fmt.Sprintf(ActiveProfileKey, profile.UserID, profile.ModelType)
	return c.client.Set(ctx, key, data, expiration).Err()
}

func (c *Cache) GetCachedActiveProfile(ctx context.Context, userID, modelType string) (*models.Profile, error) {
	key := fmt.Sprintf(ActiveProfileKey, userID, modelType)
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var profile models.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Cache) InvalidateActiveProfile(ctx context.Context, userID, modelType string) error {
	key := fmt.Sprintf(ActiveProfileKey, userID, modelType)
	return c.client.Del(ctx, key).Err()
}

// CacheUserPatterns caches a user's learned banned patterns.
func (c *Cache) CacheUserPatterns(ctx context.Context, userID string, patterns []models.BannedPattern, expiration time.Duration) error {
	data, err := json.Marshal(patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}

	key := fmt.Sprintf(UserPatternsKey, userID)
	return c.client.Set(ctx, key, data, expiration).Err()
}

func (c *Cache) GetCachedUserPatterns(ctx context.Context, userID string) ([]models.BannedPattern, error) {
	key := fmt.Sprintf(UserPatternsKey, userID)
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var patterns []models.BannedPattern
	err = json.Unmarshal([]byte(data), &patterns)
	return patterns, err
}

func (c *Cache) InvalidateUserPatterns(ctx context.Context, userID string) error {
	key := fmt.Sprintf(UserPatternsKey, userID)
	return c.client.Del(ctx, key).Err()
}

// CacheSystemHealth caches system health status
func (c *Cache) CacheSystemHealth(ctx context.Context, health []models.SystemHealth, expiration time.Duration) error {
	data, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("failed to marshal system health: %w", err)
	}

	return c.client.Set(ctx, SystemHealthKey, data, expiration).Err()
}

func (c *Cache) GetCachedSystemHealth(ctx context.Context) ([]models.SystemHealth, error) {
	data, err := c.client.Get(ctx, SystemHealthKey).Result()
	if err != nil {
		return nil, err
	}

	var health []models.SystemHealth
	err = json.Unmarshal([]byte(data), &health)
	return health, err
}
