package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Remote with Redis-backed caching for the list reads. Every
// write-through evicts the user's cached collections so the next session
// load sees the confirmed remote state.
type Cache struct {
	base  Remote
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Remote wrapper using the provided Redis client
// and TTL.
func NewCache(base Remote, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base remote is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Tasks(ctx context.Context, userID string) ([]TaskRow, error) {
	var cached []TaskRow
	if c.loadFromCache(ctx, tasksCacheKey(userID), &cached) {
		return cached, nil
	}

	rows, err := c.base.Tasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(userID), rows)
	return rows, nil
}

func (c *Cache) Categories(ctx context.Context, userID string) ([]CategoryRow, error) {
	var cached []CategoryRow
	if c.loadFromCache(ctx, categoriesCacheKey(userID), &cached) {
		return cached, nil
	}

	rows, err := c.base.Categories(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, categoriesCacheKey(userID), rows)
	return rows, nil
}

func (c *Cache) InsertTask(ctx context.Context, row TaskRow) (TaskRow, error) {
	stored, err := c.base.InsertTask(ctx, row)
	if err != nil {
		return TaskRow{}, err
	}
	c.evictTasks(ctx, row.UserID)
	return stored, nil
}

func (c *Cache) InsertTasks(ctx context.Context, rows []TaskRow) ([]TaskRow, error) {
	stored, err := c.base.InsertTasks(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		c.evictTasks(ctx, rows[0].UserID)
	}
	return stored, nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID, taskID string, patch TaskRowPatch) error {
	if err := c.base.UpdateTask(ctx, userID, taskID, patch); err != nil {
		return err
	}
	c.evictTasks(ctx, userID)
	return nil
}

func (c *Cache) UpdatePositions(ctx context.Context, userID string, positions map[string]int) error {
	if err := c.base.UpdatePositions(ctx, userID, positions); err != nil {
		return err
	}
	c.evictTasks(ctx, userID)
	return nil
}

func (c *Cache) DeleteTasks(ctx context.Context, userID string, ids ...string) error {
	if err := c.base.DeleteTasks(ctx, userID, ids...); err != nil {
		return err
	}
	c.evictTasks(ctx, userID)
	return nil
}

func (c *Cache) InsertCategory(ctx context.Context, row CategoryRow) (CategoryRow, error) {
	stored, err := c.base.InsertCategory(ctx, row)
	if err != nil {
		return CategoryRow{}, err
	}
	c.evictCategories(ctx, row.UserID)
	return stored, nil
}

func (c *Cache) UpdateCategory(ctx context.Context, userID, categoryID string, patch CategoryRowPatch) error {
	if err := c.base.UpdateCategory(ctx, userID, categoryID, patch); err != nil {
		return err
	}
	c.evictCategories(ctx, userID)
	return nil
}

func (c *Cache) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	if err := c.base.DeleteCategory(ctx, userID, categoryID); err != nil {
		return err
	}
	c.evictCategories(ctx, userID)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		// Misses and transport errors both fall back to the backing remote.
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// Only a corrupt payload warrants clearing the key.
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evictTasks(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(userID)).Result()
}

func (c *Cache) evictCategories(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, categoriesCacheKey(userID)).Result()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func categoriesCacheKey(userID string) string {
	return "categories:" + userID
}
