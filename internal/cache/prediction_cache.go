// Package cache publishes the latest forecast to Redis for fast reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/stockcast-go/internal/models"
)

const (
	defaultPrefix = "stockcast:"
	latestKey     = "report:latest"
	itemsKey      = "predictions:latest"
)

// CacheStats tracks cache performance metrics.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// PredictionCache stores the most recent report as JSON and each prediction
// in a hash keyed by item name. It is both a PredictionSink and a
// ReportStore.
type PredictionCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	mu    sync.Mutex
	stats CacheStats
}

// NewPredictionCache creates a cache with the given TTL. A zero TTL keeps
// entries until they are overwritten.
func NewPredictionCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *PredictionCache {
	return &PredictionCache{
		redis:  client,
		ttl:    ttl,
		prefix: defaultPrefix,
		logger: logger,
	}
}

func (c *PredictionCache) Name() string { return "redis" }

// Write replaces the cached report and item hash atomically.
func (c *PredictionCache) Write(ctx context.Context, report models.ForecastReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	items := make(map[string]interface{}, len(report.Predictions))
	for _, p := range report.Predictions {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode prediction %s: %w", p.ItemName, err)
		}
		items[p.ItemName] = data
	}

	hashKey := c.prefix + itemsKey
	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.prefix+latestKey, payload, c.ttl)
		pipe.Del(ctx, hashKey)
		if len(items) > 0 {
			pipe.HSet(ctx, hashKey, items)
			if c.ttl > 0 {
				pipe.Expire(ctx, hashKey, c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}

	c.record(&c.stats.Sets)
	c.logger.WithFields(logrus.Fields{
		"run_id": report.Summary.RunID,
		"items":  len(items),
		"ttl":    c.ttl.String(),
	}).Info("Cached forecast report")
	return nil
}

// Latest returns the cached report, or nil on a miss.
func (c *PredictionCache) Latest(ctx context.Context) (*models.ForecastReport, error) {
	data, err := c.redis.Get(ctx, c.prefix+latestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(&c.stats.Misses)
		return nil, nil
	}
	if err != nil {
		c.record(&c.stats.Misses)
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}

	var report models.ForecastReport
	if err := json.Unmarshal(data, &report); err != nil {
		c.record(&c.stats.Misses)
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}
	c.record(&c.stats.Hits)
	return &report, nil
}

// Prediction looks up a single item of the latest run.
func (c *PredictionCache) Prediction(ctx context.Context, itemName string) (*models.Prediction, bool, error) {
	data, err := c.redis.HGet(ctx, c.prefix+itemsKey, itemName).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(&c.stats.Misses)
		return nil, false, nil
	}
	if err != nil {
		c.record(&c.stats.Misses)
		return nil, false, fmt.Errorf("failed to read cached prediction: %w", err)
	}

	var p models.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		c.record(&c.stats.Misses)
		return nil, false, fmt.Errorf("failed to decode cached prediction: %w", err)
	}
	c.record(&c.stats.Hits)
	return &p, true, nil
}

func (c *PredictionCache) record(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// Stats returns a snapshot of the hit counters.
func (c *PredictionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
