package license

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Consumer handles license:event tasks in the worker.
type Consumer struct {
	cache Cache
}

func NewConsumer(cache Cache) *Consumer {
	if cache == nil {
		cache = NopCache{}
	}
	return &Consumer{cache: cache}
}

func (c *Consumer) HandleLicenseEvent(ctx context.Context, t *asynq.Task) error {
	var p EventPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode license event: %v: %w", err, asynq.SkipRetry)
	}
	if p.Address == "" {
		return fmt.Errorf("license event %s has no address: %w", p.EventID, asynq.SkipRetry)
	}

	if err := c.cache.Invalidate(ctx, p.Address); err != nil {
		return fmt.Errorf("invalidate license %s: %w", p.Address, err)
	}

	zap.L().Info("license event delivered",
		zap.String("event_id", p.EventID),
		zap.String("type", string(p.Type)),
		zap.String("address", p.Address),
		zap.Int64("expiration_timestamp", p.ExpirationTimestamp),
		zap.Bool("is_active", p.IsActive),
	)
	return nil
}
