package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/careloop/booking-platform/pkg/logging"
)

// unread counter cache scripts. The counter only moves when the key is
// warm; a cold key is recomputed from the table, which stays the source of
// truth.
var (
	incrIfExists = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 1 then
			return redis.call('INCR', KEYS[1])
		end
		return -1`)
	decrFloored = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return -1
		end
		local v = redis.call('DECR', KEYS[1])
		if v < 0 then
			redis.call('SET', KEYS[1], '0')
			return 0
		end
		return v`)
)

// UnreadCounter maintains the per-user unread badge count. Redis is an
// optional cache in front of the notifications table; with a nil client
// every read falls through to the table.
type UnreadCounter struct {
	client *redis.Client
	store  Store
	logger *logging.Logger
}

// NewUnreadCounter creates an unread counter. client may be nil.
func NewUnreadCounter(client *redis.Client, store Store, logger *logging.Logger) *UnreadCounter {
	if store == nil {
		panic("notifications: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &UnreadCounter{client: client, store: store, logger: logger}
}

func unreadKey(userID uuid.UUID) string {
	return "notifications:unread:" + userID.String()
}

// Count returns the user's unread count, warming the cache on a miss.
func (c *UnreadCounter) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	if c.client == nil {
		return c.store.CountUnread(ctx, userID)
	}

	val, err := c.client.Get(ctx, unreadKey(userID)).Int64()
	if err == nil {
		return val, nil
	}
	if err != redis.Nil {
		c.logger.Warn("unread cache read failed, falling back to table", "error", err, "user_id", userID)
		return c.store.CountUnread(ctx, userID)
	}

	count, err := c.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := c.client.Set(ctx, unreadKey(userID), count, 0).Err(); err != nil {
		c.logger.Warn("unread cache warm failed", "error", err, "user_id", userID)
	}
	return count, nil
}

// OnCreated bumps a warm counter after a notification row is persisted.
func (c *UnreadCounter) OnCreated(ctx context.Context, userID uuid.UUID) {
	if c.client == nil {
		return
	}
	if err := incrIfExists.Run(ctx, c.client, []string{unreadKey(userID)}).Err(); err != nil {
		c.logger.Warn("unread cache incr failed", "error", err, "user_id", userID)
	}
}

// OnRead decrements a warm counter, floored at zero.
func (c *UnreadCounter) OnRead(ctx context.Context, userID uuid.UUID) {
	if c.client == nil {
		return
	}
	if err := decrFloored.Run(ctx, c.client, []string{unreadKey(userID)}).Err(); err != nil {
		c.logger.Warn("unread cache decr failed", "error", err, "user_id", userID)
	}
}

// OnAllRead resets the counter to the remaining unread count, which after
// a mark-all-read is zero.
func (c *UnreadCounter) OnAllRead(ctx context.Context, userID uuid.UUID) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, unreadKey(userID), 0, 0).Err(); err != nil {
		c.logger.Warn("unread cache reset failed", "error", err, "user_id", userID)
	}
}

// Invalidate drops the cached value so the next Count recomputes it.
func (c *UnreadCounter) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, unreadKey(userID)).Err(); err != nil {
		return fmt.Errorf("notifications: invalidate unread cache: %w", err)
	}
	return nil
}
