package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultMessageTTL is how long fetched message content stays cached.
const DefaultMessageTTL = 24 * time.Hour

// MessageCache keeps fetched message content per user and message ID.
// Errors are logged and treated as misses.
type MessageCache struct {
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewMessageCache(c Cache, ttl time.Duration, logger *zap.Logger) *MessageCache {
	if ttl <= 0 {
		ttl = DefaultMessageTTL
	}
	return &MessageCache{
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func messageKey(userID int64, messageID string) string {
	return fmt.Sprintf("msg:%d:%s", userID, messageID)
}

// Get decodes the cached message into dst and reports whether it was present.
func (m *MessageCache) Get(ctx context.Context, userID int64, messageID string, dst interface{}) bool {
	ok, err := GetJSON(ctx, m.cache, messageKey(userID, messageID), dst)
	if err != nil {
		m.logger.Warn("Message cache read failed",
			zap.Int64("user_id", userID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// Put stores a message for the cache TTL.
func (m *MessageCache) Put(ctx context.Context, userID int64, messageID string, msg interface{}) {
	if err := SetJSON(ctx, m.cache, messageKey(userID, messageID), msg, m.ttl); err != nil {
		m.logger.Warn("Message cache write failed",
			zap.Int64("user_id", userID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
