package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SyncThrottle suppresses repeated mailbox syncs for the same user within a window.
type SyncThrottle struct {
	cache  Cache
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewSyncThrottle(c Cache, window time.Duration, logger *zap.Logger) *SyncThrottle {
	return &SyncThrottle{
		cache:  c,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

func syncKey(userID int64) string {
	return fmt.Sprintf("sync:%d", userID)
}

// Acquire returns true when the caller should sync now and records the attempt.
// A cache failure never blocks a sync.
func (t *SyncThrottle) Acquire(ctx context.Context, userID int64) bool {
	stamp := []byte(strconv.FormatInt(t.now().UnixMilli(), 10))
	ok, err := t.cache.SetNX(ctx, syncKey(userID), stamp, t.window)
	if err != nil {
		t.logger.Warn("Sync throttle check failed, allowing sync",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return true
	}
	if !ok {
		t.logger.Debug("Skipping sync, user synced recently", zap.Int64("user_id", userID))
	}
	return ok
}

// LastSync returns when the user last acquired a sync, if still within the window.
func (t *SyncThrottle) LastSync(ctx context.Context, userID int64) (time.Time, bool) {
	data, ok, err := t.cache.Get(ctx, syncKey(userID))
	if err != nil || !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Reset clears the throttle for a user, e.g. after an explicit sync request.
func (t *SyncThrottle) Reset(ctx context.Context, userID int64) error {
	return t.cache.Delete(ctx, syncKey(userID))
}
