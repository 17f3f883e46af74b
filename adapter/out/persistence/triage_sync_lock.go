package persistence

import (
	"context"
	"fmt"
	"time"

	"triage_server/core/port/out"
	"triage_server/pkg/cache"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const releaseTimeout = 5 * time.Second

// SyncLock implements out.SyncLocker with a Redis key per account. The key
// holds a random token so that only the holder can release it, and expires
// on its own if the holder dies.
type SyncLock struct {
	cache  *cache.RedisCache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewSyncLock(redisCache *cache.RedisCache, ttl time.Duration, logger zerolog.Logger) *SyncLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SyncLock{cache: redisCache, ttl: ttl, logger: logger}
}

func syncLockKey(accountID int64) string {
	return fmt.Sprintf("sync:account:%d", accountID)
}

func (l *SyncLock) Acquire(ctx context.Context, accountID int64) (func(), bool, error) {
	key := syncLockKey(accountID)
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := l.cache.DeleteIfEqual(rctx, key, token); err != nil {
			l.logger.Warn().Err(err).Int64("account_id", accountID).Msg("failed to release sync lock")
		}
	}
	return release, true, nil
}

var _ out.SyncLocker = (*SyncLock)(nil)
