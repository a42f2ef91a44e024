package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/stock_backend/config"
	"github.com/sirupsen/logrus"
)

// RedisProductLocker holds "stock:<productId>" keys in Redis so that every
// instance behind the load balancer shares the same product locks.
type RedisProductLocker struct {
	Client *redislock.Client
	Logger *logrus.Logger
	// TTL bounds how long a crashed holder can block a product.
	TTL        time.Duration
	RetryEvery time.Duration
}

func NewRedisProductLocker(client *redislock.Client, ttl time.Duration, logger *logrus.Logger) *RedisProductLocker {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &RedisProductLocker{
		Client:     client,
		Logger:     logger,
		TTL:        ttl,
		RetryEvery: 50 * time.Millisecond,
	}
}

func (l *RedisProductLocker) Lock(ctx context.Context, productIds []string) (func(), error) {
	return lockKeys(ctx, productIds, l.lockOne)
}

func (l *RedisProductLocker) lockOne(ctx context.Context, id string) (func(), error) {
	key := "stock:" + id
	// Obtain keeps retrying until ctx is done
	lock, err := l.Client.Obtain(ctx, key, l.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.RetryEvery),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, lockTimeoutError(id, err)
	} else if err != nil {
		config.LogError(l.Logger, "RedisProductLocker", "lockOne", "Error obtaining lock for product", id, err)
		return nil, err
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if releaseErr := lock.Release(releaseCtx); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			l.Logger.WithFields(logrus.Fields{
				"field":      "RedisProductLocker",
				"product_id": id,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}, nil
}
