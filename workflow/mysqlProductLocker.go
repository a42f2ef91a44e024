package workflow

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/sirupsen/logrus"
)

// MySQLProductLocker serializes stock work per product across instances
// using MySQL advisory locks (GET_LOCK).
// NOTE: GET_LOCK is connection-scoped, so one Lock call pins a dedicated
// connection until release. DB must not be the pool transactions run on.
type MySQLProductLocker struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

func NewMySQLProductLocker(db *sql.DB, logger *logrus.Logger) *MySQLProductLocker {
	return &MySQLProductLocker{DB: db, Logger: logger}
}

// MySQL lock names are limited to 64 characters.
func advisoryLockName(productId string) string {
	name := "stock:" + productId
	if len(name) <= 64 {
		return name
	}
	sum := sha1.Sum([]byte(productId))
	return "stock:" + hex.EncodeToString(sum[:])
}

func waitSeconds(ctx context.Context) int {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 30
	}
	sec := int(time.Until(deadline).Round(time.Second) / time.Second)
	if sec < 0 {
		return 0
	}
	return sec
}

func (l *MySQLProductLocker) Lock(ctx context.Context, productIds []string) (func(), error) {
	if len(productIds) == 0 {
		return func() {}, nil
	}
	conn, err := l.DB.Conn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, lockTimeoutError(strings.Join(utils.SortedUniqueKeys(productIds), ","), ctx.Err())
		}
		return nil, err
	}
	release, err := lockKeys(ctx, productIds, func(ctx context.Context, id string) (func(), error) {
		return l.lockOne(ctx, conn, id)
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return func() {
		release()
		_ = conn.Close()
	}, nil
}

func (l *MySQLProductLocker) lockOne(ctx context.Context, conn *sql.Conn, id string) (func(), error) {
	lockName := advisoryLockName(id)
	var ok sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", lockName, waitSeconds(ctx)).Scan(&ok); err != nil {
		if ctx.Err() != nil {
			return nil, lockTimeoutError(id, ctx.Err())
		}
		config.LogError(l.Logger, "MySQLProductLocker", "lockOne", "GET_LOCK failed", id, err)
		return nil, err
	}
	if !ok.Valid || ok.Int64 != 1 {
		return nil, lockTimeoutError(id, fmt.Errorf("GET_LOCK(%s) returned %v", lockName, ok.Int64))
	}
	return func() {
		var released sql.NullInt64
		_ = conn.QueryRowContext(context.Background(), "SELECT RELEASE_LOCK(?)", lockName).Scan(&released)
	}, nil
}
