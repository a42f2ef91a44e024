package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/sirupsen/logrus"
)

// ProductSet resolves which products a unit of work touches.
// It is evaluated again before every retry.
type ProductSet func(ctx context.Context) ([]string, error)

func StaticProducts(productIds ...string) ProductSet {
	return func(context.Context) ([]string, error) {
		return productIds, nil
	}
}

// ConsistencyGuard makes a stock-affecting operation atomic and serialized
// per product: it takes the product locks, runs the unit of work in one
// store transaction and releases the locks after commit or rollback.
// A version conflict detected by the store is retried a bounded number of
// times; running out of retries is reported as utils.ErrTimeout.
type ConsistencyGuard struct {
	Store       models.Store
	Locker      ProductLocker
	Logger      *logrus.Logger
	LockTimeout time.Duration
	MaxRetries  int
}

func NewConsistencyGuard(store models.Store, locker ProductLocker, logger *logrus.Logger) *ConsistencyGuard {
	if logger == nil {
		logger = config.GetLogger()
	}
	if locker == nil {
		locker = NewLocalProductLocker()
	}
	return &ConsistencyGuard{
		Store:       store,
		Locker:      locker,
		Logger:      logger,
		LockTimeout: 5 * time.Second,
		MaxRetries:  3,
	}
}

func (g *ConsistencyGuard) Run(ctx context.Context, productIds []string, fn func(tx models.StoreTx) error) error {
	return g.RunFor(ctx, StaticProducts(productIds...), fn)
}

func (g *ConsistencyGuard) RunFor(ctx context.Context, products ProductSet, fn func(tx models.StoreTx) error) error {
	attempts := g.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = g.runOnce(ctx, products, fn)
		if !errors.Is(err, utils.ErrStockConflict) {
			return err
		}
		g.Logger.WithFields(logrus.Fields{
			"field":   "ConsistencyGuard",
			"attempt": attempt,
		}).Debug("stock conflict, retrying: " + err.Error())
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", utils.ErrTimeout, ctx.Err())
			case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("%w: gave up after %d conflicting attempts: %v", utils.ErrTimeout, attempts, err)
}

func (g *ConsistencyGuard) runOnce(ctx context.Context, products ProductSet, fn func(tx models.StoreTx) error) error {
	productIds, err := products(ctx)
	if err != nil {
		return err
	}
	lockCtx := ctx
	if g.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, g.LockTimeout)
		defer cancel()
	}
	release, err := g.Locker.Lock(lockCtx, productIds)
	if err != nil {
		return err
	}
	defer release()
	return g.Store.InTransaction(ctx, fn)
}
