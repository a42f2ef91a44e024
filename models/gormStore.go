package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/stock_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MySQL server error numbers
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrLockNowait      = 3572
	mysqlErrCheckViolated   = 3819
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) InTransaction(ctx context.Context, fn func(tx StoreTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	return mapStoreError(err)
}

// mapStoreError converts driver errors into the utils taxonomy.
// Errors that are already classified pass through untouched.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrLockNowait:
			return fmt.Errorf("%w: %s", utils.ErrTimeout, mysqlErr.Message)
		case mysqlErrDeadlock:
			return fmt.Errorf("%w: %s", utils.ErrStockConflict, mysqlErr.Message)
		case mysqlErrCheckViolated:
			return fmt.Errorf("%w: %s", utils.ErrInsufficientStock, mysqlErr.Message)
		}
	}
	return err
}

func (s *GormStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	var product Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return &product, nil
}

func (s *GormStore) ListProducts(ctx context.Context) ([]*Product, error) {
	var products []*Product
	if err := s.db.WithContext(ctx).Order("id").Find(&products).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return products, nil
}

func orderDetailsById(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

func (s *GormStore) GetOrder(ctx context.Context, id int) (*Order, error) {
	var order Order
	if err := s.db.WithContext(ctx).Preload("Details", orderDetailsById).First(&order, id).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return &order, nil
}

func (s *GormStore) ListOrders(ctx context.Context, orderType OrderType) ([]*Order, error) {
	var orders []*Order
	err := s.db.WithContext(ctx).
		Preload("Details", orderDetailsById).
		Where("type = ?", orderType).
		Order("id").
		Find(&orders).Error
	if err != nil {
		return nil, mapStoreError(err)
	}
	return orders, nil
}

func (s *GormStore) GetStockTransaction(ctx context.Context, id int) (*StockTransaction, error) {
	var t StockTransaction
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return &t, nil
}

func (s *GormStore) ListStockTransactions(ctx context.Context, filter StockTransactionFilter) ([]*StockTransaction, error) {
	dbCtx := s.db.WithContext(ctx)
	if filter.ProductId != "" {
		dbCtx = dbCtx.Where("product_id = ?", filter.ProductId)
	}
	if filter.Type != "" {
		dbCtx = dbCtx.Where("type = ?", filter.Type)
	}
	if filter.ReferenceType != "" {
		dbCtx = dbCtx.Where("reference_type = ?", filter.ReferenceType)
	}
	if filter.ReferenceId > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", filter.ReferenceId)
	}
	var results []*StockTransaction
	if err := dbCtx.Order("id").Find(&results).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return results, nil
}

func (s *GormStore) ClaimStockEvents(ctx context.Context, opts ClaimOptions) ([]*StockEvent, error) {
	var claimed []*StockEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but the lock is stale, reclaim
		var candidates []*StockEvent
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{StockEventStatusPending, StockEventStatusFailed}, opts.Now, StockEventStatusProcessing, opts.StaleBefore).
			Order("id ASC").
			Limit(opts.Limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&candidates).Error; err != nil {
			return err
		}
		for _, event := range candidates {
			if opts.MaxAttempts > 0 && event.PublishAttempts >= opts.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", opts.MaxAttempts)
				if err := tx.Model(&StockEvent{}).Where("id = ?", event.ID).Updates(map[string]interface{}{
					"publish_status":     StockEventStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}
			now := opts.Now
			dispatcherId := opts.DispatcherId
			event.PublishStatus = StockEventStatusProcessing
			event.LockedAt = &now
			event.LockedBy = &dispatcherId
			event.PublishAttempts++
			event.LastPublishError = nil
			if err := tx.Model(&StockEvent{}).Where("id = ?", event.ID).Updates(map[string]interface{}{
				"publish_status":     StockEventStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &dispatcherId,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
			claimed = append(claimed, event)
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return claimed, nil
}

func (s *GormStore) MarkStockEventSent(ctx context.Context, id int, brokerMessageId string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&StockEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status":    StockEventStatusSent,
			"published_at":      &at,
			"broker_message_id": &brokerMessageId,
			"locked_at":         nil,
			"locked_by":         nil,
			"next_attempt_at":   nil,
		}).Error
}

func (s *GormStore) MarkStockEventFailed(ctx context.Context, id int, failure StockEventFailure) error {
	status := StockEventStatusFailed
	if failure.Dead {
		status = StockEventStatusDead
	}
	msg := failure.Error
	return s.db.WithContext(ctx).Model(&StockEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status":     status,
			"last_publish_error": &msg,
			"next_attempt_at":    failure.NextAttemptAt,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) GetProductForUpdate(ctx context.Context, id string) (*Product, error) {
	var product Product
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &product, nil
}

func (t *gormTx) UpdateProductStock(ctx context.Context, id string, expectedVersion int, quantity int) error {
	res := t.db.WithContext(ctx).Model(&Product{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"stock_quantity": quantity,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return mapStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrStockConflict
	}
	return nil
}

func (t *gormTx) CreateStockTransaction(ctx context.Context, st *StockTransaction) error {
	return mapStoreError(t.db.WithContext(ctx).Create(st).Error)
}

func (t *gormTx) ListStockTransactionsByReference(ctx context.Context, referenceType StockReferenceType, referenceId int) ([]*StockTransaction, error) {
	var results []*StockTransaction
	err := t.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, mapStoreError(err)
	}
	return results, nil
}

func (t *gormTx) FindReversal(ctx context.Context, originalId int) (*StockTransaction, error) {
	var reversal StockTransaction
	err := t.db.WithContext(ctx).
		Where("reverses_transaction_id = ?", originalId).
		First(&reversal).Error
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &reversal, nil
}

func (t *gormTx) CreateStockEvent(ctx context.Context, e *StockEvent) error {
	return mapStoreError(t.db.WithContext(ctx).Create(e).Error)
}

func (t *gormTx) SupplierExists(ctx context.Context, id int) (bool, error) {
	var count int64
	if err := t.db.WithContext(ctx).Model(&Supplier{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, mapStoreError(err)
	}
	return count > 0, nil
}

func (t *gormTx) CreateOrder(ctx context.Context, o *Order) error {
	return mapStoreError(t.db.WithContext(ctx).Create(o).Error)
}

func (t *gormTx) GetOrderForUpdate(ctx context.Context, id int) (*Order, error) {
	var order Order
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Details", orderDetailsById).
		First(&order, id).Error
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &order, nil
}

func (t *gormTx) UpdateOrderHeader(ctx context.Context, o *Order) error {
	err := t.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", o.ID).
		Updates(map[string]interface{}{
			"supplier_id":  o.SupplierId,
			"total_amount": o.TotalAmount,
		}).Error
	return mapStoreError(err)
}

func (t *gormTx) UpdateOrderSupplier(ctx context.Context, id int, supplierId *int) error {
	err := t.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", id).
		Update("supplier_id", supplierId).Error
	return mapStoreError(err)
}

func (t *gormTx) ReplaceOrderDetails(ctx context.Context, orderId int, details []OrderDetail) ([]OrderDetail, error) {
	db := t.db.WithContext(ctx)
	if err := db.Where("order_id = ?", orderId).Delete(&OrderDetail{}).Error; err != nil {
		return nil, mapStoreError(err)
	}
	replaced := make([]OrderDetail, len(details))
	for i, d := range details {
		d.ID = 0
		d.OrderId = orderId
		replaced[i] = d
	}
	if len(replaced) > 0 {
		if err := db.Create(&replaced).Error; err != nil {
			return nil, mapStoreError(err)
		}
	}
	return replaced, nil
}

func (t *gormTx) DeleteOrder(ctx context.Context, id int) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("order_id = ?", id).Delete(&OrderDetail{}).Error; err != nil {
		return mapStoreError(err)
	}
	res := db.Delete(&Order{}, id)
	if res.Error != nil {
		return mapStoreError(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func (t *gormTx) FindIdempotencyKey(ctx context.Context, scope, key string) (*IdempotencyKey, error) {
	var k IdempotencyKey
	err := t.db.WithContext(ctx).
		Where("scope = ? AND idempotency_key = ?", scope, key).
		Take(&k).Error
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &k, nil
}

func (t *gormTx) CreateIdempotencyKey(ctx context.Context, k *IdempotencyKey) error {
	err := t.db.WithContext(ctx).Create(k).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		return fmt.Errorf("%w: idempotency key %s already used", utils.ErrStockConflict, k.Key)
	}
	return mapStoreError(err)
}
