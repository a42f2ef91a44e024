package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/sirupsen/logrus"
)

// the order's lines changed between resolving the lock set and locking the row
var errLockSetChanged = fmt.Errorf("%w: order lines changed while locking", utils.ErrStockConflict)

// OrderService creates, edits and removes purchase and sales orders.
// Each operation settles its stock through the ledger in a single unit of
// work: either the order and every ledger entry commit, or nothing does.
type OrderService struct {
	Store  models.Store
	Ledger *StockLedger
	Guard  *ConsistencyGuard
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewOrderService(store models.Store, ledger *StockLedger, guard *ConsistencyGuard, logger *logrus.Logger) *OrderService {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &OrderService{
		Store:  store,
		Ledger: ledger,
		Guard:  guard,
		Logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderService) CreatePurchaseOrder(ctx context.Context, input models.NewPurchaseOrder) (*models.Order, error) {
	return observe(ctx, s.Logger, "OrderService", "CreatePurchaseOrder", input, func(ctx context.Context) (*models.Order, error) {
		if err := utils.ValidateStruct(&input); err != nil {
			return nil, err
		}
		lines, err := models.CalculateOrderLines(input.Items)
		if err != nil {
			return nil, err
		}
		supplierId := input.SupplierId
		return s.create(ctx, models.OrderTypePurchase, &supplierId, lines)
	})
}

func (s *OrderService) CreateSalesOrder(ctx context.Context, input models.NewSalesOrder) (*models.Order, error) {
	return observe(ctx, s.Logger, "OrderService", "CreateSalesOrder", input, func(ctx context.Context) (*models.Order, error) {
		lines, err := models.CalculateOrderLines(input.Items)
		if err != nil {
			return nil, err
		}
		return s.create(ctx, models.OrderTypeSales, nil, lines)
	})
}

func (s *OrderService) create(ctx context.Context, orderType models.OrderType, supplierId *int, lines models.OrderLines) (*models.Order, error) {
	idem, err := newIdempotentRequest(ctx, strings.ToLower(string(orderType))+"-order", struct {
		SupplierId *int
		Lines      []models.OrderDetail
	}{supplierId, lines.Details})
	if err != nil {
		return nil, err
	}

	var (
		created  *models.Order
		replayed int
	)
	err = s.Guard.Run(ctx, lines.ProductIds(), func(tx models.StoreTx) error {
		if id, ok, err := idem.replay(ctx, tx); err != nil || ok {
			replayed = id
			return err
		}
		if supplierId != nil {
			if err := requireSupplier(ctx, tx, *supplierId); err != nil {
				return err
			}
		}
		order := &models.Order{
			Type:        orderType,
			SupplierId:  supplierId,
			OrderDate:   s.Now(),
			TotalAmount: lines.Total,
			Details:     append([]models.OrderDetail(nil), lines.Details...),
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.applyLines(ctx, tx, order, order.Details, 0); err != nil {
			return err
		}
		created = order
		return idem.remember(ctx, tx, order.ID)
	})
	if err != nil {
		return nil, err
	}
	if replayed != 0 {
		return s.Store.GetOrder(ctx, replayed)
	}
	return created, nil
}

// applyLines writes one ledger entry per detail. written counts the ledger
// entries this unit of work already appended; a failure after any write is
// reported as a partial apply (everything is rolled back either way).
func (s *OrderService) applyLines(ctx context.Context, tx models.StoreTx, order *models.Order, details []models.OrderDetail, written int) error {
	for i, d := range details {
		_, err := s.Ledger.Apply(ctx, tx, StockEntry{
			ProductId:         d.ProductId,
			Type:              order.Type.StockDirection(),
			Quantity:          d.Quantity,
			ReferenceType:     order.Type.ReferenceType(),
			ReferenceId:       order.ID,
			ReferenceDetailId: d.ID,
		})
		if err != nil {
			if written+i > 0 {
				return utils.NewPartialApplyError(i, d.ProductId, err)
			}
			return utils.NewLineError(i, d.ProductId, err)
		}
	}
	return nil
}

func (s *OrderService) UpdateOrder(ctx context.Context, id int, input models.UpdateOrderInput) (*models.Order, error) {
	return observe(ctx, s.Logger, "OrderService", "UpdateOrder", id, func(ctx context.Context) (*models.Order, error) {
		return s.update(ctx, "", id, input)
	})
}

func (s *OrderService) UpdatePurchaseOrder(ctx context.Context, id int, input models.UpdateOrderInput) (*models.Order, error) {
	return observe(ctx, s.Logger, "OrderService", "UpdatePurchaseOrder", id, func(ctx context.Context) (*models.Order, error) {
		return s.update(ctx, models.OrderTypePurchase, id, input)
	})
}

func (s *OrderService) UpdateSalesOrder(ctx context.Context, id int, input models.UpdateOrderInput) (*models.Order, error) {
	return observe(ctx, s.Logger, "OrderService", "UpdateSalesOrder", id, func(ctx context.Context) (*models.Order, error) {
		return s.update(ctx, models.OrderTypeSales, id, input)
	})
}

// update with an empty expected type accepts either kind of order.
func (s *OrderService) update(ctx context.Context, expected models.OrderType, id int, input models.UpdateOrderInput) (*models.Order, error) {
	if err := utils.ValidateStruct(&input); err != nil {
		return nil, err
	}
	if input.Items == nil {
		return s.updateHeader(ctx, expected, id, input.SupplierId)
	}
	lines, err := models.CalculateOrderLines(*input.Items)
	if err != nil {
		return nil, err
	}

	var locked []string
	products := func(ctx context.Context) ([]string, error) {
		current, err := s.Store.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := checkOrderType(current, expected); err != nil {
			return nil, err
		}
		locked = utils.SortedUniqueKeys(append(current.ProductIds(), lines.ProductIds()...))
		return locked, nil
	}

	var updated *models.Order
	err = s.Guard.RunFor(ctx, products, func(tx models.StoreTx) error {
		order, err := lockedOrder(ctx, tx, id, expected, locked)
		if err != nil {
			return err
		}
		if input.SupplierId != nil {
			if err := changeSupplier(ctx, tx, order, *input.SupplierId); err != nil {
				return err
			}
		}
		open, err := outstandingEntries(ctx, tx, order)
		if err != nil {
			return err
		}
		details, err := tx.ReplaceOrderDetails(ctx, order.ID, lines.Details)
		if err != nil {
			return err
		}

		written := 0
		reason := orderReversalReason(order.Type, false)
		reverse := func() error {
			for _, st := range open {
				if _, err := s.Ledger.Reverse(ctx, tx, st, reason); err != nil {
					return fmt.Errorf("reverse stock transaction %d (product %s): %w", st.ID, st.ProductId, err)
				}
				written++
			}
			return nil
		}
		apply := func() error {
			if err := s.applyLines(ctx, tx, order, details, written); err != nil {
				return err
			}
			written += len(details)
			return nil
		}
		// IN entries first: an update whose net effect fits never fails on
		// an intermediate balance.
		steps := []func() error{reverse, apply}
		if order.Type.StockDirection() == models.StockTransactionTypeIn {
			steps = []func() error{apply, reverse}
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}

		order.Details = details
		order.TotalAmount = lines.Total
		if err := tx.UpdateOrderHeader(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// updateHeader changes header fields only; stock is not touched, so no
// product is locked. A concurrent line update is caught as a conflict on
// the order row and retried by the guard.
func (s *OrderService) updateHeader(ctx context.Context, expected models.OrderType, id int, supplierId *int) (*models.Order, error) {
	var updated *models.Order
	err := s.Guard.Run(ctx, nil, func(tx models.StoreTx) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkOrderType(order, expected); err != nil {
			return err
		}
		if supplierId != nil {
			if err := changeSupplier(ctx, tx, order, *supplierId); err != nil {
				return err
			}
			if err := tx.UpdateOrderSupplier(ctx, order.ID, order.SupplierId); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, id int) error {
	_, err := observe(ctx, s.Logger, "OrderService", "DeleteOrder", id, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.delete(ctx, "", id)
	})
	return err
}

func (s *OrderService) DeletePurchaseOrder(ctx context.Context, id int) error {
	_, err := observe(ctx, s.Logger, "OrderService", "DeletePurchaseOrder", id, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.delete(ctx, models.OrderTypePurchase, id)
	})
	return err
}

func (s *OrderService) DeleteSalesOrder(ctx context.Context, id int) error {
	_, err := observe(ctx, s.Logger, "OrderService", "DeleteSalesOrder", id, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.delete(ctx, models.OrderTypeSales, id)
	})
	return err
}

// delete reverses the order's stock impact and removes header and lines.
func (s *OrderService) delete(ctx context.Context, expected models.OrderType, id int) error {
	var locked []string
	products := func(ctx context.Context) ([]string, error) {
		current, err := s.Store.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := checkOrderType(current, expected); err != nil {
			return nil, err
		}
		locked = utils.SortedUniqueKeys(current.ProductIds())
		return locked, nil
	}
	return s.Guard.RunFor(ctx, products, func(tx models.StoreTx) error {
		order, err := lockedOrder(ctx, tx, id, expected, locked)
		if err != nil {
			return err
		}
		open, err := outstandingEntries(ctx, tx, order)
		if err != nil {
			return err
		}
		reason := orderReversalReason(order.Type, true)
		for _, st := range open {
			if _, err := s.Ledger.Reverse(ctx, tx, st, reason); err != nil {
				return fmt.Errorf("reverse stock transaction %d (product %s): %w", st.ID, st.ProductId, err)
			}
		}
		return tx.DeleteOrder(ctx, order.ID)
	})
}

// GetOrder with an empty orderType returns either kind.
func (s *OrderService) GetOrder(ctx context.Context, orderType models.OrderType, id int) (*models.Order, error) {
	order, err := s.Store.GetOrder(ctx, id)
	if err == nil {
		err = checkOrderType(order, orderType)
	}
	if err != nil {
		return nil, wrapInternal(s.Logger, "OrderService", "GetOrder", id, err)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, orderType models.OrderType) ([]*models.Order, error) {
	orders, err := s.Store.ListOrders(ctx, orderType)
	if err != nil {
		return nil, wrapInternal(s.Logger, "OrderService", "ListOrders", orderType, err)
	}
	return orders, nil
}

func requireSupplier(ctx context.Context, tx models.StoreTx, supplierId int) error {
	exists, err := tx.SupplierExists(ctx, supplierId)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: supplier %d", utils.ErrorRecordNotFound, supplierId)
	}
	return nil
}

func changeSupplier(ctx context.Context, tx models.StoreTx, order *models.Order, supplierId int) error {
	if order.Type != models.OrderTypePurchase {
		return fmt.Errorf("%w: sales orders have no supplier", utils.ErrValidation)
	}
	if err := requireSupplier(ctx, tx, supplierId); err != nil {
		return err
	}
	order.SupplierId = &supplierId
	return nil
}

func checkOrderType(order *models.Order, expected models.OrderType) error {
	if expected != "" && order.Type != expected {
		return fmt.Errorf("%w: %s order %d", utils.ErrorRecordNotFound, strings.ToLower(string(expected)), order.ID)
	}
	return nil
}

// lockedOrder loads the order for update and checks that every product on
// it is covered by the locks taken for this attempt.
func lockedOrder(ctx context.Context, tx models.StoreTx, id int, expected models.OrderType, locked []string) (*models.Order, error) {
	order, err := tx.GetOrderForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOrderType(order, expected); err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(locked))
	for _, productId := range locked {
		held[productId] = true
	}
	for _, productId := range order.ProductIds() {
		if !held[productId] {
			return nil, errLockSetChanged
		}
	}
	return order, nil
}

// outstandingEntries returns the order's ledger entries that have not been
// reversed yet.
func outstandingEntries(ctx context.Context, tx models.StoreTx, order *models.Order) ([]*models.StockTransaction, error) {
	entries, err := tx.ListStockTransactionsByReference(ctx, order.Type.ReferenceType(), order.ID)
	if err != nil {
		return nil, err
	}
	reversed := make(map[int]bool)
	for _, st := range entries {
		if st.IsReversal && st.ReversesTransactionId != nil {
			reversed[*st.ReversesTransactionId] = true
		}
	}
	open := make([]*models.StockTransaction, 0, len(entries))
	for _, st := range entries {
		if !st.IsReversal && !reversed[st.ID] {
			open = append(open, st)
		}
	}
	return open, nil
}
