package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mmdatafocus/stock_backend/workflow")

// StockEntry is one quantity delta to apply to a product.
type StockEntry struct {
	ProductId         string
	Type              models.StockTransactionType
	Quantity          int
	ReferenceType     models.StockReferenceType
	ReferenceId       int
	ReferenceDetailId int
	Notes             string
}

func (e StockEntry) validate() error {
	if strings.TrimSpace(e.ProductId) == "" {
		return fmt.Errorf("%w: product id is required", utils.ErrInvalidArgument)
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: type must be IN or OUT, got %q", utils.ErrInvalidArgument, e.Type)
	}
	if e.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be a positive integer", utils.ErrInvalidArgument)
	}
	return nil
}

// StockLedger is the only writer of Product.StockQuantity.
// Every change is paired with an append-only StockTransaction and its
// outbox StockEvent in the caller's unit of work.
type StockLedger struct {
	Store  models.Store
	Guard  *ConsistencyGuard
	Logger *logrus.Logger
}

func NewStockLedger(store models.Store, guard *ConsistencyGuard, logger *logrus.Logger) *StockLedger {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &StockLedger{Store: store, Guard: guard, Logger: logger}
}

// Apply changes the product's stock by entry inside tx.
// OUT entries larger than the available stock fail with
// utils.ErrInsufficientStock and write nothing.
func (l *StockLedger) Apply(ctx context.Context, tx models.StoreTx, entry StockEntry) (*models.StockTransaction, error) {
	if err := entry.validate(); err != nil {
		return nil, err
	}
	return l.write(ctx, tx, entry, nil)
}

// Reverse appends the compensating entry for original.
// The original row is left as it is.
func (l *StockLedger) Reverse(ctx context.Context, tx models.StoreTx, original *models.StockTransaction, reason string) (*models.StockTransaction, error) {
	if original == nil || original.ID == 0 {
		return nil, fmt.Errorf("%w: nothing to reverse", utils.ErrInvalidArgument)
	}
	if original.IsReversal {
		return nil, fmt.Errorf("%w: stock transaction %d is itself a reversal", utils.ErrInvalidArgument, original.ID)
	}
	entry := StockEntry{
		ProductId:         original.ProductId,
		Type:              original.Type.Opposite(),
		Quantity:          original.Quantity,
		ReferenceType:     original.ReferenceType,
		ReferenceId:       original.ReferenceId,
		ReferenceDetailId: original.ReferenceDetailId,
		Notes:             fmt.Sprintf("REV: #%d", original.ID),
	}
	if reason != "" {
		entry.Notes += " " + reason
	}
	originalId := original.ID
	return l.write(ctx, tx, entry, &originalId)
}

func (l *StockLedger) write(ctx context.Context, tx models.StoreTx, entry StockEntry, reverses *int) (*models.StockTransaction, error) {
	ctx, span := tracer.Start(ctx, "StockLedger.Apply", trace.WithAttributes(
		attribute.String("product.id", entry.ProductId),
		attribute.String("stock.type", string(entry.Type)),
		attribute.Int("stock.quantity", entry.Quantity),
	))
	defer span.End()

	product, err := tx.GetProductForUpdate(ctx, entry.ProductId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, fmt.Errorf("%w: product %s", utils.ErrorRecordNotFound, entry.ProductId)
	} else if err != nil {
		return nil, err
	}

	balance := product.StockQuantity + entry.Quantity
	if entry.Type == models.StockTransactionTypeOut {
		balance = product.StockQuantity - entry.Quantity
		if balance < 0 {
			return nil, fmt.Errorf("%w: product %s has %d, requested %d", utils.ErrInsufficientStock, product.ID, product.StockQuantity, entry.Quantity)
		}
	}
	if err := tx.UpdateProductStock(ctx, product.ID, product.Version, balance); err != nil {
		return nil, err
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	st := &models.StockTransaction{
		ProductId:             product.ID,
		Type:                  entry.Type,
		Quantity:              entry.Quantity,
		BalanceAfter:          balance,
		ReferenceType:         entry.ReferenceType,
		ReferenceId:           entry.ReferenceId,
		ReferenceDetailId:     entry.ReferenceDetailId,
		IsReversal:            reverses != nil,
		ReversesTransactionId: reverses,
		Notes:                 entry.Notes,
		CorrelationId:         correlationId,
	}
	if err := tx.CreateStockTransaction(ctx, st); err != nil {
		return nil, err
	}
	event, err := models.NewStockEvent(st)
	if err != nil {
		return nil, err
	}
	if err := tx.CreateStockEvent(ctx, event); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("stock.balance_after", balance))
	return st, nil
}

// RecordManual applies a stand-alone IN/OUT adjustment as its own unit of work.
func (l *StockLedger) RecordManual(ctx context.Context, input models.NewStockTransaction) (*models.StockTransaction, error) {
	return observe(ctx, l.Logger, "StockLedger", "RecordManual", input, func(ctx context.Context) (*models.StockTransaction, error) {
		input.ProductId = strings.TrimSpace(input.ProductId)
		if err := utils.ValidateArgument(&input); err != nil {
			return nil, err
		}
		entry := StockEntry{
			ProductId:     input.ProductId,
			Type:          input.Type,
			Quantity:      input.Quantity,
			ReferenceType: models.StockReferenceTypeManual,
			Notes:         input.Notes,
		}
		idem, err := newIdempotentRequest(ctx, "stock-transaction", input)
		if err != nil {
			return nil, err
		}
		var (
			result   *models.StockTransaction
			replayed int
		)
		err = l.Guard.Run(ctx, []string{entry.ProductId}, func(tx models.StoreTx) error {
			if id, ok, err := idem.replay(ctx, tx); err != nil || ok {
				replayed = id
				return err
			}
			st, err := l.Apply(ctx, tx, entry)
			if err != nil {
				return err
			}
			result = st
			return idem.remember(ctx, tx, st.ID)
		})
		if err != nil {
			return nil, err
		}
		if replayed != 0 {
			return l.Store.GetStockTransaction(ctx, replayed)
		}
		return result, nil
	})
}

// ReverseManual backs out a manual adjustment with a compensating entry.
// Order entries are only reversed through their order, and an entry is
// reversed at most once.
func (l *StockLedger) ReverseManual(ctx context.Context, id int) (*models.StockTransaction, error) {
	return observe(ctx, l.Logger, "StockLedger", "ReverseManual", id, func(ctx context.Context) (*models.StockTransaction, error) {
		original, err := l.Store.GetStockTransaction(ctx, id)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("%w: stock transaction %d", utils.ErrorRecordNotFound, id)
		} else if err != nil {
			return nil, err
		}
		if original.ReferenceType != models.StockReferenceTypeManual {
			return nil, fmt.Errorf("%w: stock transaction %d belongs to %s %d, change the order instead", utils.ErrValidation, id, original.ReferenceType, original.ReferenceId)
		}
		if original.IsReversal {
			return nil, fmt.Errorf("%w: stock transaction %d is itself a reversal", utils.ErrValidation, id)
		}

		var result *models.StockTransaction
		err = l.Guard.Run(ctx, []string{original.ProductId}, func(tx models.StoreTx) error {
			if prior, err := tx.FindReversal(ctx, id); err == nil {
				return fmt.Errorf("%w: stock transaction %d was already reversed by %d", utils.ErrValidation, id, prior.ID)
			} else if !errors.Is(err, utils.ErrorRecordNotFound) {
				return err
			}
			st, err := l.Reverse(ctx, tx, original, ReversalReasonManual)
			if err != nil {
				return err
			}
			result = st
			return nil
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

func (l *StockLedger) GetStockTransaction(ctx context.Context, id int) (*models.StockTransaction, error) {
	st, err := l.Store.GetStockTransaction(ctx, id)
	if err != nil {
		return nil, l.classify("GetStockTransaction", id, err)
	}
	return st, nil
}

func (l *StockLedger) ListStockTransactions(ctx context.Context, filter models.StockTransactionFilter) ([]*models.StockTransaction, error) {
	results, err := l.Store.ListStockTransactions(ctx, filter)
	if err != nil {
		return nil, l.classify("ListStockTransactions", filter, err)
	}
	return results, nil
}

func (l *StockLedger) classify(funcName string, data any, err error) error {
	return wrapInternal(l.Logger, "StockLedger", funcName, data, err)
}
