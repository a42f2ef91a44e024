package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/models"
	"github.com/sirupsen/logrus"
)

// StockEventPublisher delivers one stock event body to the broker and
// returns the broker's message id. key is the product id, used for ordering.
type StockEventPublisher interface {
	Publish(ctx context.Context, key string, body []byte) (string, error)
}

// DiscardPublisher is used when EVENTS_BROKER=none; events are marked sent.
type DiscardPublisher struct{}

func (DiscardPublisher) Publish(ctx context.Context, key string, body []byte) (string, error) {
	return "", nil
}

// StockEventDispatcher publishes committed outbox rows.
// Rows are claimed with SKIP LOCKED so several instances can run it.
type StockEventDispatcher struct {
	Store        models.StockEventStore
	Publisher    StockEventPublisher
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	now func() time.Time
}

func NewStockEventDispatcher(store models.StockEventStore, publisher StockEventPublisher, logger *logrus.Logger) *StockEventDispatcher {
	if logger == nil {
		logger = config.GetLogger()
	}
	if publisher == nil {
		publisher = DiscardPublisher{}
	}
	return &StockEventDispatcher{
		Store:          store,
		Publisher:      publisher,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     10 * time.Minute,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (d *StockEventDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			config.LogError(d.Logger, "StockEventDispatcher", "Run", "claim stock events", nil, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns the number of
// events delivered.
func (d *StockEventDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	now := d.now()
	claimed, err := d.Store.ClaimStockEvents(ctx, models.ClaimOptions{
		DispatcherId: d.DispatcherID,
		Limit:        d.BatchSize,
		Now:          now,
		StaleBefore:  now.Add(-d.LockTimeout),
		MaxAttempts:  d.MaxAttempts,
	})
	if err != nil {
		return 0, err
	}
	// Claimed rows are settled even when ctx is cancelled mid-batch: the
	// delivery in flight finishes and the rest go back to the queue.
	settleCtx := context.WithoutCancel(ctx)
	sent := 0
	for i, event := range claimed {
		if ctx.Err() != nil {
			d.release(settleCtx, claimed[i:])
			break
		}
		msgId, pubErr := d.publish(settleCtx, event)
		if pubErr != nil {
			d.markFailed(settleCtx, event, pubErr)
			continue
		}
		if err := d.Store.MarkStockEventSent(settleCtx, event.ID, msgId, d.now()); err != nil {
			config.LogError(d.Logger, "StockEventDispatcher", "DispatchOnce", "mark sent", event.ID, err)
			continue
		}
		sent++
	}
	return sent, nil
}

// publish is bounded by the claim timeout; past it another dispatcher may
// reclaim the row.
func (d *StockEventDispatcher) publish(ctx context.Context, event *models.StockEvent) (string, error) {
	if d.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.LockTimeout)
		defer cancel()
	}
	return d.Publisher.Publish(ctx, event.ProductId, event.Payload)
}

// release hands unpublished claimed rows back for the next poll.
func (d *StockEventDispatcher) release(ctx context.Context, events []*models.StockEvent) {
	now := d.now()
	for _, event := range events {
		failure := models.StockEventFailure{Error: "dispatcher stopped before publishing", NextAttemptAt: &now}
		if err := d.Store.MarkStockEventFailed(ctx, event.ID, failure); err != nil {
			config.LogError(d.Logger, "StockEventDispatcher", "release", "release claim", event.ID, err)
		}
	}
}

func (d *StockEventDispatcher) backoff(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > d.MaxBackoff {
			return d.MaxBackoff
		}
	}
	return backoff
}

func (d *StockEventDispatcher) markFailed(ctx context.Context, event *models.StockEvent, pubErr error) {
	attempt := event.PublishAttempts
	fields := logrus.Fields{
		"field":                "StockEventDispatcher",
		"event_id":             event.ID,
		"stock_transaction_id": event.StockTransactionId,
		"product_id":           event.ProductId,
		"attempt":              attempt,
	}

	// Terminal after MaxAttempts (DLQ equivalent).
	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		if err := d.Store.MarkStockEventFailed(ctx, event.ID, models.StockEventFailure{Error: pubErr.Error(), Dead: true}); err != nil {
			config.LogError(d.Logger, "StockEventDispatcher", "markFailed", "mark dead", event.ID, err)
		}
		d.Logger.WithFields(fields).Error(fmt.Sprintf("stock event moved to DEAD after max attempts: %v", pubErr))
		return
	}

	next := d.now().Add(d.backoff(attempt))
	if err := d.Store.MarkStockEventFailed(ctx, event.ID, models.StockEventFailure{Error: pubErr.Error(), NextAttemptAt: &next}); err != nil {
		config.LogError(d.Logger, "StockEventDispatcher", "markFailed", "mark failed", event.ID, err)
	}
	fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
	d.Logger.WithFields(fields).Error(fmt.Sprintf("stock event publish failed: %v", pubErr))
}
