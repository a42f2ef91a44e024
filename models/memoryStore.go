package models

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/stock_backend/utils"
)

// MemoryStore keeps everything in process memory.
// Transactions buffer their writes and apply them under one write lock at
// commit, so readers never observe a stock value without its ledger entry.
// Commit re-checks product and order versions and fails with
// utils.ErrStockConflict when another transaction changed one of them first.
type MemoryStore struct {
	mu            sync.RWMutex
	products      map[string]Product
	suppliers     map[int]Supplier
	orders        map[int]*Order
	orderVersions map[int]int
	transactions  []StockTransaction
	events        []*StockEvent
	idempotency   map[idempotencyScopeKey]IdempotencyKey

	lastOrderId       int
	lastDetailId      int
	lastTransactionId int
	lastEventId       int
	lastIdemKeyId     int

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:      make(map[string]Product),
		suppliers:     make(map[int]Supplier),
		orders:        make(map[int]*Order),
		orderVersions: make(map[int]int),
		idempotency:   make(map[idempotencyScopeKey]IdempotencyKey),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) PutProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
}

func (s *MemoryStore) PutSupplier(supplier Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[supplier.ID] = supplier
}

// ids are handed out under mu; rolled back transactions leave gaps like
// AUTO_INCREMENT does
func (s *MemoryStore) nextId(counter *int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	*counter++
	return *counter
}

func (s *MemoryStore) InTransaction(ctx context.Context, fn func(tx StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{
		store:         s,
		products:      make(map[string]*stagedProduct),
		orders:        make(map[int]*Order),
		orderBase:     make(map[int]int),
		deletedOrders: make(map[int]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, staged := range tx.products {
		current, ok := s.products[id]
		if !ok || current.Version != staged.baseVersion {
			return fmt.Errorf("%w: product %s", utils.ErrStockConflict, id)
		}
	}
	for id, base := range tx.orderBase {
		if s.orderVersions[id] != base {
			return fmt.Errorf("%w: order %d", utils.ErrStockConflict, id)
		}
	}
	for _, k := range tx.idempotency {
		if _, ok := s.idempotency[idempotencyScopeKey{k.Scope, k.Key}]; ok {
			return fmt.Errorf("%w: idempotency key %s already used", utils.ErrStockConflict, k.Key)
		}
	}
	now := s.now()
	for id, staged := range tx.products {
		p := staged.product
		p.UpdatedAt = now
		s.products[id] = p
	}
	for id := range tx.deletedOrders {
		delete(s.orders, id)
		s.orderVersions[id]++
	}
	for id, o := range tx.orders {
		s.orders[id] = o
		s.orderVersions[id]++
	}
	s.transactions = append(s.transactions, tx.transactions...)
	s.events = append(s.events, tx.events...)
	for _, k := range tx.idempotency {
		s.idempotency[idempotencyScopeKey{k.Scope, k.Key}] = k
	}
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := make([]*Product, 0, len(s.products))
	for _, p := range s.products {
		p := p
		products = append(products, &p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id int) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, orderType OrderType) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := make([]*Order, 0)
	for _, o := range s.orders {
		if o.Type == orderType {
			orders = append(orders, o.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (s *MemoryStore) GetStockTransaction(ctx context.Context, id int) (*StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			t := s.transactions[i]
			return &t, nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func (s *MemoryStore) ListStockTransactions(ctx context.Context, filter StockTransactionFilter) ([]*StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterTransactions(s.transactions, filter), nil
}

func filterTransactions(transactions []StockTransaction, filter StockTransactionFilter) []*StockTransaction {
	results := make([]*StockTransaction, 0)
	for i := range transactions {
		if filter.Match(&transactions[i]) {
			t := transactions[i]
			results = append(results, &t)
		}
	}
	return results
}

func (s *MemoryStore) ClaimStockEvents(ctx context.Context, opts ClaimOptions) ([]*StockEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []*StockEvent
	for _, event := range s.events {
		if opts.Limit > 0 && len(claimed) >= opts.Limit {
			break
		}
		ready := (event.PublishStatus == StockEventStatusPending || event.PublishStatus == StockEventStatusFailed) &&
			(event.NextAttemptAt == nil || !event.NextAttemptAt.After(opts.Now))
		stale := event.PublishStatus == StockEventStatusProcessing &&
			event.LockedAt != nil && !event.LockedAt.After(opts.StaleBefore)
		if !ready && !stale {
			continue
		}
		if opts.MaxAttempts > 0 && event.PublishAttempts >= opts.MaxAttempts {
			msg := fmt.Sprintf("max publish attempts exceeded (%d)", opts.MaxAttempts)
			event.PublishStatus = StockEventStatusDead
			event.LastPublishError = &msg
			event.NextAttemptAt, event.LockedAt, event.LockedBy = nil, nil, nil
			continue
		}
		now := opts.Now
		dispatcherId := opts.DispatcherId
		event.PublishStatus = StockEventStatusProcessing
		event.LockedAt = &now
		event.LockedBy = &dispatcherId
		event.PublishAttempts++
		event.LastPublishError = nil
		event.NextAttemptAt = nil
		c := *event
		claimed = append(claimed, &c)
	}
	return claimed, nil
}

func (s *MemoryStore) findEvent(id int) (*StockEvent, error) {
	for _, event := range s.events {
		if event.ID == id {
			return event, nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func (s *MemoryStore) MarkStockEventSent(ctx context.Context, id int, brokerMessageId string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, err := s.findEvent(id)
	if err != nil {
		return err
	}
	event.PublishStatus = StockEventStatusSent
	event.PublishedAt = &at
	event.BrokerMessageId = &brokerMessageId
	event.NextAttemptAt, event.LockedAt, event.LockedBy = nil, nil, nil
	return nil
}

func (s *MemoryStore) MarkStockEventFailed(ctx context.Context, id int, failure StockEventFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, err := s.findEvent(id)
	if err != nil {
		return err
	}
	event.PublishStatus = StockEventStatusFailed
	if failure.Dead {
		event.PublishStatus = StockEventStatusDead
	}
	msg := failure.Error
	event.LastPublishError = &msg
	event.NextAttemptAt = failure.NextAttemptAt
	event.LockedAt, event.LockedBy = nil, nil
	return nil
}

// StockEvents returns a copy of the outbox, oldest first.
func (s *MemoryStore) StockEvents() []StockEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]StockEvent, len(s.events))
	for i, e := range s.events {
		events[i] = *e
	}
	return events
}

type idempotencyScopeKey struct {
	scope string
	key   string
}

type stagedProduct struct {
	product     Product
	baseVersion int
}

// memoryTx is used by a single goroutine; only reads of committed state
// take the store lock.
type memoryTx struct {
	store         *MemoryStore
	products      map[string]*stagedProduct
	orders        map[int]*Order
	// order versions as first read from the store; checked at commit
	orderBase     map[int]int
	deletedOrders map[int]bool
	transactions  []StockTransaction
	events        []*StockEvent
	idempotency   []IdempotencyKey
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id string) (*Product, error) {
	if staged, ok := tx.products[id]; ok {
		p := staged.product
		return &p, nil
	}
	return tx.store.GetProduct(ctx, id)
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, id string, expectedVersion int, quantity int) error {
	staged, ok := tx.products[id]
	if !ok {
		current, err := tx.store.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		staged = &stagedProduct{product: *current, baseVersion: current.Version}
	}
	if staged.product.Version != expectedVersion {
		return fmt.Errorf("%w: product %s", utils.ErrStockConflict, id)
	}
	// mirrors the stock_quantity >= 0 CHECK constraint
	if quantity < 0 {
		return fmt.Errorf("%w: product %s would go to %d", utils.ErrInsufficientStock, id, quantity)
	}
	staged.product.StockQuantity = quantity
	staged.product.Version++
	tx.products[id] = staged
	return nil
}

func (tx *memoryTx) CreateStockTransaction(ctx context.Context, t *StockTransaction) error {
	if err := t.validate(); err != nil {
		return err
	}
	t.ID = tx.store.nextId(&tx.store.lastTransactionId)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = tx.store.now()
	}
	tx.transactions = append(tx.transactions, *t)
	return nil
}

func (tx *memoryTx) ListStockTransactionsByReference(ctx context.Context, referenceType StockReferenceType, referenceId int) ([]*StockTransaction, error) {
	filter := StockTransactionFilter{ReferenceType: referenceType, ReferenceId: referenceId}
	results, err := tx.store.ListStockTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return append(results, filterTransactions(tx.transactions, filter)...), nil
}

func (tx *memoryTx) FindReversal(ctx context.Context, originalId int) (*StockTransaction, error) {
	reverses := func(t StockTransaction) bool {
		return t.ReversesTransactionId != nil && *t.ReversesTransactionId == originalId
	}
	for _, t := range tx.transactions {
		if reverses(t) {
			return &t, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, t := range tx.store.transactions {
		if reverses(t) {
			return &t, nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func (tx *memoryTx) CreateStockEvent(ctx context.Context, e *StockEvent) error {
	e.ID = tx.store.nextId(&tx.store.lastEventId)
	now := tx.store.now()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.PublishStatus == "" {
		e.PublishStatus = StockEventStatusPending
	}
	c := *e
	tx.events = append(tx.events, &c)
	return nil
}

func (tx *memoryTx) SupplierExists(ctx context.Context, id int) (bool, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.suppliers[id]
	return ok, nil
}

func (tx *memoryTx) assignDetailIds(orderId int, details []OrderDetail) {
	for i := range details {
		details[i].ID = tx.store.nextId(&tx.store.lastDetailId)
		details[i].OrderId = orderId
	}
}

func (tx *memoryTx) CreateOrder(ctx context.Context, o *Order) error {
	o.ID = tx.store.nextId(&tx.store.lastOrderId)
	now := tx.store.now()
	o.CreatedAt, o.UpdatedAt = now, now
	tx.assignDetailIds(o.ID, o.Details)
	tx.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memoryTx) currentOrder(id int) (*Order, error) {
	if tx.deletedOrders[id] {
		return nil, utils.ErrorRecordNotFound
	}
	if o, ok := tx.orders[id]; ok {
		return o, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	o, ok := tx.store.orders[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	if _, seen := tx.orderBase[id]; !seen {
		tx.orderBase[id] = tx.store.orderVersions[id]
	}
	return o.Clone(), nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int) (*Order, error) {
	o, err := tx.currentOrder(id)
	if err != nil {
		return nil, err
	}
	return o.Clone(), nil
}

func (tx *memoryTx) UpdateOrderHeader(ctx context.Context, o *Order) error {
	current, err := tx.currentOrder(o.ID)
	if err != nil {
		return err
	}
	current.SupplierId = o.SupplierId
	current.TotalAmount = o.TotalAmount
	current.UpdatedAt = tx.store.now()
	tx.orders[o.ID] = current
	return nil
}

func (tx *memoryTx) UpdateOrderSupplier(ctx context.Context, id int, supplierId *int) error {
	current, err := tx.currentOrder(id)
	if err != nil {
		return err
	}
	current.SupplierId = supplierId
	current.UpdatedAt = tx.store.now()
	tx.orders[id] = current
	return nil
}

func (tx *memoryTx) ReplaceOrderDetails(ctx context.Context, orderId int, details []OrderDetail) ([]OrderDetail, error) {
	current, err := tx.currentOrder(orderId)
	if err != nil {
		return nil, err
	}
	replaced := append([]OrderDetail(nil), details...)
	tx.assignDetailIds(orderId, replaced)
	current.Details = replaced
	tx.orders[orderId] = current
	return append([]OrderDetail(nil), replaced...), nil
}

func (tx *memoryTx) DeleteOrder(ctx context.Context, id int) error {
	if _, err := tx.currentOrder(id); err != nil {
		return err
	}
	delete(tx.orders, id)
	tx.deletedOrders[id] = true
	return nil
}

func (tx *memoryTx) FindIdempotencyKey(ctx context.Context, scope, key string) (*IdempotencyKey, error) {
	for _, k := range tx.idempotency {
		if k.Scope == scope && k.Key == key {
			return &k, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	k, ok := tx.store.idempotency[idempotencyScopeKey{scope, key}]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return &k, nil
}

func (tx *memoryTx) CreateIdempotencyKey(ctx context.Context, k *IdempotencyKey) error {
	if existing, _ := tx.FindIdempotencyKey(ctx, k.Scope, k.Key); existing != nil {
		return fmt.Errorf("%w: idempotency key %s already used", utils.ErrStockConflict, k.Key)
	}
	k.ID = tx.store.nextId(&tx.store.lastIdemKeyId)
	k.CreatedAt = tx.store.now()
	tx.idempotency = append(tx.idempotency, *k)
	return nil
}
