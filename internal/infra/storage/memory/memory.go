package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
)

type MemoryStorage struct {
	cursors     map[string]*domain.Cursor
	accounts    map[string]*domain.Account
	orders      map[string]*Order
	orderEvents map[domain.Position]*domain.OrderCreated
	stakes      map[string]*domain.Stake
	fees        map[string]*domain.StorageFee
	skipped     map[string]*domain.SkippedEvent
	mu          sync.RWMutex
}

// Order is the stored shape of an order row.
type Order struct {
	RecordUID string
	Status    string
	OrderID   int64
	TxnHash   string
	Event     domain.OrderCreated
	Draft     bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		cursors:     make(map[string]*domain.Cursor),
		accounts:    make(map[string]*domain.Account),
		orders:      make(map[string]*Order),
		orderEvents: make(map[domain.Position]*domain.OrderCreated),
		stakes:      make(map[string]*domain.Stake),
		fees:        make(map[string]*domain.StorageFee),
		skipped:     make(map[string]*domain.SkippedEvent),
	}
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, stream string) (*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.cursors[stream]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *CursorRepo) Save(ctx context.Context, cursor *domain.Cursor) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if cur, ok := r.store.cursors[cursor.Stream]; ok && !cursor.Position.After(cur.Position) {
		return nil
	}
	cp := *cursor
	cp.UpdatedAt = time.Now()
	r.store.cursors[cursor.Stream] = &cp
	return nil
}

func (r *CursorRepo) Reset(ctx context.Context, stream string, pos domain.Position) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cursors[stream] = &domain.Cursor{Stream: stream, Position: pos, UpdatedAt: time.Now()}
	return nil
}

func (r *CursorRepo) List(ctx context.Context) ([]*domain.Cursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Cursor, 0, len(r.store.cursors))
	for _, c := range r.store.cursors {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Account Repository
// -----------------------------------------------------------------------------

type AccountRepo struct {
	store *MemoryStorage
}

func NewAccountRepo(store *MemoryStorage) *AccountRepo {
	return &AccountRepo{store: store}
}

func (r *AccountRepo) Upsert(ctx context.Context, account *domain.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if cur, ok := r.store.accounts[account.Address]; ok && !account.Position.After(cur.Position) {
		return nil
	}
	cp := *account
	r.store.accounts[account.Address] = &cp
	return nil
}

// Get returns a stored account by address.
func (r *AccountRepo) Get(address string) (*domain.Account, bool) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	a, ok := r.store.accounts[address]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// Count returns the number of stored accounts.
func (r *AccountRepo) Count() int {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.accounts)
}

// -----------------------------------------------------------------------------
// Order Repository
// -----------------------------------------------------------------------------

type OrderRepo struct {
	store *MemoryStorage
}

func NewOrderRepo(store *MemoryStorage) *OrderRepo {
	return &OrderRepo{store: store}
}

// AddDraft seeds a draft order created off chain with a known transaction hash.
func (r *OrderRepo) AddDraft(recordUID, txnHash string) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.orders[recordUID] = &Order{RecordUID: recordUID, Status: "PENDING", TxnHash: txnHash, Draft: true}
}

func (r *OrderRepo) ApplyOrderCreated(ctx context.Context, order *domain.OrderCreated) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	merged := false
	if order.HasRealHash() {
		for _, o := range r.store.orders {
			if o.TxnHash == order.TxnHash {
				o.Status = domain.OrderStatusOnchainCreated
				o.OrderID = order.OrderID
				o.Event = *order
				merged = true
				break
			}
		}
	}
	if !merged {
		uid := order.RecordUID()
		r.store.orders[uid] = &Order{
			RecordUID: uid,
			Status:    domain.OrderStatusOnchainCreated,
			OrderID:   order.OrderID,
			TxnHash:   order.TxnHash,
			Event:     *order,
		}
	}

	if _, ok := r.store.orderEvents[order.Position]; !ok {
		cp := *order
		r.store.orderEvents[order.Position] = &cp
	}
	return nil
}

// Orders returns a snapshot of stored orders.
func (r *OrderRepo) Orders() []Order {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]Order, 0, len(r.store.orders))
	for _, o := range r.store.orders {
		out = append(out, *o)
	}
	return out
}

// EventCount returns the number of order log entries.
func (r *OrderRepo) EventCount() int {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.orderEvents)
}

// -----------------------------------------------------------------------------
// Staking Repository
// -----------------------------------------------------------------------------

type StakingRepo struct {
	store *MemoryStorage
}

func NewStakingRepo(store *MemoryStorage) *StakingRepo {
	return &StakingRepo{store: store}
}

func (r *StakingRepo) UpsertStake(ctx context.Context, stake *domain.Stake) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if cur, ok := r.store.stakes[stake.WarehouseAddress]; ok && !stake.Position.After(cur.Position) {
		return nil
	}
	cp := *stake
	r.store.stakes[stake.WarehouseAddress] = &cp
	return nil
}

func (r *StakingRepo) UpsertFee(ctx context.Context, fee *domain.StorageFee) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if cur, ok := r.store.fees[fee.WarehouseAddress]; ok && !fee.Position.After(cur.Position) {
		return nil
	}
	cp := *fee
	r.store.fees[fee.WarehouseAddress] = &cp
	return nil
}

// Stake returns the stored stake of a warehouse.
func (r *StakingRepo) Stake(warehouse string) (*domain.Stake, bool) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.stakes[warehouse]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Fee returns the stored storage fee of a warehouse.
func (r *StakingRepo) Fee(warehouse string) (*domain.StorageFee, bool) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	f, ok := r.store.fees[warehouse]
	if !ok {
		return nil, false
	}
	cp := *f
	return &cp, true
}

// -----------------------------------------------------------------------------
// Skipped Event Repository
// -----------------------------------------------------------------------------

type SkippedRepo struct {
	store *MemoryStorage
}

func NewSkippedRepo(store *MemoryStorage) *SkippedRepo {
	return &SkippedRepo{store: store}
}

func skippedKey(ev *domain.SkippedEvent) string {
	return ev.Stream + "/" + ev.Key()
}

func (r *SkippedRepo) Add(ctx context.Context, ev *domain.SkippedEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := skippedKey(ev)
	if _, ok := r.store.skipped[key]; ok {
		return nil
	}
	cp := *ev
	r.store.skipped[key] = &cp
	return nil
}

func (r *SkippedRepo) Count(ctx context.Context, stream string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := 0
	for _, ev := range r.store.skipped {
		if ev.Stream == stream {
			n++
		}
	}
	return n, nil
}

func (r *SkippedRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for key, ev := range r.store.skipped {
		if ev.CreatedAt.Before(threshold) {
			delete(r.store.skipped, key)
			n++
		}
	}
	return n, nil
}
