// Package memory is an in-process store.Store used for tests and
// single-node development. A unit of work holds the store mutex for its
// whole duration, so transactions are fully serialized; an undo log rolls
// back every mutation when the unit fails.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/folio"
	"github.com/xraph/folio/account"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/shop"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/types"
)

// compile-time interface checks
var (
	_ foliostore.Store = (*Store)(nil)
	_ foliostore.Tx    = (*tx)(nil)
)

type Store struct {
	mu sync.Mutex

	users       map[string]*account.User
	books       map[string]*catalog.Book
	shops       map[string]*shop.Shop
	orders      map[string]*order.Order
	settlements map[string][]*settlement.Entry
}

func New() *Store {
	return &Store{
		users:       make(map[string]*account.User),
		books:       make(map[string]*catalog.Book),
		shops:       make(map[string]*shop.Shop),
		orders:      make(map[string]*order.Order),
		settlements: make(map[string][]*settlement.Entry),
	}
}

// RunInTx implements store.Store.
func (s *Store) RunInTx(ctx context.Context, fn foliostore.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s}
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

// tx is only used while RunInTx holds s.mu.
type tx struct {
	s    *Store
	undo []func()
}

func (t *tx) onRollback(fn func()) { t.undo = append(t.undo, fn) }

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// ==================== Users ====================

func (t *tx) CreateUser(_ context.Context, u *account.User) error {
	if _, ok := t.s.users[u.ID]; ok {
		return fmt.Errorf("%w: %s", folio.ErrUserExists, u.ID)
	}
	cp := *u
	t.s.users[u.ID] = &cp
	t.onRollback(func() { delete(t.s.users, u.ID) })
	return nil
}

func (t *tx) GetUser(_ context.Context, userID string) (*account.User, error) {
	u, ok := t.s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
	}
	cp := *u
	return &cp, nil
}

func (t *tx) UpdateUserPassword(_ context.Context, userID, passwordHash string, at time.Time) error {
	u, ok := t.s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
	}
	prev := *u
	u.PasswordHash = passwordHash
	u.Touch(at)
	t.onRollback(func() { *u = prev })
	return nil
}

func (t *tx) DeleteUser(_ context.Context, userID string) error {
	u, ok := t.s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
	}
	for _, sh := range t.s.shops {
		if sh.OwnerID == userID {
			return fmt.Errorf("%w: %s owns %s", folio.ErrUserInUse, userID, sh.ID)
		}
	}
	delete(t.s.users, userID)
	t.onRollback(func() { t.s.users[userID] = u })
	return nil
}

func (t *tx) AdjustBalance(_ context.Context, userID string, delta int64, at time.Time) error {
	u, ok := t.s.users[userID]
	if !ok {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
	}
	if u.Balance.Int64()+delta < 0 {
		return fmt.Errorf("%w: %s", folio.ErrInsufficientFunds, userID)
	}
	prev := *u
	u.Balance = u.Balance.Add(types.Money(delta))
	u.Touch(at)
	t.onRollback(func() { *u = prev })
	return nil
}

// ==================== Books ====================

func (t *tx) EnsureBook(_ context.Context, b *catalog.Book) error {
	if _, ok := t.s.books[b.ID]; ok {
		return nil
	}
	cp := *b
	cp.Tags = append([]string(nil), b.Tags...)
	t.s.books[b.ID] = &cp
	t.onRollback(func() { delete(t.s.books, b.ID) })
	return nil
}

func (t *tx) GetBook(_ context.Context, bookID string) (*catalog.Book, error) {
	b, ok := t.s.books[bookID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", folio.ErrBookNotFound, bookID)
	}
	cp := *b
	cp.Tags = append([]string(nil), b.Tags...)
	return &cp, nil
}

// ==================== Shops ====================

func (t *tx) CreateShop(_ context.Context, sh *shop.Shop) error {
	if _, ok := t.s.users[sh.OwnerID]; !ok {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, sh.OwnerID)
	}
	if _, ok := t.s.shops[sh.ID]; ok {
		return fmt.Errorf("%w: %s", folio.ErrStoreExists, sh.ID)
	}
	cp := *sh
	cp.Inventory = append([]shop.Item(nil), sh.Inventory...)
	t.s.shops[sh.ID] = &cp
	t.onRollback(func() { delete(t.s.shops, sh.ID) })
	return nil
}

func (t *tx) GetShop(_ context.Context, shopID string) (*shop.Shop, error) {
	sh, ok := t.s.shops[shopID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", folio.ErrStoreNotFound, shopID)
	}
	cp := *sh
	cp.Inventory = append([]shop.Item(nil), sh.Inventory...)
	return &cp, nil
}

func (t *tx) AddInventory(_ context.Context, shopID, bookID string, stock int64) error {
	sh, ok := t.s.shops[shopID]
	if !ok {
		return fmt.Errorf("%w: %s", folio.ErrStoreNotFound, shopID)
	}
	if sh.Find(bookID) != nil {
		return fmt.Errorf("%w: %s in %s", folio.ErrBookExists, bookID, shopID)
	}
	prev := sh.Inventory
	sh.Inventory = append(append([]shop.Item(nil), prev...), shop.Item{BookID: bookID, StockLevel: stock})
	t.onRollback(func() { sh.Inventory = prev })
	return nil
}

func (t *tx) AdjustStock(_ context.Context, shopID, bookID string, delta int64) error {
	sh, ok := t.s.shops[shopID]
	if !ok {
		return fmt.Errorf("%w: %s", folio.ErrStoreNotFound, shopID)
	}
	item := sh.Find(bookID)
	if item == nil {
		return fmt.Errorf("%w: %s in %s", folio.ErrBookNotFound, bookID, shopID)
	}
	if item.StockLevel+delta < 0 {
		return fmt.Errorf("%w: %s in %s", folio.ErrInsufficientStock, bookID, shopID)
	}
	item.StockLevel += delta
	t.onRollback(func() {
		if it := sh.Find(bookID); it != nil {
			it.StockLevel -= delta
		}
	})
	return nil
}

// ==================== Orders ====================

func (t *tx) CreateOrder(_ context.Context, o *order.Order) error {
	if _, ok := t.s.orders[o.ID]; ok {
		return fmt.Errorf("%w: duplicate order %s", folio.ErrInvalidOrderID, o.ID)
	}
	t.s.orders[o.ID] = cloneOrder(o)
	t.onRollback(func() { delete(t.s.orders, o.ID) })
	return nil
}

func (t *tx) GetOrder(_ context.Context, orderID string) (*order.Order, error) {
	o, ok := t.s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", folio.ErrInvalidOrderID, orderID)
	}
	return cloneOrder(o), nil
}

func (t *tx) TransitionOrder(_ context.Context, orderID string, from []order.Status, to order.Status, at time.Time) error {
	o, ok := t.s.orders[orderID]
	if !ok || !statusIn(o.Status, from) {
		return fmt.Errorf("%w: %s", folio.ErrInvalidOrderID, orderID)
	}
	prev := o.Entity
	prevStatus := o.Status
	o.Status = to
	o.Touch(at)
	t.onRollback(func() {
		o.Status = prevStatus
		o.Entity = prev
	})
	return nil
}

func (t *tx) ListOrdersByBuyer(_ context.Context, buyerID string) ([]*order.Order, error) {
	result := make([]*order.Order, 0)
	for _, o := range t.s.orders {
		if o.BuyerID == buyerID {
			result = append(result, cloneOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (t *tx) ListExpiredOrders(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	expired := make([]*order.Order, 0)
	for _, o := range t.s.orders {
		if o.Status == order.StatusCreated && !o.CreatedAt.After(cutoff) {
			expired = append(expired, o)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })

	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	ids := make([]string, len(expired))
	for i, o := range expired {
		ids[i] = o.ID
	}
	return ids, nil
}

// ==================== Settlements ====================

func (t *tx) RecordSettlement(_ context.Context, e *settlement.Entry) error {
	cp := *e
	prev := t.s.settlements[e.OrderID]
	t.s.settlements[e.OrderID] = append(append([]*settlement.Entry(nil), prev...), &cp)
	t.onRollback(func() {
		if len(prev) == 0 {
			delete(t.s.settlements, e.OrderID)
			return
		}
		t.s.settlements[e.OrderID] = prev
	})
	return nil
}

func (t *tx) ListSettlements(_ context.Context, orderID string) ([]*settlement.Entry, error) {
	entries := t.s.settlements[orderID]
	result := make([]*settlement.Entry, len(entries))
	for i, e := range entries {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

// ==================== Helpers ====================

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Lines = append([]order.Line(nil), o.Lines...)
	return &cp
}

func statusIn(s order.Status, set []order.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
