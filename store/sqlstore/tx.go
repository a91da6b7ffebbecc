package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/folio"
	"github.com/xraph/folio/account"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/shop"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/types"
)

// compile-time interface checks
var (
	_ foliostore.Tx = (*tx)(nil)
)

type tx struct {
	tx *sql.Tx
	s  *DB
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.s.dialect.Rebind(query), args...)
}

func (t *tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.s.dialect.Rebind(query), args...)
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.s.dialect.Rebind(query), args...)
}

// exists reports whether query returns at least one row.
func (t *tx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := t.queryRow(ctx, query, args...).Scan(&one)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ==================== Users ====================

func (t *tx) CreateUser(ctx context.Context, u *account.User) error {
	_, err := t.exec(ctx, `
INSERT INTO folio_users (user_id, password_hash, balance, token, terminal, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.PasswordHash, u.Balance.Int64(), u.Token, u.Terminal,
		toNanos(u.CreatedAt), toNanos(u.UpdatedAt),
	)
	if err != nil {
		if t.s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", folio.ErrUserExists, u.ID)
		}
		return t.s.wrap("create user", err)
	}
	return nil
}

func (t *tx) GetUser(ctx context.Context, userID string) (*account.User, error) {
	var (
		u                account.User
		balance          int64
		created, updated int64
	)
	err := t.queryRow(ctx, `
SELECT user_id, password_hash, balance, token, terminal, created_at, updated_at
FROM folio_users WHERE user_id = ?`, userID).
		Scan(&u.ID, &u.PasswordHash, &balance, &u.Token, &u.Terminal, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
		}
		return nil, t.s.wrap("get user", err)
	}
	u.Balance = types.Money(balance)
	u.CreatedAt, u.UpdatedAt = fromNanos(created), fromNanos(updated)
	return &u, nil
}

func (t *tx) UpdateUserPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	res, err := t.exec(ctx, `UPDATE folio_users SET password_hash = ?, updated_at = ? WHERE user_id = ?`,
		passwordHash, toNanos(at), userID)
	if err != nil {
		return t.s.wrap("update password", err)
	}
	return t.requireRow(res, "update password", fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID))
}

func (t *tx) DeleteUser(ctx context.Context, userID string) error {
	owns, err := t.exists(ctx, `SELECT 1 FROM folio_stores WHERE owner_id = ? LIMIT 1`, userID)
	if err != nil {
		return t.s.wrap("delete user", err)
	}
	if owns {
		return fmt.Errorf("%w: %s", folio.ErrUserInUse, userID)
	}

	res, err := t.exec(ctx, `DELETE FROM folio_users WHERE user_id = ?`, userID)
	if err != nil {
		if t.s.dialect.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", folio.ErrUserInUse, userID)
		}
		return t.s.wrap("delete user", err)
	}
	return t.requireRow(res, "delete user", fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID))
}

func (t *tx) AdjustBalance(ctx context.Context, userID string, delta int64, at time.Time) error {
	res, err := t.exec(ctx, `
UPDATE folio_users SET balance = balance + ?, updated_at = ?
WHERE user_id = ? AND balance + ? >= 0`,
		delta, toNanos(at), userID, delta)
	if err != nil {
		return t.s.wrap("adjust balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return t.s.wrap("adjust balance", err)
	}
	if n > 0 {
		return nil
	}

	found, err := t.exists(ctx, `SELECT 1 FROM folio_users WHERE user_id = ?`, userID)
	if err != nil {
		return t.s.wrap("adjust balance", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
	}
	return fmt.Errorf("%w: %s", folio.ErrInsufficientFunds, userID)
}

// ==================== Books ====================

func (t *tx) EnsureBook(ctx context.Context, b *catalog.Book) error {
	tags, err := json.Marshal(b.Tags)
	if err != nil {
		return fmt.Errorf("%s: encode tags: %w", t.s.dialect.Name(), err)
	}
	_, err = t.exec(ctx, `
INSERT INTO folio_books (book_id, title, author, publisher, isbn, tags, price, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (book_id) DO NOTHING`,
		b.ID, b.Title, b.Author, b.Publisher, b.ISBN, string(tags), b.Price.Int64(),
		toNanos(b.CreatedAt), toNanos(b.UpdatedAt),
	)
	if err != nil {
		return t.s.wrap("ensure book", err)
	}
	return nil
}

func (t *tx) GetBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	var (
		b                catalog.Book
		tags             string
		price            int64
		created, updated int64
	)
	err := t.queryRow(ctx, `
SELECT book_id, title, author, publisher, isbn, tags, price, created_at, updated_at
FROM folio_books WHERE book_id = ?`, bookID).
		Scan(&b.ID, &b.Title, &b.Author, &b.Publisher, &b.ISBN, &tags, &price, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrBookNotFound, bookID)
		}
		return nil, t.s.wrap("get book", err)
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
			return nil, fmt.Errorf("%s: decode tags for %s: %w", t.s.dialect.Name(), bookID, err)
		}
	}
	b.Price = types.Money(price)
	b.CreatedAt, b.UpdatedAt = fromNanos(created), fromNanos(updated)
	return &b, nil
}

// ==================== Shops ====================

func (t *tx) CreateShop(ctx context.Context, sh *shop.Shop) error {
	_, err := t.exec(ctx, `
INSERT INTO folio_stores (store_id, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sh.ID, sh.OwnerID, toNanos(sh.CreatedAt), toNanos(sh.UpdatedAt))
	if err != nil {
		switch {
		case t.s.dialect.IsUniqueViolation(err):
			return fmt.Errorf("%w: %s", folio.ErrStoreExists, sh.ID)
		case t.s.dialect.IsForeignKeyViolation(err):
			return fmt.Errorf("%w: %s", folio.ErrUserNotFound, sh.OwnerID)
		}
		return t.s.wrap("create store", err)
	}

	for _, item := range sh.Inventory {
		if err := t.AddInventory(ctx, sh.ID, item.BookID, item.StockLevel); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) GetShop(ctx context.Context, shopID string) (*shop.Shop, error) {
	var (
		sh               shop.Shop
		created, updated int64
	)
	err := t.queryRow(ctx, `
SELECT store_id, owner_id, created_at, updated_at FROM folio_stores WHERE store_id = ?`, shopID).
		Scan(&sh.ID, &sh.OwnerID, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrStoreNotFound, shopID)
		}
		return nil, t.s.wrap("get store", err)
	}
	sh.CreatedAt, sh.UpdatedAt = fromNanos(created), fromNanos(updated)

	rows, err := t.query(ctx, `
SELECT book_id, stock_level FROM folio_store_inventory WHERE store_id = ? ORDER BY position`, shopID)
	if err != nil {
		return nil, t.s.wrap("get store inventory", err)
	}
	defer rows.Close()

	sh.Inventory = make([]shop.Item, 0)
	for rows.Next() {
		var item shop.Item
		if err := rows.Scan(&item.BookID, &item.StockLevel); err != nil {
			return nil, t.s.wrap("scan inventory", err)
		}
		sh.Inventory = append(sh.Inventory, item)
	}
	if err := rows.Err(); err != nil {
		return nil, t.s.wrap("get store inventory", err)
	}
	return &sh, nil
}

func (t *tx) AddInventory(ctx context.Context, shopID, bookID string, stock int64) error {
	found, err := t.exists(ctx, `SELECT 1 FROM folio_stores WHERE store_id = ?`, shopID)
	if err != nil {
		return t.s.wrap("add inventory", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", folio.ErrStoreNotFound, shopID)
	}

	_, err = t.exec(ctx, `
INSERT INTO folio_store_inventory (store_id, book_id, stock_level, position)
VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM folio_store_inventory WHERE store_id = ?))`,
		shopID, bookID, stock, shopID)
	if err != nil {
		if t.s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s in %s", folio.ErrBookExists, bookID, shopID)
		}
		return t.s.wrap("add inventory", err)
	}
	return nil
}

func (t *tx) AdjustStock(ctx context.Context, shopID, bookID string, delta int64) error {
	res, err := t.exec(ctx, `
UPDATE folio_store_inventory SET stock_level = stock_level + ?
WHERE store_id = ? AND book_id = ? AND stock_level + ? >= 0`,
		delta, shopID, bookID, delta)
	if err != nil {
		return t.s.wrap("adjust stock", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return t.s.wrap("adjust stock", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing matched: report which precondition failed.
	found, err := t.exists(ctx, `SELECT 1 FROM folio_stores WHERE store_id = ?`, shopID)
	if err != nil {
		return t.s.wrap("adjust stock", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", folio.ErrStoreNotFound, shopID)
	}
	listed, err := t.exists(ctx,
		`SELECT 1 FROM folio_store_inventory WHERE store_id = ? AND book_id = ?`, shopID, bookID)
	if err != nil {
		return t.s.wrap("adjust stock", err)
	}
	if !listed {
		return fmt.Errorf("%w: %s in %s", folio.ErrBookNotFound, bookID, shopID)
	}
	return fmt.Errorf("%w: %s in %s", folio.ErrInsufficientStock, bookID, shopID)
}

// ==================== Orders ====================

func (t *tx) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.exec(ctx, `
INSERT INTO folio_orders (order_id, store_id, buyer_id, total_price, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ShopID, o.BuyerID, o.Total.Int64(), int64(o.Status),
		toNanos(o.CreatedAt), toNanos(o.UpdatedAt),
	)
	if err != nil {
		if t.s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate order %s", folio.ErrInvalidOrderID, o.ID)
		}
		return t.s.wrap("create order", err)
	}

	for _, l := range o.Lines {
		_, err := t.exec(ctx, `
INSERT INTO folio_order_details (order_id, book_id, count, unit_price) VALUES (?, ?, ?, ?)`,
			o.ID, l.BookID, l.Count, l.UnitPrice.Int64())
		if err != nil {
			return t.s.wrap("create order line", err)
		}
	}
	return nil
}

const orderColumns = `order_id, store_id, buyer_id, total_price, status, created_at, updated_at`

func scanOrder(scan func(dest ...any) error) (*order.Order, error) {
	var (
		o                order.Order
		total, status    int64
		created, updated int64
	)
	if err := scan(&o.ID, &o.ShopID, &o.BuyerID, &total, &status, &created, &updated); err != nil {
		return nil, err
	}
	o.Total = types.Money(total)
	o.Status = order.Status(status)
	o.CreatedAt, o.UpdatedAt = fromNanos(created), fromNanos(updated)
	o.Lines = make([]order.Line, 0)
	return &o, nil
}

func (t *tx) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := scanOrder(t.queryRow(ctx,
		`SELECT `+orderColumns+` FROM folio_orders WHERE order_id = ?`+t.s.dialect.ForUpdate(), orderID).Scan)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrInvalidOrderID, orderID)
		}
		return nil, t.s.wrap("get order", err)
	}

	lines, err := t.loadLines(ctx, `WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	o.Lines = append(o.Lines, lines[orderID]...)
	return o, nil
}

// loadLines fetches order lines matching where, grouped by order id.
func (t *tx) loadLines(ctx context.Context, where string, args ...any) (map[string][]order.Line, error) {
	rows, err := t.query(ctx, `
SELECT order_id, book_id, count, unit_price FROM folio_order_details `+where+` ORDER BY order_id, book_id`, args...)
	if err != nil {
		return nil, t.s.wrap("load order lines", err)
	}
	defer rows.Close()

	result := make(map[string][]order.Line)
	for rows.Next() {
		var (
			l     order.Line
			price int64
		)
		if err := rows.Scan(&l.OrderID, &l.BookID, &l.Count, &price); err != nil {
			return nil, t.s.wrap("scan order line", err)
		}
		l.UnitPrice = types.Money(price)
		result[l.OrderID] = append(result[l.OrderID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, t.s.wrap("load order lines", err)
	}
	return result, nil
}

func (t *tx) TransitionOrder(ctx context.Context, orderID string, from []order.Status, to order.Status, at time.Time) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: no source states for %s", folio.ErrInvalidInput, orderID)
	}

	args := make([]any, 0, len(from)+3)
	args = append(args, int64(to), toNanos(at), orderID)
	for _, s := range from {
		args = append(args, int64(s))
	}

	res, err := t.exec(ctx, `
UPDATE folio_orders SET status = ?, updated_at = ?
WHERE order_id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return t.s.wrap("transition order", err)
	}
	return t.requireRow(res, "transition order", fmt.Errorf("%w: %s", folio.ErrInvalidOrderID, orderID))
}

func (t *tx) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	rows, err := t.query(ctx,
		`SELECT `+orderColumns+` FROM folio_orders WHERE buyer_id = ? ORDER BY created_at, order_id`, buyerID)
	if err != nil {
		return nil, t.s.wrap("list orders", err)
	}
	defer rows.Close()

	orders := make([]*order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, t.s.wrap("scan order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, t.s.wrap("list orders", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	lines, err := t.loadLines(ctx,
		`WHERE order_id IN (SELECT order_id FROM folio_orders WHERE buyer_id = ?)`, buyerID)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Lines = append(o.Lines, lines[o.ID]...)
	}
	return orders, nil
}

func (t *tx) ListExpiredOrders(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	q := `SELECT order_id FROM folio_orders WHERE status = ? AND created_at <= ? ORDER BY created_at, order_id`
	args := []any{int64(order.StatusCreated), toNanos(cutoff)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, t.s.wrap("list expired orders", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			return nil, t.s.wrap("scan expired order", err)
		}
		ids = append(ids, orderID)
	}
	if err := rows.Err(); err != nil {
		return nil, t.s.wrap("list expired orders", err)
	}
	return ids, nil
}

// ==================== Settlements ====================

func (t *tx) RecordSettlement(ctx context.Context, e *settlement.Entry) error {
	_, err := t.exec(ctx, `
INSERT INTO folio_settlements (entry_id, order_id, kind, from_user, to_user, amount, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.OrderID, string(e.Kind), e.FromUserID, e.ToUserID, e.Amount.Int64(), toNanos(e.CreatedAt))
	if err != nil {
		return t.s.wrap("record settlement", err)
	}
	return nil
}

func (t *tx) ListSettlements(ctx context.Context, orderID string) ([]*settlement.Entry, error) {
	rows, err := t.query(ctx, `
SELECT entry_id, order_id, kind, from_user, to_user, amount, created_at
FROM folio_settlements WHERE order_id = ? ORDER BY created_at, entry_id`, orderID)
	if err != nil {
		return nil, t.s.wrap("list settlements", err)
	}
	defer rows.Close()

	entries := make([]*settlement.Entry, 0)
	for rows.Next() {
		var (
			e       settlement.Entry
			entryID string
			kind    string
			amount  int64
			created int64
		)
		if err := rows.Scan(&entryID, &e.OrderID, &kind, &e.FromUserID, &e.ToUserID, &amount, &created); err != nil {
			return nil, t.s.wrap("scan settlement", err)
		}
		if e.ID, err = id.ParseSettlementID(entryID); err != nil {
			return nil, t.s.wrap("scan settlement", err)
		}
		e.Kind = settlement.Kind(kind)
		e.Amount = types.Money(amount)
		e.CreatedAt = fromNanos(created)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, t.s.wrap("list settlements", err)
	}
	return entries, nil
}

// requireRow returns notFound when res affected no rows.
func (t *tx) requireRow(res sql.Result, op string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return t.s.wrap(op, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
