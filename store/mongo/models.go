package mongo

import (
	"time"

	"github.com/xraph/folio/account"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/id"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/shop"
	"github.com/xraph/folio/types"
)

// Timestamps are stored as unix nanoseconds; BSON dates only keep
// milliseconds.

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// ==================== User models ====================

type userModel struct {
	ID           string `bson:"_id"`
	PasswordHash string `bson:"password_hash"`
	Balance      int64  `bson:"balance"`
	Token        string `bson:"token"`
	Terminal     string `bson:"terminal"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
}

func toUserModel(u *account.User) *userModel {
	return &userModel{
		ID:           u.ID,
		PasswordHash: u.PasswordHash,
		Balance:      u.Balance.Int64(),
		Token:        u.Token,
		Terminal:     u.Terminal,
		CreatedAt:    toNanos(u.CreatedAt),
		UpdatedAt:    toNanos(u.UpdatedAt),
	}
}

func fromUserModel(m *userModel) *account.User {
	return &account.User{
		Entity:       types.Entity{CreatedAt: fromNanos(m.CreatedAt), UpdatedAt: fromNanos(m.UpdatedAt)},
		ID:           m.ID,
		PasswordHash: m.PasswordHash,
		Balance:      types.Money(m.Balance),
		Token:        m.Token,
		Terminal:     m.Terminal,
	}
}

// ==================== Book models ====================

type bookModel struct {
	ID        string   `bson:"_id"`
	Title     string   `bson:"title"`
	Author    string   `bson:"author"`
	Publisher string   `bson:"publisher"`
	ISBN      string   `bson:"isbn"`
	Tags      []string `bson:"tags"`
	Price     int64    `bson:"price"`
	CreatedAt int64    `bson:"created_at"`
	UpdatedAt int64    `bson:"updated_at"`
}

func toBookModel(b *catalog.Book) *bookModel {
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}
	return &bookModel{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Publisher: b.Publisher,
		ISBN:      b.ISBN,
		Tags:      tags,
		Price:     b.Price.Int64(),
		CreatedAt: toNanos(b.CreatedAt),
		UpdatedAt: toNanos(b.UpdatedAt),
	}
}

func fromBookModel(m *bookModel) *catalog.Book {
	return &catalog.Book{
		Entity:    types.Entity{CreatedAt: fromNanos(m.CreatedAt), UpdatedAt: fromNanos(m.UpdatedAt)},
		ID:        m.ID,
		Title:     m.Title,
		Author:    m.Author,
		Publisher: m.Publisher,
		ISBN:      m.ISBN,
		Tags:      m.Tags,
		Price:     types.Money(m.Price),
	}
}

// ==================== Shop models ====================

type shopModel struct {
	ID        string          `bson:"_id"`
	OwnerID   string          `bson:"owner_id"`
	Inventory []inventoryItem `bson:"inventory"`
	CreatedAt int64           `bson:"created_at"`
	UpdatedAt int64           `bson:"updated_at"`
}

type inventoryItem struct {
	BookID     string `bson:"book_id"`
	StockLevel int64  `bson:"stock_level"`
}

func toShopModel(s *shop.Shop) *shopModel {
	items := make([]inventoryItem, len(s.Inventory))
	for i, it := range s.Inventory {
		items[i] = inventoryItem{BookID: it.BookID, StockLevel: it.StockLevel}
	}
	return &shopModel{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Inventory: items,
		CreatedAt: toNanos(s.CreatedAt),
		UpdatedAt: toNanos(s.UpdatedAt),
	}
}

func fromShopModel(m *shopModel) *shop.Shop {
	items := make([]shop.Item, len(m.Inventory))
	for i, it := range m.Inventory {
		items[i] = shop.Item{BookID: it.BookID, StockLevel: it.StockLevel}
	}
	return &shop.Shop{
		Entity:    types.Entity{CreatedAt: fromNanos(m.CreatedAt), UpdatedAt: fromNanos(m.UpdatedAt)},
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Inventory: items,
	}
}

// ==================== Order models ====================

type orderModel struct {
	ID         string      `bson:"_id"`
	ShopID     string      `bson:"store_id"`
	BuyerID    string      `bson:"buyer_id"`
	TotalPrice int64       `bson:"total_price"`
	Status     int32       `bson:"status"`
	Lines      []lineModel `bson:"lines"`
	CreatedAt  int64       `bson:"created_at"`
	UpdatedAt  int64       `bson:"updated_at"`
}

type lineModel struct {
	BookID    string `bson:"book_id"`
	Count     int64  `bson:"count"`
	UnitPrice int64  `bson:"unit_price"`
}

func toOrderModel(o *order.Order) *orderModel {
	lines := make([]lineModel, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = lineModel{BookID: l.BookID, Count: l.Count, UnitPrice: l.UnitPrice.Int64()}
	}
	return &orderModel{
		ID:         o.ID,
		ShopID:     o.ShopID,
		BuyerID:    o.BuyerID,
		TotalPrice: o.Total.Int64(),
		Status:     int32(o.Status),
		Lines:      lines,
		CreatedAt:  toNanos(o.CreatedAt),
		UpdatedAt:  toNanos(o.UpdatedAt),
	}
}

func fromOrderModel(m *orderModel) *order.Order {
	lines := make([]order.Line, len(m.Lines))
	for i, l := range m.Lines {
		lines[i] = order.Line{
			OrderID:   m.ID,
			BookID:    l.BookID,
			Count:     l.Count,
			UnitPrice: types.Money(l.UnitPrice),
		}
	}
	return &order.Order{
		Entity:  types.Entity{CreatedAt: fromNanos(m.CreatedAt), UpdatedAt: fromNanos(m.UpdatedAt)},
		ID:      m.ID,
		ShopID:  m.ShopID,
		BuyerID: m.BuyerID,
		Total:   types.Money(m.TotalPrice),
		Status:  order.Status(m.Status),
		Lines:   lines,
	}
}

// ==================== Settlement models ====================

type settlementModel struct {
	ID         string `bson:"_id"`
	OrderID    string `bson:"order_id"`
	Kind       string `bson:"kind"`
	FromUserID string `bson:"from_user"`
	ToUserID   string `bson:"to_user"`
	Amount     int64  `bson:"amount"`
	CreatedAt  int64  `bson:"created_at"`
}

func toSettlementModel(e *settlement.Entry) *settlementModel {
	return &settlementModel{
		ID:         e.ID.String(),
		OrderID:    e.OrderID,
		Kind:       string(e.Kind),
		FromUserID: e.FromUserID,
		ToUserID:   e.ToUserID,
		Amount:     e.Amount.Int64(),
		CreatedAt:  toNanos(e.CreatedAt),
	}
}

func fromSettlementModel(m *settlementModel) (*settlement.Entry, error) {
	entryID, err := id.ParseSettlementID(m.ID)
	if err != nil {
		return nil, err
	}
	return &settlement.Entry{
		ID:         entryID,
		OrderID:    m.OrderID,
		Kind:       settlement.Kind(m.Kind),
		FromUserID: m.FromUserID,
		ToUserID:   m.ToUserID,
		Amount:     types.Money(m.Amount),
		CreatedAt:  fromNanos(m.CreatedAt),
	}, nil
}
