// Package order defines orders, their lines and the status state machine.
package order

import (
	"fmt"
	"slices"
	"sort"

	"github.com/xraph/folio/types"
)

// Status is the lifecycle state of an order. The numeric values are
// persisted and must not be reordered.
type Status int8

const (
	StatusCreated   Status = 0
	StatusPaid      Status = 1
	StatusShipped   Status = 2
	StatusReceived  Status = 3
	StatusCancelled Status = 4
)

// PaidFamily lists the states reached after a successful payment.
var PaidFamily = []Status{StatusPaid, StatusShipped, StatusReceived}

// Cancellable lists every state an order may be cancelled from.
var Cancellable = Sources(StatusCancelled)

// String returns the human-readable label shown in order history.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "unpaid"
	case StatusPaid:
		return "unsent"
	case StatusShipped:
		return "sent but not received"
	case StatusReceived:
		return "received"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int8(s))
	}
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	return s >= StatusCreated && s <= StatusCancelled
}

// IsPaid reports whether a payment has settled for the order.
func (s Status) IsPaid() bool {
	return slices.Contains(PaidFamily, s)
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusPaid:
		return from == StatusCreated
	case StatusShipped:
		return from == StatusPaid
	case StatusReceived:
		return from == StatusShipped
	case StatusCancelled:
		return from != StatusCancelled && from.Valid()
	default:
		return false
	}
}

// Sources returns the states that may move to to, in ascending order.
func Sources(to Status) []Status {
	var from []Status
	for s := StatusCreated; s <= StatusCancelled; s++ {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

type Order struct {
	types.Entity
	ID      string      `json:"order_id"`
	ShopID  string      `json:"store_id"`
	BuyerID string      `json:"buyer_id"`
	Total   types.Money `json:"total_price"`
	Status  Status      `json:"status"`
	Lines   []Line      `json:"lines"`
}

// Line is one book within an order. UnitPrice is a snapshot of the catalog
// price at creation time.
type Line struct {
	OrderID   string      `json:"order_id"`
	BookID    string      `json:"book_id"`
	Count     int64       `json:"count"`
	UnitPrice types.Money `json:"unit_price"`
}

// Amount returns UnitPrice × Count.
func (l Line) Amount() types.Money {
	return l.UnitPrice.Multiply(l.Count)
}

// LinesTotal sums the amounts of all lines.
func (o *Order) LinesTotal() types.Money {
	var total types.Money
	for _, l := range o.Lines {
		total = total.Add(l.Amount())
	}
	return total
}

// Item is a requested (book, count) pair for a new order.
type Item struct {
	BookID string `json:"book_id"`
	Count  int64  `json:"count"`
}

// MergeItems folds duplicate book ids together and returns the items
// sorted by book id, which is the order inventory rows are locked in.
func MergeItems(items []Item) []Item {
	counts := make(map[string]int64, len(items))
	for _, it := range items {
		counts[it.BookID] += it.Count
	}

	merged := make([]Item, 0, len(counts))
	for bookID, n := range counts {
		merged = append(merged, Item{BookID: bookID, Count: n})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].BookID < merged[j].BookID })
	return merged
}
