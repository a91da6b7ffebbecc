package order

import (
	"sort"

	"github.com/xraph/folio/types"
)

// NoOrdersFound is the History message for a buyer without orders.
const NoOrdersFound = "No orders found"

// History is a buyer's order list annotated for display.
type History struct {
	UserID  string  `json:"user_id"`
	Orders  []Entry `json:"orders"`
	Message string  `json:"message,omitempty"`
}

// Empty reports whether the buyer has no orders at all.
func (h *History) Empty() bool { return len(h.Orders) == 0 }

type Entry struct {
	OrderID    string      `json:"order_id"`
	ShopID     string      `json:"store_id"`
	Status     Status      `json:"status"`
	StatusText string      `json:"status_text"`
	Total      types.Money `json:"total_price"`
	Lines      []Line      `json:"lines"`
}

// historyGroup orders unpaid first, then settled orders, then cancelled.
func historyGroup(s Status) int {
	switch {
	case s == StatusCreated:
		return 0
	case s.IsPaid():
		return 1
	default:
		return 2
	}
}

// NewHistory builds the annotated history for userID from its orders.
func NewHistory(userID string, orders []*Order) *History {
	sorted := make([]*Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		gi, gj := historyGroup(sorted[i].Status), historyGroup(sorted[j].Status)
		if gi != gj {
			return gi < gj
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	h := &History{UserID: userID, Orders: make([]Entry, 0, len(sorted))}
	for _, o := range sorted {
		h.Orders = append(h.Orders, Entry{
			OrderID:    o.ID,
			ShopID:     o.ShopID,
			Status:     o.Status,
			StatusText: o.Status.String(),
			Total:      o.Total,
			Lines:      o.Lines,
		})
	}
	if h.Empty() {
		h.Message = NoOrdersFound
	}
	return h
}
