// Package settlement records the balance movements tied to orders.
//
// Every payment and every post-payment cancellation appends one Entry in
// the same transaction that moves the money, so an order's journal always
// matches the balances it touched.
package settlement

import (
	"time"

	"github.com/xraph/folio/id"
	"github.com/xraph/folio/types"
)

type Kind string

const (
	KindPayment Kind = "payment"
	KindRefund  Kind = "refund"
)

type Entry struct {
	ID         id.SettlementID `json:"id"`
	OrderID    string          `json:"order_id"`
	Kind       Kind            `json:"kind"`
	FromUserID string          `json:"from_user_id"`
	ToUserID   string          `json:"to_user_id"`
	Amount     types.Money     `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}
