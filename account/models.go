// Package account holds the buyer/seller user record.
package account

import "github.com/xraph/folio/types"

type User struct {
	types.Entity
	ID           string      `json:"user_id"`
	PasswordHash string      `json:"-"`
	Balance      types.Money `json:"balance"`
	Token        string      `json:"-"`
	Terminal     string      `json:"terminal,omitempty"`
}
