// Package shop models a seller's store and its per-book stock.
package shop

import "github.com/xraph/folio/types"

type Shop struct {
	types.Entity
	ID        string `json:"store_id"`
	OwnerID   string `json:"owner_id"`
	Inventory []Item `json:"inventory"`
}

// Item is one inventory slot. StockLevel never goes below zero.
type Item struct {
	BookID     string `json:"book_id"`
	StockLevel int64  `json:"stock_level"`
}

// Find returns the inventory slot for bookID, or nil.
func (s *Shop) Find(bookID string) *Item {
	for i := range s.Inventory {
		if s.Inventory[i].BookID == bookID {
			return &s.Inventory[i]
		}
	}
	return nil
}
