// Package catalog defines the book records that stores list for sale.
package catalog

import "github.com/xraph/folio/types"

// Book is immutable once created; orders snapshot Price into their lines.
type Book struct {
	types.Entity
	ID        string      `json:"book_id"`
	Title     string      `json:"title"`
	Author    string      `json:"author,omitempty"`
	Publisher string      `json:"publisher,omitempty"`
	ISBN      string      `json:"isbn,omitempty"`
	Tags      []string    `json:"tags,omitempty"`
	Price     types.Money `json:"price"`
}
