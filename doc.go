// Package folio provides a transactional order and inventory engine for a
// multi-seller bookstore.
//
// Folio is designed as a library, not a service. Import it directly into your
// Go application and put your own request layer in front of it. It provides:
//
//   - Atomic stock reservation across every line of an order
//   - Buyer-to-seller payments with a settlement journal
//   - Guarded order transitions that make racing callers fail cleanly
//   - A background reconciler that cancels orders left unpaid
//   - Pluggable storage (memory, SQLite, PostgreSQL, MongoDB)
//   - Audit, metrics and event-stream plugins
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/folio"
//	    "github.com/xraph/folio/store/postgres"
//	)
//
//	st, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := folio.New(st, folio.WithLogger(logger))
//
//	// Start migrates the store and begins the expiry reconciler
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// Sellers open stores and list books with a stock level:
//
//	engine.RegisterUser(ctx, "alice", "secret")
//	engine.CreateStore(ctx, "alice", "alice-books")
//	engine.AddBook(ctx, "alice", "alice-books", &catalog.Book{
//	    ID:    "978-0134190440",
//	    Title: "The Go Programming Language",
//	    Price: types.Cents(3999),
//	}, 10)
//
// Buyers place orders, which reserve stock immediately:
//
//	orderID, err := engine.CreateOrder(ctx, "carol", "alice-books", []order.Item{
//	    {BookID: "978-0134190440", Count: 2},
//	})
//
// An order moves through Created, Paid, Shipped and Received. It can be
// cancelled from any of those states; cancelling a paid order refunds the
// buyer. Orders left in Created longer than the expiry timeout are
// cancelled by the reconciler and their stock is released.
//
//	engine.PayOrder(ctx, "carol", "password", orderID)
//	engine.DeliverOrder(ctx, "alice", orderID)
//	engine.ReceiveOrder(ctx, "carol", orderID)
//
// # Errors
//
// Every operation returns one of the sentinel errors in this package,
// possibly wrapped with the ids involved. StatusOf maps an error to the
// numeric status code reported to clients:
//
//	if err := engine.PayOrder(ctx, user, pw, orderID); err != nil {
//	    st := folio.StatusOf(err) // e.g. {Code: 519, Message: "folio: not sufficient funds: ..."}
//	}
//
// All monetary amounts use integer arithmetic. The Money type represents
// amounts in the smallest currency unit.
//
// # Identifiers
//
// Order ids combine the buyer, the store and a TypeID nonce:
//
//	carol_alice-books_ord_01h2xcejqtf2nbrexx3vqjhp41
//
// Settlement entries carry plain TypeIDs with the "stl" prefix.
package folio
