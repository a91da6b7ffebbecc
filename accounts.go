package folio

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xraph/folio/account"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/shop"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/types"
)

// ──────────────────────────────────────────────────
// Users
// ──────────────────────────────────────────────────

// RegisterUser creates a buyer/seller account with a zero balance.
func (e *Engine) RegisterUser(ctx context.Context, userID, plain string) (err error) {
	ctx, span := e.span(ctx, "RegisterUser", attribute.String("folio.user_id", userID))
	defer func() { err = e.finish(ctx, span, "RegisterUser", err) }()

	if err := requireID("user_id", userID); err != nil {
		return err
	}
	if plain == "" {
		return ValidationError{Field: "password", Message: "must not be empty"}
	}

	hash, err := e.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("folio: hash password: %w", err)
	}

	u := &account.User{
		Entity:       types.NewEntity(e.now()),
		ID:           userID,
		PasswordHash: hash,
	}
	if err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	}); err != nil {
		return err
	}

	e.logger.Info("user registered", zap.String("user_id", userID))
	e.plugins.EmitUserRegistered(ctx, userID)
	return nil
}

// UnregisterUser deletes the account after checking its password. A
// user who still owns a store cannot be removed.
func (e *Engine) UnregisterUser(ctx context.Context, userID, plain string) (err error) {
	ctx, span := e.span(ctx, "UnregisterUser", attribute.String("folio.user_id", userID))
	defer func() { err = e.finish(ctx, span, "UnregisterUser", err) }()

	if err := e.authenticate(ctx, userID, plain, ErrAuthorizationFailure); err != nil {
		return err
	}

	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteUser(ctx, userID)
	})
	if errors.Is(err, ErrUserNotFound) {
		return ErrAuthorizationFailure
	}
	if err != nil {
		return err
	}

	e.logger.Info("user unregistered", zap.String("user_id", userID))
	return nil
}

// ChangePassword replaces the user's password after verifying the old one.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPlain, newPlain string) (err error) {
	ctx, span := e.span(ctx, "ChangePassword", attribute.String("folio.user_id", userID))
	defer func() { err = e.finish(ctx, span, "ChangePassword", err) }()

	if newPlain == "" {
		return ValidationError{Field: "new_password", Message: "must not be empty"}
	}
	if err := e.authenticate(ctx, userID, oldPlain, ErrAuthorizationFailure); err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPlain)
	if err != nil {
		return fmt.Errorf("folio: hash password: %w", err)
	}

	now := e.now()
	err = e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateUserPassword(ctx, userID, hash, now)
	})
	if errors.Is(err, ErrUserNotFound) {
		return ErrAuthorizationFailure
	}
	return err
}

// ──────────────────────────────────────────────────
// Stores and catalog
// ──────────────────────────────────────────────────

// CreateStore opens an empty store owned by ownerID.
func (e *Engine) CreateStore(ctx context.Context, ownerID, storeID string) (err error) {
	ctx, span := e.span(ctx, "CreateStore",
		attribute.String("folio.user_id", ownerID),
		attribute.String("folio.store_id", storeID),
	)
	defer func() { err = e.finish(ctx, span, "CreateStore", err) }()

	if err := requireID("store_id", storeID); err != nil {
		return err
	}

	sh := &shop.Shop{
		Entity:  types.NewEntity(e.now()),
		ID:      storeID,
		OwnerID: ownerID,
	}
	if err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, ownerID); err != nil {
			return err
		}
		return tx.CreateShop(ctx, sh)
	}); err != nil {
		return err
	}

	e.logger.Info("store created",
		zap.String("store_id", storeID),
		zap.String("owner_id", ownerID),
	)
	e.plugins.EmitStoreCreated(ctx, storeID, ownerID)
	return nil
}

// AddBook lists book in storeID with an initial stock level. The catalog
// entry is created the first time a book id is listed anywhere; later
// listings reuse it as is.
func (e *Engine) AddBook(ctx context.Context, ownerID, storeID string, book *catalog.Book, stock int64) (err error) {
	ctx, span := e.span(ctx, "AddBook",
		attribute.String("folio.user_id", ownerID),
		attribute.String("folio.store_id", storeID),
	)
	defer func() { err = e.finish(ctx, span, "AddBook", err) }()

	if book == nil {
		return ValidationError{Field: "book", Message: "is required"}
	}
	if err := requireID("book_id", book.ID); err != nil {
		return err
	}
	if book.Price.IsNegative() {
		return ValidationError{Field: "price", Message: "must not be negative"}
	}
	if stock < 0 {
		return ValidationError{Field: "stock_level", Message: "must not be negative"}
	}
	span.SetAttributes(attribute.String("folio.book_id", book.ID))

	entry := *book
	entry.Entity = types.NewEntity(e.now())

	if err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, ownerID); err != nil {
			return err
		}
		if err := requireOwner(ctx, tx, ownerID, storeID); err != nil {
			return err
		}
		if err := tx.EnsureBook(ctx, &entry); err != nil {
			return err
		}
		return tx.AddInventory(ctx, storeID, book.ID, stock)
	}); err != nil {
		return err
	}

	e.logger.Info("book listed",
		zap.String("store_id", storeID),
		zap.String("book_id", book.ID),
		zap.Int64("stock_level", stock),
	)
	e.plugins.EmitBookListed(ctx, storeID, &entry, stock)
	return nil
}

// AddStockLevel adds delta copies of an already listed book.
func (e *Engine) AddStockLevel(ctx context.Context, ownerID, storeID, bookID string, delta int64) (err error) {
	ctx, span := e.span(ctx, "AddStockLevel",
		attribute.String("folio.user_id", ownerID),
		attribute.String("folio.store_id", storeID),
		attribute.String("folio.book_id", bookID),
		attribute.Int64("folio.delta", delta),
	)
	defer func() { err = e.finish(ctx, span, "AddStockLevel", err) }()

	if delta <= 0 {
		return ValidationError{Field: "add_stock_level", Message: "must be positive"}
	}

	if err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetUser(ctx, ownerID); err != nil {
			return err
		}
		if err := requireOwner(ctx, tx, ownerID, storeID); err != nil {
			return err
		}
		return tx.AdjustStock(ctx, storeID, bookID, delta)
	}); err != nil {
		return err
	}

	e.logger.Info("stock added",
		zap.String("store_id", storeID),
		zap.String("book_id", bookID),
		zap.Int64("delta", delta),
	)
	e.plugins.EmitStockAdded(ctx, storeID, bookID, delta)
	return nil
}

// requireOwner fails with ErrAuthorizationFailure unless userID owns storeID.
func requireOwner(ctx context.Context, tx store.Tx, userID, storeID string) error {
	sh, err := tx.GetShop(ctx, storeID)
	if err != nil {
		return err
	}
	if sh.OwnerID != userID {
		return fmt.Errorf("%w: %s does not own %s", ErrAuthorizationFailure, userID, storeID)
	}
	return nil
}
