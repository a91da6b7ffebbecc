// Package mongo implements store.Store on MongoDB. Units of work run as
// multi-document transactions, so the deployment must be a replica set or
// a sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/xraph/folio"
	"github.com/xraph/folio/account"
	"github.com/xraph/folio/catalog"
	"github.com/xraph/folio/order"
	"github.com/xraph/folio/settlement"
	"github.com/xraph/folio/shop"
	foliostore "github.com/xraph/folio/store"
)

// Collection name constants.
const (
	colUsers       = "folio_users"
	colBooks       = "folio_books"
	colStores      = "folio_stores"
	colOrders      = "folio_orders"
	colSettlements = "folio_settlements"
)

// compile-time interface checks
var (
	_ foliostore.Store = (*Store)(nil)
	_ foliostore.Tx    = (*tx)(nil)
)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("folio/mongo: connect: %w", err)
	}
	s := New(client, database)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	return s, nil
}

// New wraps an already connected client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database { return s.db }

// RunInTx implements store.Store. The driver re-runs fn when the server
// labels a failure as a transient transaction error.
func (s *Store) RunInTx(ctx context.Context, fn foliostore.TxFunc) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return wrap("start session", err)
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, &tx{db: s.db})
	}, txOpts)
	if err != nil && isTransient(err) && !errors.Is(err, folio.ErrTransientStorage) {
		return folio.Transient(err)
	}
	return err
}

// Migrate creates the collections and their indexes. Collections must
// exist before they are written inside a transaction on older servers.
func (s *Store) Migrate(ctx context.Context) error {
	for _, col := range []string{colUsers, colBooks, colStores, colOrders, colSettlements} {
		if err := s.db.CreateCollection(ctx, col); err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("folio/mongo: %w: create %s: %w", folio.ErrMigrationFailed, col, err)
		}
	}

	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("folio/mongo: %w: %s indexes: %w", folio.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type tx struct {
	db *mongo.Database
}

func (t *tx) col(name string) *mongo.Collection { return t.db.Collection(name) }

func (t *tx) exists(ctx context.Context, col string, filter bson.M) (bool, error) {
	n, err := t.col(col).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ==================== Users ====================

func (t *tx) CreateUser(ctx context.Context, u *account.User) error {
	if _, err := t.col(colUsers).InsertOne(ctx, toUserModel(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", folio.ErrUserExists, u.ID)
		}
		return wrap("create user", err)
	}
	return nil
}

func (t *tx) GetUser(ctx context.Context, userID string) (*account.User, error) {
	var m userModel
	if err := t.col(colUsers).FindOne(ctx, bson.M{"_id": userID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
		}
		return nil, wrap("get user", err)
	}
	return fromUserModel(&m), nil
}

func (t *tx) UpdateUserPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	res, err := t.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"password_hash": passwordHash, "updated_at": toNanos(at)}},
	)
	if err != nil {
		return wrap("update password", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
	}
	return nil
}

func (t *tx) DeleteUser(ctx context.Context, userID string) error {
	owns, err := t.exists(ctx, colStores, bson.M{"owner_id": userID})
	if err != nil {
		return wrap("delete user", err)
	}
	if owns {
		return fmt.Errorf("%w: %s", folio.ErrUserInUse, userID)
	}

	res, err := t.col(colUsers).DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return wrap("delete user", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
	}
	return nil
}

func (t *tx) AdjustBalance(ctx context.Context, userID string, delta int64, at time.Time) error {
	res, err := t.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": userID, "balance": bson.M{"$gte": -delta}},
		bson.M{
			"$inc": bson.M{"balance": delta},
			"$set": bson.M{"updated_at": toNanos(at)},
		},
	)
	if err != nil {
		return wrap("adjust balance", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	found, err := t.exists(ctx, colUsers, bson.M{"_id": userID})
	if err != nil {
		return wrap("adjust balance", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, userID)
	}
	return fmt.Errorf("%w: %s", folio.ErrInsufficientFunds, userID)
}

// ==================== Books ====================

func (t *tx) EnsureBook(ctx context.Context, b *catalog.Book) error {
	_, err := t.col(colBooks).UpdateOne(ctx,
		bson.M{"_id": b.ID},
		bson.M{"$setOnInsert": toBookModel(b)},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return wrap("ensure book", err)
	}
	return nil
}

func (t *tx) GetBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	var m bookModel
	if err := t.col(colBooks).FindOne(ctx, bson.M{"_id": bookID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrBookNotFound, bookID)
		}
		return nil, wrap("get book", err)
	}
	return fromBookModel(&m), nil
}

// ==================== Shops ====================

func (t *tx) CreateShop(ctx context.Context, s *shop.Shop) error {
	found, err := t.exists(ctx, colUsers, bson.M{"_id": s.OwnerID})
	if err != nil {
		return wrap("create store", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", folio.ErrUserNotFound, s.OwnerID)
	}

	if _, err := t.col(colStores).InsertOne(ctx, toShopModel(s)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", folio.ErrStoreExists, s.ID)
		}
		return wrap("create store", err)
	}
	return nil
}

func (t *tx) GetShop(ctx context.Context, shopID string) (*shop.Shop, error) {
	var m shopModel
	if err := t.col(colStores).FindOne(ctx, bson.M{"_id": shopID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrStoreNotFound, shopID)
		}
		return nil, wrap("get store", err)
	}
	return fromShopModel(&m), nil
}

func (t *tx) AddInventory(ctx context.Context, shopID, bookID string, stock int64) error {
	res, err := t.col(colStores).UpdateOne(ctx,
		bson.M{"_id": shopID, "inventory.book_id": bson.M{"$ne": bookID}},
		bson.M{"$push": bson.M{"inventory": inventoryItem{BookID: bookID, StockLevel: stock}}},
	)
	if err != nil {
		return wrap("add inventory", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	found, err := t.exists(ctx, colStores, bson.M{"_id": shopID})
	if err != nil {
		return wrap("add inventory", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", folio.ErrStoreNotFound, shopID)
	}
	return fmt.Errorf("%w: %s in %s", folio.ErrBookExists, bookID, shopID)
}

func (t *tx) AdjustStock(ctx context.Context, shopID, bookID string, delta int64) error {
	res, err := t.col(colStores).UpdateOne(ctx,
		bson.M{
			"_id": shopID,
			"inventory": bson.M{"$elemMatch": bson.M{
				"book_id":     bookID,
				"stock_level": bson.M{"$gte": -delta},
			}},
		},
		bson.M{"$inc": bson.M{"inventory.$.stock_level": delta}},
	)
	if err != nil {
		return wrap("adjust stock", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: report which precondition failed.
	sh, err := t.GetShop(ctx, shopID)
	if err != nil {
		return err
	}
	if sh.Find(bookID) == nil {
		return fmt.Errorf("%w: %s in %s", folio.ErrBookNotFound, bookID, shopID)
	}
	return fmt.Errorf("%w: %s in %s", folio.ErrInsufficientStock, bookID, shopID)
}

// ==================== Orders ====================

func (t *tx) CreateOrder(ctx context.Context, o *order.Order) error {
	if _, err := t.col(colOrders).InsertOne(ctx, toOrderModel(o)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: duplicate order %s", folio.ErrInvalidOrderID, o.ID)
		}
		return wrap("create order", err)
	}
	return nil
}

func (t *tx) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	var m orderModel
	if err := t.col(colOrders).FindOne(ctx, bson.M{"_id": orderID}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", folio.ErrInvalidOrderID, orderID)
		}
		return nil, wrap("get order", err)
	}
	return fromOrderModel(&m), nil
}

func (t *tx) TransitionOrder(ctx context.Context, orderID string, from []order.Status, to order.Status, at time.Time) error {
	states := make(bson.A, len(from))
	for i, s := range from {
		states[i] = int32(s)
	}

	res, err := t.col(colOrders).UpdateOne(ctx,
		bson.M{"_id": orderID, "status": bson.M{"$in": states}},
		bson.M{"$set": bson.M{"status": int32(to), "updated_at": toNanos(at)}},
	)
	if err != nil {
		return wrap("transition order", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", folio.ErrInvalidOrderID, orderID)
	}
	return nil
}

func (t *tx) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := t.col(colOrders).Find(ctx, bson.M{"buyer_id": buyerID}, opts)
	if err != nil {
		return nil, wrap("list orders", err)
	}

	var models []orderModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, wrap("list orders", err)
	}

	orders := make([]*order.Order, len(models))
	for i := range models {
		orders[i] = fromOrderModel(&models[i])
	}
	return orders, nil
}

func (t *tx) ListExpiredOrders(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := t.col(colOrders).Find(ctx, bson.M{
		"status":     int32(order.StatusCreated),
		"created_at": bson.M{"$lte": toNanos(cutoff)},
	}, opts)
	if err != nil {
		return nil, wrap("list expired orders", err)
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrap("list expired orders", err)
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// ==================== Settlements ====================

func (t *tx) RecordSettlement(ctx context.Context, e *settlement.Entry) error {
	if _, err := t.col(colSettlements).InsertOne(ctx, toSettlementModel(e)); err != nil {
		return wrap("record settlement", err)
	}
	return nil
}

func (t *tx) ListSettlements(ctx context.Context, orderID string) ([]*settlement.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := t.col(colSettlements).Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, wrap("list settlements", err)
	}

	var models []settlementModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, wrap("list settlements", err)
	}

	entries := make([]*settlement.Entry, 0, len(models))
	for i := range models {
		e, err := fromSettlementModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("folio/mongo: decode settlement: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ==================== Helpers ====================

func wrap(op string, err error) error {
	if isTransient(err) {
		err = folio.Transient(err)
	}
	return fmt.Errorf("folio/mongo: %s: %w", op, err)
}

func isTransient(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError") {
		return true
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func isNamespaceExists(err error) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Name == "NamespaceExists"
}

// migrationIndexes returns the index definitions for all folio collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colStores: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSettlements: {
			{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
