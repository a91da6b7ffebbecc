package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionUserRegistered = "user.registered"
	ActionFundsAdded     = "funds.added"

	// Store actions
	ActionStoreCreated = "store.created"
	ActionBookListed   = "book.listed"
	ActionStockAdded   = "stock.added"

	// Order actions
	ActionOrderCreated   = "order.created"
	ActionOrderPaid      = "order.paid"
	ActionOrderDelivered = "order.delivered"
	ActionOrderReceived  = "order.received"
	ActionOrderCancelled = "order.cancelled"
	ActionOrderExpired   = "order.expired"
	ActionOrderRefunded  = "order.refunded"

	// Engine actions
	ActionOperationFailed = "operation.failed"
)

// Resource constants for audit events.
const (
	ResourceUser       = "user"
	ResourceStore      = "store"
	ResourceBook       = "book"
	ResourceOrder      = "order"
	ResourceSettlement = "settlement"
	ResourceEngine     = "engine"
)

// Category constants for audit events.
const (
	CategoryAccount   = "account"
	CategoryInventory = "inventory"
	CategoryOrder     = "order"
	CategoryPayment   = "payment"
	CategorySystem    = "system"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
