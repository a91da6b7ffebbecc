package folio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xraph/folio/password"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/ratelimit"
	"github.com/xraph/folio/store"
)

// Defaults for the expiry reconciler and transaction retries.
const (
	DefaultExpiryInterval = 5 * time.Second
	DefaultExpiryTimeout  = 20 * time.Second
	DefaultExpiryBatch    = 500
	DefaultMaxAttempts    = 3
)

const instrumentationName = "github.com/xraph/folio"

// Engine is the bookstore order and inventory engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *zap.Logger
	tracer  trace.Tracer
	clock   clock.Clock
	hasher  *password.Hasher
	limiter *ratelimit.MapLimiter

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	expiryInterval time.Duration
	expiryTimeout  time.Duration
	expiryBatch    int
	maxAttempts    int
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         zap.NewNop(),
		tracer:         otel.Tracer(instrumentationName),
		clock:          clock.New(),
		hasher:         password.Default(),
		stopChan:       make(chan struct{}),
		expiryInterval: DefaultExpiryInterval,
		expiryTimeout:  DefaultExpiryTimeout,
		expiryBatch:    DefaultExpiryBatch,
		maxAttempts:    DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the wall clock, e.g. with clock.NewMock() in tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithTracerProvider sets the provider spans are created from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(instrumentationName)
	}
}

// WithExpiry configures the reconciler: how often it runs, how old an
// unpaid order must be to be cancelled, and how many orders one pass
// handles at most.
func WithExpiry(interval, timeout time.Duration, batch int) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.expiryInterval = interval
		}
		if timeout > 0 {
			e.expiryTimeout = timeout
		}
		if batch > 0 {
			e.expiryBatch = batch
		}
	}
}

// WithRetry sets how many times a unit of work is attempted when the
// store reports a transient failure.
func WithRetry(maxAttempts int) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
	}
}

// WithPasswordHasher overrides the argon2id parameters.
func WithPasswordHasher(h *password.Hasher) Option {
	return func(e *Engine) {
		e.hasher = h
	}
}

// WithPasswordRateLimit throttles password-gated calls per user. A
// non-positive rps disables throttling.
func WithPasswordRateLimit(rps float64, burst int) Option {
	return func(e *Engine) {
		e.limiter = ratelimit.New(rps, burst, 0)
	}
}

// Start migrates the store, initializes plugins and starts the expiry
// reconciler.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	ticker := e.clock.Ticker(e.expiryInterval)
	e.wg.Add(1)
	go e.expiryWorker(ctx, ticker)

	e.logger.Info("folio started",
		zap.Duration("expiry_interval", e.expiryInterval),
		zap.Duration("expiry_timeout", e.expiryTimeout),
		zap.Int("expiry_batch", e.expiryBatch),
		zap.Int("plugins", e.plugins.Count()),
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Engine) now() time.Time { return e.clock.Now().UTC() }

// runTx runs fn in a unit of work, retrying it with exponential backoff
// while the store reports ErrTransientStorage. fn may run more than once
// and must not leak state between attempts.
func (e *Engine) runTx(ctx context.Context, fn store.TxFunc) error {
	attempt := 0
	op := func() error {
		attempt++
		err := e.store.RunInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransientStorage) {
			return backoff.Permanent(err)
		}
		e.logger.Debug("transient storage failure",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.maxAttempts-1)), ctx))
}

// span starts a span for an engine operation.
func (e *Engine) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "folio."+op, trace.WithAttributes(attrs...))
}

// finish ends span, recording err and notifying plugins when it is set.
// It returns err unchanged.
func (e *Engine) finish(ctx context.Context, span trace.Span, op string, err error) error {
	defer span.End()
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.Int("folio.status_code", StatusOf(err).Code),
		attribute.String("folio.error_kind", KindOf(err).String()),
	)
	e.plugins.EmitOperationFailed(ctx, op, err)
	return err
}

// authenticate checks userID's password. missing is returned when the
// user does not exist. The hash is compared outside any transaction.
func (e *Engine) authenticate(ctx context.Context, userID, plain string, missing error) error {
	if !e.limiter.Allow(userID, e.clock.Now()) {
		return ErrTooManyAttempts
	}

	var encoded string
	err := e.runTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		encoded = u.PasswordHash
		return nil
	})
	if errors.Is(err, ErrUserNotFound) {
		return missing
	}
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(encoded, plain)
	if err != nil {
		e.logger.Warn("unreadable password hash", zap.String("user_id", userID), zap.Error(err))
		return ErrAuthorizationFailure
	}
	if !ok {
		return ErrAuthorizationFailure
	}
	return nil
}

// requireID fails with a ValidationError when value is blank.
func requireID(field, value string) error {
	if value == "" {
		return ValidationError{Field: field, Message: "must not be empty"}
	}
	return nil
}
