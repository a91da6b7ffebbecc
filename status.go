package folio

import "errors"

// Status is the (code, message) pair every engine operation reports to
// the request layer. Codes follow the bookstore's historical numbering.
type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    Kind   `json:"-"`
}

// OK reports whether the status represents success.
func (s Status) OK() bool { return s.Code == CodeOK }

// Status codes.
const (
	CodeOK                = 200
	CodeInvalidInput      = 400
	CodeAuthorization     = 401
	CodeTooManyAttempts   = 429
	CodeUserNotFound      = 511
	CodeUserExists        = 512
	CodeStoreNotFound     = 513
	CodeStoreExists       = 514
	CodeBookNotFound      = 515
	CodeBookExists        = 516
	CodeInsufficientStock = 517
	CodeInvalidOrderID    = 518
	CodeInsufficientFunds = 519
	CodeNotDelivered      = 520
	CodeRepeatDeliver     = 521
	CodeRepeatReceive     = 522
	CodeUserInUse         = 524
	CodeStorage           = 528
	CodeInternal          = 530
)

var statusCodes = []struct {
	err  error
	code int
}{
	{ErrAuthorizationFailure, CodeAuthorization},
	{ErrTooManyAttempts, CodeTooManyAttempts},
	{ErrUserNotFound, CodeUserNotFound},
	{ErrUserExists, CodeUserExists},
	{ErrUserInUse, CodeUserInUse},
	{ErrStoreNotFound, CodeStoreNotFound},
	{ErrStoreExists, CodeStoreExists},
	{ErrBookNotFound, CodeBookNotFound},
	{ErrBookExists, CodeBookExists},
	{ErrInsufficientStock, CodeInsufficientStock},
	{ErrInvalidOrderID, CodeInvalidOrderID},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrBooksNotDelivered, CodeNotDelivered},
	{ErrBooksRepeatDeliver, CodeRepeatDeliver},
	{ErrBooksRepeatReceive, CodeRepeatReceive},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrTransientStorage, CodeStorage},
}

// StatusOf maps an engine error to its status. A nil error is "ok".
func StatusOf(err error) Status {
	if err == nil {
		return Status{Code: CodeOK, Message: "ok", Kind: KindNone}
	}
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return Status{Code: sc.code, Message: err.Error(), Kind: KindOf(err)}
		}
	}
	return Status{Code: CodeInternal, Message: err.Error(), Kind: KindInternal}
}
