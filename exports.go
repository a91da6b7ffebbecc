package folio

import "github.com/xraph/folio/types"

// Aliases so callers handling amounts need not import the types package.

// Money is an amount in cents.
type Money = types.Money

var (
	Cents      = types.Cents
	ParseMoney = types.ParseMoney
	Sum        = types.Sum
)
