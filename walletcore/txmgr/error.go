package txmgr

import "github.com/nodech/hsd/walletcore/er"

// Err is the error type for the credit store / balance engine
// (components C & D), in the style of wtxmgr.Err.
var Err = er.NewErrorType("txmgr.Err")

var (
	// ErrInput indicates the caller passed data that is obviously
	// inconsistent, e.g. an index beyond the transaction's output count.
	ErrInput = Err.Code("ErrInput")

	// ErrNoExist indicates an operation referenced a credit or
	// transaction the store does not have a record of.
	ErrNoExist = Err.Code("ErrNoExist")

	// ErrInvariantViolation indicates B1/B2/B3/D1 failed after an event
	// (spec.md §7); fatal, the wallet must be quarantined.
	ErrInvariantViolation = Err.Code("ErrInvariantViolation")
)

func storeError(c *er.ErrorCode, desc string, cause er.R) er.R {
	return c.New(desc, cause)
}
