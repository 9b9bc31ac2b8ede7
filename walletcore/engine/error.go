package engine

import "github.com/nodech/hsd/walletcore/er"

// Err is the error type for the event dispatcher (component H).
var Err = er.NewErrorType("engine.Err")

var (
	// ErrIllegalTransition mirrors journal.ErrIllegalTransition at the
	// dispatcher boundary, e.g. Erase of a confirmed tx, or Unconfirm of
	// a tx that is not confirmed. Confirm of a tx the journal has never
	// seen is accepted as a block-insert whether or not the tx owns
	// anything; it is not reported as illegal.
	ErrIllegalTransition = Err.Code("ErrIllegalTransition")

	// ErrUnknownTx is returned by operations that name a transaction
	// hash the journal has no record of (Unconfirm, Erase).
	ErrUnknownTx = Err.Code("ErrUnknownTx")

	// ErrInvariantViolation surfaces a failed B1/B2/B3/D1 check. Per
	// spec.md §7 this is fatal: the wallet must be quarantined and a
	// full recompute scheduled; the engine does not attempt to repair
	// state itself.
	ErrInvariantViolation = Err.Code("ErrInvariantViolation")
)

func engineError(c *er.ErrorCode, desc string, cause er.R) er.R {
	return c.New(desc, cause)
}
