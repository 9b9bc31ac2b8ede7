package journal

import "github.com/nodech/hsd/walletcore/er"

// Err is the error type for the transaction journal (component E).
var Err = er.NewErrorType("journal.Err")

var (
	// ErrIllegalTransition covers the illegal state transitions named
	// in spec.md §4.H, e.g. confirmed -> erased without an intervening
	// Unconfirm. absent -> confirmed is always legal here: the journal
	// does not look at ownership, so Confirm of a transaction it has no
	// record of is accepted even when the transaction owns nothing.
	ErrIllegalTransition = Err.Code("ErrIllegalTransition")

	// ErrUnknownTx indicates an operation (Unconfirm, Erase) named a
	// transaction the journal has no entry for.
	ErrUnknownTx = Err.Code("ErrUnknownTx")
)

func journalError(c *er.ErrorCode, desc string, cause er.R) er.R {
	return c.New(desc, cause)
}
