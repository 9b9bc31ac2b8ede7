package rescan

import "github.com/nodech/hsd/walletcore/er"

// Err is the error type for the recompute/rescan driver (component G).
var Err = er.NewErrorType("rescan.Err")

var (
	// ErrInvariantViolation is returned by Verify when a recomputed
	// balance does not match the incrementally maintained one
	// (invariant B3).
	ErrInvariantViolation = Err.Code("ErrInvariantViolation")
)

func rescanError(c *er.ErrorCode, desc string, cause er.R) er.R {
	return c.New(desc, cause)
}
