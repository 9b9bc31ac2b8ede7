package discovery

import "github.com/nodech/hsd/walletcore/er"

// Err is the error type for the discovery engine (component F).
var Err = er.NewErrorType("discovery.Err")

var (
	// ErrUnknownAccount names an account the address book has no record
	// of. Discover does not return it: it passes on the address book's
	// own addrmgr.ErrAccountNotFound.
	ErrUnknownAccount = Err.Code("ErrUnknownAccount")
)

func discoveryError(c *er.ErrorCode, desc string, cause er.R) er.R {
	return c.New(desc, cause)
}
