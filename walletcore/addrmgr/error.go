package addrmgr

import "github.com/nodech/hsd/walletcore/er"

// ManagerErr is the error type for the address book & gap-limit deriver
// (component B), in the style of waddrmgr.ManagerErr.
var ManagerErr = er.NewErrorType("addrmgr.ManagerErr")

var (
	// ErrAccountNotFound indicates the requested account is unknown.
	ErrAccountNotFound = ManagerErr.Code("ErrAccountNotFound")

	// ErrDuplicateAccount indicates an account with this name already exists.
	ErrDuplicateAccount = ManagerErr.Code("ErrDuplicateAccount")

	// ErrInvalidBranch indicates a branch value outside {receive, change}.
	ErrInvalidBranch = ManagerErr.Code("ErrInvalidBranch")

	// ErrLookaheadExhausted indicates that advancing receiveDepth would
	// cross the configured lookahead ceiling (spec.md §7). The event is
	// still applied up to the ceiling; the caller is notified so no
	// further discovery happens until the ceiling is raised.
	ErrLookaheadExhausted = ManagerErr.Code("ErrLookaheadExhausted")
)

func managerError(c *er.ErrorCode, desc string, cause er.R) er.R {
	return c.New(desc, cause)
}
