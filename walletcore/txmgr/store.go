// Component C — credit store. One Credit per owned output, plus the
// balance six-tuples the deltas of balance.go get applied to (spec.md
// §3 "Credit", §4.C).
package txmgr

import (
	"github.com/nodech/hsd/btcutil"
	"github.com/nodech/hsd/walletcore/addrmgr"
	"github.com/nodech/hsd/walletcore/chainio"
	"github.com/nodech/hsd/walletcore/covenant"
	"github.com/nodech/hsd/walletcore/er"
	"github.com/nodech/hsd/walletcore/hslog"
)

// Credit is a wallet-local record of an owned output (spec.md §3).
// Its six-tuple contribution is determined solely by (Value, Class,
// Height, SpentByTx) — invariant I3 — never by how it got here.
type Credit struct {
	OutPoint chainio.OutPoint
	Value    btcutil.Amount
	Account  string
	Branch   addrmgr.Branch
	Index    uint32
	Class    covenant.Class
	// SpentByTx is set once a later transaction spends this credit.
	// nil means unspent.
	SpentByTx *chainio.Hash
	// Height is -1 for a pending (unconfirmed) containing transaction,
	// >= 0 once confirmed (invariant I2).
	Height   int32
	Coinbase bool
}

func (c *Credit) unspent() bool { return c.SpentByTx == nil }

// Scope names either the whole wallet (WalletScope) or one account
// (AccountScope). The zero value is the account scope for "".
type Scope struct {
	Account string
	wallet  bool
}

// WalletScope is the aggregate scope across every account.
func WalletScope() Scope { return Scope{wallet: true} }

// AccountScope names a single account's scope.
func AccountScope(name string) Scope { return Scope{Account: name} }

func (s Scope) key() string {
	if s.wallet {
		return ""
	}
	return s.Account
}

// Matches reports whether a credit owned by the given account
// contributes to this scope: every account matches the wallet scope,
// only an exact name match contributes to an account scope.
func (s Scope) Matches(account string) bool {
	return s.wallet || s.Account == account
}

type scopeState struct {
	tuple   Tuple
	touched map[chainio.Hash]bool
}

func newScopeState() *scopeState {
	return &scopeState{touched: make(map[chainio.Hash]bool)}
}

// Store implements the per-wallet credit store and cached balance
// tuples, in the style of wtxmgr.Store.
type Store struct {
	credits     map[chainio.OutPoint]*Credit
	outputsByTx map[chainio.Hash][]chainio.OutPoint

	wallet   *scopeState
	accounts map[string]*scopeState

	// locked tracks outpoints temporarily reserved from coin selection
	// via LockOutpoint (supplemented feature, not part of the six-tuple
	// — see SPEC_FULL.md §5).
	locked map[chainio.OutPoint]bool

	NotifyBalance func(scope Scope, tuple Tuple)
}

// NewStore creates an empty credit store.
func NewStore() *Store {
	return &Store{
		credits:     make(map[chainio.OutPoint]*Credit),
		outputsByTx: make(map[chainio.Hash][]chainio.OutPoint),
		wallet:      newScopeState(),
		accounts:    make(map[string]*scopeState),
		locked:      make(map[chainio.OutPoint]bool),
	}
}

// LockOutpoint marks an outpoint reserved, in the style of
// wallet.LockOutpoint: a purely advisory annotation that keeps coin
// selection from picking it, with no effect on the six-tuple.
func (s *Store) LockOutpoint(op chainio.OutPoint) { s.locked[op] = true }

// UnlockOutpoint clears a reservation set by LockOutpoint.
func (s *Store) UnlockOutpoint(op chainio.OutPoint) { delete(s.locked, op) }

// UnlockAllOutpoints clears every reservation, mirroring
// wallet.ResetLockedOutpoints.
func (s *Store) UnlockAllOutpoints() { s.locked = make(map[chainio.OutPoint]bool) }

// IsLocked reports whether an outpoint is currently reserved.
func (s *Store) IsLocked(op chainio.OutPoint) bool { return s.locked[op] }

// LockedOutpoints returns every currently reserved outpoint, in
// undefined order.
func (s *Store) LockedOutpoints() []chainio.OutPoint {
	out := make([]chainio.OutPoint, 0, len(s.locked))
	for op := range s.locked {
		out = append(out, op)
	}
	return out
}

var log = hslog.Disabled

// UseLogger directs package output at the given logger.
func UseLogger(logger hslog.Logger) { log = logger }

func (s *Store) scopeState(scope Scope) *scopeState {
	if scope.wallet {
		return s.wallet
	}
	st, ok := s.accounts[scope.Account]
	if !ok {
		st = newScopeState()
		s.accounts[scope.Account] = st
	}
	return st
}

// Credit returns the credit recorded for an outpoint, if any.
func (s *Store) Credit(op chainio.OutPoint) (*Credit, bool) {
	c, ok := s.credits[op]
	return c, ok
}

// InsertCredit records a new owned output. The outpoint must not
// already exist in the store.
func (s *Store) InsertCredit(c *Credit) er.R {
	if _, ok := s.credits[c.OutPoint]; ok {
		return storeError(ErrInput, "credit already exists: "+c.OutPoint.String(), nil)
	}
	s.credits[c.OutPoint] = c
	s.outputsByTx[c.OutPoint.Hash] = append(s.outputsByTx[c.OutPoint.Hash], c.OutPoint)
	return nil
}

// RemoveCredit deletes a credit entirely (used by Erase).
func (s *Store) RemoveCredit(op chainio.OutPoint) er.R {
	c, ok := s.credits[op]
	if !ok {
		return storeError(ErrNoExist, op.String(), nil)
	}
	delete(s.credits, op)
	outs := s.outputsByTx[c.OutPoint.Hash]
	for i, o := range outs {
		if o == op {
			s.outputsByTx[c.OutPoint.Hash] = append(outs[:i], outs[i+1:]...)
			break
		}
	}
	if len(s.outputsByTx[c.OutPoint.Hash]) == 0 {
		delete(s.outputsByTx, c.OutPoint.Hash)
	}
	delete(s.locked, op)
	return nil
}

// MarkSpent records that a credit is spent by the given transaction
// (invariant I1: the spending transaction must be present in the
// journal, enforced by the caller).
func (s *Store) MarkSpent(op chainio.OutPoint, byTx chainio.Hash) er.R {
	c, ok := s.credits[op]
	if !ok {
		return storeError(ErrNoExist, op.String(), nil)
	}
	h := byTx
	c.SpentByTx = &h
	return nil
}

// MarkUnspent clears a credit's spent-by marker (reorg / erase of the
// spending transaction).
func (s *Store) MarkUnspent(op chainio.OutPoint) er.R {
	c, ok := s.credits[op]
	if !ok {
		return storeError(ErrNoExist, op.String(), nil)
	}
	c.SpentByTx = nil
	return nil
}

// SetHeight sets a credit's confirmation height, or -1 for pending
// (invariant I2).
func (s *Store) SetHeight(op chainio.OutPoint, height int32) er.R {
	c, ok := s.credits[op]
	if !ok {
		return storeError(ErrNoExist, op.String(), nil)
	}
	c.Height = height
	return nil
}

// OutputsOf returns the credits recorded against a transaction's
// outputs, if any.
func (s *Store) OutputsOf(tx chainio.Hash) []chainio.OutPoint {
	return append([]chainio.OutPoint(nil), s.outputsByTx[tx]...)
}

// Touch records that a transaction touches a scope, returning whether
// this is the first time (the only case that should bump Tx). Mirrors
// the set-membership discipline spec.md §4.D relies on for dedup
// ("tx does not double-count") across retro-discovery and multi-output
// transactions.
func (s *Store) Touch(scope Scope, tx chainio.Hash) bool {
	st := s.scopeState(scope)
	if st.touched[tx] {
		return false
	}
	st.touched[tx] = true
	return true
}

// Untouch removes a transaction from a scope's touched set, returning
// whether it was present. Called when a transaction is fully erased
// from a scope.
func (s *Store) Untouch(scope Scope, tx chainio.Hash) bool {
	st := s.scopeState(scope)
	if !st.touched[tx] {
		return false
	}
	delete(st.touched, tx)
	return true
}

// Touches reports whether a transaction is currently recorded as
// touching a scope.
func (s *Store) Touches(scope Scope, tx chainio.Hash) bool {
	return s.scopeState(scope).touched[tx]
}

// ApplyDelta adds a delta to a scope's cached tuple and notifies any
// listener. engine/discovery compute the delta, decide the correct Tx
// component via Touch/Untouch, then call this.
func (s *Store) ApplyDelta(scope Scope, d Tuple) {
	st := s.scopeState(scope)
	st.tuple = st.tuple.Add(d)
	if s.NotifyBalance != nil {
		s.NotifyBalance(scope, st.tuple)
	}
}

// Balance returns the cached six-tuple for a scope (spec.md §6
// getBalance). Reads never fail (spec.md §7): an unknown account scope
// simply reads as the zero tuple.
func (s *Store) Balance(scope Scope) Tuple {
	return s.scopeState(scope).tuple
}

// SetBalance overwrites a scope's cached tuple outright; used by the
// rescan/recompute path (component G) to replace the incrementally
// maintained tuple with a freshly recomputed one.
func (s *Store) SetBalance(scope Scope, t Tuple) {
	s.scopeState(scope).tuple = t
}

// RebuildTouched recomputes a scope's touched-transaction set directly
// from the credits currently in the store, the same ground-truth sweep
// rescan.Recompute uses to derive Tx: a transaction touches a scope if
// it created one of the scope's credits or spent one. Used after
// loading credits from persistent storage, where only the credits
// themselves (and the cached tuple) are serialized — the touched set
// is cheap enough to rebuild from scratch rather than serialize.
func (s *Store) RebuildTouched(scope Scope) {
	st := s.scopeState(scope)
	st.touched = make(map[chainio.Hash]bool)
	for _, c := range s.credits {
		if !scope.Matches(c.Account) {
			continue
		}
		st.touched[c.OutPoint.Hash] = true
		if c.SpentByTx != nil {
			st.touched[*c.SpentByTx] = true
		}
	}
}

// RebuildAllTouched rebuilds the touched set for the wallet scope and
// every account scope currently known to the store.
func (s *Store) RebuildAllTouched() {
	s.RebuildTouched(WalletScope())
	for name := range s.accounts {
		s.RebuildTouched(AccountScope(name))
	}
}

// ForEachCredit visits every credit currently in the store, in
// undefined order, in the style of wtxmgr.ForEachUnspentOutput.
func (s *Store) ForEachCredit(visit func(*Credit)) {
	for _, c := range s.credits {
		visit(c)
	}
}

// AccountNames returns every account name the store has ever recorded
// a scope for (including accounts with zero current credits).
func (s *Store) AccountNames() []string {
	names := make([]string, 0, len(s.accounts))
	for n := range s.accounts {
		names = append(names, n)
	}
	return names
}
