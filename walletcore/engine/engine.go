// Package engine implements component H, the single serial entry point
// of the balance-accounting core (spec.md §4.H, §6). Every chain or
// mempool event funnels through one of its methods, which acquires the
// wallet's exclusive write lock (spec.md §5), resolves ownership at the
// current address-book state (component F), computes the appropriate
// delta (component D), commits it to the credit store (component C),
// and advances the transaction journal (component E) — all atomically,
// mirroring the serialized dispatch of pktwallet/wallet's
// handleChainNotifications/connectBlock.
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/nodech/hsd/walletcore/addrmgr"
	"github.com/nodech/hsd/walletcore/chainio"
	"github.com/nodech/hsd/walletcore/covenant"
	"github.com/nodech/hsd/walletcore/discovery"
	"github.com/nodech/hsd/walletcore/er"
	"github.com/nodech/hsd/walletcore/hslog"
	"github.com/nodech/hsd/walletcore/journal"
	"github.com/nodech/hsd/walletcore/rescan"
	"github.com/nodech/hsd/walletcore/txmgr"
)

var log = hslog.Disabled

// UseLogger directs this package, and every component package it
// drives, at the given logger — mirroring wallet.UseLogger's fan-out to
// waddrmgr/wtxmgr in the teacher.
func UseLogger(logger hslog.Logger) {
	log = logger
	addrmgr.UseLogger(logger)
	txmgr.UseLogger(logger)
	covenant.UseLogger(logger)
	discovery.UseLogger(logger)
	rescan.UseLogger(logger)
}

// Engine is one wallet's balance-accounting core.
type Engine struct {
	mu sync.Mutex

	Manager *addrmgr.Manager
	Store   *txmgr.Store
	Journal *journal.Journal
	disc    *discovery.Engine

	firstSeen map[chainio.Hash]time.Time
}

// New wires up a fresh engine over a host-supplied address deriver.
func New(deriver addrmgr.Deriver) *Engine {
	mgr := addrmgr.NewManager(deriver)
	store := txmgr.NewStore()
	j := journal.New()
	return &Engine{
		Manager:   mgr,
		Store:     store,
		Journal:   j,
		disc:      discovery.New(mgr, store, j),
		firstSeen: make(map[chainio.Hash]time.Time),
	}
}

// OnBalanceChange registers a listener invoked after every balance
// mutation with the scope's final tuple (spec.md §4.H "commits, and
// emits a user-facing notification with the final tuples").
func (e *Engine) OnBalanceChange(fn func(scope txmgr.Scope, tuple txmgr.Tuple)) {
	e.Store.NotifyBalance = fn
}

// CreateAccount registers a new account (spec.md §6 "createAccount").
func (e *Engine) CreateAccount(name string, lookahead, lookaheadCeiling uint32) er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.Manager.CreateAccount(name, lookahead, lookaheadCeiling)
	return err
}

// CreateReceive returns the account's next receive address without
// advancing its depth (spec.md §6 "createReceive").
func (e *Engine) CreateReceive(account string) (addrmgr.ScriptHash, uint32, er.R) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Manager.NextReceive(account)
}

// GetBalance returns the cached six-tuple for a scope; "" means the
// whole wallet (spec.md §6 "getBalance"). Reads never fail (spec.md §7).
func (e *Engine) GetBalance(account string) txmgr.Tuple {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Store.Balance(scopeOf(account))
}

func scopeOf(account string) txmgr.Scope {
	if account == "" {
		return txmgr.WalletScope()
	}
	return txmgr.AccountScope(account)
}

// RecalculateBalances forces a from-scratch recompute of every known
// scope (spec.md §6 "recalculateBalances"), implementing the B3
// refresh/verify the spec calls for after background checks.
func (e *Engine) RecalculateBalances() {
	e.mu.Lock()
	defer e.mu.Unlock()
	rescan.RecomputeAll(e.Store)
}

// VerifyInvariants checks B3 for every known scope; a mismatch is a
// fatal InvariantViolation (spec.md §7) the host must quarantine the
// wallet over.
func (e *Engine) VerifyInvariants() er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := rescan.VerifyAll(e.Store); err != nil {
		return engineError(ErrInvariantViolation, "", err)
	}
	return nil
}

// Discover pre-derives `ahead` receive addresses for an account and
// retroactively applies any deltas that newly recognised ownership
// produces (spec.md §6 "discover").
func (e *Engine) Discover(account string, ahead uint32) er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disc.Discover(account, ahead)
}

// LockOutpoint / UnlockOutpoint / LockedOutpoints expose the
// supplemented coin-selection reservation feature (SPEC_FULL.md §5).
func (e *Engine) LockOutpoint(op chainio.OutPoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Store.LockOutpoint(op)
}

func (e *Engine) UnlockOutpoint(op chainio.OutPoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Store.UnlockOutpoint(op)
}

func (e *Engine) LockedOutpoints() []chainio.OutPoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Store.LockedOutpoints()
}

// OnInsertPending processes a transaction newly seen in the mempool
// (spec.md §6 "onInsertPending").
func (e *Engine) OnInsertPending(tx *chainio.Tx) er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(tx, journal.Pending, -1)
}

// OnConfirm processes a transaction included in the active chain
// (spec.md §6 "onConfirm"). Idempotent: re-confirming a transaction
// already confirmed at the same height is a no-op, which is what makes
// rescan's replay of already-known blocks safe.
func (e *Engine) OnConfirm(tx *chainio.Tx, height int32) er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.Journal.Lookup(tx.Hash); ok && entry.State == journal.Confirmed && entry.Height == height {
		return nil
	}
	return e.apply(tx, journal.Confirmed, height)
}

// OnUnconfirm processes a transaction's removal from the active chain
// (spec.md §6 "onUnconfirm"), e.g. during a reorg. Returns ErrUnknownTx
// for a transaction the journal has no record of, and
// ErrIllegalTransition for one that is not currently confirmed.
func (e *Engine) OnUnconfirm(tx *chainio.Tx) er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.Journal.Lookup(tx.Hash)
	if !ok || entry.State == journal.Absent {
		return engineError(ErrUnknownTx, tx.Hash.String(), nil)
	}
	if entry.State != journal.Confirmed {
		return engineError(ErrIllegalTransition, entry.State.String()+" -> "+journal.Pending.String(), nil)
	}
	return e.apply(tx, journal.Pending, -1)
}

// OnErase evicts a pending transaction (spec.md §6 "onErase"). Illegal
// for a confirmed transaction; callers must Unconfirm first.
func (e *Engine) OnErase(hash chainio.Hash) er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.onErase(hash)
}

func (e *Engine) onErase(hash chainio.Hash) er.R {
	entry, ok := e.Journal.Lookup(hash)
	if !ok {
		return engineError(ErrUnknownTx, hash.String(), nil)
	}
	if entry.Tx == nil {
		return engineError(ErrUnknownTx, hash.String(), nil)
	}
	return e.apply(entry.Tx, journal.Erased, -1)
}

// RevertTo mass-unconfirms every transaction above height, in reverse
// order, then leaves those transactions pending (spec.md §4.E
// "revertTo(h)").
func (e *Engine) RevertTo(height int32) er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range e.Journal.EntriesAbove(height) {
		if entry.Tx == nil {
			continue
		}
		if err := e.apply(entry.Tx, journal.Pending, -1); err != nil {
			return err
		}
	}
	return nil
}

// Rescan replays chain data from fromHeight via the host-supplied chain
// source, treating each matched transaction as a confirmed-insert
// (spec.md §4.E "rescan(h)"). OnConfirm's no-op guard makes re-replaying
// already-confirmed blocks safe.
func (e *Engine) Rescan(chain rescan.ChainSource, fromHeight int32) er.R {
	return rescan.Replay(chain, fromHeight, e.OnConfirm)
}

// Zap evicts every pending transaction belonging to account that was
// first seen more than ageSeconds before now, and recursively evicts
// any other pending transaction that spends one of its outputs — a
// pending transaction cannot outlive the pending input it depends on
// (SPEC_FULL.md §5, grounded on wtxmgr's RemoveUnminedTx/removeConflict
// cascade).
func (e *Engine) Zap(account string, ageSeconds int64, now time.Time) er.R {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := now.Add(-time.Duration(ageSeconds) * time.Second)
	var stale []chainio.Hash
	for hash, seen := range e.firstSeen {
		entry, ok := e.Journal.Lookup(hash)
		if !ok || entry.State != journal.Pending {
			continue
		}
		if !e.Store.Touches(txmgr.AccountScope(account), hash) {
			continue
		}
		if seen.After(cutoff) {
			continue
		}
		stale = append(stale, hash)
	}
	sort.Slice(stale, func(i, k int) bool { return stale[i].String() < stale[k].String() })
	visited := make(map[chainio.Hash]bool)
	for _, h := range stale {
		if err := e.zapRecursive(h, visited); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) zapRecursive(hash chainio.Hash, visited map[chainio.Hash]bool) er.R {
	if visited[hash] {
		return nil
	}
	visited[hash] = true
	entry, ok := e.Journal.Lookup(hash)
	if !ok || entry.State != journal.Pending {
		return nil
	}
	for _, dep := range e.dependents(hash) {
		if err := e.zapRecursive(dep, visited); err != nil {
			return err
		}
	}
	log.Debugf("zap: evicting stale pending tx %s", hash)
	return e.onErase(hash)
}

// dependents returns every other pending transaction that spends an
// output of hash.
func (e *Engine) dependents(hash chainio.Hash) []chainio.Hash {
	var deps []chainio.Hash
	seen := make(map[chainio.Hash]bool)
	for _, op := range e.Store.OutputsOf(hash) {
		c, ok := e.Store.Credit(op)
		if !ok || c.SpentByTx == nil {
			continue
		}
		h := *c.SpentByTx
		if seen[h] {
			continue
		}
		seen[h] = true
		if entry, ok := e.Journal.Lookup(h); ok && entry.State == journal.Pending {
			deps = append(deps, h)
		}
	}
	return deps
}

// apply is the unified event handler behind every exported mutation:
// resolve ownership, let discovery catch up every *other* live
// transaction that resolution's depth advance affects, compute and
// apply this transaction's own delta in full, then commit the journal
// transition. This is the "resolve-then-apply" two-phase design of
// spec.md §9.
func (e *Engine) apply(tx *chainio.Tx, to journal.State, height int32) er.R {
	entry := e.Journal.Entry(tx.Hash)
	entry.AttachTx(tx)
	from := entry.State
	if !e.Journal.CanTransition(tx.Hash, to) {
		return engineError(ErrIllegalTransition, from.String()+" -> "+to.String(), nil)
	}

	res, err := e.disc.Resolve(tx)
	if err != nil {
		return err
	}

	touched := make(map[string]bool)
	for _, o := range res.Outputs {
		touched[o.Owner.Account] = true
	}
	for _, in := range res.Inputs {
		touched[in.Owner.Account] = true
	}
	for account := range touched {
		if err := e.disc.RescanOthers(account, tx.Hash); err != nil {
			return err
		}
	}

	if to == journal.Pending && from != journal.Confirmed {
		e.firstSeen[tx.Hash] = e.now()
	}

	deltaFn := deltaFor(from, to)
	for account := range touched {
		outs, ins := discovery.ViewsFor(res, account)
		e.applyScopeDelta(txmgr.AccountScope(account), tx.Hash, outs, ins, deltaFn)
	}
	if len(touched) > 0 {
		walletOuts, walletIns := discovery.ViewsFor(res, "")
		e.applyScopeDelta(txmgr.WalletScope(), tx.Hash, walletOuts, walletIns, deltaFn)
	}

	if err := e.commitCredits(tx, res, to); err != nil {
		return err
	}
	for _, o := range res.Outputs {
		entry.KnownOutputs[o.Index] = true
	}
	for _, in := range res.Inputs {
		entry.KnownInputs[in.Index] = true
	}

	if _, err := e.Journal.Transition(tx.Hash, to, height); err != nil {
		return err
	}
	for _, op := range e.Store.OutputsOf(tx.Hash) {
		if _, ok := e.Store.Credit(op); ok {
			_ = e.Store.SetHeight(op, height)
		}
	}
	log.Infof("tx %s: %s -> %s", tx.Hash, from, to)
	return nil
}

func (e *Engine) now() time.Time { return time.Now() }

type deltaFunc func(outs, ins []txmgr.ValueView) txmgr.Tuple

// deltaFor picks component D's delta function for a journal transition.
func deltaFor(from, to journal.State) deltaFunc {
	switch {
	case from == journal.Absent && to == journal.Pending:
		return txmgr.InsertPendingDelta
	case from == journal.Erased && to == journal.Pending:
		return txmgr.InsertPendingDelta
	case (from == journal.Absent || from == journal.Erased) && to == journal.Confirmed:
		return txmgr.ConfirmedInsertDelta
	case from == journal.Pending && to == journal.Confirmed:
		return txmgr.ConfirmDelta
	case from == journal.Confirmed && to == journal.Pending:
		return txmgr.UnconfirmDelta
	case from == journal.Pending && to == journal.Erased:
		return txmgr.EraseDelta
	default:
		return func(outs, ins []txmgr.ValueView) txmgr.Tuple { return txmgr.Tuple{} }
	}
}

// applyScopeDelta computes one scope's delta for this transition and
// applies it, zeroing the tx component when Touch/Untouch report this
// scope already recorded (or never recorded) the transaction — the
// dedup discipline spec.md §4.D requires ("tx does not double-count").
func (e *Engine) applyScopeDelta(scope txmgr.Scope, hash chainio.Hash, outs, ins []txmgr.ValueView, deltaFn deltaFunc) {
	d := deltaFn(outs, ins)
	switch {
	case d.Tx > 0:
		if !e.Store.Touch(scope, hash) {
			d.Tx = 0
		}
	case d.Tx < 0:
		if !e.Store.Untouch(scope, hash) {
			d.Tx = 0
		}
	}
	e.Store.ApplyDelta(scope, d)
}

func (e *Engine) commitCredits(tx *chainio.Tx, res discovery.Resolution, to journal.State) er.R {
	for _, o := range res.Outputs {
		op := chainio.OutPoint{Hash: tx.Hash, Index: o.Index}
		if _, exists := e.Store.Credit(op); exists {
			continue
		}
		if to == journal.Erased {
			continue
		}
		height := int32(-1)
		if err := e.Store.InsertCredit(&txmgr.Credit{
			OutPoint: op,
			Value:    o.Value,
			Account:  o.Owner.Account,
			Branch:   o.Owner.Branch,
			Index:    o.Owner.Index,
			Class:    o.Class,
			Height:   height,
			Coinbase: tx.Coinbase,
		}); err != nil {
			return err
		}
	}
	for _, in := range res.Inputs {
		switch to {
		case journal.Pending, journal.Confirmed:
			if in.Credit.SpentByTx == nil {
				if err := e.Store.MarkSpent(in.Credit.OutPoint, tx.Hash); err != nil {
					return err
				}
			}
		case journal.Erased:
			if in.Credit.SpentByTx != nil && *in.Credit.SpentByTx == tx.Hash {
				if err := e.Store.MarkUnspent(in.Credit.OutPoint); err != nil {
					return err
				}
			}
		}
	}
	if to == journal.Erased {
		for _, o := range res.Outputs {
			op := chainio.OutPoint{Hash: tx.Hash, Index: o.Index}
			if _, exists := e.Store.Credit(op); exists {
				if err := e.Store.RemoveCredit(op); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
