// Package discovery implements component F: ownership resolution against
// the address book (component B) and the retroactive application of
// balance deltas when previously-foreign outputs turn out to be owned
// (spec.md §9 "Retroactive delta algebra").
//
// Resolving ownership is not itself an event; it is the precondition the
// engine (component H) runs before every InsertPending/Confirm/Unconfirm/
// Erase so the forward delta only ever covers what is owned right now.
// Discover additionally exposes the explicit gap-limit recovery op of
// spec.md §6 ("discover(account, ahead)"), which pre-derives addresses
// beyond the current window and then walks every live journal entry
// looking for outputs that just became recognisable — the same
// situation a reorg or an imported xpub produces in the teacher's
// rescanBatch / addRelevantTx path.
package discovery

import (
	"github.com/nodech/hsd/btcutil"
	"github.com/nodech/hsd/walletcore/addrmgr"
	"github.com/nodech/hsd/walletcore/chainio"
	"github.com/nodech/hsd/walletcore/covenant"
	"github.com/nodech/hsd/walletcore/er"
	"github.com/nodech/hsd/walletcore/hslog"
	"github.com/nodech/hsd/walletcore/journal"
	"github.com/nodech/hsd/walletcore/txmgr"
)

// OwnedOutput is one transaction output recognised as owned at
// resolution time.
type OwnedOutput struct {
	Index uint32
	Owner addrmgr.Owner
	Class covenant.Class
	Value btcutil.Amount
}

// OwnedInput is one transaction input recognised as spending an owned
// credit at resolution time. Credit is the existing store record for
// the spent outpoint; inputs whose PrevOut the store has never seen
// (no credit, regardless of coin view) are not resolved — recovering
// spend history purely from a coin view with no prior credit is out of
// scope (spec.md §1 Non-goals).
type OwnedInput struct {
	Index  uint32
	Owner  addrmgr.Owner
	Credit *txmgr.Credit
}

// Resolution is the full ownership picture of one transaction, computed
// fresh against the address book every time (spec.md §9's
// "resolve-then-apply": ownership is never cached across events).
type Resolution struct {
	Outputs []OwnedOutput
	Inputs  []OwnedInput
}

// Engine ties the address book, credit store and journal together for
// ownership resolution and retroactive delta application. The forward
// event handlers in package engine (component H) hold one of these;
// it is not goroutine-safe by itself (spec.md §5 serializes per wallet).
type Engine struct {
	Manager *addrmgr.Manager
	Store   *txmgr.Store
	Journal *journal.Journal
}

// New constructs a discovery engine over the given address book, credit
// store and journal.
func New(mgr *addrmgr.Manager, store *txmgr.Store, j *journal.Journal) *Engine {
	return &Engine{Manager: mgr, Store: store, Journal: j}
}

var log = hslog.Disabled

// UseLogger directs package output at the given logger.
func UseLogger(logger hslog.Logger) { log = logger }

func scriptHashFrom(out chainio.Output) addrmgr.ScriptHash {
	return addrmgr.ScriptHash(out.ScriptHash)
}

// Resolve computes the current ownership of every output and input of a
// transaction. Every owned output's observed index is reported to the
// address book via AdvanceDepth ("on every owned-output detection, call
// advanceDepth for each observed index", spec.md §4.B), which is how an
// address deep in the lookahead window gets promoted into the active
// depth the moment a payment lands on it.
func (e *Engine) Resolve(tx *chainio.Tx) (Resolution, er.R) {
	var res Resolution
	for i, out := range tx.Outputs {
		owner, ok := e.Manager.OwnerOf(scriptHashFrom(out))
		if !ok {
			continue
		}
		if err := e.Manager.AdvanceDepth(owner.Account, owner.Branch, owner.Index); err != nil {
			if !addrmgr.ErrLookaheadExhausted.Is(err) {
				return Resolution{}, err
			}
			log.Warnf("lookahead ceiling reached advancing %s/%d", owner.Account, owner.Branch)
		}
		e.Manager.MarkUsed(scriptHashFrom(out))
		res.Outputs = append(res.Outputs, OwnedOutput{
			Index: uint32(i),
			Owner: owner,
			Class: covenant.Classify(out),
			Value: btcutil.Amount(out.Value),
		})
	}
	for i, in := range tx.Inputs {
		credit, ok := e.Store.Credit(in.PrevOut)
		if !ok {
			continue
		}
		res.Inputs = append(res.Inputs, OwnedInput{
			Index:  uint32(i),
			Owner:  addrmgr.Owner{Account: credit.Account, Branch: credit.Branch, Index: credit.Index},
			Credit: credit,
		})
	}
	return res, nil
}

// ViewsFor projects a Resolution down to the outs/ins ValueViews owned
// by one account (or, with account == "", every account — i.e. the
// wallet scope), the shape component D's delta functions consume.
func ViewsFor(res Resolution, account string) (outs, ins []txmgr.ValueView) {
	for _, o := range res.Outputs {
		if account != "" && o.Owner.Account != account {
			continue
		}
		outs = append(outs, txmgr.ValueView{Value: o.Value, Locked: o.Class.Locked()})
	}
	for _, in := range res.Inputs {
		if account != "" && in.Owner.Account != account {
			continue
		}
		ins = append(ins, txmgr.ValueView{Value: in.Credit.Value, Locked: in.Credit.Class.Locked()})
	}
	return outs, ins
}

// Discover pre-derives `ahead` further receive addresses beyond an
// account's current depth (spec.md §6 "discover(account, ahead)") and
// then retroactively applies deltas for any already-seen transaction
// whose outputs land inside the newly derived range. This is the engine
// entry point exercised by gap-limit recovery and wallet-restore tests.
func (e *Engine) Discover(account string, ahead uint32) er.R {
	acct, err := e.Manager.Account(account)
	if err != nil {
		return err
	}
	if ahead > 0 {
		target := acct.ReceiveDepth + ahead - 1
		if derr := e.Manager.AdvanceDepth(account, addrmgr.BranchReceive, target); derr != nil {
			if !addrmgr.ErrLookaheadExhausted.Is(derr) {
				return derr
			}
		}
	}
	return e.Rescan(account)
}

// Rescan walks every live journal entry and applies a retro delta for
// any output/input of the underlying transaction that is newly
// recognised as owned by `account` since the entry was last evaluated.
// Called by Discover.
func (e *Engine) Rescan(account string) er.R {
	return e.rescan(account, nil)
}

// RescanOthers is Rescan restricted to every entry except `current`. The
// event dispatcher (component H) calls this after resolving a
// transaction's own ownership (which it applies directly, in full,
// itself): the only remaining discovery work is the side effect that
// transaction's depth advance may have had on every *other* live
// transaction referencing the same account.
func (e *Engine) RescanOthers(account string, current chainio.Hash) er.R {
	return e.rescan(account, &current)
}

func (e *Engine) rescan(account string, skip *chainio.Hash) er.R {
	for _, entry := range e.Journal.AllEntries() {
		if entry.State == journal.Erased || entry.Tx == nil {
			continue
		}
		if skip != nil && entry.Hash == *skip {
			continue
		}
		if err := e.applyRetro(entry, account); err != nil {
			return err
		}
	}
	return nil
}

// applyRetro computes and applies the retro delta for one journal entry
// restricted to the newly-owned subset of its outputs/inputs, per
// spec.md §4.D "Discovery interaction":
//
//	"If the containing tx is pending, apply a retro-InsertPending
//	 delta restricted to the newly owned outputs/inputs. If confirmed,
//	 apply retro-InsertPending and retro-Confirm together... tx and
//	 coin deltas are computed from what was previously visible; in
//	 particular, tx does not double-count."
func (e *Engine) applyRetro(entry *journal.Entry, account string) er.R {
	tx := entry.Tx
	var newOuts, newIns []txmgr.ValueView
	var newOutIdx, newInIdx []uint32

	for i, out := range tx.Outputs {
		idx := uint32(i)
		if entry.KnownOutputs[idx] {
			continue
		}
		owner, ok := e.Manager.OwnerOf(scriptHashFrom(out))
		if !ok || owner.Account != account {
			continue
		}
		op := chainio.OutPoint{Hash: entry.Hash, Index: idx}
		class := covenant.Classify(out)
		if _, exists := e.Store.Credit(op); !exists {
			if ierr := e.Store.InsertCredit(&txmgr.Credit{
				OutPoint: op,
				Value:    btcutil.Amount(out.Value),
				Account:  owner.Account,
				Branch:   owner.Branch,
				Index:    owner.Index,
				Class:    class,
				Height:   entry.Height,
				Coinbase: tx.Coinbase,
			}); ierr != nil {
				return ierr
			}
		}
		newOutIdx = append(newOutIdx, idx)
		newOuts = append(newOuts, txmgr.ValueView{Value: btcutil.Amount(out.Value), Locked: class.Locked()})
	}

	for i, in := range tx.Inputs {
		idx := uint32(i)
		if entry.KnownInputs[idx] {
			continue
		}
		credit, ok := e.Store.Credit(in.PrevOut)
		if !ok || credit.Account != account || credit.SpentByTx != nil {
			continue
		}
		newInIdx = append(newInIdx, idx)
		newIns = append(newIns, txmgr.ValueView{Value: credit.Value, Locked: credit.Class.Locked()})
	}

	if len(newOutIdx) == 0 && len(newInIdx) == 0 {
		return nil
	}

	apply := func(scope txmgr.Scope) {
		firstTouch := e.Store.Touch(scope, entry.Hash)
		var d txmgr.Tuple
		switch entry.State {
		case journal.Pending:
			d = txmgr.InsertPendingDelta(newOuts, newIns)
		case journal.Confirmed:
			// Nothing was applied on first sighting (the outputs were
			// foreign then), so both halves land together now.
			d = txmgr.ConfirmedInsertDelta(newOuts, newIns)
		default:
			return
		}
		if !firstTouch {
			d.Tx = 0
		}
		e.Store.ApplyDelta(scope, d)
	}
	apply(txmgr.AccountScope(account))
	apply(txmgr.WalletScope())

	for _, idx := range newInIdx {
		if err := e.Store.MarkSpent(tx.Inputs[idx].PrevOut, entry.Hash); err != nil {
			return err
		}
	}
	for _, idx := range newOutIdx {
		entry.KnownOutputs[idx] = true
	}
	for _, idx := range newInIdx {
		entry.KnownInputs[idx] = true
	}
	return nil
}
