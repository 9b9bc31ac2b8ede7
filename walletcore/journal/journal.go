// Package journal implements the transaction journal, component E of
// the balance engine (spec.md §4.E, §4.H). It orders events so every
// confirm has a matching unconfirm and every insert a matching erase,
// validates the per-transaction state machine of spec.md §4.H, and
// keeps the ownership snapshot each transaction was last evaluated
// against so discovery (component F) can diff "then-owned" against
// "now-owned" without rebuilding history (spec.md §9 "Retroactive
// delta algebra").
package journal

import (
	"github.com/nodech/hsd/walletcore/chainio"
	"github.com/nodech/hsd/walletcore/er"
)

// State is a transaction's position in the per-tx state machine of
// spec.md §4.H: absent -> pending -> confirmed -> pending -> ... -> erased.
type State uint8

const (
	Absent State = iota
	Pending
	Confirmed
	Erased
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Erased:
		return "erased"
	default:
		return "unknown"
	}
}

// Entry is one transaction's journal record.
type Entry struct {
	Hash   chainio.Hash
	State  State
	Height int32 // -1 while pending or absent/erased

	// KnownOutputs/KnownInputs record which output/input indices of
	// this transaction were already recognised as owned (by any
	// account) as of the last event processed for it. Discovery
	// updates these after computing a retro delta.
	KnownOutputs map[uint32]bool
	KnownInputs  map[uint32]bool

	// Tx is the raw transaction this entry describes, set the first
	// time the engine processes it. Discovery needs the original
	// outputs/inputs, not just the credits materialized so far, to
	// retroactively match addresses that were not yet derivable when
	// the transaction first arrived (spec.md §9).
	Tx *chainio.Tx
}

func newEntry(hash chainio.Hash) *Entry {
	return &Entry{
		Hash:         hash,
		State:        Absent,
		Height:       -1,
		KnownOutputs: make(map[uint32]bool),
		KnownInputs:  make(map[uint32]bool),
	}
}

// Journal is the per-wallet ordered transaction ledger.
type Journal struct {
	entries map[chainio.Hash]*Entry
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{entries: make(map[chainio.Hash]*Entry)}
}

// Entry returns the journal record for a hash, creating an Absent one
// if it does not yet exist (mirrors wtxmgr's "this might get called on
// a tx which is already in the db" tolerance in insertMinedTx).
func (j *Journal) Entry(hash chainio.Hash) *Entry {
	e, ok := j.entries[hash]
	if !ok {
		e = newEntry(hash)
		j.entries[hash] = e
	}
	return e
}

// Lookup returns the journal record for a hash without creating one.
func (j *Journal) Lookup(hash chainio.Hash) (*Entry, bool) {
	e, ok := j.entries[hash]
	return e, ok
}

// legal reports whether transitioning from `from` to `to` is permitted
// by the state machine of spec.md §4.H.
func legal(from, to State) bool {
	switch {
	case from == Absent && to == Pending:
		return true
	case from == Absent && to == Confirmed:
		// Block-insert of a never-seen transaction (InsertPending+Confirm
		// applied atomically).
		return true
	case from == Pending && to == Confirmed:
		return true
	case from == Confirmed && to == Pending:
		return true
	case from == Pending && to == Erased:
		return true
	case from == Erased && to == Pending:
		// Terminal states are not final: an erased tx can be re-inserted.
		return true
	case from == Erased && to == Confirmed:
		return true
	default:
		// In particular confirmed -> erased is illegal; callers must
		// Unconfirm first (spec.md §4.H).
		return false
	}
}

// Transition validates and applies a state change, returning
// ErrIllegalTransition if the move is not permitted.
func (j *Journal) Transition(hash chainio.Hash, to State, height int32) (*Entry, er.R) {
	e := j.Entry(hash)
	if !legal(e.State, to) {
		return nil, journalError(ErrIllegalTransition, e.State.String()+" -> "+to.String(), nil)
	}
	e.State = to
	if to == Confirmed {
		e.Height = height
	} else {
		e.Height = -1
	}
	return e, nil
}

// CanTransition reports whether a move is legal without applying it.
func (j *Journal) CanTransition(hash chainio.Hash, to State) bool {
	e, ok := j.entries[hash]
	from := Absent
	if ok {
		from = e.State
	}
	return legal(from, to)
}
