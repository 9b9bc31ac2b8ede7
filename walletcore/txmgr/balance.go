// Component D — balance deltas. Pure functions that, given the owned
// inputs/outputs of a transaction at the moment of an event, return the
// six-tuple delta for that event (spec.md §4.D). These never touch the
// credit store; engine and discovery call them and then apply the
// result to a Store.
package txmgr

import "github.com/nodech/hsd/btcutil"

// Tuple is the balance six-tuple of spec.md §3, also used (signed) as a
// delta.
type Tuple struct {
	Tx                int64
	Coin              int64
	Confirmed         btcutil.Amount
	Unconfirmed       btcutil.Amount
	LockedConfirmed   btcutil.Amount
	LockedUnconfirmed btcutil.Amount
}

// Add returns t + d.
func (t Tuple) Add(d Tuple) Tuple {
	return Tuple{
		Tx:                t.Tx + d.Tx,
		Coin:              t.Coin + d.Coin,
		Confirmed:         t.Confirmed + d.Confirmed,
		Unconfirmed:       t.Unconfirmed + d.Unconfirmed,
		LockedConfirmed:   t.LockedConfirmed + d.LockedConfirmed,
		LockedUnconfirmed: t.LockedUnconfirmed + d.LockedUnconfirmed,
	}
}

// Negate returns the additive inverse of a delta.
func (t Tuple) Negate() Tuple {
	return Tuple{
		Tx:                -t.Tx,
		Coin:              -t.Coin,
		Confirmed:         -t.Confirmed,
		Unconfirmed:       -t.Unconfirmed,
		LockedConfirmed:   -t.LockedConfirmed,
		LockedUnconfirmed: -t.LockedUnconfirmed,
	}
}

// CheckInvariants verifies B1 (containment): locked columns never
// exceed their unlocked counterparts.
func (t Tuple) CheckInvariants() bool {
	return t.LockedConfirmed <= t.Confirmed && t.LockedUnconfirmed <= t.Unconfirmed
}

// ValueView is one owned input or output's contribution to a delta:
// its value and whether its covenant class is locked.
type ValueView struct {
	Value  btcutil.Amount
	Locked bool
}

func sumViews(vs []ValueView) (total, locked btcutil.Amount) {
	for _, v := range vs {
		total += v.Value
		if v.Locked {
			locked += v.Value
		}
	}
	return
}

// InsertPendingDelta computes the delta for a transaction entering the
// mempool-level view for the first time (spec.md §4.D). outs/ins are
// restricted to the outputs/inputs owned by the scope in question; for
// a retroactive discovery delta, pass only the newly-owned subset.
func InsertPendingDelta(outs, ins []ValueView) Tuple {
	sumOut, sumOutLocked := sumViews(outs)
	sumIn, sumInLocked := sumViews(ins)
	return Tuple{
		Tx:                1,
		Coin:              int64(len(outs)) - int64(len(ins)),
		Unconfirmed:       sumOut - sumIn,
		LockedUnconfirmed: sumOutLocked - sumInLocked,
	}
}

// ConfirmDelta computes the {confirmed, lockedConfirmed} delta applied
// when a pending transaction confirms: the same amount that was applied
// to {unconfirmed, lockedUnconfirmed} at insert time (spec.md §4.D).
// tx/coin are zero since the transaction was already pending.
func ConfirmDelta(outs, ins []ValueView) Tuple {
	pending := InsertPendingDelta(outs, ins)
	return Tuple{
		Confirmed:       pending.Unconfirmed,
		LockedConfirmed: pending.LockedUnconfirmed,
	}
}

// ConfirmedInsertDelta computes the delta for a transaction that arrives
// directly as part of a block with no prior pending sighting: both
// InsertPending and Confirm deltas applied atomically (spec.md §4.D
// "Special case — confirmed-insert").
func ConfirmedInsertDelta(outs, ins []ValueView) Tuple {
	pending := InsertPendingDelta(outs, ins)
	pending.Confirmed = pending.Unconfirmed
	pending.LockedConfirmed = pending.LockedUnconfirmed
	return pending
}

// UnconfirmDelta is the exact inverse of the most recent ConfirmDelta
// for this transaction (spec.md §4.D). The credit remains present with
// height -1; tx/coin are unchanged.
func UnconfirmDelta(outs, ins []ValueView) Tuple {
	return ConfirmDelta(outs, ins).Negate()
}

// EraseDelta is the exact inverse of InsertPendingDelta (spec.md §4.D).
// Only legal when the transaction is pending, never confirmed.
func EraseDelta(outs, ins []ValueView) Tuple {
	return InsertPendingDelta(outs, ins).Negate()
}
