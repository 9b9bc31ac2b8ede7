package txmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodech/hsd/btcutil"
)

func TestTupleAddNegate(t *testing.T) {
	a := Tuple{Tx: 1, Coin: 2, Confirmed: 100, Unconfirmed: 50, LockedConfirmed: 10, LockedUnconfirmed: 5}
	d := Tuple{Tx: 1, Coin: -1, Unconfirmed: 25}
	require.Equal(t, Tuple{Tx: 2, Coin: 1, Confirmed: 100, Unconfirmed: 75, LockedConfirmed: 10, LockedUnconfirmed: 5}, a.Add(d))
	require.Equal(t, Tuple{Tx: -1, Coin: 1, Unconfirmed: -25}, d.Negate())
}

func TestCheckInvariants(t *testing.T) {
	require.True(t, Tuple{Confirmed: 100, LockedConfirmed: 100, Unconfirmed: 50, LockedUnconfirmed: 50}.CheckInvariants())
	require.False(t, Tuple{Confirmed: 100, LockedConfirmed: 101}.CheckInvariants())
	require.False(t, Tuple{Unconfirmed: 50, LockedUnconfirmed: 51}.CheckInvariants())
}

// TestInsertPendingDelta covers the BID-with-gap-miss scenario's input
// shape from spec.md §8: owned outputs minus owned inputs, with the
// locked subset tracked separately.
func TestInsertPendingDelta(t *testing.T) {
	outs := []ValueView{
		{Value: btcutil.Amount(1_000_000), Locked: true},  // BID1, in window
		{Value: btcutil.Amount(9_740_000), Locked: false}, // change
	}
	ins := []ValueView{
		{Value: btcutil.Amount(10_000_000), Locked: false},
	}
	d := InsertPendingDelta(outs, ins)
	require.Equal(t, Tuple{
		Tx:                1,
		Coin:              1, // 2 outs - 1 in
		Unconfirmed:       740_000, // 10_740_000 out - 10_000_000 in
		LockedUnconfirmed: 1_000_000,
	}, d)
}

func TestConfirmAndUnconfirmDeltaAreInverse(t *testing.T) {
	outs := []ValueView{{Value: btcutil.Amount(12_000_000), Locked: false}}
	var ins []ValueView

	confirm := ConfirmDelta(outs, ins)
	require.Equal(t, Tuple{Confirmed: 12_000_000}, confirm)

	unconfirm := UnconfirmDelta(outs, ins)
	require.Equal(t, confirm.Negate(), unconfirm)
}

func TestConfirmedInsertDeltaAppliesBothHalvesAtOnce(t *testing.T) {
	outs := []ValueView{{Value: btcutil.Amount(10_000_000), Locked: false}}
	var ins []ValueView

	got := ConfirmedInsertDelta(outs, ins)
	want := Tuple{
		Tx:              1,
		Coin:            1,
		Unconfirmed:     10_000_000,
		Confirmed:       10_000_000,
		LockedConfirmed: 0,
	}
	require.Equal(t, want, got)
}

// TestEraseDeltaIsInsertInverse covers D1's building block: Erase must
// exactly undo InsertPending.
func TestEraseDeltaIsInsertInverse(t *testing.T) {
	outs := []ValueView{{Value: btcutil.Amount(1_000_000), Locked: true}}
	ins := []ValueView{{Value: btcutil.Amount(2_000_000), Locked: false}}

	insert := InsertPendingDelta(outs, ins)
	erase := EraseDelta(outs, ins)
	require.Equal(t, Tuple{}, insert.Add(erase))
}
