// Package chainio defines the minimal transaction-shaped data the wallet
// engine consumes from its host. Signing, script construction, address
// encoding and wire serialization all live outside the engine; this
// package only carries the identity and value information the balance
// state machine needs (spec.md §3, §6 "Ownership classification input").
package chainio

import (
	"encoding/hex"
	"fmt"
)

// Hash identifies a transaction or block, analogous to chainhash.Hash /
// wire.OutPoint's Hash field in the teacher's msgtx.go.
type Hash [32]byte

func (h Hash) String() string {
	// Display in the conventional reversed-byte-order hex used by the
	// UTXO family this engine descends from.
	var rev [32]byte
	for i, b := range h {
		rev[31-i] = b
	}
	return hex.EncodeToString(rev[:])
}

// OutPoint identifies a transaction output: (txHash, vout).
type OutPoint struct {
	Hash  Hash
	Index uint32
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash, o.Index)
}

// CovenantType is the opcode-level covenant tag read off an output's
// locking script. The classifier (package covenant) is the only place
// that interprets these.
type CovenantType uint8

const (
	CovenantNone CovenantType = iota
	CovenantOpen
	CovenantBid
	CovenantReveal
	CovenantRedeem
	CovenantRegister
	CovenantUpdate
	CovenantRenew
	CovenantTransfer
	CovenantFinalize
	CovenantRevoke
)

func (c CovenantType) String() string {
	switch c {
	case CovenantNone:
		return "NONE"
	case CovenantOpen:
		return "OPEN"
	case CovenantBid:
		return "BID"
	case CovenantReveal:
		return "REVEAL"
	case CovenantRedeem:
		return "REDEEM"
	case CovenantRegister:
		return "REGISTER"
	case CovenantUpdate:
		return "UPDATE"
	case CovenantRenew:
		return "RENEW"
	case CovenantTransfer:
		return "TRANSFER"
	case CovenantFinalize:
		return "FINALIZE"
	case CovenantRevoke:
		return "REVOKE"
	default:
		return "UNKNOWN"
	}
}

// Output is one transaction output as seen by the engine: a value, the
// raw covenant tag from the chain, and a script hash the address book
// can look up ownership by.
type Output struct {
	Value      int64
	Covenant   CovenantType
	ScriptHash [32]byte
}

// Input is one transaction input as seen by the engine. The Prev*
// fields and HaveCoinView carry a host-supplied coin view for the spent
// output. Ownership resolution does not read them: an input counts as
// owned only when the credit store already holds a credit for PrevOut,
// whose recorded value/class are then used. An input with no such
// credit is treated as foreign even when a coin view is supplied.
type Input struct {
	PrevOut        OutPoint
	HaveCoinView   bool
	PrevScriptHash [32]byte
	PrevValue      int64
	PrevCovenant   CovenantType
}

// Tx is the transaction shape the engine ingests. MsgTx-equivalent to
// the teacher's wire.MsgTx, trimmed to what balance accounting needs.
type Tx struct {
	Hash    Hash
	Inputs  []Input
	Outputs []Output
	// Coinbase marks a block-reward transaction (spec.md credit.coinbase).
	Coinbase bool
}
