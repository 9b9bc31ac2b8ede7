// Package covenant implements the covenant classifier, component A of
// the balance engine: a pure, total function from an output's covenant
// opcode to the spendable/locked/burn bucket that drives balance
// accounting (spec.md §4.A).
//
// Grounded on the dispatch style of txscript.ExtractPkScriptAddrs /
// GetScriptClass (standard.go): a closed enumeration decoded by a
// single switch, never interpreted anywhere else in the engine.
package covenant

import "github.com/nodech/hsd/walletcore/chainio"

// Class is the semantic bucket a covenant falls into for balance
// purposes (spec.md §3 "covenantClass").
type Class uint8

const (
	// ClassNone outputs are ordinary spendable value (including OPEN,
	// which carries zero value but still produces a credit — see
	// spec.md §9 open question, resolved YES).
	ClassNone Class = iota
	// ClassLockedBid is a BID output: value is locked until REVEAL.
	ClassLockedBid
	// ClassLockedReveal is a REVEAL output: the non-blind portion is
	// spendable, but the output itself stays locked until REDEEM.
	ClassLockedReveal
	// ClassLockedName covers REGISTER/UPDATE/RENEW/TRANSFER/FINALIZE:
	// the name's locked value sits in the covenant chain.
	ClassLockedName
	// ClassBurn is a REVOKE output: permanently unspendable on-chain,
	// but this design keeps it as an ordinary credit (spec.md §9).
	ClassBurn
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassLockedBid:
		return "lockedBid"
	case ClassLockedReveal:
		return "lockedReveal"
	case ClassLockedName:
		return "lockedName"
	case ClassBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// Locked reports whether a credit of this class contributes to the
// lockedConfirmed/lockedUnconfirmed columns of the six-tuple (spec.md
// §3, glossary "Locked").
func (c Class) Locked() bool {
	switch c {
	case ClassLockedBid, ClassLockedReveal, ClassLockedName:
		return true
	default:
		return false
	}
}

// log is wired by engine.UseLogger; defaults to discarding output.
var log = defaultLogger()

// Classify maps a raw covenant opcode to its balance-accounting class.
// Total and deterministic: every chainio.CovenantType value, known or
// not, produces a Class. Unknown covenant values degrade to ClassNone
// with a warning rather than aborting the event (spec.md §7,
// UnknownCovenant).
func Classify(out chainio.Output) Class {
	switch out.Covenant {
	case chainio.CovenantNone, chainio.CovenantOpen, chainio.CovenantRedeem:
		return ClassNone
	case chainio.CovenantBid:
		return ClassLockedBid
	case chainio.CovenantReveal:
		return ClassLockedReveal
	case chainio.CovenantRegister, chainio.CovenantUpdate,
		chainio.CovenantRenew, chainio.CovenantTransfer, chainio.CovenantFinalize:
		return ClassLockedName
	case chainio.CovenantRevoke:
		return ClassBurn
	default:
		log.Warnf("unknown covenant type %d, degrading to none", out.Covenant)
		return ClassNone
	}
}
