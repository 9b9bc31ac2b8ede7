// Package addrmgr implements the address book & gap-limit deriver,
// component B of the balance engine (spec.md §4.B). Key derivation
// cryptography and address encoding are out of scope (spec.md §1); the
// manager is handed a Deriver that turns (account, branch, index) into
// a script hash and otherwise only tracks which script hashes are
// currently inside each account's lookahead window.
package addrmgr

import (
	"github.com/nodech/hsd/walletcore/er"
)

// Branch is the HD subtree an address is derived from (spec.md §3).
type Branch uint8

const (
	BranchReceive Branch = iota
	BranchChange
)

func (b Branch) valid() bool { return b == BranchReceive || b == BranchChange }

// ScriptHash is the address identity key (spec.md §3: "Two addresses
// are considered the same iff their script hashes match").
type ScriptHash [32]byte

// Deriver produces the script hash for a given account/branch/index.
// Implemented by the host; the manager never looks inside it (spec.md
// §1: "address encoding... out of scope").
type Deriver interface {
	Derive(accountName string, branch Branch, index uint32) ScriptHash
}

// Owner identifies the account/branch/index that owns a script hash.
type Owner struct {
	Account string
	Branch  Branch
	Index   uint32
}

// Account tracks one account's derivation depth and lookahead window.
type Account struct {
	Name             string
	ReceiveDepth     uint32
	ChangeDepth      uint32
	Lookahead        uint32
	LookaheadCeiling uint32 // 0 means unlimited

	receiveWindow map[ScriptHash]uint32 // scriptHash -> index, within [0, receiveDepth+lookahead)
	changeWindow  map[ScriptHash]uint32
}

func newAccount(name string, lookahead, ceiling uint32) *Account {
	return &Account{
		Name:             name,
		Lookahead:        lookahead,
		LookaheadCeiling: ceiling,
		receiveWindow:    make(map[ScriptHash]uint32),
		changeWindow:     make(map[ScriptHash]uint32),
	}
}

func (a *Account) window(branch Branch) map[ScriptHash]uint32 {
	if branch == BranchReceive {
		return a.receiveWindow
	}
	return a.changeWindow
}

func (a *Account) depth(branch Branch) uint32 {
	if branch == BranchReceive {
		return a.ReceiveDepth
	}
	return a.ChangeDepth
}

func (a *Account) setDepth(branch Branch, d uint32) {
	if branch == BranchReceive {
		a.ReceiveDepth = d
	} else {
		a.ChangeDepth = d
	}
}

// Manager is the per-wallet address book (component B). Not
// goroutine-safe by itself; the engine serializes access per wallet
// (spec.md §5).
type Manager struct {
	deriver  Deriver
	accounts map[string]*Account
	// ownerIndex is a flattened reverse lookup across every account for
	// O(1) ownerOf, mirroring the role of waddrmgr's address index.
	ownerIndex map[ScriptHash]Owner
}

// NewManager constructs an address book driven by the given deriver.
func NewManager(deriver Deriver) *Manager {
	return &Manager{
		deriver:    deriver,
		accounts:   make(map[string]*Account),
		ownerIndex: make(map[ScriptHash]Owner),
	}
}

// CreateAccount registers a new account with the given lookahead window
// and (optional, 0 = unlimited) lookahead ceiling, and derives its
// initial window. Returns ErrDuplicateAccount if the name is taken.
func (m *Manager) CreateAccount(name string, lookahead, ceiling uint32) (*Account, er.R) {
	if _, ok := m.accounts[name]; ok {
		return nil, managerError(ErrDuplicateAccount, name, nil)
	}
	a := newAccount(name, lookahead, ceiling)
	m.accounts[name] = a
	if err := m.extendWindow(a, BranchReceive); err != nil {
		return nil, err
	}
	if err := m.extendWindow(a, BranchChange); err != nil {
		return nil, err
	}
	return a, nil
}

// Account returns the named account, or ErrAccountNotFound.
func (m *Manager) Account(name string) (*Account, er.R) {
	a, ok := m.accounts[name]
	if !ok {
		return nil, managerError(ErrAccountNotFound, name, nil)
	}
	return a, nil
}

// Accounts returns every account name known to the manager.
func (m *Manager) Accounts() []string {
	names := make([]string, 0, len(m.accounts))
	for n := range m.accounts {
		names = append(names, n)
	}
	return names
}

// OwnerOf reports whether a script hash is owned by this wallet and by
// which account/branch/index (spec.md §4.B: "ownerOf(output)"). ok is
// false for foreign outputs.
func (m *Manager) OwnerOf(sh ScriptHash) (Owner, bool) {
	o, ok := m.ownerIndex[sh]
	return o, ok
}

// EnsureIndex derives and registers addresses up to index inclusive on
// the given branch of the named account. Idempotent (spec.md §4.B).
func (m *Manager) EnsureIndex(account string, branch Branch, index uint32) er.R {
	if !branch.valid() {
		return managerError(ErrInvalidBranch, "", nil)
	}
	a, err := m.Account(account)
	if err != nil {
		return err
	}
	return m.ensureIndex(a, branch, index)
}

func (m *Manager) ensureIndex(a *Account, branch Branch, index uint32) er.R {
	w := a.window(branch)
	for i := uint32(0); i <= index; i++ {
		sh := m.deriver.Derive(a.Name, branch, i)
		if _, ok := w[sh]; ok {
			continue
		}
		w[sh] = i
		m.ownerIndex[sh] = Owner{Account: a.Name, Branch: branch, Index: i}
	}
	return nil
}

// extendWindow derives the full [0, depth+lookahead) window for a
// branch; used on account creation and whenever depth advances.
func (m *Manager) extendWindow(a *Account, branch Branch) er.R {
	top := a.depth(branch) + a.Lookahead
	if top == 0 {
		return nil
	}
	return m.ensureIndex(a, branch, top-1)
}

// AdvanceDepth sets receiveDepth (or changeDepth) to max(current,
// index+1) and extends the indexed lookup accordingly, satisfying the
// contract of spec.md §4.B: after AdvanceDepth(_, i), OwnerOf recognises
// every address with index <= i+lookahead.
//
// If the new depth would push the window past the configured lookahead
// ceiling, the depth still advances (credits must still be recognised)
// but window derivation stops at the ceiling and ErrLookaheadExhausted
// is returned alongside the (still valid) advance, per spec.md §7.
func (m *Manager) AdvanceDepth(account string, branch Branch, index uint32) er.R {
	if !branch.valid() {
		return managerError(ErrInvalidBranch, "", nil)
	}
	a, err := m.Account(account)
	if err != nil {
		return err
	}
	if index+1 > a.depth(branch) {
		a.setDepth(branch, index+1)
	}
	top := a.depth(branch) + a.Lookahead
	if a.LookaheadCeiling > 0 && top > a.LookaheadCeiling {
		top = a.LookaheadCeiling
		if top > 0 {
			if ierr := m.ensureIndex(a, branch, top-1); ierr != nil {
				return ierr
			}
		}
		return managerError(ErrLookaheadExhausted, account, nil)
	}
	if top == 0 {
		return nil
	}
	return m.ensureIndex(a, branch, top-1)
}

// NextReceive returns the account's current receive address without
// advancing receiveDepth: the address is already derived (it sits
// inside the lookahead window), and depth only moves forward once the
// chain shows the address has actually been used (spec.md §4.B).
func (m *Manager) NextReceive(account string) (ScriptHash, uint32, er.R) {
	a, err := m.Account(account)
	if err != nil {
		return ScriptHash{}, 0, err
	}
	idx := a.ReceiveDepth
	if err := m.ensureIndex(a, BranchReceive, idx); err != nil {
		return ScriptHash{}, 0, err
	}
	return m.deriver.Derive(a.Name, BranchReceive, idx), idx, nil
}

// MarkUsed is a no-op bookkeeping hook kept for parity with
// waddrmgr.Manager.MarkUsed (spec.md §5 supplement): discovery calls it
// whenever a credit lands on an address so future balance dumps can
// report "used" addresses distinctly from untouched lookahead slack.
// The window/ownerIndex bookkeeping above is sufficient for balance
// correctness; MarkUsed exists purely as the documented extension
// point the rest of the host (coin selection, address rotation UI)
// hooks into.
func (m *Manager) MarkUsed(sh ScriptHash) bool {
	_, ok := m.ownerIndex[sh]
	return ok
}
