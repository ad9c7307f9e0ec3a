// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.

package wallet

import (
	"github.com/ethereum/go-ethereum/common"
)

// implementationHash identifies this engine build for Intents that pin the
// account implementation they were signed against.
var implementationHash = common.HexToHash("0x7469646557616c6c657456310000000000000000000000000000000000000000")

type spendID struct {
	key    common.Hash
	token  common.Address
	period SpendPeriod
}

type permID struct {
	key      common.Hash
	target   common.Address
	selector [4]byte
}

type delegationID struct {
	sub common.Address
	key common.Hash
}

// accountState is the owned, keyed store of one account's wallet state:
// keys, nonce counters, spend windows and approval records. It is indexed
// from the engine by account identity and only ever mutated through
// journaled operations.
type accountState struct {
	keys     []*Key
	keyIndex map[common.Hash]int

	nonces         map[[24]byte]uint64
	multichainUsed map[common.Hash]struct{}

	spends map[spendID]*SpendLimit
	perms  map[permID]*CallPermission

	// delegations records which sub-account may use which of this account's
	// keys through an external-reference credential.
	delegations map[delegationID]struct{}

	// parentKeys may pull from this account without spend checks (fund
	// recovery by a parent account).
	parentKeys map[common.Hash]struct{}
}

func newAccountState() *accountState {
	return &accountState{
		keyIndex:       make(map[common.Hash]int),
		nonces:         make(map[[24]byte]uint64),
		multichainUsed: make(map[common.Hash]struct{}),
		spends:         make(map[spendID]*SpendLimit),
		perms:          make(map[permID]*CallPermission),
		delegations:    make(map[delegationID]struct{}),
		parentKeys:     make(map[common.Hash]struct{}),
	}
}

// removeKey deletes a key by hash using swap-remove, keeping the index map
// consistent. Returns the removed key and its former slot.
func (st *accountState) removeKey(hash common.Hash) (*Key, int) {
	i, ok := st.keyIndex[hash]
	if !ok {
		return nil, -1
	}
	removed := st.keys[i]
	last := len(st.keys) - 1
	st.keys[i] = st.keys[last]
	st.keyIndex[st.keys[i].Hash()] = i
	st.keys = st.keys[:last]
	delete(st.keyIndex, hash)
	return removed, i
}

// restoreKey undoes removeKey, putting the key back into its original slot.
func (st *accountState) restoreKey(k *Key, index int) {
	st.keys = append(st.keys, k)
	j := len(st.keys) - 1
	st.keys[index], st.keys[j] = st.keys[j], st.keys[index]
	st.keyIndex[st.keys[j].Hash()] = j
	st.keyIndex[st.keys[index].Hash()] = index
}

// Engine holds all per-account wallet state and the collaborator
// registries. One engine serves one execution context; the host environment
// serializes every mutating operation, so the engine carries no locks.
type Engine struct {
	accounts map[common.Address]*accountState
	journal  *journal

	checkers map[common.Address]CallChecker
	funders  map[common.Address]Funder
}

// New creates an empty wallet engine.
func New() *Engine {
	return &Engine{
		accounts: make(map[common.Address]*accountState),
		journal:  newJournal(),
		checkers: make(map[common.Address]CallChecker),
		funders:  make(map[common.Address]Funder),
	}
}

// state returns the account's state store, creating it on first touch.
func (e *Engine) state(account common.Address) *accountState {
	st, ok := e.accounts[account]
	if !ok {
		st = newAccountState()
		e.accounts[account] = st
		e.journal.append(createAccountChange{account: account})
	}
	return st
}

// RegisterCallChecker registers a dynamic-approval checker reachable from
// call permissions by address.
func (e *Engine) RegisterCallChecker(addr common.Address, c CallChecker) {
	e.checkers[addr] = c
}

// RegisterFunder registers a liquidity-fronting collaborator by address.
func (e *Engine) RegisterFunder(addr common.Address, f Funder) {
	e.funders[addr] = f
}

// checkpoint captures engine and host state so a later phase can be rolled
// back as a unit.
type checkpoint struct {
	journal int
	host    int
}

func (e *Engine) checkpoint(host Host) checkpoint {
	return checkpoint{journal: e.journal.length(), host: host.Snapshot()}
}

func (e *Engine) revertTo(host Host, cp checkpoint) {
	host.RevertToSnapshot(cp.host)
	e.journal.revertTo(e, cp.journal)
}
