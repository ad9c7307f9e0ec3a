// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Journal of engine state mutations. Every write to per-account state is
// paired with an inverse entry so any phase of an Intent can be rolled back
// to a checkpoint within the enclosing state transition.

package wallet

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// journalEntry undoes one state mutation.
type journalEntry interface {
	revert(e *Engine)
}

type journal struct {
	entries []journalEntry
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

// revertTo unwinds entries down to the given length, newest first.
func (j *journal) revertTo(e *Engine, length int) {
	for i := len(j.entries) - 1; i >= length; i-- {
		j.entries[i].revert(e)
	}
	j.entries = j.entries[:length]
}

type createAccountChange struct {
	account common.Address
}

func (ch createAccountChange) revert(e *Engine) {
	delete(e.accounts, ch.account)
}

type keyAuthorizedChange struct {
	account common.Address
	hash    common.Hash
}

func (ch keyAuthorizedChange) revert(e *Engine) {
	e.accounts[ch.account].removeKey(ch.hash)
}

type keyReplacedChange struct {
	account common.Address
	hash    common.Hash
	prev    *Key
}

func (ch keyReplacedChange) revert(e *Engine) {
	st := e.accounts[ch.account]
	st.keys[st.keyIndex[ch.hash]] = ch.prev
}

type keyRevokedChange struct {
	account common.Address
	prev    *Key
	index   int
}

func (ch keyRevokedChange) revert(e *Engine) {
	e.accounts[ch.account].restoreKey(ch.prev, ch.index)
}

type nonceChange struct {
	account common.Address
	seqKey  [24]byte
	prev    uint64
	existed bool
}

func (ch nonceChange) revert(e *Engine) {
	st := e.accounts[ch.account]
	if ch.existed {
		st.nonces[ch.seqKey] = ch.prev
	} else {
		delete(st.nonces, ch.seqKey)
	}
}

type multichainConsumedChange struct {
	account common.Address
	digest  common.Hash
}

func (ch multichainConsumedChange) revert(e *Engine) {
	delete(e.accounts[ch.account].multichainUsed, ch.digest)
}

type spendLimitChange struct {
	account common.Address
	id      spendID
	prev    *SpendLimit
}

func (ch spendLimitChange) revert(e *Engine) {
	st := e.accounts[ch.account]
	if ch.prev != nil {
		st.spends[ch.id] = ch.prev
	} else {
		delete(st.spends, ch.id)
	}
}

type spendStateChange struct {
	account   common.Address
	id        spendID
	prevSpent *uint256.Int
	prevStart uint64
}

func (ch spendStateChange) revert(e *Engine) {
	limit := e.accounts[ch.account].spends[ch.id]
	limit.Spent = ch.prevSpent
	limit.WindowStart = ch.prevStart
}

type callPermChange struct {
	account common.Address
	id      permID
	prev    *CallPermission
}

func (ch callPermChange) revert(e *Engine) {
	st := e.accounts[ch.account]
	if ch.prev != nil {
		st.perms[ch.id] = ch.prev
	} else {
		delete(st.perms, ch.id)
	}
}

type delegationChange struct {
	account common.Address
	id      delegationID
	prior   bool
}

func (ch delegationChange) revert(e *Engine) {
	st := e.accounts[ch.account]
	if ch.prior {
		st.delegations[ch.id] = struct{}{}
	} else {
		delete(st.delegations, ch.id)
	}
}

type parentKeyChange struct {
	account common.Address
	hash    common.Hash
	prior   bool
}

func (ch parentKeyChange) revert(e *Engine) {
	st := e.accounts[ch.account]
	if ch.prior {
		st.parentKeys[ch.hash] = struct{}{}
	} else {
		delete(st.parentKeys, ch.hash)
	}
}
