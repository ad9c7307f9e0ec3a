// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Two-dimensional nonce sequencer: the high 192 bits of a nonce select a
// sequence key, the low 64 bits are a per-stream counter. The reserved
// multichain stream is tracked by a per-digest consumed set instead of a
// monotonic counter.

package wallet

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tidelabs/go-tide/core/types"
)

// GetNonce returns the next expected nonce on the given sequence key:
// seqKey in the high bits, the stored counter in the low 64.
func (e *Engine) GetNonce(account common.Address, seqKey [24]byte) *uint256.Int {
	var counter uint64
	if st, ok := e.accounts[account]; ok {
		counter = st.nonces[seqKey]
	}
	var b [32]byte
	copy(b[:24], seqKey[:])
	n := new(uint256.Int).SetBytes(b[:])
	return n.Or(n, uint256.NewInt(counter))
}

// checkNonce validates the presented nonce without consuming it, so the
// sequencer can gate the pipeline before any signature work.
func (e *Engine) checkNonce(account common.Address, nonce *uint256.Int, digest common.Hash) error {
	if nonce == nil {
		return ErrInvalidNonce
	}
	st, ok := e.accounts[account]
	if types.IsMultichainNonce(nonce) {
		if ok {
			if _, used := st.multichainUsed[digest]; used {
				return fmt.Errorf("%w: multichain intent already executed in this context", ErrInvalidNonce)
			}
		}
		return nil
	}
	var current uint64
	if ok {
		current = st.nonces[types.SeqKey(nonce)]
	}
	if current == math.MaxUint64 {
		return ErrNonceSaturated
	}
	if c := types.SeqCounter(nonce); c != current {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, current, c)
	}
	return nil
}

// checkAndUseNonce validates the presented nonce and consumes it. Ordinary
// streams require the counter to equal the stored value exactly, then
// increment; a saturated counter permanently locks its stream. Multichain
// nonces are consumed by recording the intent digest in the per-context
// consumed set.
func (e *Engine) checkAndUseNonce(account common.Address, nonce *uint256.Int, digest common.Hash) error {
	if nonce == nil {
		return ErrInvalidNonce
	}
	st := e.state(account)
	if types.IsMultichainNonce(nonce) {
		if _, used := st.multichainUsed[digest]; used {
			return fmt.Errorf("%w: multichain intent already executed in this context", ErrInvalidNonce)
		}
		st.multichainUsed[digest] = struct{}{}
		e.journal.append(multichainConsumedChange{account: account, digest: digest})
		return nil
	}

	seqKey := types.SeqKey(nonce)
	counter := types.SeqCounter(nonce)
	current, existed := st.nonces[seqKey]
	if current == math.MaxUint64 {
		return ErrNonceSaturated
	}
	if counter != current {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, current, counter)
	}
	e.journal.append(nonceChange{account: account, seqKey: seqKey, prev: current, existed: existed})
	st.nonces[seqKey] = current + 1
	return nil
}

// RestoreNonce seeds a sequence stream's counter, used when rehydrating an
// engine from durable storage. It never moves a counter backwards.
func (e *Engine) RestoreNonce(account common.Address, seqKey [24]byte, counter uint64) {
	st := e.state(account)
	if counter > st.nonces[seqKey] {
		st.nonces[seqKey] = counter
	}
}

// RestoreMultichainDigest seeds the consumed set, used when rehydrating an
// engine from durable storage.
func (e *Engine) RestoreMultichainDigest(account common.Address, digest common.Hash) {
	e.state(account).multichainUsed[digest] = struct{}{}
}

// MultichainConsumed reports whether a multichain digest was already
// executed in this context.
func (e *Engine) MultichainConsumed(account common.Address, digest common.Hash) bool {
	st, ok := e.accounts[account]
	if !ok {
		return false
	}
	_, used := st.multichainUsed[digest]
	return used
}

// Nonces iterates the account's sequence streams.
func (e *Engine) Nonces(account common.Address, fn func(seqKey [24]byte, counter uint64) bool) {
	st, ok := e.accounts[account]
	if !ok {
		return
	}
	for seqKey, counter := range st.nonces {
		if !fn(seqKey, counter) {
			return
		}
	}
}

// InvalidateNonce advances a sequence stream past the given nonce,
// cancelling every not-yet-used nonce up to and including it. The counter
// only ever moves forward. This is the account's sole cancellation
// primitive for already-signed Intents.
func (e *Engine) InvalidateNonce(account common.Address, nonce *uint256.Int) error {
	if nonce == nil || types.IsMultichainNonce(nonce) {
		return ErrInvalidNonce
	}
	st := e.state(account)
	seqKey := types.SeqKey(nonce)
	counter := types.SeqCounter(nonce)
	current, existed := st.nonces[seqKey]

	next := counter + 1
	if counter == math.MaxUint64 {
		next = math.MaxUint64 // saturate, locking the stream
	}
	if next < current {
		return ErrNewNonceTooSmall
	}
	e.journal.append(nonceChange{account: account, seqKey: seqKey, prev: current, existed: existed})
	st.nonces[seqKey] = next
	return nil
}
