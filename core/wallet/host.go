// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.

package wallet

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tidelabs/go-tide/core/types"
)

// NativeToken is the token address denoting the environment's native asset.
var NativeToken = common.Address{}

// Host is the execution environment the engine runs inside. It provides
// balance accounting, the raw call primitive and a snapshot/revert pair; the
// environment serializes all mutating operations, so implementations need no
// internal locking for engine use.
type Host interface {
	// BalanceOf returns addr's balance of token (NativeToken for the
	// native asset).
	BalanceOf(token, addr common.Address) *uint256.Int

	// Transfer moves amount of token between accounts, failing on
	// insufficient balance without partial effect.
	Transfer(token, from, to common.Address, amount *uint256.Int) error

	// Call executes a single raw call from the account.
	Call(from common.Address, call types.Call) error

	// Snapshot returns an identifier for the current state; RevertToSnapshot
	// rolls every balance and call effect back to it.
	Snapshot() int
	RevertToSnapshot(id int)

	// ChainID identifies the execution context for digest binding.
	ChainID() uint64

	// Timestamp is the wall-clock time of the current transition, in unix
	// seconds.
	Timestamp() uint64
}
