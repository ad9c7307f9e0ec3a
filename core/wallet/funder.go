// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.

package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tidelabs/go-tide/core/types"
)

// Funder fronts liquidity into an account before payment and execution,
// authorized by a signature over the intent digest and the exact transfer
// set.
type Funder interface {
	Fund(host Host, account common.Address, digest common.Hash, transfers []types.Transfer, sig []byte) error
}

// SimpleFunder pays fund transfers out of a fixed source address when the
// request carries a valid signature from the configured signer key.
type SimpleFunder struct {
	Source common.Address
	Signer common.Address
}

// FundDigest is the message a funder signer commits to: the intent digest
// bound to the account and the transfer set.
func FundDigest(account common.Address, digest common.Hash, transfers []types.Transfer) common.Hash {
	packed := make([]byte, 0, 52+52*len(transfers))
	packed = append(packed, digest.Bytes()...)
	packed = append(packed, account.Bytes()...)
	for i := range transfers {
		packed = append(packed, transfers[i].Token.Bytes()...)
		amt := transfers[i].Amount.Bytes32()
		packed = append(packed, amt[:]...)
	}
	return crypto.Keccak256Hash(packed)
}

// Fund verifies the signer's authorization and moves each transfer from the
// source into the account.
func (f *SimpleFunder) Fund(host Host, account common.Address, digest common.Hash, transfers []types.Transfer, sig []byte) error {
	if !verifyECDSA(FundDigest(account, digest, transfers), sig, f.Signer) {
		return fmt.Errorf("%w: funder authorization", ErrInvalidSignature)
	}
	for i := range transfers {
		if err := host.Transfer(transfers[i].Token, f.Source, account, transfers[i].Amount); err != nil {
			return fmt.Errorf("fund transfer %d: %w", i, err)
		}
	}
	return nil
}
