// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Database accessors for durable wallet state. Handles storage and
// retrieval of account key sets, nonce counters and consumed multichain
// digests so an engine can be rehydrated across process restarts.

package rawdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/tidelabs/go-tide/core/wallet"
)

var (
	// accountKeysPrefix + account -> RLP key list
	accountKeysPrefix = []byte("wak-")

	// noncePrefix + account + seqKey -> 8-byte counter
	noncePrefix = []byte("wan-")

	// multichainPrefix + account + digest -> empty (existence check)
	multichainPrefix = []byte("wam-")

	// spendStatePrefix + account -> RLP spend-limit list
	spendStatePrefix = []byte("was-")
)

func accountKeysKey(account common.Address) []byte {
	return append(accountKeysPrefix, account.Bytes()...)
}

func nonceKey(account common.Address, seqKey [24]byte) []byte {
	key := make([]byte, 0, len(noncePrefix)+20+24)
	key = append(key, noncePrefix...)
	key = append(key, account.Bytes()...)
	key = append(key, seqKey[:]...)
	return key
}

func multichainKey(account common.Address, digest common.Hash) []byte {
	key := make([]byte, 0, len(multichainPrefix)+20+32)
	key = append(key, multichainPrefix...)
	key = append(key, account.Bytes()...)
	key = append(key, digest.Bytes()...)
	return key
}

// WriteAccountKeys writes an account's full key set.
func WriteAccountKeys(db ethdb.KeyValueWriter, account common.Address, keys []*wallet.Key) {
	data, err := rlp.EncodeToBytes(keys)
	if err != nil {
		panic("failed to encode account keys: " + err.Error())
	}
	if err := db.Put(accountKeysKey(account), data); err != nil {
		panic("failed to write account keys: " + err.Error())
	}
}

// ReadAccountKeys reads an account's key set; nil if none stored.
func ReadAccountKeys(db ethdb.KeyValueReader, account common.Address) []*wallet.Key {
	data, err := db.Get(accountKeysKey(account))
	if err != nil || len(data) == 0 {
		return nil
	}
	var keys []*wallet.Key
	if err := rlp.DecodeBytes(data, &keys); err != nil {
		return nil
	}
	return keys
}

// DeleteAccountKeys removes an account's stored key set.
func DeleteAccountKeys(db ethdb.KeyValueWriter, account common.Address) {
	if err := db.Delete(accountKeysKey(account)); err != nil {
		panic("failed to delete account keys: " + err.Error())
	}
}

func spendStateKey(account common.Address) []byte {
	return append(spendStatePrefix, account.Bytes()...)
}

// WriteAccountSpendState writes an account's full spend-limit state,
// including accrued spend and window starts.
func WriteAccountSpendState(db ethdb.KeyValueWriter, account common.Address, spends []wallet.SpendState) {
	data, err := rlp.EncodeToBytes(spends)
	if err != nil {
		panic("failed to encode spend state: " + err.Error())
	}
	if err := db.Put(spendStateKey(account), data); err != nil {
		panic("failed to write spend state: " + err.Error())
	}
}

// ReadAccountSpendState reads an account's spend-limit state; nil if none
// stored.
func ReadAccountSpendState(db ethdb.KeyValueReader, account common.Address) []wallet.SpendState {
	data, err := db.Get(spendStateKey(account))
	if err != nil || len(data) == 0 {
		return nil
	}
	var spends []wallet.SpendState
	if err := rlp.DecodeBytes(data, &spends); err != nil {
		return nil
	}
	return spends
}

// DeleteAccountSpendState removes an account's stored spend-limit state.
func DeleteAccountSpendState(db ethdb.KeyValueWriter, account common.Address) {
	if err := db.Delete(spendStateKey(account)); err != nil {
		panic("failed to delete spend state: " + err.Error())
	}
}

// WriteSequenceNonce writes the counter for one (account, seqKey) stream.
func WriteSequenceNonce(db ethdb.KeyValueWriter, account common.Address, seqKey [24]byte, counter uint64) {
	data := make([]byte, 8)
	data[0] = byte(counter >> 56)
	data[1] = byte(counter >> 48)
	data[2] = byte(counter >> 40)
	data[3] = byte(counter >> 32)
	data[4] = byte(counter >> 24)
	data[5] = byte(counter >> 16)
	data[6] = byte(counter >> 8)
	data[7] = byte(counter)

	if err := db.Put(nonceKey(account, seqKey), data); err != nil {
		panic("failed to write sequence nonce: " + err.Error())
	}
}

// ReadSequenceNonce reads the counter for one (account, seqKey) stream.
func ReadSequenceNonce(db ethdb.KeyValueReader, account common.Address, seqKey [24]byte) (uint64, bool) {
	data, err := db.Get(nonceKey(account, seqKey))
	if err != nil || len(data) != 8 {
		return 0, false
	}
	counter := uint64(data[0])<<56 | uint64(data[1])<<48 | uint64(data[2])<<40 |
		uint64(data[3])<<32 | uint64(data[4])<<24 | uint64(data[5])<<16 |
		uint64(data[6])<<8 | uint64(data[7])
	return counter, true
}

// WriteMultichainDigest marks a multichain intent digest as consumed in
// this execution context.
func WriteMultichainDigest(db ethdb.KeyValueWriter, account common.Address, digest common.Hash) {
	if err := db.Put(multichainKey(account, digest), []byte{}); err != nil {
		panic("failed to write multichain digest: " + err.Error())
	}
}

// HasMultichainDigest checks whether a multichain digest was consumed.
func HasMultichainDigest(db ethdb.KeyValueReader, account common.Address, digest common.Hash) bool {
	has, _ := db.Has(multichainKey(account, digest))
	return has
}

// DeleteMultichainDigest removes a consumed-digest marker (for reorgs).
func DeleteMultichainDigest(db ethdb.KeyValueWriter, account common.Address, digest common.Hash) {
	if err := db.Delete(multichainKey(account, digest)); err != nil {
		panic("failed to delete multichain digest: " + err.Error())
	}
}

// IterateAccountNonces iterates all persisted nonce streams of an account.
func IterateAccountNonces(db ethdb.Iteratee, account common.Address, fn func(seqKey [24]byte, counter uint64) bool) {
	prefix := append(append([]byte{}, noncePrefix...), account.Bytes()...)
	it := db.NewIterator(prefix, nil)
	defer it.Release()

	for it.Next() {
		key := it.Key()
		value := it.Value()
		if len(key) != len(prefix)+24 || len(value) != 8 {
			continue
		}
		var seqKey [24]byte
		copy(seqKey[:], key[len(prefix):])
		counter := uint64(value[0])<<56 | uint64(value[1])<<48 | uint64(value[2])<<40 |
			uint64(value[3])<<32 | uint64(value[4])<<24 | uint64(value[5])<<16 |
			uint64(value[6])<<8 | uint64(value[7])
		if !fn(seqKey, counter) {
			break
		}
	}
}
