// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Intent is the relayer-submitted execution envelope: a signed bundle of
// calls, payment terms and sequencing metadata executed on behalf of a
// smart account.

package types

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	ErrMalformedIntent = errors.New("malformed intent encoding")
)

// MultichainNoncePrefix marks the reserved sequence-key prefix. A nonce whose
// top 16 bits equal this value is tracked per execution context instead of
// monotonically, so one signed Intent may run once per context.
const MultichainNoncePrefix = uint16(0xc1d0)

// intentDomain binds digests to this wallet implementation and version.
var intentDomain = crypto.Keccak256Hash([]byte("TideIntent(version 1)"))

// preCallDomain separates pre-call digests from top-level Intent digests.
var preCallDomain = crypto.Keccak256Hash([]byte("TidePreCall(version 1)"))

// Call is a single call to be executed from the account.
type Call struct {
	To    common.Address
	Value *uint256.Int
	Data  []byte
}

// Selector returns the 4-byte function selector of the call data, or zero
// for calls with no calldata (plain value transfers).
func (c *Call) Selector() [4]byte {
	var sel [4]byte
	if len(c.Data) >= 4 {
		copy(sel[:], c.Data[:4])
	}
	return sel
}

// Transfer names a token amount moved by a funder on behalf of an account.
type Transfer struct {
	Token  common.Address
	Amount *uint256.Int
}

// PreCall is a nested, independently signed sub-Intent processed before an
// Intent's main body. Commonly used to authorize a fresh key atomically with
// the first Intent that key signs.
type PreCall struct {
	Account   common.Address
	Calls     []Call
	Nonce     *uint256.Int
	Signature []byte
}

// Intent bundles the calls to execute, relayer payment terms and sequencing
// metadata. It is ephemeral: constructed off-chain, submitted once, then
// consumed or rejected.
type Intent struct {
	Account common.Address
	Calls   []Call
	Nonce   *uint256.Int

	// Payment terms for the submitting relayer.
	Payer            common.Address // zero means the account pays
	PaymentToken     common.Address // zero means the native asset
	PaymentAmount    *uint256.Int
	PaymentMaxAmount *uint256.Int
	PaymentRecipient common.Address // zero means the relayer
	PaymentPriority  [32]byte       // packed priority/auction word, zero = none
	PaymentSignature []byte         // required when Payer != Account

	CombinedGas uint64
	Expiry      uint64 // unix seconds, 0 = never

	PreCalls        []PreCall
	FundTransfers   []Transfer
	Funder          common.Address
	FunderSignature []byte
	Settler         common.Address

	// SupportedImplementation pins the account implementation the signer
	// audited; zero accepts any.
	SupportedImplementation common.Hash

	Signature []byte
}

// EncodeIntent serializes an Intent with RLP.
func EncodeIntent(in *Intent) ([]byte, error) {
	var buf bytes.Buffer
	if err := rlp.Encode(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeIntent parses an RLP-encoded Intent.
func DecodeIntent(data []byte) (*Intent, error) {
	in := new(Intent)
	if err := rlp.DecodeBytes(data, in); err != nil {
		return nil, ErrMalformedIntent
	}
	return in, nil
}

// SeqKey returns the 192-bit sequence key portion of a nonce (high bits).
func SeqKey(nonce *uint256.Int) [24]byte {
	var key [24]byte
	b := nonce.Bytes32()
	copy(key[:], b[:24])
	return key
}

// SeqCounter returns the 64-bit counter portion of a nonce (low bits).
func SeqCounter(nonce *uint256.Int) uint64 {
	return nonce.Uint64()
}

// IsMultichainNonce reports whether the nonce belongs to the reserved
// multichain sequence-key stream.
func IsMultichainNonce(nonce *uint256.Int) bool {
	b := nonce.Bytes32()
	return uint16(b[0])<<8|uint16(b[1]) == MultichainNoncePrefix
}

// IsMultichain reports whether the Intent opts into once-per-context replay.
func (in *Intent) IsMultichain() bool {
	return in.Nonce != nil && IsMultichainNonce(in.Nonce)
}

// Digest computes the canonical signing digest of the Intent. Signatures are
// excluded. Multichain Intents omit the chain id so one signed payload is
// valid on every execution context; everything else is chain-bound.
func (in *Intent) Digest(chainID uint64) common.Hash {
	packed := make([]byte, 0, 512)
	packed = append(packed, intentDomain.Bytes()...)
	if !in.IsMultichain() {
		packed = append(packed, u64Word(chainID)...)
	}
	packed = append(packed, in.Account.Bytes()...)
	packed = append(packed, hashCalls(in.Calls).Bytes()...)
	packed = append(packed, u256Word(in.Nonce)...)
	packed = append(packed, in.Payer.Bytes()...)
	packed = append(packed, in.PaymentToken.Bytes()...)
	packed = append(packed, u256Word(in.PaymentAmount)...)
	packed = append(packed, u256Word(in.PaymentMaxAmount)...)
	packed = append(packed, in.PaymentRecipient.Bytes()...)
	packed = append(packed, in.PaymentPriority[:]...)
	packed = append(packed, u64Word(in.CombinedGas)...)
	packed = append(packed, u64Word(in.Expiry)...)
	packed = append(packed, hashPreCalls(in.PreCalls).Bytes()...)
	packed = append(packed, hashTransfers(in.FundTransfers).Bytes()...)
	packed = append(packed, in.Funder.Bytes()...)
	packed = append(packed, in.Settler.Bytes()...)
	packed = append(packed, in.SupportedImplementation.Bytes()...)
	return crypto.Keccak256Hash(packed)
}

// IsMultichain reports whether the pre-call opts into once-per-context replay.
func (pc *PreCall) IsMultichain() bool {
	return pc.Nonce != nil && IsMultichainNonce(pc.Nonce)
}

// Digest computes the signing digest of a pre-call. The enclosing Intent's
// signature does not cover pre-call signatures, so each pre-call is
// independently authorized.
func (pc *PreCall) Digest(chainID uint64) common.Hash {
	packed := make([]byte, 0, 160)
	packed = append(packed, preCallDomain.Bytes()...)
	if !pc.IsMultichain() {
		packed = append(packed, u64Word(chainID)...)
	}
	packed = append(packed, pc.Account.Bytes()...)
	packed = append(packed, hashCalls(pc.Calls).Bytes()...)
	packed = append(packed, u256Word(pc.Nonce)...)
	return crypto.Keccak256Hash(packed)
}

func hashCalls(calls []Call) common.Hash {
	packed := make([]byte, 0, 96*len(calls))
	for i := range calls {
		packed = append(packed, calls[i].To.Bytes()...)
		packed = append(packed, u256Word(calls[i].Value)...)
		packed = append(packed, crypto.Keccak256(calls[i].Data)...)
	}
	return crypto.Keccak256Hash(packed)
}

func hashPreCalls(pcs []PreCall) common.Hash {
	packed := make([]byte, 0, 32*len(pcs))
	for i := range pcs {
		inner := make([]byte, 0, 96)
		inner = append(inner, pcs[i].Account.Bytes()...)
		inner = append(inner, hashCalls(pcs[i].Calls).Bytes()...)
		inner = append(inner, u256Word(pcs[i].Nonce)...)
		packed = append(packed, crypto.Keccak256(inner)...)
	}
	return crypto.Keccak256Hash(packed)
}

func hashTransfers(ts []Transfer) common.Hash {
	packed := make([]byte, 0, 52*len(ts))
	for i := range ts {
		packed = append(packed, ts[i].Token.Bytes()...)
		packed = append(packed, u256Word(ts[i].Amount)...)
	}
	return crypto.Keccak256Hash(packed)
}

func u256Word(v *uint256.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	b := v.Bytes32()
	return b[:]
}

func u64Word(v uint64) []byte {
	b := make([]byte, 32)
	b[24] = byte(v >> 56)
	b[25] = byte(v >> 48)
	b[26] = byte(v >> 40)
	b[27] = byte(v >> 32)
	b[28] = byte(v >> 24)
	b[29] = byte(v >> 16)
	b[30] = byte(v >> 8)
	b[31] = byte(v)
	return b
}
