// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.

package types

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func sampleIntent() *Intent {
	return &Intent{
		Account: common.HexToAddress("0xacc0"),
		Calls: []Call{
			{To: common.HexToAddress("0x1111"), Value: uint256.NewInt(5), Data: []byte{0x01, 0x02}},
			{To: common.HexToAddress("0x2222"), Value: new(uint256.Int), Data: nil},
		},
		Nonce:            uint256.NewInt(7),
		Payer:            common.HexToAddress("0x3333"),
		PaymentToken:     common.HexToAddress("0x4444"),
		PaymentAmount:    uint256.NewInt(10),
		PaymentMaxAmount: uint256.NewInt(20),
		PaymentRecipient: common.HexToAddress("0x5555"),
		PaymentSignature: []byte{0xaa},
		CombinedGas:      300_000,
		Expiry:           1_800_000_000,
		PreCalls: []PreCall{{
			Account:   common.HexToAddress("0x6666"),
			Calls:     []Call{{To: common.HexToAddress("0x7777"), Value: new(uint256.Int)}},
			Nonce:     uint256.NewInt(1),
			Signature: []byte{0xbb},
		}},
		FundTransfers: []Transfer{{Token: common.HexToAddress("0x8888"), Amount: uint256.NewInt(50)}},
		Funder:        common.HexToAddress("0x9999"),
		Settler:       common.HexToAddress("0xcccc"),
		Signature:     []byte{0xdd, 0xee},
	}
}

func TestIntentEncodingRoundTrip(t *testing.T) {
	in := sampleIntent()
	enc, err := EncodeIntent(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := DecodeIntent(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Account != in.Account || len(dec.Calls) != 2 || !dec.Nonce.Eq(in.Nonce) {
		t.Fatalf("core fields mismatch: %+v", dec)
	}
	if !bytes.Equal(dec.Calls[0].Data, in.Calls[0].Data) || !dec.Calls[0].Value.Eq(in.Calls[0].Value) {
		t.Fatalf("call mismatch: %+v", dec.Calls[0])
	}
	if dec.Digest(1) != in.Digest(1) {
		t.Fatalf("digest must survive the round trip")
	}
	if !bytes.Equal(dec.Signature, in.Signature) {
		t.Fatalf("signature mismatch")
	}
}

func TestDecodeIntentMalformed(t *testing.T) {
	if _, err := DecodeIntent([]byte{0xff, 0x00}); !errors.Is(err, ErrMalformedIntent) {
		t.Fatalf("want ErrMalformedIntent, got %v", err)
	}
	if _, err := DecodeIntent(nil); !errors.Is(err, ErrMalformedIntent) {
		t.Fatalf("empty input: want ErrMalformedIntent, got %v", err)
	}
}

func TestIntentDigestBindsChain(t *testing.T) {
	in := sampleIntent()
	if in.Digest(1) == in.Digest(5) {
		t.Fatalf("ordinary intents must be chain-bound")
	}
}

func TestIntentDigestExcludesSignatures(t *testing.T) {
	in := sampleIntent()
	d := in.Digest(1)
	in.Signature = []byte{0x01}
	in.PaymentSignature = nil
	if in.Digest(1) != d {
		t.Fatalf("signatures must not feed the digest")
	}
	// Any covered field changes it.
	in.CombinedGas++
	if in.Digest(1) == d {
		t.Fatalf("combined gas must be covered by the digest")
	}
}

func TestMultichainDigestChainIndependent(t *testing.T) {
	in := sampleIntent()
	prefix := new(uint256.Int).Lsh(uint256.NewInt(uint64(MultichainNoncePrefix)), 240)
	in.Nonce = prefix.Or(prefix, uint256.NewInt(3))

	if !in.IsMultichain() {
		t.Fatalf("prefixed nonce should mark the intent multichain")
	}
	if in.Digest(1) != in.Digest(5) {
		t.Fatalf("multichain digest must not bind the chain id")
	}
}

func TestNonceDecomposition(t *testing.T) {
	// seqKey 0xAB..01 in the high 192 bits, counter 0x0102 in the low 64.
	nonce := new(uint256.Int).Lsh(uint256.NewInt(0xab01), 64)
	nonce.Or(nonce, uint256.NewInt(0x0102))

	key := SeqKey(nonce)
	if key[22] != 0xab || key[23] != 0x01 {
		t.Fatalf("seq key low bytes = %x %x", key[22], key[23])
	}
	if got := SeqCounter(nonce); got != 0x0102 {
		t.Fatalf("counter = %x, want 0x0102", got)
	}
	if IsMultichainNonce(nonce) {
		t.Fatalf("ordinary nonce must not look multichain")
	}

	mc := new(uint256.Int).Lsh(uint256.NewInt(uint64(MultichainNoncePrefix)), 240)
	if !IsMultichainNonce(mc) {
		t.Fatalf("prefixed nonce must be multichain")
	}
}

func TestCallSelector(t *testing.T) {
	c := Call{Data: []byte{0xa9, 0x05, 0x9c, 0xbb, 0x00}}
	if c.Selector() != [4]byte{0xa9, 0x05, 0x9c, 0xbb} {
		t.Fatalf("selector mismatch: %x", c.Selector())
	}
	empty := Call{}
	if empty.Selector() != ([4]byte{}) {
		t.Fatalf("value transfer should have a zero selector")
	}
}

func TestPreCallDigestDomainSeparated(t *testing.T) {
	pc := &PreCall{
		Account: common.HexToAddress("0xacc0"),
		Calls:   []Call{{To: common.HexToAddress("0x1111"), Value: new(uint256.Int)}},
		Nonce:   uint256.NewInt(7),
	}
	in := &Intent{Account: pc.Account, Calls: pc.Calls, Nonce: pc.Nonce}
	if pc.Digest(1) == in.Digest(1) {
		t.Fatalf("pre-call digests must not collide with intent digests")
	}
	if pc.Digest(1) == pc.Digest(5) {
		t.Fatalf("ordinary pre-calls must be chain-bound")
	}
}
