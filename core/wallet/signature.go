// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Signature dispatch across the closed set of key types. The wrapped wire
// format is innerSignature ‖ keyHash (32 bytes) ‖ prehashFlag (1 byte); a
// bare 65-byte signature is the account's own secp256k1 key. The prehash
// flag only has meaning for P256 keys, where it asks for verification over
// sha256(digest); every other key type verifies the raw digest and ignores
// the flag.

package wallet

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/tidelabs/go-tide/crypto/p256"
	"github.com/tidelabs/go-tide/crypto/webauthn"
)

const (
	ecdsaSignatureLength = 65
	wrapSuffixLength     = 33 // keyHash (32) + prehash flag (1)
)

// wrappedSignature is the parsed form of the signature wire format.
type wrappedSignature struct {
	inner   []byte
	keyHash common.Hash
	prehash bool
}

// parseSignature splits a wrapped signature. A bare 65-byte signature is
// interpreted as the account's primary key (zero keyHash, no prehash).
func parseSignature(sig []byte) (*wrappedSignature, bool) {
	if len(sig) == ecdsaSignatureLength {
		return &wrappedSignature{inner: sig}, true
	}
	if len(sig) < wrapSuffixLength {
		return nil, false
	}
	split := len(sig) - wrapSuffixLength
	return &wrappedSignature{
		inner:   sig[:split],
		keyHash: common.BytesToHash(sig[split : split+32]),
		prehash: sig[len(sig)-1] != 0,
	}, true
}

// VerifySignature validates a wrapped signature against a digest for the
// named account. It returns validity plus the identity of the signing key;
// a zero key hash denotes the account's own primary secp256k1 key, which is
// always super-admin and never restriction-bound. Expired keys are treated
// as invalid, never as a different key.
func (e *Engine) VerifySignature(host Host, account common.Address, digest common.Hash, sig []byte) (bool, common.Hash) {
	return e.verifySignature(host, account, digest, sig, true)
}

func (e *Engine) verifySignature(host Host, account common.Address, digest common.Hash, sig []byte, allowDelegation bool) (bool, common.Hash) {
	ws, ok := parseSignature(sig)
	if !ok {
		return false, common.Hash{}
	}

	// Zero key hash: the account's own primary key.
	if ws.keyHash == (common.Hash{}) {
		return verifyECDSA(digest, ws.inner, account), common.Hash{}
	}

	key, err := e.GetKey(account, ws.keyHash)
	if err != nil {
		return false, ws.keyHash
	}
	if key.ExpiredAt(host.Timestamp()) {
		return false, ws.keyHash
	}

	switch key.Type {
	case KeyTypeSecp256k1:
		return verifyECDSA(digest, ws.inner, key.Address()), ws.keyHash

	case KeyTypeP256:
		// The prehash flag is a P256 concession: hardware signers that
		// insist on hashing their input sign sha256(digest) instead.
		effective := digest
		if ws.prehash {
			effective = common.Hash(sha256.Sum256(digest.Bytes()))
		}
		return p256.Verify([32]byte(effective), ws.inner, key.PublicKey), ws.keyHash

	case KeyTypeWebAuthnP256:
		assertion, err := webauthn.DecodeAssertion(ws.inner)
		if err != nil {
			return false, ws.keyHash
		}
		return webauthn.Verify([32]byte(digest), assertion, key.PublicKey) == nil, ws.keyHash

	case KeyTypeExternal:
		if !allowDelegation {
			// One hop only: a delegated dispatcher must not delegate again.
			return false, ws.keyHash
		}
		return e.verifyDelegated(host, account, key.Address(), digest, ws.inner), ws.keyHash

	default:
		return false, ws.keyHash
	}
}

// verifyDelegated re-enters the delegate account's dispatcher with the same
// digest. It succeeds only if the delegate account holds an explicit
// approval for this sub-account to use the specific key that signed.
func (e *Engine) verifyDelegated(host Host, subAccount, delegate common.Address, digest common.Hash, inner []byte) bool {
	ws, ok := parseSignature(inner)
	if !ok {
		return false
	}
	st, exists := e.accounts[delegate]
	if !exists {
		return false
	}
	if _, approved := st.delegations[delegationID{sub: subAccount, key: ws.keyHash}]; !approved {
		return false
	}
	valid, _ := e.verifySignature(host, delegate, digest, inner, false)
	return valid
}

// verifyECDSA recovers a 65-byte [R ‖ S ‖ V] secp256k1 signature and
// compares the recovered address. V of 27/28 is normalized to 0/1.
func verifyECDSA(digest common.Hash, sig []byte, signer common.Address) bool {
	if len(sig) != ecdsaSignatureLength {
		return false
	}
	s := make([]byte, ecdsaSignatureLength)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	rv := new(uint256.Int).SetBytes(s[:32])
	sv := new(uint256.Int).SetBytes(s[32:64])
	if !crypto.ValidateSignatureValues(s[64], rv.ToBig(), sv.ToBig(), true) {
		return false
	}
	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == signer
}
