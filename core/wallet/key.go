// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.

package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyType discriminates the closed set of credential kinds a key can carry.
// Each variant owns its verification routine and public-key encoding.
type KeyType uint8

const (
	// KeyTypeSecp256k1 is an EOA-style key; PublicKey is the 20-byte address
	// recovered signatures must match.
	KeyTypeSecp256k1 KeyType = iota
	// KeyTypeP256 is a NIST P-256 session key; PublicKey is 64-byte x ‖ y.
	KeyTypeP256
	// KeyTypeWebAuthnP256 is a P-256 key behind a WebAuthn authenticator.
	KeyTypeWebAuthnP256
	// KeyTypeExternal references another account; PublicKey is that
	// account's 20-byte address. Verification re-enters the delegate
	// account's own dispatcher.
	KeyTypeExternal
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeSecp256k1:
		return "secp256k1"
	case KeyTypeP256:
		return "p256"
	case KeyTypeWebAuthnP256:
		return "webauthn-p256"
	case KeyTypeExternal:
		return "external"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Key is a registered credential authorized to approve Intents for one
// account. Identity is the content hash of its type and public key; expiry
// and the super-admin flag are metadata and do not change identity.
type Key struct {
	Type       KeyType
	PublicKey  []byte
	Expiry     uint64 // unix seconds, 0 = never
	SuperAdmin bool
}

// Hash returns the key's content-derived identity.
func (k *Key) Hash() common.Hash {
	packed := make([]byte, 0, 33)
	packed = append(packed, crypto.Keccak256(k.PublicKey)...)
	packed = append(packed, byte(k.Type))
	return crypto.Keccak256Hash(packed)
}

// ExpiredAt reports whether the key is expired at the given time. A zero
// expiry never expires.
func (k *Key) ExpiredAt(now uint64) bool {
	return k.Expiry != 0 && now > k.Expiry
}

// Address interprets the public key as a 20-byte address. Only meaningful
// for secp256k1 and external keys.
func (k *Key) Address() common.Address {
	return common.BytesToAddress(k.PublicKey)
}

func (k *Key) copy() *Key {
	cpy := *k
	cpy.PublicKey = append([]byte(nil), k.PublicKey...)
	return &cpy
}
