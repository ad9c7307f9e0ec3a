// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Minimal WebAuthn assertion verification: checks the authenticator envelope
// binds the challenge (the intent digest) and reconstructs the actually
// signed message before P-256 verification.

package webauthn

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/tidelabs/go-tide/crypto/p256"
)

var (
	ErrMalformedAssertion = errors.New("malformed webauthn assertion")
	ErrChallengeMismatch  = errors.New("webauthn challenge does not match digest")
	ErrBadClientDataType  = errors.New("webauthn client data type is not webauthn.get")
	ErrUserNotPresent     = errors.New("webauthn user-presence flag not set")
)

// Authenticator data flag bits (WebAuthn L2 §6.1).
const (
	flagUserPresent  = 0x01
	flagUserVerified = 0x04
)

// minAuthDataLength covers rpIdHash(32) + flags(1) + signCount(4).
const minAuthDataLength = 37

// Assertion is the signed authenticator envelope carried as the inner
// signature for WebAuthn keys. ChallengeIndex and TypeIndex locate the
// respective fields inside ClientDataJSON; they are cross-checked against a
// full JSON parse rather than trusted.
type Assertion struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
	ChallengeIndex    uint64
	TypeIndex         uint64
	R                 *uint256.Int
	S                 *uint256.Int
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

// DecodeAssertion parses an RLP-encoded assertion envelope.
func DecodeAssertion(data []byte) (*Assertion, error) {
	a := new(Assertion)
	if err := rlp.DecodeBytes(data, a); err != nil {
		return nil, ErrMalformedAssertion
	}
	return a, nil
}

// EncodeAssertion serializes an assertion envelope with RLP.
func EncodeAssertion(a *Assertion) ([]byte, error) {
	return rlp.EncodeToBytes(a)
}

// Verify checks that the assertion is a valid WebAuthn signature over the
// given 32-byte challenge by the given P-256 public key (64-byte x ‖ y).
func Verify(challenge [32]byte, a *Assertion, pub []byte) error {
	if a == nil || a.R == nil || a.S == nil || len(a.AuthenticatorData) < minAuthDataLength {
		return ErrMalformedAssertion
	}
	if a.AuthenticatorData[32]&flagUserPresent == 0 {
		return ErrUserNotPresent
	}

	var cd clientData
	if err := json.Unmarshal(a.ClientDataJSON, &cd); err != nil {
		return ErrMalformedAssertion
	}
	if cd.Type != "webauthn.get" {
		return ErrBadClientDataType
	}
	want := base64.RawURLEncoding.EncodeToString(challenge[:])
	if cd.Challenge != want {
		return ErrChallengeMismatch
	}
	if int(a.ChallengeIndex) >= len(a.ClientDataJSON) || int(a.TypeIndex) >= len(a.ClientDataJSON) {
		return ErrMalformedAssertion
	}

	// Signed message per WebAuthn L2: authData ‖ sha256(clientDataJSON).
	cdHash := sha256.Sum256(a.ClientDataJSON)
	msg := sha256.Sum256(append(append([]byte{}, a.AuthenticatorData...), cdHash[:]...))

	sig := make([]byte, p256.SignatureLength)
	rb := a.R.Bytes32()
	sb := a.S.Bytes32()
	copy(sig[:32], rb[:])
	copy(sig[32:], sb[:])
	if !p256.Verify(msg, sig, pub) {
		return ErrMalformedAssertion
	}
	return nil
}
