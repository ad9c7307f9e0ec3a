// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// NIST P-256 signature verification for session keys and WebAuthn
// authenticators. Signatures are fixed-width r ‖ s (64 bytes) over a 32-byte
// message hash.

package p256

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"errors"
	"math/big"
)

const (
	// PublicKeyLength is the uncompressed x ‖ y encoding used for stored keys.
	PublicKeyLength = 64
	// SignatureLength is the fixed r ‖ s encoding.
	SignatureLength = 64
)

var (
	ErrInvalidPublicKey = errors.New("invalid p256 public key")
	ErrInvalidSignature = errors.New("invalid p256 signature encoding")

	curveN     = elliptic.P256().Params().N
	curveHalfN = new(big.Int).Rsh(curveN, 1)
)

// DecodePublicKey parses a 64-byte x ‖ y public key and checks it is on the
// curve.
func DecodePublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	if len(pub) != PublicKeyLength {
		return nil, ErrInvalidPublicKey
	}
	x := new(big.Int).SetBytes(pub[:32])
	y := new(big.Int).SetBytes(pub[32:])
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, ErrInvalidPublicKey
	}
	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, ErrInvalidPublicKey
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// EncodePublicKey returns the 64-byte x ‖ y encoding of a P-256 public key.
func EncodePublicKey(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, PublicKeyLength)
	pub.X.FillBytes(out[:32])
	pub.Y.FillBytes(out[32:])
	return out
}

// Verify checks a 64-byte r ‖ s signature over hash against a 64-byte
// x ‖ y public key. High-s signatures are rejected to rule out malleated
// encodings of the same signature.
func Verify(hash [32]byte, sig, pub []byte) bool {
	if len(sig) != SignatureLength {
		return false
	}
	key, err := DecodePublicKey(pub)
	if err != nil {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(curveN) >= 0 {
		return false
	}
	if s.Cmp(curveHalfN) > 0 {
		return false
	}
	return ecdsa.Verify(key, hash[:], r, s)
}

// NormalizeS lowers a high-s value into the canonical half so freshly
// produced signatures pass Verify.
func NormalizeS(s *big.Int) *big.Int {
	if s.Cmp(curveHalfN) > 0 {
		return new(big.Int).Sub(curveN, s)
	}
	return s
}
