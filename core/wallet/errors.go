// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.

package wallet

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrKeyDoesNotExist       = errors.New("key does not exist")
	ErrKeyExpired            = errors.New("key is expired")
	ErrInvalidNonce          = errors.New("invalid nonce")
	ErrNewNonceTooSmall      = errors.New("new nonce is smaller than current")
	ErrNonceSaturated        = errors.New("nonce sequence is saturated")
	ErrUnauthorizedCall      = errors.New("call not authorized for key")
	ErrNoSpendPermission     = errors.New("no spend permission for token")
	ErrSpendLimitExceeded    = errors.New("spend limit exceeded")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrDelegationDepth       = errors.New("delegated key cannot delegate further")
	ErrDelegationNotApproved = errors.New("delegation not approved by delegate account")
	ErrPaymentExceedsMax     = errors.New("payment amount exceeds signed maximum")
	ErrPaymentFailed         = errors.New("payment transfer failed")
	ErrFunderUnknown         = errors.New("funder is not registered")
	ErrIntentExpired         = errors.New("intent is expired")
	ErrInsufficientGas       = errors.New("insufficient gas budget")
	ErrUnsupportedAccount    = errors.New("unsupported account implementation")
)

// Status is the fixed-width per-Intent outcome selector returned by the
// orchestrator. The zero value means success; any other value means the
// Intent fully reverted with no state change beyond the documented nonce
// and relayer-payment carve-outs.
type Status [4]byte

func statusSelector(sig string) Status {
	var s Status
	copy(s[:], crypto.Keccak256([]byte(sig))[:4])
	return s
}

var (
	StatusSuccess = Status{}

	StatusDecodingError          = statusSelector("DecodingError()")
	StatusInvalidNonce           = statusSelector("InvalidNonce()")
	StatusVerificationError      = statusSelector("VerificationError()")
	StatusIntentExpired          = statusSelector("IntentExpired()")
	StatusPaymentError           = statusSelector("PaymentError()")
	StatusUnauthorizedCall       = statusSelector("UnauthorizedCall()")
	StatusSpendLimitExceeded     = statusSelector("SpendLimitExceeded()")
	StatusCallError              = statusSelector("CallError()")
	StatusInsufficientGas        = statusSelector("InsufficientGas()")
	StatusUnsupportedAccountImpl = statusSelector("UnsupportedAccountImplementation()")
)

var statusNames = map[Status]string{
	StatusSuccess:                "Success",
	StatusDecodingError:          "DecodingError",
	StatusInvalidNonce:           "InvalidNonce",
	StatusVerificationError:      "VerificationError",
	StatusIntentExpired:          "IntentExpired",
	StatusPaymentError:           "PaymentError",
	StatusUnauthorizedCall:       "UnauthorizedCall",
	StatusSpendLimitExceeded:     "SpendLimitExceeded",
	StatusCallError:              "CallError",
	StatusInsufficientGas:        "InsufficientGas",
	StatusUnsupportedAccountImpl: "UnsupportedAccountImplementation",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UnknownStatus"
}

// OK reports whether the status denotes success.
func (s Status) OK() bool {
	return s == StatusSuccess
}
