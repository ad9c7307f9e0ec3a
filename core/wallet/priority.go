// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Bit-packed payment-priority word. Layout (32 bytes, big-endian):
//
//	[0:20)  priority recipient address
//	[20:25) start timestamp (seconds)
//	[25:27) gated duration (seconds)
//	[27:29) auction duration (seconds)
//	[29:31) reserved, must be zero
//	[31]    version byte, must be zero

package wallet

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrBadPriorityWord = errors.New("malformed payment priority word")

// PaymentPriority is the unpacked priority/auction schedule. During
// [Start, Start+GatedDuration) only the priority recipient may collect;
// afterwards payment to anyone ramps linearly from zero to the maximum over
// AuctionDuration. The priority recipient always collects the full amount.
type PaymentPriority struct {
	Recipient       common.Address
	Start           uint64 // 40-bit
	GatedDuration   uint64 // 16-bit
	AuctionDuration uint64 // 16-bit
}

// PackPaymentPriority encodes the schedule into its 32-byte wire form.
func PackPaymentPriority(p *PaymentPriority) ([32]byte, error) {
	var w [32]byte
	if p.Start >= 1<<40 || p.GatedDuration >= 1<<16 || p.AuctionDuration >= 1<<16 {
		return w, ErrBadPriorityWord
	}
	copy(w[0:20], p.Recipient.Bytes())
	w[20] = byte(p.Start >> 32)
	w[21] = byte(p.Start >> 24)
	w[22] = byte(p.Start >> 16)
	w[23] = byte(p.Start >> 8)
	w[24] = byte(p.Start)
	w[25] = byte(p.GatedDuration >> 8)
	w[26] = byte(p.GatedDuration)
	w[27] = byte(p.AuctionDuration >> 8)
	w[28] = byte(p.AuctionDuration)
	return w, nil
}

// UnpackPaymentPriority decodes a 32-byte priority word. A zero word means
// no schedule. Non-zero reserved or version bytes are rejected so future
// versions fail closed.
func UnpackPaymentPriority(w [32]byte) (*PaymentPriority, error) {
	if w == ([32]byte{}) {
		return nil, nil
	}
	if w[29] != 0 || w[30] != 0 || w[31] != 0 {
		return nil, ErrBadPriorityWord
	}
	p := &PaymentPriority{
		Recipient: common.BytesToAddress(w[0:20]),
		Start: uint64(w[20])<<32 | uint64(w[21])<<24 | uint64(w[22])<<16 |
			uint64(w[23])<<8 | uint64(w[24]),
		GatedDuration:   uint64(w[25])<<8 | uint64(w[26]),
		AuctionDuration: uint64(w[27])<<8 | uint64(w[28]),
	}
	return p, nil
}

// settleAmount returns what the given recipient may collect at time now,
// bounded by max.
func (p *PaymentPriority) settleAmount(recipient common.Address, max *uint256.Int, now uint64) *uint256.Int {
	if recipient == p.Recipient {
		return new(uint256.Int).Set(max)
	}
	gateEnd := p.Start + p.GatedDuration
	if now < gateEnd {
		return new(uint256.Int)
	}
	if p.AuctionDuration == 0 || now >= gateEnd+p.AuctionDuration {
		return new(uint256.Int).Set(max)
	}
	elapsed := now - gateEnd
	amount := new(uint256.Int).Mul(max, uint256.NewInt(elapsed))
	return amount.Div(amount, uint256.NewInt(p.AuctionDuration))
}
