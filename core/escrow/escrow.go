// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Cross-chain escrow collaborator. Funds are held against a settlement id;
// release is gated by the settlement oracle, and each party's refund path
// is independently callable after the refund timestamp so neither can block
// the other's recovery.

package escrow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

var (
	ErrRefundExceedsEscrow = errors.New("refund amount exceeds escrow amount")
	ErrEscrowExists        = errors.New("escrow already exists")
	ErrEscrowNotFound      = errors.New("escrow not found")
	ErrEscrowNotActive     = errors.New("escrow is not in created state")
	ErrNotSettled          = errors.New("settlement not recorded by oracle")
	ErrRefundTooEarly      = errors.New("refund window not reached")
	ErrZeroAmount          = errors.New("escrow amount is zero")
)

// Status is the escrow lifecycle state.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFinalized
	StatusRefundDeposit
	StatusRefundRecipient
)

// SettlementOracle records cross-chain settlement completion. It is written
// by a trusted transport component outside this core.
type SettlementOracle interface {
	Read(settlementID common.Hash, sender common.Address, chainID uint64) bool
}

// Vault abstracts the balance store escrowed funds live in.
type Vault interface {
	Transfer(token, from, to common.Address, amount *uint256.Int) error
}

// Escrow is one custody record.
type Escrow struct {
	Depositor       common.Address
	Recipient       common.Address
	Token           common.Address
	EscrowAmount    *uint256.Int
	RefundAmount    *uint256.Int
	RefundTimestamp uint64
	SettlementID    common.Hash
	SenderChainID   uint64
	Sender          common.Address
	Status          Status
}

// ID is the deterministic content hash the escrow is keyed by.
func (esc *Escrow) ID() common.Hash {
	packed := make([]byte, 0, 200)
	packed = append(packed, esc.Depositor.Bytes()...)
	packed = append(packed, esc.Recipient.Bytes()...)
	packed = append(packed, esc.Token.Bytes()...)
	amt := esc.EscrowAmount.Bytes32()
	packed = append(packed, amt[:]...)
	ref := esc.RefundAmount.Bytes32()
	packed = append(packed, ref[:]...)
	ts := make([]byte, 8)
	for i := 0; i < 8; i++ {
		ts[i] = byte(esc.RefundTimestamp >> (56 - 8*i))
	}
	packed = append(packed, ts...)
	packed = append(packed, esc.SettlementID.Bytes()...)
	return crypto.Keccak256Hash(packed)
}

// Ledger holds escrow records for one custody contract address.
type Ledger struct {
	mu      sync.RWMutex
	address common.Address
	oracle  SettlementOracle
	vault   Vault
	escrows map[common.Hash]*Escrow
}

// NewLedger creates an escrow ledger backed by the given vault and gated by
// the given oracle.
func NewLedger(address common.Address, oracle SettlementOracle, vault Vault) *Ledger {
	return &Ledger{
		address: address,
		oracle:  oracle,
		vault:   vault,
		escrows: make(map[common.Hash]*Escrow),
	}
}

// Create validates and stores a new escrow, pulling the escrow amount from
// the depositor. A refund amount exceeding the escrow amount is rejected
// outright and never stored.
func (l *Ledger) Create(esc *Escrow) (common.Hash, error) {
	if esc.EscrowAmount == nil || esc.EscrowAmount.IsZero() {
		return common.Hash{}, ErrZeroAmount
	}
	if esc.RefundAmount == nil {
		esc.RefundAmount = new(uint256.Int)
	}
	if esc.RefundAmount.Gt(esc.EscrowAmount) {
		return common.Hash{}, fmt.Errorf("%w: refund %s escrow %s", ErrRefundExceedsEscrow, esc.RefundAmount, esc.EscrowAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	id := esc.ID()
	if _, ok := l.escrows[id]; ok {
		return common.Hash{}, ErrEscrowExists
	}
	if err := l.vault.Transfer(esc.Token, esc.Depositor, l.address, esc.EscrowAmount); err != nil {
		return common.Hash{}, err
	}
	stored := *esc
	stored.Status = StatusCreated
	l.escrows[id] = &stored
	log.Info("Escrow created", "id", id, "depositor", esc.Depositor, "recipient", esc.Recipient, "amount", esc.EscrowAmount)
	return id, nil
}

// Get returns a copy of the escrow record.
func (l *Ledger) Get(id common.Hash) (*Escrow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	esc, ok := l.escrows[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	cpy := *esc
	return &cpy, nil
}

// Settle releases the full escrow to the recipient once the oracle has
// recorded settlement for the id.
func (l *Ledger) Settle(id common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[id]
	if !ok {
		return ErrEscrowNotFound
	}
	if esc.Status != StatusCreated {
		return ErrEscrowNotActive
	}
	if !l.oracle.Read(esc.SettlementID, esc.Sender, esc.SenderChainID) {
		return ErrNotSettled
	}
	if err := l.vault.Transfer(esc.Token, l.address, esc.Recipient, esc.EscrowAmount); err != nil {
		return err
	}
	esc.Status = StatusFinalized
	log.Info("Escrow settled", "id", id, "recipient", esc.Recipient)
	return nil
}

// RefundDepositor returns the refund portion to the depositor after the
// refund timestamp. Callable regardless of the recipient's cooperation.
func (l *Ledger) RefundDepositor(id common.Hash, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[id]
	if !ok {
		return ErrEscrowNotFound
	}
	if esc.Status != StatusCreated && esc.Status != StatusRefundRecipient {
		return ErrEscrowNotActive
	}
	if now < esc.RefundTimestamp {
		return ErrRefundTooEarly
	}
	if err := l.vault.Transfer(esc.Token, l.address, esc.Depositor, esc.RefundAmount); err != nil {
		return err
	}
	if esc.Status == StatusRefundRecipient {
		esc.Status = StatusFinalized
	} else {
		esc.Status = StatusRefundDeposit
	}
	return nil
}

// RefundRecipient sends the non-refundable remainder to the recipient after
// the refund timestamp, independent of the depositor's refund.
func (l *Ledger) RefundRecipient(id common.Hash, now uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[id]
	if !ok {
		return ErrEscrowNotFound
	}
	if esc.Status != StatusCreated && esc.Status != StatusRefundDeposit {
		return ErrEscrowNotActive
	}
	if now < esc.RefundTimestamp {
		return ErrRefundTooEarly
	}
	remainder := new(uint256.Int).Sub(esc.EscrowAmount, esc.RefundAmount)
	if err := l.vault.Transfer(esc.Token, l.address, esc.Recipient, remainder); err != nil {
		return err
	}
	if esc.Status == StatusRefundDeposit {
		esc.Status = StatusFinalized
	} else {
		esc.Status = StatusRefundRecipient
	}
	return nil
}
