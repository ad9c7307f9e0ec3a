// Copyright 2025 The go-tide Authors

package escrow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type mockVault struct {
	balances map[common.Address]map[common.Address]*uint256.Int
}

func newMockVault() *mockVault {
	return &mockVault{balances: make(map[common.Address]map[common.Address]*uint256.Int)}
}

func (v *mockVault) set(token, addr common.Address, amount uint64) {
	if _, ok := v.balances[token]; !ok {
		v.balances[token] = make(map[common.Address]*uint256.Int)
	}
	v.balances[token][addr] = uint256.NewInt(amount)
}

func (v *mockVault) balance(token, addr common.Address) *uint256.Int {
	if m, ok := v.balances[token]; ok {
		if b, ok := m[addr]; ok {
			return new(uint256.Int).Set(b)
		}
	}
	return new(uint256.Int)
}

func (v *mockVault) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	bal := v.balance(token, from)
	if bal.Lt(amount) {
		return fmt.Errorf("insufficient balance: have %s want %s", bal, amount)
	}
	if _, ok := v.balances[token]; !ok {
		v.balances[token] = make(map[common.Address]*uint256.Int)
	}
	v.balances[token][from] = bal.Sub(bal, amount)
	v.balances[token][to] = new(uint256.Int).Add(v.balance(token, to), amount)
	return nil
}

type mockOracle struct {
	settled map[common.Hash]bool
}

func (o *mockOracle) Read(settlementID common.Hash, sender common.Address, chainID uint64) bool {
	return o.settled[settlementID]
}

var (
	custody   = common.HexToAddress("0xc057")
	depositor = common.HexToAddress("0xd001")
	recipient = common.HexToAddress("0x4ec1")
	token     = common.HexToAddress("0x70ce")
)

func newTestLedger() (*Ledger, *mockVault, *mockOracle) {
	vault := newMockVault()
	oracle := &mockOracle{settled: make(map[common.Hash]bool)}
	vault.set(token, depositor, 1000)
	return NewLedger(custody, oracle, vault), vault, oracle
}

func testEscrow() *Escrow {
	return &Escrow{
		Depositor:       depositor,
		Recipient:       recipient,
		Token:           token,
		EscrowAmount:    uint256.NewInt(100),
		RefundAmount:    uint256.NewInt(30),
		RefundTimestamp: 2000,
		SettlementID:    common.HexToHash("0x5e77"),
		SenderChainID:   10,
		Sender:          common.HexToAddress("0x5e4d"),
	}
}

func TestEscrowCreatePullsFunds(t *testing.T) {
	ledger, vault, _ := newTestLedger()
	id, err := ledger.Create(testEscrow())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := vault.balance(token, custody); !got.Eq(uint256.NewInt(100)) {
		t.Fatalf("custody should hold the escrow, got %s", got)
	}
	if got := vault.balance(token, depositor); !got.Eq(uint256.NewInt(900)) {
		t.Fatalf("depositor balance = %s, want 900", got)
	}
	esc, err := ledger.Get(id)
	if err != nil || esc.Status != StatusCreated {
		t.Fatalf("stored escrow should be active, got %+v, %v", esc, err)
	}

	// The same record cannot be created twice.
	if _, err := ledger.Create(testEscrow()); !errors.Is(err, ErrEscrowExists) {
		t.Fatalf("duplicate create should fail, got %v", err)
	}
}

func TestEscrowRefundExceedsEscrowNeverStored(t *testing.T) {
	ledger, vault, _ := newTestLedger()
	esc := testEscrow()
	esc.RefundAmount = uint256.NewInt(101)

	_, err := ledger.Create(esc)
	if !errors.Is(err, ErrRefundExceedsEscrow) {
		t.Fatalf("want ErrRefundExceedsEscrow, got %v", err)
	}
	// Rejected at the door: no funds moved, nothing stored.
	if got := vault.balance(token, depositor); !got.Eq(uint256.NewInt(1000)) {
		t.Fatalf("depositor funds must not move, got %s", got)
	}
	if _, err := ledger.Get(esc.ID()); !errors.Is(err, ErrEscrowNotFound) {
		t.Fatalf("invalid escrow must not be stored, got %v", err)
	}
}

func TestEscrowZeroAmountRejected(t *testing.T) {
	ledger, _, _ := newTestLedger()
	esc := testEscrow()
	esc.EscrowAmount = new(uint256.Int)
	if _, err := ledger.Create(esc); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("want ErrZeroAmount, got %v", err)
	}
}

func TestEscrowSettleGatedByOracle(t *testing.T) {
	ledger, vault, oracle := newTestLedger()
	esc := testEscrow()
	id, err := ledger.Create(esc)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := ledger.Settle(id); !errors.Is(err, ErrNotSettled) {
		t.Fatalf("settle before oracle record should fail, got %v", err)
	}

	oracle.settled[esc.SettlementID] = true
	if err := ledger.Settle(id); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := vault.balance(token, recipient); !got.Eq(uint256.NewInt(100)) {
		t.Fatalf("recipient should receive the full escrow, got %s", got)
	}

	// Settling twice finds a finalized record.
	if err := ledger.Settle(id); !errors.Is(err, ErrEscrowNotActive) {
		t.Fatalf("double settle should fail, got %v", err)
	}
}

func TestEscrowIndependentRefunds(t *testing.T) {
	ledger, vault, _ := newTestLedger()
	esc := testEscrow()
	id, err := ledger.Create(esc)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Before the refund timestamp both paths are closed.
	if err := ledger.RefundDepositor(id, 1999); !errors.Is(err, ErrRefundTooEarly) {
		t.Fatalf("early depositor refund should fail, got %v", err)
	}
	if err := ledger.RefundRecipient(id, 1999); !errors.Is(err, ErrRefundTooEarly) {
		t.Fatalf("early recipient refund should fail, got %v", err)
	}

	// The recipient can claim the remainder without waiting on the
	// depositor, and vice versa.
	if err := ledger.RefundRecipient(id, 2000); err != nil {
		t.Fatalf("recipient refund: %v", err)
	}
	if got := vault.balance(token, recipient); !got.Eq(uint256.NewInt(70)) {
		t.Fatalf("recipient remainder = %s, want 70", got)
	}
	if err := ledger.RefundDepositor(id, 2000); err != nil {
		t.Fatalf("depositor refund: %v", err)
	}
	if got := vault.balance(token, depositor); !got.Eq(uint256.NewInt(930)) {
		t.Fatalf("depositor refund = %s, want 930", got)
	}

	// Both halves claimed: the escrow is finalized and drained.
	got, err := ledger.Get(id)
	if err != nil || got.Status != StatusFinalized {
		t.Fatalf("escrow should be finalized, got %+v, %v", got, err)
	}
	if bal := vault.balance(token, custody); !bal.IsZero() {
		t.Fatalf("custody should be empty, got %s", bal)
	}

	// A finalized escrow cannot be settled or refunded again.
	if err := ledger.RefundDepositor(id, 3000); !errors.Is(err, ErrEscrowNotActive) {
		t.Fatalf("double depositor refund should fail, got %v", err)
	}
	if err := ledger.RefundRecipient(id, 3000); !errors.Is(err, ErrEscrowNotActive) {
		t.Fatalf("double recipient refund should fail, got %v", err)
	}
}

func TestEscrowRefundBlocksSettle(t *testing.T) {
	ledger, _, oracle := newTestLedger()
	esc := testEscrow()
	id, _ := ledger.Create(esc)

	if err := ledger.RefundDepositor(id, 2500); err != nil {
		t.Fatalf("depositor refund: %v", err)
	}
	oracle.settled[esc.SettlementID] = true
	if err := ledger.Settle(id); !errors.Is(err, ErrEscrowNotActive) {
		t.Fatalf("settle after refund should fail, got %v", err)
	}
}
