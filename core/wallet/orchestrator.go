// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Orchestrator: the per-Intent pipeline. Decode, verify, pre-calls,
// payment, guarded execution, relayer settlement. Outcomes are status
// selectors, never environment aborts, so a batch of independently
// submitted Intents reports per-item results.

package wallet

import (
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/tidelabs/go-tide/core/types"
)

// paymentVault holds pulled payment between collection and relayer
// settlement within one transition.
var paymentVault = common.HexToAddress("0x0000000000000000000000000000000071DE0001")

const (
	// intentGasOverhead is the safety margin reserved on top of the
	// declared combined gas for pipeline bookkeeping around the batch.
	intentGasOverhead = 100_000

	// callBaseGas and calldata byte costs mirror the host environment's
	// intrinsic cost model, used for the gas-used estimate.
	callBaseGas        = 21_000
	calldataNonZeroGas = 16
	calldataZeroGas    = 4
)

// ExecOpts carries the relayer-side execution parameters.
type ExecOpts struct {
	// Relayer receives the payment when the Intent names no explicit
	// recipient.
	Relayer common.Address

	// AvailableGas is the execution budget the caller can actually grant.
	AvailableGas uint64
}

// Result is the per-Intent outcome.
type Result struct {
	Status  Status
	Digest  common.Hash
	GasUsed uint64
	Err     error
}

func failure(status Status, digest common.Hash, err error) *Result {
	return &Result{Status: status, Digest: digest, Err: err}
}

// Execute runs one encoded Intent to a terminal status. Per-Intent failures
// are value-encoded; the call itself only mutates state the status says it
// does: nothing before nonce consumption, nonce plus payment after it.
func (e *Engine) Execute(host Host, encoded []byte, opts ExecOpts) *Result {
	in, err := types.DecodeIntent(encoded)
	if err != nil {
		return failure(StatusDecodingError, common.Hash{}, err)
	}
	return e.run(host, in, opts, false)
}

// ExecuteBatch runs many encoded Intents sequentially. Each is isolated by
// its own checkpoint: one Intent's failure cannot unwind another's effects
// or its own nonce consumption.
func (e *Engine) ExecuteBatch(host Host, encoded [][]byte, opts ExecOpts) []*Result {
	results := make([]*Result, 0, len(encoded))
	for _, enc := range encoded {
		res := e.Execute(host, enc, opts)
		if !res.Status.OK() {
			log.Warn("Intent failed", "status", res.Status, "digest", res.Digest, "err", res.Err)
		}
		results = append(results, res)
	}
	return results
}

// SimulateExecute runs the full pipeline with signature verification
// disabled and reverts every effect at the end, returning gas-used as a
// structured result. An explicit dry run for caller-side estimation, never
// a production path.
func (e *Engine) SimulateExecute(host Host, encoded []byte, opts ExecOpts) *Result {
	in, err := types.DecodeIntent(encoded)
	if err != nil {
		return failure(StatusDecodingError, common.Hash{}, err)
	}
	cp := e.checkpoint(host)
	res := e.run(host, in, opts, true)
	e.revertTo(host, cp)
	return res
}

func (e *Engine) run(host Host, in *types.Intent, opts ExecOpts, simulate bool) *Result {
	digest := in.Digest(host.ChainID())

	// Gas precheck, with the 63/64 call-overhead rule: fail pre-emptively
	// instead of starving mid-batch. A declared budget that would wrap the
	// uint64 sum is unpayable by definition.
	if in.CombinedGas > math.MaxUint64-intentGasOverhead ||
		opts.AvailableGas-opts.AvailableGas/64 < in.CombinedGas+intentGasOverhead {
		return failure(StatusInsufficientGas, digest, ErrInsufficientGas)
	}

	if in.SupportedImplementation != (common.Hash{}) && in.SupportedImplementation != implementationHash {
		return failure(StatusUnsupportedAccountImpl, digest, ErrUnsupportedAccount)
	}

	now := host.Timestamp()
	if in.Expiry != 0 && now > in.Expiry {
		return failure(StatusIntentExpired, digest, ErrIntentExpired)
	}

	// Priority word sanity happens before any state change: a word this
	// engine cannot interpret must not reach settlement.
	priority, err := UnpackPaymentPriority(in.PaymentPriority)
	if err != nil {
		return failure(StatusPaymentError, digest, err)
	}

	if err := e.checkNonce(in.Account, in.Nonce, digest); err != nil {
		return failure(StatusInvalidNonce, digest, err)
	}

	// Signature verification: idempotent rejection, nonce untouched.
	var key *Key
	if simulate {
		key = e.resolveSimulatedKey(in.Account, in.Signature)
	} else {
		valid, keyHash := e.VerifySignature(host, in.Account, digest, in.Signature)
		if !valid {
			return failure(StatusVerificationError, digest, ErrInvalidSignature)
		}
		if keyHash != (common.Hash{}) {
			key, _ = e.GetKey(in.Account, keyHash)
			if key == nil {
				return failure(StatusVerificationError, digest, ErrKeyDoesNotExist)
			}
		}
	}

	intentStart := e.checkpoint(host)
	if err := e.checkAndUseNonce(in.Account, in.Nonce, digest); err != nil {
		e.revertTo(host, intentStart)
		return failure(StatusInvalidNonce, digest, err)
	}

	// Pre-call and payment failures are side-effect free: everything
	// including the nonce is unwound, so the corrected Intent can be
	// resubmitted. A failed pre-call rejects the Intent with the
	// pre-call's own status.
	for i := range in.PreCalls {
		if res := e.runPreCall(host, &in.PreCalls[i], simulate); !res.Status.OK() {
			e.revertTo(host, intentStart)
			return failure(res.Status, digest, fmt.Errorf("pre-call %d: %w", i, res.Err))
		}
	}

	payer, amount, err := e.collectPayment(host, in, digest, simulate)
	if err != nil {
		e.revertTo(host, intentStart)
		return failure(StatusPaymentError, digest, err)
	}

	// The user-call phase runs inside its own checkpoint: if it reverts,
	// the nonce stays consumed (no free repeated execution attempts) and
	// payment stands, so the relayer is still compensated.
	status := StatusSuccess
	execStart := e.checkpoint(host)
	if err := e.executeGuarded(host, in.Account, keyHashOf(key), key, in.Calls); err != nil {
		e.revertTo(host, execStart)
		status = classifyExecError(err)
		log.Warn("Guarded execution reverted", "account", in.Account, "digest", digest, "err", err)
	}

	if err := e.settlePayment(host, in, opts, payer, amount, priority, now); err != nil {
		// Settlement failure rejects the whole Intent as a payment error.
		e.revertTo(host, intentStart)
		return failure(StatusPaymentError, digest, err)
	}

	return &Result{Status: status, Digest: digest, GasUsed: e.estimateGasUsed(in)}
}

// runPreCall executes one nested signed sub-Intent: same verification and
// nonce rules, guarded execution under the resolved key, no payment phase.
// Each pre-call commits independently and is visible to subsequent steps.
func (e *Engine) runPreCall(host Host, pc *types.PreCall, simulate bool) *Result {
	digest := pc.Digest(host.ChainID())

	if err := e.checkNonce(pc.Account, pc.Nonce, digest); err != nil {
		return failure(StatusInvalidNonce, digest, err)
	}

	var key *Key
	if simulate {
		key = e.resolveSimulatedKey(pc.Account, pc.Signature)
	} else {
		valid, keyHash := e.VerifySignature(host, pc.Account, digest, pc.Signature)
		if !valid {
			return failure(StatusVerificationError, digest, ErrInvalidSignature)
		}
		if keyHash != (common.Hash{}) {
			key, _ = e.GetKey(pc.Account, keyHash)
			if key == nil {
				return failure(StatusVerificationError, digest, ErrKeyDoesNotExist)
			}
		}
	}

	cp := e.checkpoint(host)
	if err := e.checkAndUseNonce(pc.Account, pc.Nonce, digest); err != nil {
		e.revertTo(host, cp)
		return failure(StatusInvalidNonce, digest, err)
	}
	if err := e.executeGuarded(host, pc.Account, keyHashOf(key), key, pc.Calls); err != nil {
		e.revertTo(host, cp)
		return failure(classifyExecError(err), digest, err)
	}
	return &Result{Status: StatusSuccess, Digest: digest}
}

// collectPayment pulls the declared payment into the vault: from the payer
// directly, preceded by funder transfers when a funder is named. Returns
// the effective payer and amount pulled.
func (e *Engine) collectPayment(host Host, in *types.Intent, digest common.Hash, simulate bool) (common.Address, *uint256.Int, error) {
	if in.Funder != (common.Address{}) && len(in.FundTransfers) > 0 {
		funder, ok := e.funders[in.Funder]
		if !ok {
			return common.Address{}, nil, ErrFunderUnknown
		}
		if err := funder.Fund(host, in.Account, digest, in.FundTransfers, in.FunderSignature); err != nil {
			return common.Address{}, nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
	}

	amount := new(uint256.Int)
	if in.PaymentAmount != nil {
		amount.Set(in.PaymentAmount)
	}
	max := new(uint256.Int)
	if in.PaymentMaxAmount != nil {
		max.Set(in.PaymentMaxAmount)
	}
	if amount.Gt(max) {
		return common.Address{}, nil, fmt.Errorf("%w: %s > %s", ErrPaymentExceedsMax, amount, max)
	}

	payer := in.Account
	if in.Payer != (common.Address{}) && in.Payer != in.Account {
		payer = in.Payer
		if !simulate {
			// A third-party payer must have signed off on this exact digest
			// with one of its own keys.
			valid, _ := e.VerifySignature(host, payer, digest, in.PaymentSignature)
			if !valid {
				return common.Address{}, nil, fmt.Errorf("%w: payer authorization", ErrInvalidSignature)
			}
		}
	}

	if amount.IsZero() {
		return payer, amount, nil
	}
	if err := host.Transfer(in.PaymentToken, payer, paymentVault, amount); err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	return payer, amount, nil
}

// settlePayment pays the relayer its final amount out of the vault,
// modulated by the priority schedule, and refunds the remainder to the
// payer.
func (e *Engine) settlePayment(host Host, in *types.Intent, opts ExecOpts, payer common.Address, amount *uint256.Int, priority *PaymentPriority, now uint64) error {
	if amount.IsZero() {
		return nil
	}
	recipient := in.PaymentRecipient
	if recipient == (common.Address{}) {
		recipient = opts.Relayer
	}

	pay := new(uint256.Int).Set(amount)
	if priority != nil {
		pay = priority.settleAmount(recipient, amount, now)
	}
	if !pay.IsZero() {
		if err := host.Transfer(in.PaymentToken, paymentVault, recipient, pay); err != nil {
			return fmt.Errorf("%w: relayer settlement: %v", ErrPaymentFailed, err)
		}
	}
	if refund := new(uint256.Int).Sub(amount, pay); !refund.IsZero() {
		if err := host.Transfer(in.PaymentToken, paymentVault, payer, refund); err != nil {
			return fmt.Errorf("%w: payment refund: %v", ErrPaymentFailed, err)
		}
	}
	return nil
}

// resolveSimulatedKey mirrors signature resolution while accepting any
// signature: a parseable wrapped signature naming a registered key yields
// that key's restriction profile, everything else simulates as the primary
// key.
func (e *Engine) resolveSimulatedKey(account common.Address, sig []byte) *Key {
	ws, ok := parseSignature(sig)
	if !ok || ws.keyHash == (common.Hash{}) {
		return nil
	}
	key, _ := e.GetKey(account, ws.keyHash)
	return key
}

// estimateGasUsed applies the intrinsic cost model across the batch.
func (e *Engine) estimateGasUsed(in *types.Intent) uint64 {
	gas := uint64(intentGasOverhead)
	for i := range in.Calls {
		gas += callBaseGas
		for _, b := range in.Calls[i].Data {
			if b == 0 {
				gas += calldataZeroGas
			} else {
				gas += calldataNonZeroGas
			}
		}
	}
	return gas
}

func keyHashOf(key *Key) common.Hash {
	if key == nil {
		return common.Hash{}
	}
	return key.Hash()
}

func classifyExecError(err error) Status {
	switch {
	case errors.Is(err, ErrUnauthorizedCall):
		return StatusUnauthorizedCall
	case errors.Is(err, ErrSpendLimitExceeded), errors.Is(err, ErrNoSpendPermission):
		return StatusSpendLimitExceeded
	default:
		return StatusCallError
	}
}
