// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// GuardedExecutor: call allow-lists and rolling spend limits applied to
// every batch a restricted key executes. Super-admin keys and the account's
// primary key bypass all checks.

package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tidelabs/go-tide/core/types"
)

// Wildcard sentinels for call permissions.
var (
	AnyTarget   = common.HexToAddress("0x3232323232323232323232323232323232323232")
	AnySelector = [4]byte{0x32, 0x32, 0x32, 0x32}
)

// ERC-20 selectors whose calldata declares a spend amount.
var (
	selTransfer     = [4]byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
	selTransferFrom = [4]byte{0x23, 0xb8, 0x72, 0xdd} // transferFrom(address,address,uint256)
	selApprove      = [4]byte{0x09, 0x5e, 0xa7, 0xb3} // approve(address,uint256)
)

// SpendPeriod selects the rolling window a spend limit applies to.
type SpendPeriod uint8

const (
	SpendHour SpendPeriod = iota
	SpendDay
	SpendWeek
	SpendMonth
	SpendForever
)

func (p SpendPeriod) String() string {
	switch p {
	case SpendHour:
		return "hour"
	case SpendDay:
		return "day"
	case SpendWeek:
		return "week"
	case SpendMonth:
		return "month"
	case SpendForever:
		return "forever"
	default:
		return fmt.Sprintf("period(%d)", uint8(p))
	}
}

// seconds returns the window width; zero means the window never rolls.
func (p SpendPeriod) seconds() uint64 {
	switch p {
	case SpendHour:
		return 3600
	case SpendDay:
		return 86400
	case SpendWeek:
		return 7 * 86400
	case SpendMonth:
		return 30 * 86400
	default:
		return 0
	}
}

// windowStart returns the start of the window containing now.
func (p SpendPeriod) windowStart(now uint64) uint64 {
	w := p.seconds()
	if w == 0 {
		return 0
	}
	return now - now%w
}

// SpendLimit caps a restricted key's spend of one token within a rolling
// window. Windows reset lazily on the first spend after expiry, never
// retroactively.
type SpendLimit struct {
	Limit       *uint256.Int
	Spent       *uint256.Int
	WindowStart uint64
}

// CallPermission allow-lists one (target, selector) pair for a key. A
// non-zero Checker defers the decision to a registered dynamic checker.
type CallPermission struct {
	Allowed bool
	Checker common.Address
}

// CallChecker is a dynamic approval hook consulted when a permission names
// a checker address.
type CallChecker interface {
	ApproveCall(host Host, account common.Address, keyHash common.Hash, call types.Call) bool
}

// SetCallPermission records the allow flag (and optional checker) for calls
// from keyHash to (target, selector). AnyTarget/AnySelector act as
// wildcards. Restrictions on a key never broaden implicitly: absent
// permissions deny.
func (e *Engine) SetCallPermission(account common.Address, keyHash common.Hash, target common.Address, selector [4]byte, perm CallPermission) {
	st := e.state(account)
	id := permID{key: keyHash, target: target, selector: selector}
	prev := st.perms[id]
	e.journal.append(callPermChange{account: account, id: id, prev: prev})
	p := perm
	st.perms[id] = &p
}

// SetSpendLimit sets (limit != nil) or removes (limit == nil) the spend cap
// for (keyHash, token, period). Setting a limit starts a fresh window.
func (e *Engine) SetSpendLimit(account common.Address, keyHash common.Hash, token common.Address, period SpendPeriod, limit *uint256.Int) {
	st := e.state(account)
	id := spendID{key: keyHash, token: token, period: period}
	prev := st.spends[id]
	e.journal.append(spendLimitChange{account: account, id: id, prev: prev})
	if limit == nil {
		delete(st.spends, id)
		return
	}
	st.spends[id] = &SpendLimit{
		Limit:       new(uint256.Int).Set(limit),
		Spent:       new(uint256.Int),
		WindowStart: period.windowStart(0),
	}
}

// SpendState is the exported form of one spend-limit entry, used when
// persisting an engine's state or rehydrating it from durable storage.
type SpendState struct {
	KeyHash     common.Hash
	Token       common.Address
	Period      SpendPeriod
	Limit       *uint256.Int
	Spent       *uint256.Int
	WindowStart uint64
}

// SpendStates returns copies of every spend-limit entry of the account.
func (e *Engine) SpendStates(account common.Address) []SpendState {
	st, ok := e.accounts[account]
	if !ok {
		return nil
	}
	out := make([]SpendState, 0, len(st.spends))
	for id, l := range st.spends {
		out = append(out, SpendState{
			KeyHash:     id.key,
			Token:       id.token,
			Period:      id.period,
			Limit:       new(uint256.Int).Set(l.Limit),
			Spent:       new(uint256.Int).Set(l.Spent),
			WindowStart: l.WindowStart,
		})
	}
	return out
}

// RestoreSpendLimit reinstates one spend entry exactly as persisted,
// including the accrued spend and window start. Unlike SetSpendLimit it is
// not journaled; rehydration happens outside any state transition.
func (e *Engine) RestoreSpendLimit(account common.Address, s SpendState) {
	st := e.state(account)
	st.spends[spendID{key: s.KeyHash, token: s.Token, period: s.Period}] = &SpendLimit{
		Limit:       new(uint256.Int).Set(s.Limit),
		Spent:       new(uint256.Int).Set(s.Spent),
		WindowStart: s.WindowStart,
	}
}

// GetSpendLimit returns a copy of the current spend state for inspection.
func (e *Engine) GetSpendLimit(account common.Address, keyHash common.Hash, token common.Address, period SpendPeriod) (*SpendLimit, bool) {
	st, ok := e.accounts[account]
	if !ok {
		return nil, false
	}
	l, ok := st.spends[spendID{key: keyHash, token: token, period: period}]
	if !ok {
		return nil, false
	}
	return &SpendLimit{
		Limit:       new(uint256.Int).Set(l.Limit),
		Spent:       new(uint256.Int).Set(l.Spent),
		WindowStart: l.WindowStart,
	}, true
}

// executeGuarded runs the batch under the key's permission profile. The
// caller wraps it in a checkpoint: any error here aborts the whole batch.
func (e *Engine) executeGuarded(host Host, account common.Address, keyHash common.Hash, key *Key, calls []types.Call) error {
	if key == nil || key.SuperAdmin {
		for i := range calls {
			if err := host.Call(account, calls[i]); err != nil {
				return fmt.Errorf("call %d reverted: %w", i, err)
			}
		}
		return nil
	}

	st := e.state(account)

	// Authorization pass and declared-amount accounting before any call
	// runs, so an unauthorized call never observes earlier effects.
	declared := make(map[common.Address]*uint256.Int)
	for i := range calls {
		if err := e.checkCallAllowed(host, account, keyHash, calls[i]); err != nil {
			return fmt.Errorf("call %d: %w", i, err)
		}
		addDeclared(declared, calls[i])
	}

	// Parent-sweep keys pull against the child without token or amount
	// caps; the call allow-list above still applies.
	if _, parent := st.parentKeys[keyHash]; parent {
		for i := range calls {
			if err := host.Call(account, calls[i]); err != nil {
				return fmt.Errorf("call %d reverted: %w", i, err)
			}
		}
		return nil
	}

	// Balances observed before the batch, for every token the key has a
	// limit on plus every token with a declared amount.
	tracked := make(map[common.Address]*uint256.Int)
	for id := range st.spends {
		if id.key == keyHash {
			if _, ok := tracked[id.token]; !ok {
				tracked[id.token] = host.BalanceOf(id.token, account)
			}
		}
	}
	for token := range declared {
		if _, ok := tracked[token]; !ok {
			tracked[token] = host.BalanceOf(token, account)
		}
	}

	for i := range calls {
		if err := host.Call(account, calls[i]); err != nil {
			return fmt.Errorf("call %d reverted: %w", i, err)
		}
	}

	// Recorded spend per token is the max of the declared transfer sum and
	// the observed balance delta: under-reporting via indirect transfers is
	// caught by the delta, fee-on-transfer assets stay honest via the
	// declared amount.
	now := host.Timestamp()
	for token, pre := range tracked {
		spent := new(uint256.Int)
		if d, ok := declared[token]; ok {
			spent.Set(d)
		}
		post := host.BalanceOf(token, account)
		if pre.Gt(post) {
			if delta := new(uint256.Int).Sub(pre, post); delta.Gt(spent) {
				spent.Set(delta)
			}
		}
		if spent.IsZero() {
			continue
		}
		if err := e.recordSpend(account, keyHash, token, spent, now); err != nil {
			return err
		}
	}
	return nil
}

// checkCallAllowed resolves the permission for one call, most specific
// entry first, consulting the dynamic checker when one is named.
func (e *Engine) checkCallAllowed(host Host, account common.Address, keyHash common.Hash, call types.Call) error {
	st := e.state(account)
	sel := call.Selector()
	lookups := [4]permID{
		{key: keyHash, target: call.To, selector: sel},
		{key: keyHash, target: call.To, selector: AnySelector},
		{key: keyHash, target: AnyTarget, selector: sel},
		{key: keyHash, target: AnyTarget, selector: AnySelector},
	}
	for _, id := range lookups {
		perm, ok := st.perms[id]
		if !ok {
			continue
		}
		if perm.Checker != (common.Address{}) {
			checker, registered := e.checkers[perm.Checker]
			if registered && checker.ApproveCall(host, account, keyHash, call) {
				return nil
			}
			continue
		}
		if perm.Allowed {
			return nil
		}
	}
	return ErrUnauthorizedCall
}

// recordSpend charges spent against every period limit the key holds for
// the token. A spend with no limit at all is refused outright.
func (e *Engine) recordSpend(account common.Address, keyHash common.Hash, token common.Address, spent *uint256.Int, now uint64) error {
	st := e.state(account)
	found := false
	for _, period := range []SpendPeriod{SpendHour, SpendDay, SpendWeek, SpendMonth, SpendForever} {
		id := spendID{key: keyHash, token: token, period: period}
		limit, ok := st.spends[id]
		if !ok {
			continue
		}
		found = true

		e.journal.append(spendStateChange{
			account:   account,
			id:        id,
			prevSpent: limit.Spent,
			prevStart: limit.WindowStart,
		})

		windowStart := period.windowStart(now)
		spentSoFar := limit.Spent
		if period != SpendForever && windowStart > limit.WindowStart {
			// Lazy rollover: the old window expired unused headroom and all.
			spentSoFar = new(uint256.Int)
		}
		newSpent := new(uint256.Int).Add(spentSoFar, spent)
		if newSpent.Lt(spentSoFar) || newSpent.Gt(limit.Limit) {
			return fmt.Errorf("%w: token %s period %s spend %s limit %s",
				ErrSpendLimitExceeded, token, period, newSpent, limit.Limit)
		}
		limit.Spent = newSpent
		limit.WindowStart = windowStart
	}
	if !found {
		return fmt.Errorf("%w: token %s", ErrNoSpendPermission, token)
	}
	return nil
}

// addDeclared accumulates the transfer amounts a call explicitly declares:
// native value, and amounts decoded from well-known ERC-20 selectors
// (target address = token).
func addDeclared(declared map[common.Address]*uint256.Int, call types.Call) {
	add := func(token common.Address, amount *uint256.Int) {
		if amount == nil || amount.IsZero() {
			return
		}
		if cur, ok := declared[token]; ok {
			cur.Add(cur, amount)
		} else {
			declared[token] = new(uint256.Int).Set(amount)
		}
	}

	add(NativeToken, call.Value)

	sel := call.Selector()
	switch sel {
	case selTransfer, selApprove:
		if len(call.Data) >= 68 {
			add(call.To, new(uint256.Int).SetBytes(call.Data[36:68]))
		}
	case selTransferFrom:
		if len(call.Data) >= 100 {
			add(call.To, new(uint256.Int).SetBytes(call.Data[68:100]))
		}
	}
}
