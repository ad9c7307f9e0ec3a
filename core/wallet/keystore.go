// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.
//
// Per-account key registry. Keys are identified by the content hash of
// their type and public key; expiry is checked at validation time, never at
// authorization time.

package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// AuthorizeKey registers a credential for the account and returns its key
// hash. Authorizing a key whose hash is already present replaces its
// metadata (expiry, super-admin flag) without changing identity or its
// position in the enumeration.
func (e *Engine) AuthorizeKey(account common.Address, key *Key) (common.Hash, error) {
	if len(key.PublicKey) == 0 {
		return common.Hash{}, fmt.Errorf("%w: empty public key", ErrInvalidSignature)
	}
	st := e.state(account)
	hash := key.Hash()
	if i, ok := st.keyIndex[hash]; ok {
		e.journal.append(keyReplacedChange{account: account, hash: hash, prev: st.keys[i]})
		st.keys[i] = key.copy()
		return hash, nil
	}
	st.keys = append(st.keys, key.copy())
	st.keyIndex[hash] = len(st.keys) - 1
	e.journal.append(keyAuthorizedChange{account: account, hash: hash})
	log.Info("Key authorized", "account", account, "keyHash", hash, "type", key.Type, "superAdmin", key.SuperAdmin)
	return hash, nil
}

// RevokeKey removes a credential. Restriction records for the key are left
// in place; they are harmless because only currently-authorized keys'
// restrictions are ever consulted.
func (e *Engine) RevokeKey(account common.Address, hash common.Hash) error {
	st := e.state(account)
	removed, index := st.removeKey(hash)
	if removed == nil {
		return ErrKeyDoesNotExist
	}
	e.journal.append(keyRevokedChange{account: account, prev: removed, index: index})
	log.Info("Key revoked", "account", account, "keyHash", hash)
	return nil
}

// GetKey returns the registered key with the given hash.
func (e *Engine) GetKey(account common.Address, hash common.Hash) (*Key, error) {
	st, ok := e.accounts[account]
	if !ok {
		return nil, ErrKeyDoesNotExist
	}
	i, ok := st.keyIndex[hash]
	if !ok {
		return nil, ErrKeyDoesNotExist
	}
	return st.keys[i].copy(), nil
}

// KeyCount returns the number of authorized keys.
func (e *Engine) KeyCount(account common.Address) int {
	st, ok := e.accounts[account]
	if !ok {
		return 0
	}
	return len(st.keys)
}

// KeyAt enumerates the key set.
func (e *Engine) KeyAt(account common.Address, i int) (*Key, error) {
	st, ok := e.accounts[account]
	if !ok || i < 0 || i >= len(st.keys) {
		return nil, ErrKeyDoesNotExist
	}
	return st.keys[i].copy(), nil
}

// Keys returns copies of the account's full key set, in enumeration order.
func (e *Engine) Keys(account common.Address) []*Key {
	st, ok := e.accounts[account]
	if !ok {
		return nil
	}
	keys := make([]*Key, len(st.keys))
	for i, k := range st.keys {
		keys[i] = k.copy()
	}
	return keys
}

// ApproveDelegate records (or clears) the account's approval for a
// sub-account to verify against the given key through an external-reference
// credential. Delegation is never implied by the reference alone.
func (e *Engine) ApproveDelegate(account, subAccount common.Address, keyHash common.Hash, approved bool) {
	st := e.state(account)
	id := delegationID{sub: subAccount, key: keyHash}
	_, prior := st.delegations[id]
	if prior == approved {
		return
	}
	e.journal.append(delegationChange{account: account, id: id, prior: prior})
	if approved {
		st.delegations[id] = struct{}{}
	} else {
		delete(st.delegations, id)
	}
}

// SetParentKey flags (or clears) a key as a parent-sweep key: it may pull
// from this account without spend checks, used for fund recovery by a
// parent account.
func (e *Engine) SetParentKey(account common.Address, keyHash common.Hash, isParent bool) {
	st := e.state(account)
	_, prior := st.parentKeys[keyHash]
	if prior == isParent {
		return
	}
	e.journal.append(parentKeyChange{account: account, hash: keyHash, prior: prior})
	if isParent {
		st.parentKeys[keyHash] = struct{}{}
	} else {
		delete(st.parentKeys, keyHash)
	}
}
