// Copyright 2025 The go-tide Authors

package wallet

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/tidelabs/go-tide/core/types"
	"github.com/tidelabs/go-tide/crypto/p256"
	"github.com/tidelabs/go-tide/crypto/webauthn"
)

// mockHost implements Host with deep-copy snapshots. Calls with native
// value move balances; calls to an address registered as a token apply the
// ERC-20 transfer selector.
type mockHost struct {
	chainID  uint64
	now      uint64
	balances map[common.Address]map[common.Address]*uint256.Int // token -> holder -> balance
	tokens   map[common.Address]bool
	failing  map[common.Address]error

	calls     []types.Call
	snapshots []*mockHost
}

func newMockHost() *mockHost {
	return &mockHost{
		chainID:  1,
		now:      1_700_000_000,
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
		tokens:   make(map[common.Address]bool),
		failing:  make(map[common.Address]error),
	}
}

func (h *mockHost) setBalance(token, addr common.Address, amount uint64) {
	if _, ok := h.balances[token]; !ok {
		h.balances[token] = make(map[common.Address]*uint256.Int)
	}
	h.balances[token][addr] = uint256.NewInt(amount)
	if token != NativeToken {
		h.tokens[token] = true
	}
}

func (h *mockHost) BalanceOf(token, addr common.Address) *uint256.Int {
	if m, ok := h.balances[token]; ok {
		if b, ok := m[addr]; ok {
			return new(uint256.Int).Set(b)
		}
	}
	return new(uint256.Int)
}

func (h *mockHost) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	bal := h.BalanceOf(token, from)
	if bal.Lt(amount) {
		return fmt.Errorf("insufficient balance: have %s want %s", bal, amount)
	}
	if _, ok := h.balances[token]; !ok {
		h.balances[token] = make(map[common.Address]*uint256.Int)
	}
	h.balances[token][from] = bal.Sub(bal, amount)
	h.balances[token][to] = new(uint256.Int).Add(h.BalanceOf(token, to), amount)
	return nil
}

func (h *mockHost) Call(from common.Address, call types.Call) error {
	if err, ok := h.failing[call.To]; ok {
		return err
	}
	h.calls = append(h.calls, call)
	if call.Value != nil && !call.Value.IsZero() {
		if err := h.Transfer(NativeToken, from, call.To, call.Value); err != nil {
			return err
		}
	}
	if h.tokens[call.To] && call.Selector() == selTransfer && len(call.Data) >= 68 {
		dest := common.BytesToAddress(call.Data[16:36])
		amount := new(uint256.Int).SetBytes(call.Data[36:68])
		return h.Transfer(call.To, from, dest, amount)
	}
	return nil
}

func (h *mockHost) Snapshot() int {
	cpy := &mockHost{
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
		calls:    append([]types.Call{}, h.calls...),
	}
	for token, m := range h.balances {
		cpy.balances[token] = make(map[common.Address]*uint256.Int)
		for addr, b := range m {
			cpy.balances[token][addr] = new(uint256.Int).Set(b)
		}
	}
	h.snapshots = append(h.snapshots, cpy)
	return len(h.snapshots) - 1
}

func (h *mockHost) RevertToSnapshot(id int) {
	snap := h.snapshots[id]
	h.balances = snap.balances
	h.calls = snap.calls
	h.snapshots = h.snapshots[:id]
}

func (h *mockHost) ChainID() uint64   { return h.chainID }
func (h *mockHost) Timestamp() uint64 { return h.now }

// Signing helpers.

func newECDSAKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv, crypto.PubkeyToAddress(priv.PublicKey)
}

func signDigest(t *testing.T, priv *ecdsa.PrivateKey, digest common.Hash) []byte {
	t.Helper()
	sig, err := crypto.Sign(digest.Bytes(), priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

// wrapSig appends the keyHash and prehash flag per the wire format.
func wrapSig(inner []byte, keyHash common.Hash, prehash bool) []byte {
	out := append([]byte{}, inner...)
	out = append(out, keyHash.Bytes()...)
	if prehash {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

func newP256Key(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate p256 key: %v", err)
	}
	return priv, p256.EncodePublicKey(&priv.PublicKey)
}

func signP256(t *testing.T, priv *ecdsa.PrivateKey, hash [32]byte) []byte {
	t.Helper()
	r, s, err := ecdsa.Sign(rand.Reader, priv, hash[:])
	if err != nil {
		t.Fatalf("p256 sign: %v", err)
	}
	s = p256.NormalizeS(s)
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig
}

func buildAssertion(t *testing.T, priv *ecdsa.PrivateKey, challenge common.Hash) []byte {
	t.Helper()
	authData := make([]byte, 37)
	authData[32] = 0x01 // user present
	clientData := []byte(fmt.Sprintf(
		`{"type":"webauthn.get","challenge":"%s","origin":"https://wallet.example"}`,
		base64.RawURLEncoding.EncodeToString(challenge.Bytes()),
	))
	cdHash := sha256.Sum256(clientData)
	msg := sha256.Sum256(append(append([]byte{}, authData...), cdHash[:]...))

	r, s, err := ecdsa.Sign(rand.Reader, priv, msg[:])
	if err != nil {
		t.Fatalf("webauthn sign: %v", err)
	}
	s = p256.NormalizeS(s)
	enc, err := webauthn.EncodeAssertion(&webauthn.Assertion{
		AuthenticatorData: authData,
		ClientDataJSON:    clientData,
		ChallengeIndex:    36,
		TypeIndex:         9,
		R:                 uint256.MustFromBig(r),
		S:                 uint256.MustFromBig(s),
	})
	if err != nil {
		t.Fatalf("encode assertion: %v", err)
	}
	return enc
}

// erc20Transfer builds transfer(address,uint256) calldata.
func erc20Transfer(to common.Address, amount uint64) []byte {
	data := make([]byte, 68)
	copy(data[:4], selTransfer[:])
	copy(data[16:36], to.Bytes())
	b := uint256.NewInt(amount).Bytes32()
	copy(data[36:68], b[:])
	return data
}

func seqKeyFromUint(v uint64) *uint256.Int {
	n := uint256.NewInt(v)
	return n.Lsh(n, 64)
}

func multichainNonce(counter uint64) *uint256.Int {
	n := new(uint256.Int).Lsh(uint256.NewInt(uint64(types.MultichainNoncePrefix)), 240)
	return n.Or(n, uint256.NewInt(counter))
}

var errCallFailed = errors.New("call failed")
