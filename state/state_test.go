package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyStateRootIsEmptyTrie(t *testing.T) {
	s := New()
	root, err := s.StateRoot()
	require.NoError(t, err)
	assert.Equal(t, EmptyRootHash, root)
}

func TestUnknownAccountIsEmpty(t *testing.T) {
	s := New()
	acc, err := s.Basic(common.HexToAddress("0x1"))
	require.NoError(t, err)
	assert.True(t, acc.IsEmpty())
}

func TestModifyAccountThenCommitIsReadableAfterReopen(t *testing.T) {
	s := New()
	addr := common.HexToAddress("0x1234")

	require.NoError(t, s.ModifyAccount(addr, func(a Account) Account {
		a.Balance = big.NewInt(1000)
		a.Nonce = 3
		return a
	}))

	root, err := s.Commit()
	require.NoError(t, err)
	assert.NotEqual(t, EmptyRootHash, root)

	fresh := FromRoot(s.Store(), root)
	acc, err := fresh.Basic(addr)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, acc.Balance.Int64())
	assert.EqualValues(t, 3, acc.Nonce)
}

func TestStorageRoundTripThroughCommit(t *testing.T) {
	s := New()
	addr := common.HexToAddress("0xabcd")
	slot := common.HexToHash("0x1")
	value := common.HexToHash("0x2a")

	require.NoError(t, s.SetAccountStorageSlot(addr, slot, value))
	root, err := s.Commit()
	require.NoError(t, err)

	fresh := FromRoot(s.Store(), root)
	got, err := fresh.Storage(addr, slot)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func TestDeleteAccountRemovesItAfterCommit(t *testing.T) {
	s := New()
	addr := common.HexToAddress("0x9")
	require.NoError(t, s.ModifyAccount(addr, func(a Account) Account {
		a.Balance = big.NewInt(5)
		return a
	}))
	root, err := s.Commit()
	require.NoError(t, err)

	live := FromRoot(s.Store(), root)
	live.DeleteAccount(addr)
	root2, err := live.Commit()
	require.NoError(t, err)

	fresh := FromRoot(s.Store(), root2)
	acc, err := fresh.Basic(addr)
	require.NoError(t, err)
	assert.True(t, acc.IsEmpty())
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	s := New()
	addr := common.HexToAddress("0x1")
	require.NoError(t, s.ModifyAccount(addr, func(a Account) Account {
		a.Nonce = 1
		return a
	}))

	clone := s.Clone()
	require.NoError(t, clone.ModifyAccount(addr, func(a Account) Account {
		a.Nonce = 99
		return a
	}))

	orig, err := s.Basic(addr)
	require.NoError(t, err)
	cloned, err := clone.Basic(addr)
	require.NoError(t, err)

	assert.EqualValues(t, 1, orig.Nonce)
	assert.EqualValues(t, 99, cloned.Nonce)
}

func TestCodeStorageByHash(t *testing.T) {
	s := New()
	code := []byte{0x60, 0x00, 0x60, 0x00}
	hash := s.SetCode(code)
	assert.Equal(t, code, s.CodeByHash(hash))
}

func TestSetCodeOfEmptyBytesReturnsEmptyCodeHash(t *testing.T) {
	s := New()
	assert.Equal(t, EmptyCodeHash, s.SetCode(nil))
}
