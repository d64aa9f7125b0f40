package txpool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

const blockGasLimit = 30_000_000

type fakeState struct {
	accounts map[common.Address]state.Account
}

func (f *fakeState) Basic(addr common.Address) (state.Account, error) {
	if acc, ok := f.accounts[addr]; ok {
		return acc, nil
	}
	return state.EmptyAccount(), nil
}

func newSignedTx(t *testing.T, signer *chaintypes.Signer, key []byte, nonce uint64, gasPrice int64, gasLimit uint64) (*chaintypes.Transaction, common.Address) {
	t.Helper()
	prv, err := crypto.ToECDSA(key)
	require.NoError(t, err)

	tx := chaintypes.NewTx(&chaintypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(gasPrice),
		Gas:      gasLimit,
		To:       &common.Address{},
		Value:    big.NewInt(0),
	})
	signed, err := chaintypes.SignTx(tx, signer, prv)
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(prv.PublicKey)
	return signed, addr
}

func testKey(t *testing.T, seed byte) []byte {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed
	}
	key[31] ^= 0x01 // avoid an all-zero scalar
	return key
}

func newTestPool(t *testing.T) (*Pool, *chaintypes.Signer) {
	t.Helper()
	signer := chaintypes.LatestSigner(big.NewInt(1))
	return New(blockGasLimit), signer
}

func TestAddTransactionAdmitsToPending(t *testing.T) {
	pool, signer := newTestPool(t)
	tx, sender := newSignedTx(t, signer, testKey(t, 1), 0, 10, 21000)

	st := &fakeState{accounts: map[common.Address]state.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000)},
	}}
	require.NoError(t, pool.AddTransaction(st, tx, sender))

	nonce, ok := pool.LastPendingNonce(sender)
	require.True(t, ok)
	assert.EqualValues(t, 0, nonce)
}

func TestAddTransactionRejectsNonceTooLow(t *testing.T) {
	pool, signer := newTestPool(t)
	tx, sender := newSignedTx(t, signer, testKey(t, 2), 0, 10, 21000)
	st := &fakeState{accounts: map[common.Address]state.Account{
		sender: {Nonce: 5, Balance: big.NewInt(1_000_000_000_000)},
	}}
	err := pool.AddTransaction(st, tx, sender)
	assert.ErrorIs(t, err, ErrNonceTooLow)
}

func TestAddTransactionRejectsInsufficientFunds(t *testing.T) {
	pool, signer := newTestPool(t)
	tx, sender := newSignedTx(t, signer, testKey(t, 3), 0, 10, 21000)
	st := &fakeState{accounts: map[common.Address]state.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1)},
	}}
	err := pool.AddTransaction(st, tx, sender)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestAddTransactionRejectsExceedsBlockGasLimit(t *testing.T) {
	pool, signer := newTestPool(t)
	tx, sender := newSignedTx(t, signer, testKey(t, 4), 0, 10, blockGasLimit+1)
	st := &fakeState{accounts: map[common.Address]state.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000)},
	}}
	err := pool.AddTransaction(st, tx, sender)
	assert.ErrorIs(t, err, ErrExceedsBlockGasLimit)
}

func TestAddTransactionRejectsDuplicateHash(t *testing.T) {
	pool, signer := newTestPool(t)
	tx, sender := newSignedTx(t, signer, testKey(t, 5), 0, 10, 21000)
	st := &fakeState{accounts: map[common.Address]state.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000)},
	}}
	require.NoError(t, pool.AddTransaction(st, tx, sender))
	err := pool.AddTransaction(st, tx, sender)
	assert.ErrorIs(t, err, ErrTransactionAlreadyExists)
}

func TestFutureTransactionPromotesOnGapFill(t *testing.T) {
	pool, signer := newTestPool(t)
	key := testKey(t, 6)
	tx0, sender := newSignedTx(t, signer, key, 0, 10, 21000)
	tx1, _ := newSignedTx(t, signer, key, 1, 10, 21000)

	st := &fakeState{accounts: map[common.Address]state.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000)},
	}}

	require.NoError(t, pool.AddTransaction(st, tx1, sender))
	_, ok := pool.LastPendingNonce(sender)
	assert.False(t, ok, "nonce 1 should sit in future until nonce 0 arrives")

	require.NoError(t, pool.AddTransaction(st, tx0, sender))
	nonce, ok := pool.LastPendingNonce(sender)
	require.True(t, ok)
	assert.EqualValues(t, 1, nonce)
}

func TestReplacementRequiresTenPercentBump(t *testing.T) {
	pool, signer := newTestPool(t)
	key := testKey(t, 7)
	tx0, sender := newSignedTx(t, signer, key, 0, 100, 21000)
	st := &fakeState{accounts: map[common.Address]state.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000)},
	}}
	require.NoError(t, pool.AddTransaction(st, tx0, sender))

	tooLow, _ := newSignedTx(t, signer, key, 0, 105, 21000) // +5%, not enough
	err := pool.AddTransaction(st, tooLow, sender)
	assert.Error(t, err)

	enough, _ := newSignedTx(t, signer, key, 0, 110, 21000) // +10%, exactly enough
	require.NoError(t, pool.AddTransaction(st, enough, sender))
}

func TestUpdateEvictsAfterBalanceDrop(t *testing.T) {
	pool, signer := newTestPool(t)
	tx, sender := newSignedTx(t, signer, testKey(t, 8), 0, 10, 21000)
	st := &fakeState{accounts: map[common.Address]state.Account{
		sender: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000)},
	}}
	require.NoError(t, pool.AddTransaction(st, tx, sender))

	st.accounts[sender] = state.Account{Nonce: 0, Balance: big.NewInt(0)}
	require.NoError(t, pool.Update(st))

	_, ok := pool.LastPendingNonce(sender)
	assert.False(t, ok)
}

func TestOrderedPendingIsFIFOByAdmission(t *testing.T) {
	pool, signer := newTestPool(t)
	keyA, keyB := testKey(t, 9), testKey(t, 10)
	txA, senderA := newSignedTx(t, signer, keyA, 0, 10, 21000)
	txB, senderB := newSignedTx(t, signer, keyB, 0, 10, 21000)

	st := &fakeState{accounts: map[common.Address]state.Account{
		senderA: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000)},
		senderB: {Nonce: 0, Balance: big.NewInt(1_000_000_000_000)},
	}}
	require.NoError(t, pool.AddTransaction(st, txB, senderB))
	require.NoError(t, pool.AddTransaction(st, txA, senderA))

	ordered := pool.OrderedPending()
	require.Len(t, ordered, 2)
	assert.Equal(t, txB.Hash(), ordered[0].Hash())
	assert.Equal(t, txA.Hash(), ordered[1].Hash())
}
