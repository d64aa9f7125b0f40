package blockbuilder

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

type fakeChain struct {
	block *chaintypes.Block
}

func (f *fakeChain) BlockByNumber(ctx context.Context, number uint64) (*chaintypes.Block, error) {
	return f.block, nil
}

func testChainConfig() *params.ChainConfig {
	cfg := *params.AllEthashProtocolChanges
	cfg.ChainID = big.NewInt(1)
	cfg.TerminalTotalDifficultyPassed = true
	return &cfg
}

func newGenesisBlockAndState(t *testing.T, funded common.Address, balance *big.Int) (*chaintypes.Block, *state.State) {
	t.Helper()
	st := state.New()
	require.NoError(t, st.ModifyAccount(funded, func(acc state.Account) state.Account {
		acc.Balance = balance
		return acc
	}))
	root, err := st.Commit()
	require.NoError(t, err)

	h := &chaintypes.Header{
		Number:     big.NewInt(0),
		Difficulty: big.NewInt(0),
		Root:       root,
		GasLimit:   30_000_000,
		BaseFee:    big.NewInt(1_000_000_000),
	}
	return chaintypes.NewBlockFromParts(h, nil, nil, nil), st
}

func TestBuilderExecutesSimpleTransferAndFinalizes(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xbeef")

	genesis, st := newGenesisBlockAndState(t, sender, big.NewInt(1_000_000_000_000_000_000))

	cfg := testChainConfig()
	b, err := New(context.Background(), cfg, &fakeChain{block: genesis}, genesis, st, HeaderOptions{
		Timestamp:   1000,
		Beneficiary: &recipient,
		MixDigest:   common.HexToHash("0x1"),
	}, true)
	require.NoError(t, err)

	signer := chaintypes.LatestSigner(cfg.ChainID)
	tx := chaintypes.NewTx(&chaintypes.DynamicFeeTx{
		ChainID:   cfg.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21000,
		To:        &recipient,
		Value:     big.NewInt(1_000_000),
	})
	signedTx, err := chaintypes.SignTx(tx, signer, key)
	require.NoError(t, err)

	receipt, trace, err := b.AddTransaction(signedTx, sender, false)
	require.NoError(t, err)
	require.Nil(t, trace)
	assert.EqualValues(t, chaintypes.ReceiptStatusSuccessful, receipt.Status)
	assert.EqualValues(t, 21000, receipt.CumulativeGasUsed)

	block, err := b.Finalize(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, block.NumberU64())
	assert.Len(t, block.Transactions(), 1)

	after := state.FromRoot(st.Store(), block.Root())
	recipientAcc, err := after.Basic(recipient)
	require.NoError(t, err)
	// The recipient is also the beneficiary, so it receives the transfer
	// plus the 1 wei/gas priority fee on 21000 gas.
	assert.EqualValues(t, 1_021_000, recipientAcc.Balance.Int64())
}

func TestBuilderRejectsTransactionExceedingBlockGasLimit(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	genesis, st := newGenesisBlockAndState(t, sender, big.NewInt(1_000_000_000_000_000_000))

	cfg := testChainConfig()
	opts := HeaderOptions{Timestamp: 1000, GasLimit: 21000, MixDigest: common.HexToHash("0x1")}
	b, err := New(context.Background(), cfg, &fakeChain{block: genesis}, genesis, st, opts, true)
	require.NoError(t, err)

	signer := chaintypes.LatestSigner(cfg.ChainID)
	tx := chaintypes.NewTx(&chaintypes.DynamicFeeTx{
		ChainID:   cfg.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       30000,
		To:        &common.Address{},
		Value:     big.NewInt(0),
	})
	signedTx, err := chaintypes.SignTx(tx, signer, key)
	require.NoError(t, err)

	_, _, err = b.AddTransaction(signedTx, sender, false)
	assert.ErrorIs(t, err, ErrExceedsBlockGasLimit)
}
