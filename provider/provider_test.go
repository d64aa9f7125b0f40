package provider

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethlocal/devnode/blockchain"
	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/internal/devaccounts"
	"github.com/ethlocal/devnode/state"
)

func testChainConfig() *params.ChainConfig {
	cfg := *params.AllEthashProtocolChanges
	cfg.ChainID = big.NewInt(1337)
	cfg.TerminalTotalDifficultyPassed = true
	return &cfg
}

func newTestProvider(t *testing.T, funded common.Address, balance *big.Int, keyring *devaccounts.Keyring) *Provider {
	t.Helper()
	st := state.New()
	require.NoError(t, st.ModifyAccount(funded, func(acc state.Account) state.Account {
		acc.Balance = balance
		return acc
	}))
	root, err := st.Commit()
	require.NoError(t, err)

	genesis := chaintypes.NewBlockFromParts(&chaintypes.Header{
		Number:     big.NewInt(0),
		Difficulty: big.NewInt(0),
		Root:       root,
		GasLimit:   30_000_000,
		BaseFee:    big.NewInt(1_000_000_000),
		Time:       1000,
	}, nil, nil, nil)

	chain := blockchain.NewLocal(genesis, st)
	p, err := New(Config{
		ChainConfig:   testChainConfig(),
		PostMerge:     true,
		BlockGasLimit: 30_000_000,
		AutoMine:      true,
		Coinbase:      common.HexToAddress("0xc01bface"),
		Keyring:       keyring,
	}, chain, st)
	require.NoError(t, err)
	return p
}

func TestSendTransactionAutomines(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xbeef")

	keyring := devaccounts.NewKeyring(key)
	p := newTestProvider(t, sender, big.NewInt(1_000_000_000_000_000_000), keyring)

	hash, err := p.EthSendTransaction(context.Background(), sender, TxRequest{
		To:        &recipient,
		Value:     big.NewInt(1_000_000),
		Gas:       21000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, p.EthBlockNumber())
	receipt, err := p.EthGetTransactionReceipt(context.Background(), hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.EqualValues(t, chaintypes.ReceiptStatusSuccessful, receipt.Status)

	balance, err := p.EthGetBalance(context.Background(), recipient, Latest())
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000, balance.Int64())
}

func TestImpersonatedAccountCanSend(t *testing.T) {
	funded := common.HexToAddress("0xfeed")
	recipient := common.HexToAddress("0xbeef")
	p := newTestProvider(t, funded, big.NewInt(1_000_000_000_000_000_000), devaccounts.NewKeyring())

	p.HardhatImpersonateAccount(funded)
	hash, err := p.EthSendTransaction(context.Background(), funded, TxRequest{
		To:        &recipient,
		Value:     big.NewInt(42),
		Gas:       21000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
	})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
}

func TestSendFromUnknownAccountFails(t *testing.T) {
	funded := common.HexToAddress("0xfeed")
	p := newTestProvider(t, funded, big.NewInt(1_000_000_000_000_000_000), devaccounts.NewKeyring())

	_, err := p.EthSendTransaction(context.Background(), funded, TxRequest{
		To:  &funded,
		Gas: 21000,
	})
	assert.ErrorIs(t, err, devaccounts.ErrUnknownAddress)
}

func TestMineAndCommitBlockWithoutAutomine(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0xbeef")
	keyring := devaccounts.NewKeyring(key)

	p := newTestProvider(t, sender, big.NewInt(1_000_000_000_000_000_000), keyring)
	p.autoMine = false

	_, err = p.EthSendTransaction(context.Background(), sender, TxRequest{
		To:        &recipient,
		Value:     big.NewInt(10),
		Gas:       21000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, p.EthBlockNumber())

	block, err := p.MineAndCommitBlock(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, block.Transactions(), 1)
	assert.EqualValues(t, 1, p.EthBlockNumber())
}

func TestSnapshotRevertRestoresBalanceAndHead(t *testing.T) {
	funded := common.HexToAddress("0xfeed")
	p := newTestProvider(t, funded, big.NewInt(1_000_000_000_000_000_000), devaccounts.NewKeyring())
	p.HardhatImpersonateAccount(funded)

	snap := p.MakeSnapshot()
	recipient := common.HexToAddress("0xbeef")
	_, err := p.EthSendTransaction(context.Background(), funded, TxRequest{
		To:        &recipient,
		Value:     big.NewInt(500),
		Gas:       21000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, p.EthBlockNumber())

	require.NoError(t, p.RevertToSnapshot(snap))
	assert.EqualValues(t, 0, p.EthBlockNumber())

	balance, err := p.EthGetBalance(context.Background(), recipient, Latest())
	require.NoError(t, err)
	assert.EqualValues(t, 0, balance.Int64())
}

func TestCallDoesNotRequireBalanceOrMineBlocks(t *testing.T) {
	broke := common.HexToAddress("0xbroke")
	recipient := common.HexToAddress("0xbeef")
	p := newTestProvider(t, common.HexToAddress("0xfeed"), big.NewInt(1_000_000_000_000_000_000), devaccounts.NewKeyring())

	result, err := p.EthCall(context.Background(), CallRequest{
		From: broke,
		Tx: TxRequest{
			To:  &recipient,
			Gas: 21000,
		},
	}, Latest())
	require.NoError(t, err)
	assert.Nil(t, result.Err)
	assert.EqualValues(t, 0, p.EthBlockNumber())
}
