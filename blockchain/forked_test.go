package blockchain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/rpccache"
	"github.com/ethlocal/devnode/rpcclient"
	"github.com/ethlocal/devnode/state"
)

type fakeRemote struct {
	balance *big.Int
	storage common.Hash
}

func (f *fakeRemote) GetAccountInfo(ctx context.Context, address common.Address, block rpccache.BlockSpec) (*rpcclient.AccountInfo, error) {
	return &rpcclient.AccountInfo{Balance: f.balance, Nonce: 7}, nil
}

func (f *fakeRemote) GetStorageAt(ctx context.Context, address common.Address, slot uint64, block rpccache.BlockSpec) (common.Hash, error) {
	return f.storage, nil
}

func (f *fakeRemote) GetBlockByNumber(ctx context.Context, block rpccache.BlockSpec, includeTxData bool) (*rpcclient.RawBlock, error) {
	return &rpcclient.RawBlock{NumberHex: hexutil.Uint64(100)}, nil
}

func TestForkedChainReadsThroughRemoteBelowForkPoint(t *testing.T) {
	remote := &fakeRemote{balance: big.NewInt(500), storage: common.HexToHash("0x9")}
	fc := NewForked(remote, 100, common.HexToHash("0xfork"), big.NewInt(1))

	view, err := fc.StateAtBlock(context.Background(), 50, nil)
	require.NoError(t, err)

	addr := common.HexToAddress("0x1")
	acc, err := view.Basic(addr)
	require.NoError(t, err)
	assert.EqualValues(t, 500, acc.Balance.Int64())
	assert.EqualValues(t, 7, acc.Nonce)

	val, err := view.Storage(addr, common.HexToHash("0x1"))
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x9"), val)
}

func TestForkedChainRevertCannotCrossForkBoundary(t *testing.T) {
	remote := &fakeRemote{balance: big.NewInt(0)}
	fc := NewForked(remote, 100, common.HexToHash("0xfork"), big.NewInt(1))
	assert.ErrorIs(t, fc.RevertToBlock(100), ErrBelowForkBoundary)
	assert.ErrorIs(t, fc.RevertToBlock(50), ErrBelowForkBoundary)
}

func TestForkedChainInsertRejectsAtOrBelowForkPoint(t *testing.T) {
	remote := &fakeRemote{}
	fc := NewForked(remote, 100, common.HexToHash("0xfork"), big.NewInt(1))

	atForkPoint := chaintypes.NewBlockFromParts(&chaintypes.Header{
		Number:     big.NewInt(100),
		ParentHash: common.Hash{},
		Difficulty: big.NewInt(1),
	}, nil, nil, nil)
	err := fc.InsertBlock(context.Background(), atForkPoint, nil, state.New())
	assert.Error(t, err)

	belowForkPoint := chaintypes.NewBlockFromParts(&chaintypes.Header{
		Number:     big.NewInt(50),
		ParentHash: common.Hash{},
		Difficulty: big.NewInt(1),
	}, nil, nil, nil)
	err = fc.InsertBlock(context.Background(), belowForkPoint, nil, state.New())
	assert.Error(t, err)

	aboveForkPoint := childBlock(fc.LatestBlock())
	require.NoError(t, fc.InsertBlock(context.Background(), aboveForkPoint, nil, state.New()))
}
