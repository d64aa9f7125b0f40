package blockchain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

func newGenesis() (*chaintypes.Block, *state.State) {
	s := state.New()
	root, _ := s.Commit()
	h := &chaintypes.Header{
		Number:     big.NewInt(0),
		Difficulty: big.NewInt(1),
		Root:       root,
		GasLimit:   30_000_000,
	}
	return chaintypes.NewBlockFromParts(h, nil, nil, nil), s
}

func childBlock(parent *chaintypes.Block) *chaintypes.Block {
	h := &chaintypes.Header{
		Number:     new(big.Int).Add(parent.Number(), big.NewInt(1)),
		ParentHash: parent.Hash(),
		Difficulty: big.NewInt(1),
		Root:       parent.Root(),
		GasLimit:   parent.GasLimit(),
	}
	return chaintypes.NewBlockFromParts(h, nil, nil, nil)
}

func TestLocalChainInsertAndLookup(t *testing.T) {
	genesis, genState := newGenesis()
	chain := NewLocal(genesis, genState)

	block1 := childBlock(genesis)
	require.NoError(t, chain.InsertBlock(context.Background(), block1, nil, genState.Clone()))

	assert.Equal(t, uint64(1), chain.LatestBlockNumber())
	got, err := chain.BlockByNumber(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, block1.Hash(), got.Hash())

	byHash, err := chain.BlockByHash(context.Background(), block1.Hash())
	require.NoError(t, err)
	assert.Equal(t, block1.Hash(), byHash.Hash())
}

func TestLocalChainTotalDifficultyAccumulates(t *testing.T) {
	genesis, genState := newGenesis()
	chain := NewLocal(genesis, genState)
	block1 := childBlock(genesis)
	require.NoError(t, chain.InsertBlock(context.Background(), block1, nil, genState.Clone()))

	td, err := chain.TotalDifficulty(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, td.Int64())
}

func TestLocalChainRejectsNonContiguousInsert(t *testing.T) {
	genesis, genState := newGenesis()
	chain := NewLocal(genesis, genState)
	block1 := childBlock(genesis)
	block2 := childBlock(block1) // skips inserting block1
	assert.Error(t, chain.InsertBlock(context.Background(), block2, nil, genState.Clone()))
}

func TestLocalChainRevertToBlockTruncates(t *testing.T) {
	genesis, genState := newGenesis()
	chain := NewLocal(genesis, genState)
	block1 := childBlock(genesis)
	require.NoError(t, chain.InsertBlock(context.Background(), block1, nil, genState.Clone()))
	block2 := childBlock(block1)
	require.NoError(t, chain.InsertBlock(context.Background(), block2, nil, genState.Clone()))

	require.NoError(t, chain.RevertToBlock(1))
	assert.EqualValues(t, 1, chain.LatestBlockNumber())
	_, err := chain.BlockByHash(context.Background(), block2.Hash())
	assert.ErrorIs(t, err, ErrUnknownBlock)
}

func TestLocalChainStateAtBlockAppliesOverride(t *testing.T) {
	genesis, genState := newGenesis()
	chain := NewLocal(genesis, genState)
	addr := common.HexToAddress("0x1")

	view, err := chain.StateAtBlock(context.Background(), 0, map[uint64]StateOverride{
		0: {
			Address: addr,
			Apply: func(a state.Account) state.Account {
				a.Balance = big.NewInt(42)
				return a
			},
		},
	})
	require.NoError(t, err)
	acc, err := view.Basic(addr)
	require.NoError(t, err)
	assert.EqualValues(t, 42, acc.Balance.Int64())
}
