package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

// LocalChain is an ordered vector of blocks starting from a constructed
// genesis, with no remote fallback.
type LocalChain struct {
	mu sync.RWMutex

	byNumber    []*blockEntry
	byHash      map[common.Hash]uint64
	byTxHash    map[common.Hash]uint64
	stateByRoot map[common.Hash]*state.State
}

// NewLocal creates a local chain seeded with genesis and its initial state.
func NewLocal(genesis *chaintypes.Block, genesisState *state.State) *LocalChain {
	c := &LocalChain{
		byHash:      make(map[common.Hash]uint64),
		byTxHash:    make(map[common.Hash]uint64),
		stateByRoot: make(map[common.Hash]*state.State),
	}
	entry := &blockEntry{
		block:           genesis,
		totalDifficulty: new(big.Int).Set(genesis.Difficulty()),
		stateRoot:       genesis.Root(),
	}
	c.byNumber = append(c.byNumber, entry)
	c.byHash[genesis.Hash()] = 0
	c.stateByRoot[genesis.Root()] = genesisState
	return c
}

func (c *LocalChain) LatestBlock() *chaintypes.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byNumber[len(c.byNumber)-1].block
}

func (c *LocalChain) LatestBlockNumber() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byNumber[len(c.byNumber)-1].number()
}

func (c *LocalChain) BlockByNumber(_ context.Context, n uint64) (*chaintypes.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n >= uint64(len(c.byNumber)) {
		return nil, fmtBlockNotFound(n)
	}
	return c.byNumber[n].block, nil
}

func (c *LocalChain) BlockByHash(_ context.Context, hash common.Hash) (*chaintypes.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("%w: hash %s", ErrUnknownBlock, hash)
	}
	return c.byNumber[n].block, nil
}

func (c *LocalChain) BlockByTransactionHash(_ context.Context, txHash common.Hash) (*chaintypes.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byTxHash[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: tx %s", ErrUnknownBlock, txHash)
	}
	return c.byNumber[n].block, nil
}

func (c *LocalChain) ReceiptsByBlockHash(_ context.Context, hash common.Hash) (chaintypes.Receipts, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("%w: hash %s", ErrUnknownBlock, hash)
	}
	return c.byNumber[n].receipts, nil
}

func (c *LocalChain) TotalDifficulty(n uint64) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n >= uint64(len(c.byNumber)) {
		return nil, fmtBlockNotFound(n)
	}
	return new(big.Int).Set(c.byNumber[n].totalDifficulty), nil
}

func (c *LocalChain) InsertBlock(_ context.Context, block *chaintypes.Block, receipts chaintypes.Receipts, postState *state.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent := c.byNumber[len(c.byNumber)-1]
	if block.NumberU64() != parent.number()+1 {
		return fmt.Errorf("blockchain: block %d does not extend tip %d", block.NumberU64(), parent.number())
	}
	if block.ParentHash() != parent.block.Hash() {
		return fmt.Errorf("blockchain: block %d has parent hash %s, tip hash is %s", block.NumberU64(), block.ParentHash(), parent.block.Hash())
	}

	entry := &blockEntry{
		block:           block,
		receipts:        receipts,
		totalDifficulty: computeTotalDifficulty(parent.totalDifficulty, block),
		stateRoot:       block.Root(),
	}
	c.byNumber = append(c.byNumber, entry)
	// byHash/byTxHash hold positions in byNumber, which equal block numbers
	// only when the chain starts at block 0 (not for a forked chain's anchor).
	idx := uint64(len(c.byNumber) - 1)
	c.byHash[block.Hash()] = idx
	for _, tx := range block.Transactions() {
		c.byTxHash[tx.Hash()] = idx
	}
	c.stateByRoot[block.Root()] = postState
	return nil
}

func (c *LocalChain) RevertToBlock(n uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= uint64(len(c.byNumber)) {
		return fmtBlockNotFound(n)
	}
	for i := n + 1; i < uint64(len(c.byNumber)); i++ {
		entry := c.byNumber[i]
		delete(c.byHash, entry.block.Hash())
		delete(c.stateByRoot, entry.stateRoot)
		for _, tx := range entry.block.Transactions() {
			delete(c.byTxHash, tx.Hash())
		}
	}
	c.byNumber = c.byNumber[:n+1]
	return nil
}

func (c *LocalChain) StateAtBlock(_ context.Context, n uint64, overrides map[uint64]StateOverride) (StateView, error) {
	c.mu.RLock()
	if n >= uint64(len(c.byNumber)) {
		c.mu.RUnlock()
		return nil, fmtBlockNotFound(n)
	}
	entry := c.byNumber[n]
	base, ok := c.stateByRoot[entry.stateRoot]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blockchain: no retained state for block %d", n)
	}
	view := base.Clone()
	if override, ok := overrides[n]; ok {
		if err := applyOverride(view, override); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func applyOverride(view *state.State, override StateOverride) error {
	if override.Apply != nil {
		if err := view.ModifyAccount(override.Address, override.Apply); err != nil {
			return err
		}
	}
	for slot, value := range override.Storage {
		if err := view.SetAccountStorageSlot(override.Address, slot, value); err != nil {
			return err
		}
	}
	return nil
}
