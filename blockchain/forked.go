package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/rpccache"
	"github.com/ethlocal/devnode/rpcclient"
	"github.com/ethlocal/devnode/state"
)

// RemoteReader is the subset of rpcclient.Client the forked chain needs —
// narrowed to an interface so tests can substitute a fake.
type RemoteReader interface {
	GetAccountInfo(ctx context.Context, address common.Address, block rpccache.BlockSpec) (*rpcclient.AccountInfo, error)
	GetStorageAt(ctx context.Context, address common.Address, slot uint64, block rpccache.BlockSpec) (common.Hash, error)
	GetBlockByNumber(ctx context.Context, block rpccache.BlockSpec, includeTxData bool) (*rpcclient.RawBlock, error)
}

// ForkedChain maintains a local suffix of blocks mined on top of an
// immutable fork point, deferring anything at or before it to a remote
// archive node via C2.
type ForkedChain struct {
	remote        RemoteReader
	forkBlock     uint64
	forkBlockHash common.Hash

	// local holds the locally-mined suffix, indexed by (number -
	// forkBlock); its own fork "genesis" at index 0 is a synthetic anchor whose
	// state is empty (no committed diffs yet on top of the remote).
	local *LocalChain
}

// NewForked creates a forked chain anchored at forkBlock/forkBlockHash; the
// first locally-mined block's parent is forkBlockHash.
func NewForked(remote RemoteReader, forkBlock uint64, forkBlockHash common.Hash, forkHeaderDifficulty *big.Int) *ForkedChain {
	anchor := chaintypes.NewBlockFromParts(&chaintypes.Header{
		Number:     new(big.Int).SetUint64(forkBlock),
		ParentHash: common.Hash{},
		Root:       state.EmptyRootHash,
		Difficulty: new(big.Int).Set(forkHeaderDifficulty),
	}, nil, nil, nil)

	fc := &ForkedChain{
		remote:        remote,
		forkBlock:     forkBlock,
		forkBlockHash: forkBlockHash,
	}
	fc.local = NewLocal(anchor, state.New())
	// The anchor's real hash is the remote block's hash, not whatever
	// CopyHeader computed from our synthetic fields; index it under the
	// real hash too so by-hash lookups at the fork point still resolve.
	fc.local.byHash[forkBlockHash] = 0
	return fc
}

func (c *ForkedChain) isLocal(n uint64) bool { return n > c.forkBlock }

func (c *ForkedChain) LatestBlock() *chaintypes.Block { return c.local.LatestBlock() }

func (c *ForkedChain) LatestBlockNumber() uint64 { return c.local.LatestBlockNumber() }

func (c *ForkedChain) BlockByNumber(ctx context.Context, n uint64) (*chaintypes.Block, error) {
	if c.isLocal(n) {
		return c.local.BlockByNumber(ctx, n-c.forkBlock)
	}
	raw, err := c.remote.GetBlockByNumber(ctx, rpccache.BlockSpecNumber(n), false)
	if err != nil {
		return nil, fmt.Errorf("blockchain: fetch remote block %d: %w", n, err)
	}
	return remoteBlockStub(raw), nil
}

func (c *ForkedChain) BlockByHash(ctx context.Context, hash common.Hash) (*chaintypes.Block, error) {
	if hash == c.forkBlockHash {
		return c.BlockByNumber(ctx, c.forkBlock)
	}
	if block, err := c.local.BlockByHash(ctx, hash); err == nil {
		return block, nil
	}
	return nil, fmt.Errorf("%w: hash %s (remote by-hash lookups fetch through rpcclient directly)", ErrUnknownBlock, hash)
}

func (c *ForkedChain) BlockByTransactionHash(ctx context.Context, txHash common.Hash) (*chaintypes.Block, error) {
	return c.local.BlockByTransactionHash(ctx, txHash)
}

func (c *ForkedChain) ReceiptsByBlockHash(ctx context.Context, hash common.Hash) (chaintypes.Receipts, error) {
	return c.local.ReceiptsByBlockHash(ctx, hash)
}

func (c *ForkedChain) TotalDifficulty(n uint64) (*big.Int, error) {
	if c.isLocal(n) {
		return c.local.TotalDifficulty(n - c.forkBlock)
	}
	return nil, fmt.Errorf("blockchain: total difficulty for pre-fork block %d is not tracked locally", n)
}

func (c *ForkedChain) InsertBlock(ctx context.Context, block *chaintypes.Block, receipts chaintypes.Receipts, postState *state.State) error {
	if block.NumberU64() <= c.forkBlock {
		return fmt.Errorf("blockchain: cannot insert block %d at or below fork point %d", block.NumberU64(), c.forkBlock)
	}
	return c.local.InsertBlock(ctx, block, receipts, postState)
}

func (c *ForkedChain) RevertToBlock(n uint64) error {
	if n <= c.forkBlock {
		return ErrBelowForkBoundary
	}
	return c.local.RevertToBlock(n - c.forkBlock)
}

// StateAtBlock returns a locally-constructed state (rebuilt from committed
// diffs) for a post-fork block, or a remote-backed read-through view for
// anything at or before the fork point, with overrides for n layered on
// top either way.
func (c *ForkedChain) StateAtBlock(ctx context.Context, n uint64, overrides map[uint64]StateOverride) (StateView, error) {
	if c.isLocal(n) {
		return c.local.StateAtBlock(ctx, n-c.forkBlock, overrides)
	}
	view := &remoteState{remote: c.remote, block: rpccache.BlockSpecNumber(n), ctx: ctx}
	if override, ok := overrides[n]; ok {
		view.override = &override
	}
	return view, nil
}

// remoteBlockStub is a minimal placeholder block that carries only the
// remote block's number. Its Hash() is the hash of this synthetic header, not
// the remote block's hash, and no other field of the remote block is copied.
func remoteBlockStub(raw *rpcclient.RawBlock) *chaintypes.Block {
	h := &chaintypes.Header{
		Number: new(big.Int).SetUint64(uint64(raw.NumberHex)),
	}
	return chaintypes.NewBlockFromParts(h, nil, nil, nil)
}

// remoteState answers state reads for a pre-fork block by calling through
// to the remote archive node, with one optional override patch applied on
// top (irregular-state overrides can target pre-fork block numbers too).
type remoteState struct {
	remote   RemoteReader
	block    rpccache.BlockSpec
	ctx      context.Context
	override *StateOverride
}

func (r *remoteState) Basic(addr common.Address) (state.Account, error) {
	info, err := r.remote.GetAccountInfo(r.ctx, addr, r.block)
	if err != nil {
		return state.Account{}, err
	}
	acc := state.Account{Nonce: info.Nonce, Balance: info.Balance}
	if len(info.Code) > 0 {
		acc.CodeHash = crypto.Keccak256(info.Code)
	} else {
		acc.CodeHash = state.EmptyCodeHash.Bytes()
	}
	if r.override != nil && r.override.Address == addr && r.override.Apply != nil {
		acc = r.override.Apply(acc)
	}
	return acc, nil
}

func (r *remoteState) CodeByHash(common.Hash) []byte {
	// The remote read path fetches code inline via GetAccountInfo; a
	// pure by-hash lookup would need a second round trip keyed by an
	// address this layer doesn't have, so it isn't supported here.
	return nil
}

func (r *remoteState) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	if r.override != nil && r.override.Address == addr {
		if v, ok := r.override.Storage[slot]; ok {
			return v, nil
		}
	}
	slotNum := new(big.Int).SetBytes(slot.Bytes())
	return r.remote.GetStorageAt(r.ctx, addr, slotNum.Uint64(), r.block)
}

func (r *remoteState) Clone() *state.State {
	// Remote-backed views are read-only; callers that need to mutate
	// (e.g. to build on top of a pre-fork block) should use
	// state.FromRoot against a local Store seeded from this view first.
	return state.New()
}
