// Package blockchain implements the two block-storage backends a provider
// can run against: a purely local chain starting from a constructed
// genesis, and a forked chain that defers
// anything at or before its fork point to a remote archive node.
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

// ErrBelowForkBoundary is returned by RevertToBlock when asked to discard
// a block at or before an immutable fork point.
var ErrBelowForkBoundary = errors.New("blockchain: cannot revert to or below the fork boundary")

// ErrUnknownBlock is returned by the by-hash/by-number/by-transaction-hash
// lookups when nothing matches.
var ErrUnknownBlock = errors.New("blockchain: unknown block")

// StateView answers the three read operations a historical state needs to
// support, consistently with what the chain observed at the end of a given
// block — satisfied by *state.State.
type StateView interface {
	Basic(common.Address) (state.Account, error)
	CodeByHash(common.Hash) []byte
	Storage(common.Address, common.Hash) (common.Hash, error)
	Clone() *state.State
}

// blockEntry is one stored block plus its derived index data.
type blockEntry struct {
	block           *chaintypes.Block
	receipts        chaintypes.Receipts
	totalDifficulty *big.Int
	stateRoot       common.Hash
}

// Chain is the common append/query surface both backends expose; Provider
// (C7) depends on this interface, not on the concrete implementations.
type Chain interface {
	// LatestBlock returns the chain's tip.
	LatestBlock() *chaintypes.Block
	// LatestBlockNumber returns the chain's tip's number.
	LatestBlockNumber() uint64
	// BlockByNumber returns the block at n, or ErrUnknownBlock.
	BlockByNumber(ctx context.Context, n uint64) (*chaintypes.Block, error)
	// BlockByHash returns the block with the given hash, or ErrUnknownBlock.
	BlockByHash(ctx context.Context, hash common.Hash) (*chaintypes.Block, error)
	// BlockByTransactionHash returns the block containing txHash, if any.
	BlockByTransactionHash(ctx context.Context, txHash common.Hash) (*chaintypes.Block, error)
	// ReceiptsByBlockHash returns the receipts recorded for hash.
	ReceiptsByBlockHash(ctx context.Context, hash common.Hash) (chaintypes.Receipts, error)
	// TotalDifficulty returns the running total difficulty through n.
	TotalDifficulty(n uint64) (*big.Int, error)
	// InsertBlock appends block with the state it produced, recomputing
	// total difficulty as parent_td + block.difficulty.
	InsertBlock(ctx context.Context, block *chaintypes.Block, receipts chaintypes.Receipts, postState *state.State) error
	// RevertToBlock truncates the chain so n becomes the new tip. Fails
	// with ErrBelowForkBoundary if n is at or before an immutable fork
	// point.
	RevertToBlock(n uint64) error
	// StateAtBlock returns a cloneable state view as of the end of block n,
	// with any irregular-state overrides for n already layered in.
	StateAtBlock(ctx context.Context, n uint64, overrides map[uint64]StateOverride) (StateView, error)
}

// StateOverride is one out-of-band mutation recorded at a specific block
// number (hardhat_setBalance and friends), applied as a final patch over
// whatever the chain would otherwise report for that block.
type StateOverride struct {
	Address common.Address
	Apply   func(state.Account) state.Account
	// Storage, when non-nil, additionally overrides specific slots.
	Storage map[common.Hash]common.Hash
}

func (e *blockEntry) number() uint64 { return e.block.NumberU64() }

func computeTotalDifficulty(parentTD *big.Int, block *chaintypes.Block) *big.Int {
	return new(big.Int).Add(parentTD, block.Difficulty())
}

func fmtBlockNotFound(n uint64) error { return fmt.Errorf("%w: block %d", ErrUnknownBlock, n) }
