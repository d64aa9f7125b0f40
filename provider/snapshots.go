package provider

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/state"
	"github.com/ethlocal/devnode/txpool"
)

// stateCapture is a point-in-time copy of everything a snapshot needs to
// restore: the working state, the mempool, the head block number, the
// running block-time offset and the wall clock it was measured against, and
// whatever one-shot overrides were still pending.
type stateCapture struct {
	state *state.State
	pool  *txpool.Pool

	coinbase common.Address

	headNumber uint64

	blockTimeOffset    time.Duration
	wallClockAtCapture time.Time

	nextBlockTimestamp     *uint64
	nextBaseFee            *big.Int
	nextPrevRandaoOverride *common.Hash
}

// capture snapshots the provider's current mutable state; used both by
// MakeSnapshot and by the internal automine guard that mineUntilConfirmed
// rolls back to on failure.
func (p *Provider) capture() *stateCapture {
	return &stateCapture{
		state:                  p.state.Clone(),
		pool:                   p.pool.Clone(),
		coinbase:               p.coinbase,
		headNumber:             p.chain.LatestBlockNumber(),
		blockTimeOffset:        p.blockTimeOffset,
		wallClockAtCapture:     time.Now(),
		nextBlockTimestamp:     copyUint64Ptr(p.nextBlockTimestamp),
		nextBaseFee:            copyBigIntPtr(p.nextBaseFee),
		nextPrevRandaoOverride: copyHashPtr(p.nextPrevRandaoOverride),
	}
}

// restore rolls the provider's mutable state back to rec, including
// truncating the chain back to rec's head block if blocks were mined since
// the capture.
func (p *Provider) restore(rec *stateCapture) {
	if p.chain.LatestBlockNumber() != rec.headNumber {
		_ = p.chain.RevertToBlock(rec.headNumber)
	}
	p.state = rec.state
	p.pool = rec.pool
	p.coinbase = rec.coinbase
	p.blockTimeOffset = rec.blockTimeOffset
	p.nextBlockTimestamp = copyUint64Ptr(rec.nextBlockTimestamp)
	p.nextBaseFee = copyBigIntPtr(rec.nextBaseFee)
	p.nextPrevRandaoOverride = copyHashPtr(rec.nextPrevRandaoOverride)
}

// MakeSnapshot records the provider's current state under a fresh,
// monotonically increasing id starting at 1, as evm_snapshot expects.
func (p *Provider) MakeSnapshot() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSnapshotID
	p.nextSnapshotID++
	p.snapshots[id] = p.capture()
	return id
}

// RevertToSnapshot restores the state captured under id and discards it
// along with every snapshot taken after it, mirroring evm_revert: once a
// snapshot is consumed, anything layered on top of it is no longer valid.
//
// The running block-time offset is recomputed rather than simply restored,
// so time.Now()+offset still lands on the same wall-clock instant the
// snapshot captured: newOffset = oldOffset - (elapsed real time since the
// snapshot was taken).
func (p *Provider) RevertToSnapshot(id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.snapshots[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}

	if p.chain.LatestBlockNumber() != rec.headNumber {
		if err := p.chain.RevertToBlock(rec.headNumber); err != nil {
			return fmt.Errorf("provider: revert chain to snapshot %d: %w", id, err)
		}
	}
	p.state = rec.state
	p.pool = rec.pool
	p.coinbase = rec.coinbase
	p.blockTimeOffset = rec.blockTimeOffset - time.Since(rec.wallClockAtCapture)
	p.nextBlockTimestamp = copyUint64Ptr(rec.nextBlockTimestamp)
	p.nextBaseFee = copyBigIntPtr(rec.nextBaseFee)
	p.nextPrevRandaoOverride = copyHashPtr(rec.nextPrevRandaoOverride)

	for other := range p.snapshots {
		if other >= id {
			delete(p.snapshots, other)
		}
	}
	return nil
}

func copyUint64Ptr(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}

func copyBigIntPtr(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyHashPtr(v *common.Hash) *common.Hash {
	if v == nil {
		return nil
	}
	cpy := *v
	return &cpy
}
