package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethlocal/devnode/blockbuilder"
	"github.com/ethlocal/devnode/chaintypes"
)

// nextTimestamp implements the next-block-timestamp policy: an explicit
// caller timestamp is validated strictly against the previous block;
// absent one, the one-shot override or the wall clock plus the configured
// offset is used, silently bumped by a second on collision.
func (p *Provider) nextTimestamp(explicit *uint64) (uint64, error) {
	last := p.chain.LatestBlock().Time()

	if explicit != nil {
		if *explicit < last {
			return 0, fmt.Errorf("%w: got %d, previous %d", ErrTimestampLowerThanPrevious, *explicit, last)
		}
		if *explicit == last && !p.cfg.AllowBlocksWithSameTimestamp {
			return 0, ErrTimestampEqualsPrevious
		}
		return *explicit, nil
	}

	var candidate uint64
	if p.nextBlockTimestamp != nil {
		candidate = *p.nextBlockTimestamp
	} else {
		candidate = uint64(time.Now().Add(p.blockTimeOffset).Unix())
	}
	if candidate == last && !p.cfg.AllowBlocksWithSameTimestamp {
		candidate++
	}
	return candidate, nil
}

// nextPrevRandao is the deterministic post-merge RANDAO generator: absent
// an explicit one-shot override, each block's value is derived from its
// own number, so it is reproducible without persisting any extra state.
func (p *Provider) nextPrevRandao(number uint64) common.Hash {
	if p.nextPrevRandaoOverride != nil {
		return *p.nextPrevRandaoOverride
	}
	return crypto.Keccak256Hash(new(big.Int).SetUint64(number).Bytes())
}

// buildPendingBlock drains the mempool into a throwaway builder on top of
// the current head, without ever calling chain.InsertBlock — the "pending"
// block-spec tag's transient view.
func (p *Provider) buildPendingBlock(ctx context.Context) (*resolvedBlock, error) {
	parent := p.chain.LatestBlock()
	workingState := p.state.Clone()

	ts, err := p.nextTimestamp(nil)
	if err != nil {
		return nil, err
	}
	opts := p.headerOptions(parent, ts)

	builder, err := blockbuilder.New(ctx, p.cfg.ChainConfig, p.chain, parent, workingState, opts, p.cfg.PostMerge)
	if err != nil {
		return nil, err
	}
	for _, tx := range p.pool.OrderedPending() {
		sender, ok := p.pool.SenderOf(tx.Hash())
		if !ok {
			continue
		}
		if _, _, err := builder.AddTransaction(tx, sender, false); err != nil {
			continue
		}
	}
	block, err := builder.Finalize(nil)
	if err != nil {
		return nil, err
	}
	return &resolvedBlock{block: block, state: workingState, pending: true}, nil
}

func (p *Provider) headerOptions(parent *chaintypes.Block, timestamp uint64) blockbuilder.HeaderOptions {
	opts := blockbuilder.HeaderOptions{
		Beneficiary: &p.coinbase,
		Timestamp:   timestamp,
		GasLimit:    p.cfg.BlockGasLimit,
		BaseFeePerGas: p.nextBaseFee,
	}
	nextNumber := parent.NumberU64() + 1
	if p.cfg.PostMerge {
		randao := p.nextPrevRandao(nextNumber)
		opts.MixDigest = randao
	}
	return opts
}

// MineAndCommitBlock mines one block on top of the current head: it builds
// against the live working state, drains as many pending transactions as
// fit the block's gas limit, commits the result through the chain backend,
// re-validates the mempool against the new state, and clears any one-shot
// overrides.
func (p *Provider) MineAndCommitBlock(ctx context.Context, timestamp *uint64) (*chaintypes.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mineAndCommitBlockLocked(ctx, timestamp)
}

func (p *Provider) mineAndCommitBlockLocked(ctx context.Context, timestamp *uint64) (*chaintypes.Block, error) {
	parent := p.chain.LatestBlock()
	ts, err := p.nextTimestamp(timestamp)
	if err != nil {
		return nil, err
	}
	opts := p.headerOptions(parent, ts)

	builder, err := blockbuilder.New(ctx, p.cfg.ChainConfig, p.chain, parent, p.state, opts, p.cfg.PostMerge)
	if err != nil {
		return nil, err
	}

	var mined chaintypes.Transactions
	for _, tx := range p.pool.OrderedPending() {
		sender, ok := p.pool.SenderOf(tx.Hash())
		if !ok {
			continue
		}
		if _, _, err := builder.AddTransaction(tx, sender, false); err != nil {
			if errors.Is(err, blockbuilder.ErrExceedsBlockGasLimit) {
				break
			}
			log.Warn("provider: dropping invalid pooled transaction while mining", "hash", tx.Hash(), "err", err)
			p.pool.Remove(tx)
			continue
		}
		mined = append(mined, tx)
	}

	block, err := builder.Finalize([]blockbuilder.Reward{{Address: p.coinbase, Amount: new(big.Int)}})
	if err != nil {
		return nil, err
	}
	if err := p.chain.InsertBlock(ctx, block, builder.Receipts(), p.state); err != nil {
		return nil, err
	}

	for _, tx := range mined {
		p.pool.Remove(tx)
	}
	p.pool.SetBlockGasLimit(block.GasLimit())
	if err := p.pool.Update(p.state); err != nil {
		return nil, fmt.Errorf("provider: update mempool after mining: %w", err)
	}

	p.nextBlockTimestamp = nil
	p.nextBaseFee = nil
	p.nextPrevRandaoOverride = nil

	p.metrics.blocksMined.Inc(1)
	p.metrics.poolSize.Update(int64(len(p.pool.OrderedPending())))
	log.Debug("provider: mined block", "number", block.NumberU64(), "txs", len(block.Transactions()), "gasUsed", block.GasUsed())
	return block, nil
}

// projectedNextBaseFee reports what the next block's base fee will be absent
// an explicit one-shot override, for automine's fee-cap precheck.
func (p *Provider) projectedNextBaseFee(parent *chaintypes.Block) (*big.Int, error) {
	rules := p.rules(new(big.Int).Add(parent.Number(), big.NewInt(1)), 0)
	fee := blockbuilder.NextBaseFee(rules, parent.Header())
	if fee == nil {
		return nil, fmt.Errorf("provider: base fee requested pre-London")
	}
	return fee, nil
}

// EvmIncreaseTime adds seconds to the running block-time offset, returning
// the new total.
func (p *Provider) EvmIncreaseTime(seconds int64) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockTimeOffset += time.Duration(seconds) * time.Second
	return p.blockTimeOffset
}

// EvmSetNextBlockTimestamp installs a one-shot timestamp override consumed
// by the next mined block.
func (p *Provider) EvmSetNextBlockTimestamp(ts uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.chain.LatestBlock().Time()
	if ts < last {
		return fmt.Errorf("%w: got %d, previous %d", ErrTimestampLowerThanPrevious, ts, last)
	}
	if ts == last && !p.cfg.AllowBlocksWithSameTimestamp {
		return ErrTimestampEqualsPrevious
	}
	p.nextBlockTimestamp = &ts
	return nil
}
