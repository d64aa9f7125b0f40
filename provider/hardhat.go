package provider

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/blockchain"
	"github.com/ethlocal/devnode/state"
	"github.com/ethlocal/devnode/txpool"
)

// HardhatSetBalance overwrites addr's balance in the live working state,
// visible to "latest" reads immediately.
func (p *Provider) HardhatSetBalance(addr common.Address, balance *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.state.ModifyAccount(addr, func(acc state.Account) state.Account {
		acc.Balance = new(big.Int).Set(balance)
		return acc
	}); err != nil {
		return err
	}
	return p.pool.Update(p.state)
}

// HardhatSetCode overwrites addr's contract code.
func (p *Provider) HardhatSetCode(addr common.Address, code []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash := p.state.SetCode(code)
	if err := p.state.ModifyAccount(addr, func(acc state.Account) state.Account {
		acc.CodeHash = hash.Bytes()
		return acc
	}); err != nil {
		return err
	}
	return p.pool.Update(p.state)
}

// HardhatSetNonce overwrites addr's nonce. Per spec, the nonce can never be
// set below any nonce already consumed by a transaction still pending in
// the mempool.
func (p *Provider) HardhatSetNonce(addr common.Address, nonce uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.pool.LastPendingNonce(addr); ok && nonce <= last {
		return fmt.Errorf("%w: account has a pending transaction at nonce %d", ErrSetNonceWithPendingTxs, last)
	}
	if err := p.state.ModifyAccount(addr, func(acc state.Account) state.Account {
		acc.Nonce = nonce
		return acc
	}); err != nil {
		return err
	}
	return p.pool.Update(p.state)
}

// HardhatSetStorageAt overwrites a single storage slot.
func (p *Provider) HardhatSetStorageAt(addr common.Address, slot, value common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.state.SetAccountStorageSlot(addr, slot, value); err != nil {
		return err
	}
	return p.pool.Update(p.state)
}

// HardhatSetCoinbase changes the address mining rewards are credited to.
func (p *Provider) HardhatSetCoinbase(addr common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coinbase = addr
}

// HardhatSetNextBlockBaseFeePerGas installs a one-shot base-fee override
// consumed by the next mined block.
func (p *Provider) HardhatSetNextBlockBaseFeePerGas(fee *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextBaseFee = new(big.Int).Set(fee)
}

// HardhatSetPrevRandao installs a one-shot PREVRANDAO override consumed by
// the next mined block.
func (p *Provider) HardhatSetPrevRandao(v common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextPrevRandaoOverride = &v
}

// HardhatSetMinGasPrice changes the floor automine enforces on a pooled
// transaction's priority fee. Meaningless (and refused) once the chain has
// activated London, since base-fee burning replaces a flat minimum.
func (p *Provider) HardhatSetMinGasPrice(price *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	parent := p.chain.LatestBlock()
	if p.rules(new(big.Int).Add(parent.Number(), big.NewInt(1)), 0).London {
		return ErrSetMinGasPricePostLondon
	}
	p.minGasPrice = new(big.Int).Set(price)
	return nil
}

// HardhatMine mines count blocks back-to-back, each intervalSeconds after
// the last (0 uses the provider's normal next-timestamp policy throughout).
func (p *Provider) HardhatMine(ctx context.Context, count uint64, intervalSeconds uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := uint64(0); i < count; i++ {
		var ts *uint64
		if intervalSeconds > 0 {
			last := p.chain.LatestBlock().Time()
			v := last + intervalSeconds
			ts = &v
		}
		if _, err := p.mineAndCommitBlockLocked(ctx, ts); err != nil {
			return err
		}
	}
	return nil
}

// HardhatSetIntervalMining records the interval an embedding RPC server
// should mine on; see Provider.intervalMining. A zero period disables it.
func (p *Provider) HardhatSetIntervalMining(period time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intervalMining = period
}

// IntervalMiningPeriod returns the period installed by
// HardhatSetIntervalMining, for the embedding server's ticker.
func (p *Provider) IntervalMiningPeriod() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intervalMining
}

// HardhatReset replaces the active chain and its genesis state wholesale —
// switching forks, re-forking from a different remote block, or simply
// wiping back to an empty chain — while preserving the provider's
// configuration (coinbase, automine, min gas price, keyring).
func (p *Provider) HardhatReset(chain blockchain.Chain, genesisState *state.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chain = chain
	p.state = genesisState
	p.pool = txpool.New(p.cfg.BlockGasLimit)
	p.impersonated.Clear()
	p.nextBlockTimestamp = nil
	p.nextBaseFee = nil
	p.nextPrevRandaoOverride = nil
	p.snapshots = make(map[uint64]*stateCapture)
	p.nextSnapshotID = 1
	p.logFilters = make(map[uint64]*logFilter)
	p.pendingTxFilters = make(map[uint64]*pendingTxFilter)
	p.nextFilterID = 1
}
