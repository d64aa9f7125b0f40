package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/blockbuilder"
	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

// CallRequest is an eth_call-shaped request: a transaction descriptor plus
// the block spec to run it against and any per-account state overrides to
// apply to a private, throwaway copy of that block's state first.
type CallRequest struct {
	From common.Address
	Tx   TxRequest

	Overrides map[common.Address]CallOverride
}

// CallOverride replaces or adjusts one account's balance/nonce/code/storage
// for the duration of a single run_call, without touching the shared
// working state.
type CallOverride struct {
	Balance *big.Int
	Nonce   *uint64
	Code    []byte
	State   map[common.Hash]common.Hash // written slot by slot like Diff; other existing slots are kept
	Diff    map[common.Hash]common.Hash // merges into existing storage
}

// EthCall runs a transaction against spec's state without admitting it to
// the mempool or committing any result: nonce and balance checks are
// skipped, so even an account with zero balance or a stale nonce can probe
// a contract's view functions.
func (p *Provider) EthCall(ctx context.Context, req CallRequest, spec BlockSpec) (*blockbuilder.CallResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	view, err := p.stateView(ctx, spec)
	if err != nil {
		return nil, err
	}
	st := view.Clone()
	if err := applyCallOverrides(st, req.Overrides); err != nil {
		return nil, err
	}

	parent := p.chain.LatestBlock()
	unsigned, err := p.buildUnsignedCallTx(st, req)
	if err != nil {
		return nil, err
	}

	ts, err := p.nextTimestamp(nil)
	if err != nil {
		return nil, err
	}
	opts := p.headerOptions(parent, ts)

	return blockbuilder.Call(ctx, p.cfg.ChainConfig, p.chain, parent, st, opts, p.cfg.PostMerge, unsigned, req.From)
}

// buildUnsignedCallTx is buildUnsignedTx's run_call sibling: it never needs
// a real signature and tolerates a zero gas price, since run_call doesn't
// charge for gas either.
func (p *Provider) buildUnsignedCallTx(st *state.State, req CallRequest) (*chaintypes.Transaction, error) {
	r := req.Tx
	if r.Gas == 0 {
		r.Gas = p.cfg.BlockGasLimit
	}
	if r.GasPrice == nil && r.GasTipCap == nil && r.GasFeeCap == nil {
		r.GasPrice = new(big.Int)
	}
	if r.Nonce == nil {
		account, err := st.Basic(req.From)
		if err != nil {
			return nil, err
		}
		r.Nonce = &account.Nonce
	}
	return chaintypes.NewTx(&chaintypes.LegacyTx{
		Nonce:    *r.Nonce,
		GasPrice: r.GasPrice,
		Gas:      r.Gas,
		To:       r.To,
		Value:    valueOrZero(r.Value),
		Data:     r.Data,
	}), nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func applyCallOverrides(st *state.State, overrides map[common.Address]CallOverride) error {
	for addr, o := range overrides {
		var codeHash common.Hash
		if o.Code != nil {
			codeHash = st.SetCode(o.Code)
		}
		err := st.ModifyAccount(addr, func(acc state.Account) state.Account {
			if o.Balance != nil {
				acc.Balance = o.Balance
			}
			if o.Nonce != nil {
				acc.Nonce = *o.Nonce
			}
			if o.Code != nil {
				acc.CodeHash = codeHash.Bytes()
			}
			return acc
		})
		if err != nil {
			return err
		}
		for slot, value := range o.State {
			if err := st.SetAccountStorageSlot(addr, slot, value); err != nil {
				return err
			}
		}
		for slot, value := range o.Diff {
			if err := st.SetAccountStorageSlot(addr, slot, value); err != nil {
				return err
			}
		}
	}
	return nil
}
