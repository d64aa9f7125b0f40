package blockbuilder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

// CallResult is what a dry-run execution produces: no receipt, no block —
// just the EVM's verdict and whatever it returned or reverted with.
type CallResult struct {
	UsedGas    uint64
	ReturnData []byte
	Reverted   bool
	Err        error
}

// Call executes tx against st as if it were the next transaction in a block
// built on top of parent, without appending a receipt. The EVM runs with
// SkipAccountChecks set, which skips only the nonce and sender-is-EOA
// checks: st still has the sender's nonce incremented and gas and value
// deducted, and a sender whose balance does not cover gas*price+value is
// still rejected.
func Call(ctx context.Context, chainConfig *params.ChainConfig, chain HeaderSource, parent *chaintypes.Block, st *state.State, opts HeaderOptions, postMerge bool, tx *chaintypes.Transaction, sender common.Address) (*CallResult, error) {
	rules := RulesAt(chainConfig, new(big.Int).Add(parent.Number(), big.NewInt(1)), opts.Timestamp, postMerge)
	header, err := PartialHeader(rules, parent.Header(), opts)
	if err != nil {
		return nil, err
	}

	msg := messageFromTx(tx, sender)
	msg.SkipAccountChecks = true

	db := newStateDB(st)
	gethHeader := toGethHeader(header)
	blockCtx := core.NewEVMBlockContext(gethHeader, &evmChainContext{ctx: ctx, source: chain}, &gethHeader.Coinbase)
	txCtx := core.NewEVMTxContext(msg)

	// NoBaseFee mirrors go-ethereum's own eth_call path: a dry run whose fee
	// cap and tip are both zero skips the base-fee check.
	evm := vm.NewEVM(blockCtx, txCtx, db, chainConfig, vm.Config{NoBaseFee: true})
	gasPool := new(core.GasPool).AddGas(header.GasLimit)

	result, err := core.ApplyMessage(evm, msg, gasPool)
	if err != nil {
		return nil, mapApplyMessageError(err, tx, sender, st)
	}

	out := &CallResult{
		UsedGas:    result.UsedGas,
		ReturnData: result.ReturnData,
	}
	if result.Err != nil {
		out.Err = result.Err
		out.Reverted = result.Err == vm.ErrExecutionReverted
	}
	return out, nil
}
