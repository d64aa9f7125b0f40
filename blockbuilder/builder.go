package blockbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/crypto"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

// MaxBlobGasPerBlock is the EIP-4844 per-block cap on total blob gas.
const MaxBlobGasPerBlock = maxBlobGasPerBlock

// Reward is one beneficiary or uncle payment finalize applies.
type Reward struct {
	Address common.Address
	Amount  *big.Int
}

// Builder accumulates transactions into a new block on top of one parent,
// driving go-ethereum's EVM for each and folding the results into both the
// working state and the header being built.
type Builder struct {
	ctx context.Context

	chainConfig *params.ChainConfig
	rules       Rules
	chain       HeaderSource
	vmConfig    vm.Config

	parent *chaintypes.Block
	header *chaintypes.Header

	state *state.State
	db    *stateDB

	gasPool           *core.GasPool
	inheritedGasLimit bool

	txs      chaintypes.Transactions
	receipts chaintypes.Receipts
	bloom    chaintypes.Bloom
}

// New constructs a builder on top of parent, deriving the new block's
// PartialHeader from opts. st is the working state positioned at parent's
// root; the builder mutates it directly as transactions execute.
func New(ctx context.Context, chainConfig *params.ChainConfig, chain HeaderSource, parent *chaintypes.Block, st *state.State, opts HeaderOptions, postMerge bool) (*Builder, error) {
	if !chainConfig.IsByzantium(new(big.Int).Add(parent.Number(), big.NewInt(1))) {
		return nil, errors.New("blockbuilder: active fork must be at or after Byzantium")
	}
	rules := RulesAt(chainConfig, new(big.Int).Add(parent.Number(), big.NewInt(1)), opts.Timestamp, postMerge)
	header, err := PartialHeader(rules, parent.Header(), opts)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		ctx:               ctx,
		chainConfig:       chainConfig,
		rules:             rules,
		chain:             chain,
		parent:            parent,
		header:            header,
		state:             st,
		db:                newStateDB(st),
		gasPool:           new(core.GasPool).AddGas(header.GasLimit),
		inheritedGasLimit: opts.GasLimit == 0,
	}
	return b, nil
}

func (b *Builder) remainingGas() uint64 { return b.gasPool.Gas() }

// AddTransaction executes tx (sent by sender) against the builder's
// working state, appending a receipt on success. debug additionally
// collects a struct-logger trace for debug_traceTransaction-shaped calls.
func (b *Builder) AddTransaction(tx *chaintypes.Transaction, sender common.Address, debug bool) (*chaintypes.Receipt, *TxTrace, error) {
	if tx.Gas() > b.remainingGas() {
		return nil, nil, ErrExceedsBlockGasLimit
	}
	if b.rules.Cancun {
		used := uint64(0)
		if b.header.BlobGasUsed != nil {
			used = *b.header.BlobGasUsed
		}
		if used+tx.BlobGas() > MaxBlobGasPerBlock {
			return nil, nil, ErrExceedsBlockBlobGasLimit
		}
	}
	if b.rules.Merge && b.header.MixDigest == (common.Hash{}) {
		return nil, nil, ErrMissingPrevRandao
	}
	if b.rules.Cancun && b.header.ExcessBlobGas == nil {
		return nil, nil, ErrMissingExcessBlobGas
	}

	msg := messageFromTx(tx, sender)

	gethHeader := toGethHeader(b.header)
	blockCtx := core.NewEVMBlockContext(gethHeader, &evmChainContext{ctx: b.ctx, source: b.chain}, &gethHeader.Coinbase)
	txCtx := core.NewEVMTxContext(msg)

	var tracer *structLogger
	vmConfig := b.vmConfig
	if debug {
		tracer = newStructLogger()
		vmConfig.Tracer = tracer.hooks()
	}

	evm := vm.NewEVM(blockCtx, txCtx, b.db, b.chainConfig, vmConfig)
	snapshot := b.db.Snapshot()

	result, err := core.ApplyMessage(evm, msg, b.gasPool)
	if err != nil {
		b.db.RevertToSnapshot(snapshot)
		return nil, nil, mapApplyMessageError(err, tx, sender, b.state)
	}

	b.header.GasUsed += result.UsedGas
	logs := b.db.logsAndClear()

	receipt := &chaintypes.Receipt{
		Type:              tx.Type(),
		CumulativeGasUsed: b.header.GasUsed,
		TxHash:            tx.Hash(),
		GasUsed:           result.UsedGas,
		EffectiveGasPrice: effectiveGasPrice(tx, b.header.BaseFee),
	}
	if result.Failed() {
		receipt.Status = chaintypes.ReceiptStatusFailed
	} else {
		receipt.Status = chaintypes.ReceiptStatusSuccessful
	}
	if !b.chainConfig.IsByzantium(b.header.Number) {
		root, _ := b.state.StateRoot()
		receipt.PostState = root.Bytes()
	}
	if msg.To == nil && !result.Failed() {
		contractAddr := crypto.CreateAddress(sender, tx.Nonce())
		receipt.ContractAddress = &contractAddr
	}

	receipt.Bloom = chaintypes.CreateBloom(logs)
	b.bloom.OrBloom(receipt.Bloom)
	for i, l := range logs {
		l.TxHash = receipt.TxHash
		l.BlockNumber = b.header.Number.Uint64()
		l.TxIndex = uint(len(b.txs))
		l.Index = uint(i)
	}
	receipt.Logs = logs

	if b.rules.Cancun {
		used := *b.header.BlobGasUsed + tx.BlobGas()
		b.header.BlobGasUsed = &used
	}

	b.txs = append(b.txs, tx)
	b.receipts = append(b.receipts, receipt)

	var trace *TxTrace
	if tracer != nil {
		trace = tracer.trace()
	}
	return receipt, trace, nil
}

// mapApplyMessageError translates the EVM's own failure modes into the
// package's exported error values.
func mapApplyMessageError(err error, tx *chaintypes.Transaction, sender common.Address, st *state.State) error {
	if errors.Is(err, core.ErrInsufficientFunds) {
		acc, _ := st.Basic(sender)
		upfront := upfrontCost(tx)
		balance := acc.Balance
		if balance == nil {
			balance = new(big.Int)
		}
		return &InsufficientFundsError{MaxUpfrontCost: upfront, SenderBalance: balance}
	}
	return &InvalidTransactionError{Cause: err}
}

func upfrontCost(tx *chaintypes.Transaction) *big.Int {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), tx.GasFeeCap())
	cost.Add(cost, tx.Value())
	if tx.BlobGasFeeCap() != nil {
		blobCost := new(big.Int).Mul(new(big.Int).SetUint64(tx.BlobGas()), tx.BlobGasFeeCap())
		cost.Add(cost, blobCost)
	}
	return cost
}

func effectiveGasPrice(tx *chaintypes.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasPrice()
	}
	tip := new(big.Int).Sub(tx.GasFeeCap(), baseFee)
	if tip.Cmp(tx.GasTipCap()) > 0 {
		tip = tx.GasTipCap()
	}
	price := new(big.Int).Add(baseFee, tip)
	if price.Cmp(tx.GasPrice()) > 0 && tx.Type() == chaintypes.LegacyTxType {
		return tx.GasPrice()
	}
	return price
}

func messageFromTx(tx *chaintypes.Transaction, sender common.Address) *core.Message {
	msg := &core.Message{
		Nonce:             tx.Nonce(),
		GasLimit:          tx.Gas(),
		GasPrice:          new(big.Int).Set(tx.GasPrice()),
		GasFeeCap:         new(big.Int).Set(tx.GasFeeCap()),
		GasTipCap:         new(big.Int).Set(tx.GasTipCap()),
		To:                tx.To(),
		Value:             tx.Value(),
		Data:              tx.Data(),
		AccessList:        toGethAccessList(tx.AccessList()),
		SkipAccountChecks: false,
		From:              sender,
	}
	if tx.Type() == chaintypes.BlobTxType {
		msg.BlobGasFeeCap = tx.BlobGasFeeCap()
		msg.BlobHashes = tx.BlobHashes()
	}
	return msg
}

func toGethAccessList(al chaintypes.AccessList) gethtypes.AccessList {
	if al == nil {
		return nil
	}
	out := make(gethtypes.AccessList, len(al))
	for i, tuple := range al {
		out[i] = gethtypes.AccessTuple{Address: tuple.Address, StorageKeys: tuple.StorageKeys}
	}
	return out
}

// Finalize applies beneficiary/uncle rewards, restores an inherited gas
// limit, computes the remaining trie roots, and returns the sealed block,
// whose header carries the post-state root it committed to.
func (b *Builder) Finalize(rewards []Reward) (*chaintypes.Block, error) {
	for _, r := range rewards {
		addr, amount := r.Address, r.Amount
		if err := b.state.ModifyAccount(addr, func(acc state.Account) state.Account {
			if acc.Balance == nil {
				acc.Balance = new(big.Int)
			}
			acc.Balance = new(big.Int).Add(acc.Balance, amount)
			return acc
		}); err != nil {
			return nil, fmt.Errorf("blockbuilder: apply reward to %s: %w", addr, err)
		}
	}

	if b.inheritedGasLimit {
		b.header.GasLimit = b.parent.GasLimit()
	}

	b.header.Bloom = b.bloom
	b.header.ReceiptHash = chaintypes.DeriveSha(b.receipts, trie.NewStackTrie(nil))
	b.header.TxHash = chaintypes.DeriveSha(b.txs, trie.NewStackTrie(nil))

	root, err := b.state.Commit()
	if err != nil {
		return nil, fmt.Errorf("blockbuilder: commit state: %w", err)
	}
	b.header.Root = root

	if b.header.Time == 0 {
		b.header.Time = uint64(time.Now().Unix())
	}

	block := chaintypes.NewBlockFromParts(b.header, b.txs, nil, nil)
	return block, nil
}

// Receipts returns the receipts accumulated so far, in transaction-index
// order.
func (b *Builder) Receipts() chaintypes.Receipts { return b.receipts }

// Header returns the header being built, primarily for inspection in tests.
func (b *Builder) Header() *chaintypes.Header { return b.header }
