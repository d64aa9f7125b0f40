package provider

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/blockbuilder"
	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/internal/devaccounts"
	"github.com/ethlocal/devnode/state"
)

// TxRequest is an eth_sendTransaction-shaped transaction descriptor: a
// caller fills in whichever fields its tx type uses, and buildUnsignedTx picks
// the narrowest envelope that fits (mirroring how a JSON-RPC front end would
// decode eth_sendTransaction's params object).
type TxRequest struct {
	Nonce *uint64

	To    *common.Address
	Value *big.Int
	Gas   uint64
	Data  []byte

	GasPrice   *big.Int // legacy / access-list pricing
	GasTipCap  *big.Int // EIP-1559 priority fee
	GasFeeCap  *big.Int // EIP-1559 max fee
	AccessList chaintypes.AccessList
}

// buildUnsignedTx resolves req into one of chaintypes' concrete envelope
// types, filling the nonce from state when the caller left it nil.
func (p *Provider) buildUnsignedTx(req TxRequest, from common.Address) (*chaintypes.Transaction, error) {
	nonce := req.Nonce
	if nonce == nil {
		account, err := p.state.Basic(from)
		if err != nil {
			return nil, err
		}
		n := account.Nonce
		if last, ok := p.pool.LastPendingNonce(from); ok {
			n = last + 1
		}
		nonce = &n
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	chainID := p.cfg.ChainConfig.ChainID

	switch {
	case req.GasTipCap != nil || req.GasFeeCap != nil:
		return chaintypes.NewTx(&chaintypes.DynamicFeeTx{
			ChainID:    chainID,
			Nonce:      *nonce,
			GasTipCap:  req.GasTipCap,
			GasFeeCap:  req.GasFeeCap,
			Gas:        req.Gas,
			To:         req.To,
			Value:      value,
			Data:       req.Data,
			AccessList: req.AccessList,
		}), nil
	case req.AccessList != nil:
		return chaintypes.NewTx(&chaintypes.AccessListTx{
			ChainID:    chainID,
			Nonce:      *nonce,
			GasPrice:   req.GasPrice,
			Gas:        req.Gas,
			To:         req.To,
			Value:      value,
			Data:       req.Data,
			AccessList: req.AccessList,
		}), nil
	default:
		return chaintypes.NewTx(&chaintypes.LegacyTx{
			Nonce:    *nonce,
			GasPrice: req.GasPrice,
			Gas:      req.Gas,
			To:       req.To,
			Value:    value,
			Data:     req.Data,
		}), nil
	}
}

// HardhatImpersonateAccount adds addr to the impersonated-account set: the
// provider will fake-sign transactions sent from it instead of requiring a
// local private key.
func (p *Provider) HardhatImpersonateAccount(addr common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.impersonated.Add(addr)
}

// HardhatStopImpersonatingAccount removes addr from the impersonated set.
func (p *Provider) HardhatStopImpersonatingAccount(addr common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.impersonated.Remove(addr)
}

// EthSendTransaction signs an unsigned transaction descriptor on behalf of
// from (using the keyring, or a fake signature if from is impersonated),
// admits it to the mempool, and — if automining — mines until it confirms.
func (p *Provider) EthSendTransaction(ctx context.Context, from common.Address, req TxRequest) (common.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	unsigned, err := p.buildUnsignedTx(req, from)
	if err != nil {
		return common.Hash{}, err
	}

	var signed *chaintypes.Transaction
	switch {
	case p.keyring.Has(from):
		key, err := p.keyring.PrivateKey(from)
		if err != nil {
			return common.Hash{}, err
		}
		signed, err = chaintypes.SignTx(unsigned, p.signer, key)
		if err != nil {
			return common.Hash{}, err
		}
	case p.impersonated.Contains(from):
		signed = chaintypes.FakeSign(unsigned, from)
	default:
		return common.Hash{}, fmt.Errorf("provider: %w: %s", devaccounts.ErrUnknownAddress, from)
	}

	if err := p.admitAndMaybeMine(ctx, signed, from); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// EthSendRawTransaction admits an already-signed transaction envelope,
// recovering its sender from the signature.
func (p *Provider) EthSendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := new(chaintypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("provider: decode raw transaction: %w", err)
	}
	sender, err := p.signer.Sender(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("provider: recover sender: %w", err)
	}
	if err := p.admitAndMaybeMine(ctx, tx, sender); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

func (p *Provider) admitAndMaybeMine(ctx context.Context, tx *chaintypes.Transaction, sender common.Address) error {
	if p.autoMine {
		if err := p.validateAutomine(tx, sender); err != nil {
			return err
		}
	}
	if err := p.pool.AddTransaction(p.state, tx, sender); err != nil {
		return err
	}
	for _, f := range p.pendingTxFilters {
		f.buffer = append(f.buffer, tx.Hash())
	}
	if !p.autoMine {
		return nil
	}
	return p.mineUntilConfirmed(ctx, tx, sender)
}

// validateAutomine implements the pre-admission checks run only while
// automining: the tx must extend the sender's pending nonce run exactly,
// its priority fee must clear the configured floor, and its max fee must
// already clear what the next block's base fee will be.
func (p *Provider) validateAutomine(tx *chaintypes.Transaction, sender common.Address) error {
	account, err := p.state.Basic(sender)
	if err != nil {
		return err
	}
	expected := account.Nonce
	if last, ok := p.pool.LastPendingNonce(sender); ok {
		expected = last + 1
	}
	if tx.Nonce() > expected {
		return fmt.Errorf("%w: tx nonce %d, expected %d", ErrAutomineNonceTooHigh, tx.Nonce(), expected)
	}
	if tx.Nonce() < expected {
		return fmt.Errorf("%w: tx nonce %d, expected %d", ErrAutomineNonceTooLow, tx.Nonce(), expected)
	}

	tip := effectiveTip(tx)
	if tip.Cmp(p.minGasPrice) < 0 {
		return fmt.Errorf("%w: have %s, want at least %s", ErrPriorityFeeBelowMinimum, tip, p.minGasPrice)
	}

	parent := p.chain.LatestBlock()
	if p.rules(new(big.Int).Add(parent.Number(), big.NewInt(1)), 0).London {
		nextBaseFee := p.nextBaseFee
		if nextBaseFee == nil {
			nextBaseFee, err = p.projectedNextBaseFee(parent)
			if err != nil {
				return err
			}
		}
		maxFee := effectiveFeeCap(tx)
		if maxFee.Cmp(nextBaseFee) < 0 {
			return fmt.Errorf("%w: have %s, next base fee %s", ErrMaxFeeBelowNextBaseFee, maxFee, nextBaseFee)
		}
	}
	return nil
}

func effectiveTip(tx *chaintypes.Transaction) *big.Int {
	if tx.Type() == chaintypes.LegacyTxType || tx.Type() == chaintypes.AccessListTxType {
		return tx.GasPrice()
	}
	return tx.GasTipCap()
}

func effectiveFeeCap(tx *chaintypes.Transaction) *big.Int {
	if tx.Type() == chaintypes.LegacyTxType || tx.Type() == chaintypes.AccessListTxType {
		return tx.GasPrice()
	}
	return tx.GasFeeCap()
}

// mineUntilConfirmed mines blocks, guarded by a capture that is discarded
// on success and restored on failure (including a reverted/halted tx, per
// the snapshot-rollback behavior), until tx is confirmed and the mempool
// has been fully drained.
func (p *Provider) mineUntilConfirmed(ctx context.Context, tx *chaintypes.Transaction, sender common.Address) error {
	hash := tx.Hash()
	guard := p.capture()
	var confirmedBlock *chaintypes.Block
	for {
		block, err := p.mineAndCommitBlockLocked(ctx, nil)
		if err != nil {
			p.restore(guard)
			return err
		}
		if block.Transaction(hash) != nil {
			confirmedBlock = block
		}
		if len(block.Transactions()) == 0 {
			break
		}
		if confirmedBlock != nil && len(p.pool.OrderedPending()) == 0 {
			break
		}
	}
	if confirmedBlock == nil {
		p.restore(guard)
		return ErrTransactionNotMined
	}

	receipts, err := p.chain.ReceiptsByBlockHash(ctx, confirmedBlock.Hash())
	if err == nil {
		if r := receiptFor(receipts, hash); r != nil && r.Status == chaintypes.ReceiptStatusFailed {
			failErr := p.classifyFailure(ctx, guard.state, tx, sender)
			p.restore(guard)
			return failErr
		}
	}
	return nil
}

// classifyFailure replays tx against the pre-mining state to recover its
// return data and distinguish a deliberate revert from an EVM halt, the way
// an RPC front end would re-simulate a failed transaction to surface a
// revert reason.
func (p *Provider) classifyFailure(ctx context.Context, preState *state.State, tx *chaintypes.Transaction, sender common.Address) error {
	parent := p.chain.LatestBlock()
	opts := p.headerOptions(parent, parent.Time()+1)
	result, err := blockbuilder.Call(ctx, p.cfg.ChainConfig, p.chain, parent, preState.Clone(), opts, p.cfg.PostMerge, tx, sender)
	if err != nil || result == nil {
		return &TransactionHaltedError{Reason: "unknown"}
	}
	if result.Reverted {
		return &TransactionRevertedError{ReturnData: result.ReturnData}
	}
	reason := "unknown"
	if result.Err != nil {
		reason = result.Err.Error()
	}
	return &TransactionHaltedError{Reason: reason}
}
