package blockbuilder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethlocal/devnode/chaintypes"
)

// HeaderSource is the narrow read path the EVM's BLOCKHASH opcode needs:
// looking a recent ancestor up by number. blockchain.Chain satisfies it.
type HeaderSource interface {
	BlockByNumber(ctx context.Context, number uint64) (*chaintypes.Block, error)
}

// evmChainContext adapts a HeaderSource to core.ChainContext, the interface
// go-ethereum's EVM block-context constructor uses to resolve BLOCKHASH.
type evmChainContext struct {
	ctx    context.Context
	source HeaderSource
}

func (c *evmChainContext) Engine() consensus.Engine { return nil }

func (c *evmChainContext) GetHeader(hash common.Hash, number uint64) *gethtypes.Header {
	block, err := c.source.BlockByNumber(c.ctx, number)
	if err != nil {
		return nil
	}
	if block.Hash() != hash {
		return nil
	}
	return toGethHeader(block.Header())
}

// toGethHeader copies the fields go-ethereum's EVM and block-context
// construction actually read out of a header; it is not a consensus
// encoding round-trip, only an adapter.
func toGethHeader(h *chaintypes.Header) *gethtypes.Header {
	out := &gethtypes.Header{
		ParentHash:  h.ParentHash,
		UncleHash:   h.UncleHash,
		Coinbase:    h.Coinbase,
		Root:        h.Root,
		TxHash:      h.TxHash,
		ReceiptHash: h.ReceiptHash,
		Difficulty:  new(big.Int).Set(h.Difficulty),
		Number:      new(big.Int).Set(h.Number),
		GasLimit:    h.GasLimit,
		GasUsed:     h.GasUsed,
		Time:        h.Time,
		Extra:       h.Extra,
		MixDigest:   h.MixDigest,
		Nonce:       gethtypes.BlockNonce(h.Nonce),
	}
	out.Bloom.SetBytes(h.Bloom.Bytes())
	if h.BaseFee != nil {
		out.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	if h.WithdrawalsHash != nil {
		v := *h.WithdrawalsHash
		out.WithdrawalsHash = &v
	}
	if h.BlobGasUsed != nil {
		v := *h.BlobGasUsed
		out.BlobGasUsed = &v
	}
	if h.ExcessBlobGas != nil {
		v := *h.ExcessBlobGas
		out.ExcessBlobGas = &v
	}
	if h.ParentBeaconRoot != nil {
		v := *h.ParentBeaconRoot
		out.ParentBeaconRoot = &v
	}
	return out
}
