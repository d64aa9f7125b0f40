// Package blockbuilder drives the EVM for each admitted transaction,
// accumulates receipts and the block's logs bloom, and finalizes a new
// block with its trie roots and beneficiary rewards on top of a blockchain
// tail and a mempool. It reuses go-ethereum's own EVM interpreter
// (core/vm, core) rather than reimplementing opcode execution.
package blockbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// Rules is the subset of params.ChainConfig's fork schedule the builder
// needs to shape a header, isolated into one small struct so the rest of
// the package never has to reason about ChainConfig's block-vs-time fork
// fields directly.
type Rules struct {
	London   bool
	Shanghai bool
	Cancun   bool
	Merge    bool

	DAOForkBlock *big.Int

	BaseFeeChangeDenominator uint64
	ElasticityMultiplier     uint64
}

// RulesAt derives Rules for a block built at number/time on top of cfg,
// with postMerge decided by the caller (the provider tracks this directly
// rather than re-deriving it from total difficulty vs. TTD).
func RulesAt(cfg *params.ChainConfig, number *big.Int, time uint64, postMerge bool) Rules {
	r := Rules{
		London:                   cfg.IsLondon(number),
		Shanghai:                 cfg.IsShanghai(number, time),
		Cancun:                   cfg.IsCancun(number, time),
		Merge:                    postMerge,
		DAOForkBlock:             cfg.DAOForkBlock,
		BaseFeeChangeDenominator: params.BaseFeeChangeDenominator,
		ElasticityMultiplier:     params.ElasticityMultiplier,
	}
	return r
}
