package chaintypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LegacyTx is the original Ethereum transaction envelope, used both for the
// pre-EIP-155 (unprotected) and post-EIP-155 (chain-id-protected) variants;
// decoding distinguishes them purely by whether V >= 35.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int
}

func (tx *LegacyTx) txType() TxType { return LegacyTxType }

func (tx *LegacyTx) copy() txData {
	cpy := &LegacyTx{
		Nonce: tx.Nonce,
		To:    copyAddressPtr(tx.To),
		Data:  common.CopyBytes(tx.Data),
		Gas:   tx.Gas,

		GasPrice: new(big.Int),
		Value:    new(big.Int),
		V:        new(big.Int),
		R:        new(big.Int),
		S:        new(big.Int),
	}
	if tx.GasPrice != nil {
		cpy.GasPrice.Set(tx.GasPrice)
	}
	if tx.Value != nil {
		cpy.Value.Set(tx.Value)
	}
	if tx.V != nil {
		cpy.V.Set(tx.V)
	}
	if tx.R != nil {
		cpy.R.Set(tx.R)
	}
	if tx.S != nil {
		cpy.S.Set(tx.S)
	}
	return cpy
}

// chainIDFromV extracts the chain id encoded into a post-EIP-155 V value:
// v = 2*chainID + 35 + yParity. Pre-155 transactions (V == 27 or 28) yield
// a nil chain id, meaning "unprotected".
func chainIDFromV(v *big.Int) *big.Int {
	if v == nil || v.BitLen() <= 8 {
		vi := uint64(0)
		if v != nil {
			vi = v.Uint64()
		}
		if vi == 27 || vi == 28 {
			return nil
		}
	}
	// (v - 35) / 2
	chainID := new(big.Int).Sub(v, big.NewInt(35))
	return chainID.Rsh(chainID, 1)
}

func (tx *LegacyTx) chainID() *big.Int {
	return chainIDFromV(tx.V)
}
func (tx *LegacyTx) accessList() AccessList     { return nil }
func (tx *LegacyTx) data() []byte               { return tx.Data }
func (tx *LegacyTx) gas() uint64                { return tx.Gas }
func (tx *LegacyTx) gasPrice() *big.Int         { return tx.GasPrice }
func (tx *LegacyTx) gasTipCap() *big.Int        { return tx.GasPrice }
func (tx *LegacyTx) gasFeeCap() *big.Int        { return tx.GasPrice }
func (tx *LegacyTx) value() *big.Int            { return tx.Value }
func (tx *LegacyTx) nonce() uint64              { return tx.Nonce }
func (tx *LegacyTx) to() *common.Address        { return tx.To }
func (tx *LegacyTx) blobGas() uint64            { return 0 }
func (tx *LegacyTx) blobGasFeeCap() *big.Int    { return nil }
func (tx *LegacyTx) blobHashes() []common.Hash  { return nil }

func (tx *LegacyTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *LegacyTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.V, tx.R, tx.S = v, r, s
}
