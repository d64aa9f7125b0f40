package chaintypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DynamicFeeTx is the EIP-1559 envelope: gasPrice is replaced by an
// independent priority fee and fee cap.
type DynamicFeeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int
}

func (tx *DynamicFeeTx) txType() TxType { return DynamicFeeTxType }

func (tx *DynamicFeeTx) copy() txData {
	cpy := &DynamicFeeTx{
		Nonce:      tx.Nonce,
		To:         copyAddressPtr(tx.To),
		Data:       common.CopyBytes(tx.Data),
		Gas:        tx.Gas,
		AccessList: append(AccessList(nil), tx.AccessList...),
		ChainID:    new(big.Int),
		GasTipCap:  new(big.Int),
		GasFeeCap:  new(big.Int),
		Value:      new(big.Int),
		V:          new(big.Int),
		R:          new(big.Int),
		S:          new(big.Int),
	}
	if tx.ChainID != nil {
		cpy.ChainID.Set(tx.ChainID)
	}
	if tx.GasTipCap != nil {
		cpy.GasTipCap.Set(tx.GasTipCap)
	}
	if tx.GasFeeCap != nil {
		cpy.GasFeeCap.Set(tx.GasFeeCap)
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

func (tx *DynamicFeeTx) chainID() *big.Int         { return tx.ChainID }
func (tx *DynamicFeeTx) accessList() AccessList     { return tx.AccessList }
func (tx *DynamicFeeTx) data() []byte               { return tx.Data }
func (tx *DynamicFeeTx) gas() uint64                { return tx.Gas }
func (tx *DynamicFeeTx) gasPrice() *big.Int         { return tx.GasFeeCap }
func (tx *DynamicFeeTx) gasTipCap() *big.Int        { return tx.GasTipCap }
func (tx *DynamicFeeTx) gasFeeCap() *big.Int        { return tx.GasFeeCap }
func (tx *DynamicFeeTx) value() *big.Int            { return tx.Value }
func (tx *DynamicFeeTx) nonce() uint64              { return tx.Nonce }
func (tx *DynamicFeeTx) to() *common.Address        { return tx.To }
func (tx *DynamicFeeTx) blobGas() uint64            { return 0 }
func (tx *DynamicFeeTx) blobGasFeeCap() *big.Int    { return nil }
func (tx *DynamicFeeTx) blobHashes() []common.Hash  { return nil }

func (tx *DynamicFeeTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *DynamicFeeTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.ChainID, tx.V, tx.R, tx.S = chainID, v, r, s
}
