package chaintypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccessListTx is the EIP-2930 envelope: a legacy transaction plus a
// pre-declared access list and an explicit chain id (no longer folded into
// V).
type AccessListTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int
}

func (tx *AccessListTx) txType() TxType { return AccessListTxType }

func (tx *AccessListTx) copy() txData {
	cpy := &AccessListTx{
		Nonce:      tx.Nonce,
		To:         copyAddressPtr(tx.To),
		Data:       common.CopyBytes(tx.Data),
		Gas:        tx.Gas,
		AccessList: append(AccessList(nil), tx.AccessList...),
		ChainID:    new(big.Int),
		GasPrice:   new(big.Int),
		Value:      new(big.Int),
		V:          new(big.Int),
		R:          new(big.Int),
		S:          new(big.Int),
	}
	if tx.ChainID != nil {
		cpy.ChainID.Set(tx.ChainID)
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

func (tx *AccessListTx) chainID() *big.Int         { return tx.ChainID }
func (tx *AccessListTx) accessList() AccessList     { return tx.AccessList }
func (tx *AccessListTx) data() []byte               { return tx.Data }
func (tx *AccessListTx) gas() uint64                { return tx.Gas }
func (tx *AccessListTx) gasPrice() *big.Int         { return tx.GasPrice }
func (tx *AccessListTx) gasTipCap() *big.Int        { return tx.GasPrice }
func (tx *AccessListTx) gasFeeCap() *big.Int        { return tx.GasPrice }
func (tx *AccessListTx) value() *big.Int            { return tx.Value }
func (tx *AccessListTx) nonce() uint64              { return tx.Nonce }
func (tx *AccessListTx) to() *common.Address        { return tx.To }
func (tx *AccessListTx) blobGas() uint64            { return 0 }
func (tx *AccessListTx) blobGasFeeCap() *big.Int    { return nil }
func (tx *AccessListTx) blobHashes() []common.Hash  { return nil }

func (tx *AccessListTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *AccessListTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.ChainID, tx.V, tx.R, tx.S = chainID, v, r, s
}
