package chaintypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BlobTx is the EIP-4844 envelope: a DynamicFeeTx plus a blob fee cap and
// the list of versioned blob hashes that accompany the sidecar.
type BlobTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         common.Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	BlobFeeCap *big.Int
	BlobHashes []common.Hash
	V, R, S    *big.Int
}

func (tx *BlobTx) txType() TxType { return BlobTxType }

func (tx *BlobTx) copy() txData {
	cpy := &BlobTx{
		Nonce:      tx.Nonce,
		To:         tx.To,
		Data:       common.CopyBytes(tx.Data),
		Gas:        tx.Gas,
		AccessList: append(AccessList(nil), tx.AccessList...),
		BlobHashes: append([]common.Hash(nil), tx.BlobHashes...),
		ChainID:    new(big.Int),
		GasTipCap:  new(big.Int),
		GasFeeCap:  new(big.Int),
		Value:      new(big.Int),
		BlobFeeCap: new(big.Int),
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
	if tx.BlobFeeCap != nil {
		cpy.BlobFeeCap.Set(tx.BlobFeeCap)
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

func (tx *BlobTx) chainID() *big.Int     { return tx.ChainID }
func (tx *BlobTx) accessList() AccessList { return tx.AccessList }
func (tx *BlobTx) data() []byte           { return tx.Data }
func (tx *BlobTx) gas() uint64            { return tx.Gas }
func (tx *BlobTx) gasPrice() *big.Int     { return tx.GasFeeCap }
func (tx *BlobTx) gasTipCap() *big.Int    { return tx.GasTipCap }
func (tx *BlobTx) gasFeeCap() *big.Int    { return tx.GasFeeCap }
func (tx *BlobTx) value() *big.Int        { return tx.Value }
func (tx *BlobTx) nonce() uint64          { return tx.Nonce }
func (tx *BlobTx) to() *common.Address {
	to := tx.To
	return &to
}
func (tx *BlobTx) blobGas() uint64               { return BlobTxGasPerBlob * uint64(len(tx.BlobHashes)) }
func (tx *BlobTx) blobGasFeeCap() *big.Int       { return tx.BlobFeeCap }
func (tx *BlobTx) blobHashes() []common.Hash     { return tx.BlobHashes }

func (tx *BlobTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *BlobTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.ChainID, tx.V, tx.R, tx.S = chainID, v, r, s
}

// BlobTxGasPerBlob is the fixed per-blob gas cost (131072, 2**17),
// matching EIP-4844.
const BlobTxGasPerBlob = 1 << 17

// MaxBlobGasPerBlock bounds the sum of blobGas() across transactions in a
// block (6 blobs * 131072 gas/blob at Cancun genesis parameters).
const MaxBlobGasPerBlock = 6 * BlobTxGasPerBlob
