package chaintypes

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync/atomic"

	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var encodeBufPool = sync.Pool{New: func() interface{} { return new(bytes.Buffer) }}

// TxType identifies one of the five transaction envelope variants.
type TxType byte

const (
	LegacyTxType     TxType = 0x00
	AccessListTxType TxType = 0x01
	DynamicFeeTxType TxType = 0x02
	BlobTxType       TxType = 0x03
)

var (
	ErrTxTypeNotSupported   = errors.New("transaction type not supported")
	ErrInvalidTxSig         = errors.New("invalid transaction v, r, s values")
	ErrEmptyTypedTx         = errors.New("empty typed transaction bytes")
	ErrUnexpectedProtection = errors.New("transaction type does not supported EIP-155 protected signatures")
)

// txData is implemented by each of the five envelope payloads.
type txData interface {
	txType() TxType
	copy() txData

	chainID() *big.Int
	accessList() AccessList
	data() []byte
	gas() uint64
	gasPrice() *big.Int
	gasTipCap() *big.Int
	gasFeeCap() *big.Int
	value() *big.Int
	nonce() uint64
	to() *common.Address

	rawSignatureValues() (v, r, s *big.Int)
	setSignatureValues(chainID, v, r, s *big.Int)

	blobGas() uint64
	blobGasFeeCap() *big.Int
	blobHashes() []common.Hash
}

// Transaction is a tagged-union signed transaction: the five legacy /
// EIP-2930 / EIP-1559 / EIP-4844 variants behind one value type.
type Transaction struct {
	inner txData
	hash  atomic.Pointer[common.Hash]
	size  atomic.Uint64
}

// NewTx wraps a concrete envelope payload (e.g. *LegacyTx) into a
// Transaction.
func NewTx(inner txData) *Transaction {
	tx := new(Transaction)
	tx.setDecoded(inner.copy(), 0)
	return tx
}

func (tx *Transaction) setDecoded(inner txData, size uint64) {
	tx.inner = inner
	if size > 0 {
		tx.size.Store(size)
	}
}

// Type returns the transaction's envelope type.
func (tx *Transaction) Type() TxType { return tx.inner.txType() }

func (tx *Transaction) ChainId() *big.Int          { return tx.inner.chainID() }
func (tx *Transaction) Data() []byte               { return tx.inner.data() }
func (tx *Transaction) AccessList() AccessList      { return tx.inner.accessList() }
func (tx *Transaction) Gas() uint64                { return tx.inner.gas() }
func (tx *Transaction) GasPrice() *big.Int         { return new(big.Int).Set(tx.inner.gasPrice()) }
func (tx *Transaction) GasTipCap() *big.Int        { return new(big.Int).Set(tx.inner.gasTipCap()) }
func (tx *Transaction) GasFeeCap() *big.Int        { return new(big.Int).Set(tx.inner.gasFeeCap()) }
func (tx *Transaction) Value() *big.Int            { return new(big.Int).Set(tx.inner.value()) }
func (tx *Transaction) Nonce() uint64              { return tx.inner.nonce() }
func (tx *Transaction) To() *common.Address        { return copyAddressPtr(tx.inner.to()) }
func (tx *Transaction) BlobGas() uint64            { return tx.inner.blobGas() }
func (tx *Transaction) BlobGasFeeCap() *big.Int    { return tx.inner.blobGasFeeCap() }
func (tx *Transaction) BlobHashes() []common.Hash  { return tx.inner.blobHashes() }

// IsContractCreation reports whether the transaction creates a contract.
func (tx *Transaction) IsContractCreation() bool { return tx.inner.to() == nil }

// RawSignatureValues returns the raw (v, r, s) signature tuple as stored in
// the envelope.
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) { return tx.inner.rawSignatureValues() }

// EffectiveGasTip returns the effective miner tip for the given base fee:
// for legacy/2930 it is gasPrice - baseFee, for 1559/4844 it is
// min(gasTipCap, gasFeeCap - baseFee).
func (tx *Transaction) EffectiveGasTip(baseFee *big.Int) (*big.Int, error) {
	if baseFee == nil {
		return tx.GasTipCap(), nil
	}
	var (
		feeCap = tx.GasFeeCap()
		tip    = tx.GasTipCap()
	)
	if feeCap.Cmp(baseFee) < 0 {
		return nil, fmt.Errorf("gas fee cap %s, less than base fee %s", feeCap, baseFee)
	}
	gasFeeCapCopy := new(big.Int).Set(feeCap)
	possibleTip := gasFeeCapCopy.Sub(gasFeeCapCopy, baseFee)
	if possibleTip.Cmp(tip) > 0 {
		possibleTip = tip
	}
	return possibleTip, nil
}

// EffectiveGasPrice returns min(gasPrice, baseFee+gasTipCap) for
// post-London semantics, or gasPrice unmodified for legacy/2930.
func (tx *Transaction) EffectiveGasPrice(baseFee *big.Int) *big.Int {
	if tx.Type() == LegacyTxType || tx.Type() == AccessListTxType || baseFee == nil {
		return tx.GasPrice()
	}
	tip, err := tx.EffectiveGasTip(baseFee)
	if err != nil {
		tip = tx.GasTipCap()
	}
	return new(big.Int).Add(baseFee, tip)
}

func copyAddressPtr(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}

// Hash returns the keccak256 hash of the canonical transaction encoding
// (the envelope, including the leading type byte for typed transactions),
// computed once and cached.
func (tx *Transaction) Hash() common.Hash {
	if p := tx.hash.Load(); p != nil {
		return *p
	}
	var h common.Hash
	if tx.Type() == LegacyTxType {
		h = rlpHash(tx.inner)
	} else {
		h = prefixedRlpHash(byte(tx.Type()), tx.inner)
	}
	tx.hash.Store(&h)
	return h
}

func prefixedRlpHash(prefix byte, x interface{}) common.Hash {
	buf := new(bytes.Buffer)
	buf.WriteByte(prefix)
	if err := rlp.Encode(buf, x); err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(buf.Bytes())
}

// EncodeRLP implements rlp.Encoder: legacy transactions are encoded as a
// bare list, typed transactions as the string `[type || rlp(payload)]`.
func (tx *Transaction) EncodeRLP(w io.Writer) error {
	if tx.Type() == LegacyTxType {
		return rlp.Encode(w, tx.inner)
	}
	buf := encodeBufPool.Get().(*bytes.Buffer)
	defer encodeBufPool.Put(buf)
	buf.Reset()
	if err := tx.encodeTyped(buf); err != nil {
		return err
	}
	return rlp.Encode(w, buf.Bytes())
}

func (tx *Transaction) encodeTyped(w *bytes.Buffer) error {
	w.WriteByte(byte(tx.Type()))
	return rlp.Encode(w, tx.inner)
}

// MarshalBinary returns the canonical encoding of the transaction:
// RLP(legacy) or `type || rlp(payload)` (no outer string wrapper) for
// typed transactions, as used on the wire and for tx.Hash() preimages of
// nothing (hash uses prefixedRlpHash directly, not this method) but
// shared with block-level transaction encodings.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	if tx.Type() == LegacyTxType {
		return rlp.EncodeToBytes(tx.inner)
	}
	var buf bytes.Buffer
	if err := tx.encodeTyped(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRLP implements rlp.Decoder.
func (tx *Transaction) DecodeRLP(s *rlp.Stream) error {
	kind, size, err := s.Kind()
	switch {
	case err != nil:
		return err
	case kind == rlp.List:
		var inner LegacyTx
		if err := s.Decode(&inner); err != nil {
			return err
		}
		tx.setDecoded(&inner, rlp.ListSize(size))
		return nil
	default:
		b, berr := s.Bytes()
		if berr != nil {
			return berr
		}
		inner, perr := tx.decodeTyped(b)
		if perr != nil {
			return perr
		}
		tx.setDecoded(inner, uint64(len(b)))
		return nil
	}
}

// UnmarshalBinary decodes the canonical encoding produced by MarshalBinary.
func (tx *Transaction) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return ErrEmptyTypedTx
	}
	if b[0] > 0x7f {
		var inner LegacyTx
		if err := rlp.DecodeBytes(b, &inner); err != nil {
			return err
		}
		tx.setDecoded(&inner, uint64(len(b)))
		return nil
	}
	inner, err := tx.decodeTyped(b)
	if err != nil {
		return err
	}
	tx.setDecoded(inner, uint64(len(b)))
	return nil
}

func (tx *Transaction) decodeTyped(b []byte) (txData, error) {
	if len(b) == 0 {
		return nil, ErrEmptyTypedTx
	}
	switch TxType(b[0]) {
	case AccessListTxType:
		var inner AccessListTx
		err := rlp.DecodeBytes(b[1:], &inner)
		return &inner, err
	case DynamicFeeTxType:
		var inner DynamicFeeTx
		err := rlp.DecodeBytes(b[1:], &inner)
		return &inner, err
	case BlobTxType:
		var inner BlobTx
		err := rlp.DecodeBytes(b[1:], &inner)
		return &inner, err
	default:
		return nil, ErrTxTypeNotSupported
	}
}

// Transactions implements DerivableList for the transactions-root trie.
type Transactions []*Transaction

func (s Transactions) Len() int { return len(s) }

// EncodeIndex implements DerivableList: index i is irrelevant to the
// encoding itself, only to where it is inserted in the trie.
func (s Transactions) EncodeIndex(i int, w *bytes.Buffer) {
	tx := s[i]
	if tx.Type() == LegacyTxType {
		rlp.Encode(w, tx.inner)
		return
	}
	tx.encodeTyped(w)
}
