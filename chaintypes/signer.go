package chaintypes

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer hashes and recovers the sender of a transaction according to one
// chain-id-aware signing scheme. A single LatestSigner covers all five
// envelope variants the way go-ethereum's cancunSigner embeds its
// predecessors; legacy pre-155 transactions are still accepted (their
// chainID() is nil).
type Signer struct {
	chainID *big.Int
}

// LatestSigner returns the signer used for every variant this package
// supports.
func LatestSigner(chainID *big.Int) *Signer {
	return &Signer{chainID: new(big.Int).Set(chainID)}
}

// Hash returns the transaction hash to be signed, excluding the signature
// itself.
func (s *Signer) Hash(tx *Transaction) common.Hash {
	switch inner := tx.inner.(type) {
	case *LegacyTx:
		if inner.chainID() == nil {
			return rlpHash([]interface{}{
				inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data,
			})
		}
		return rlpHash([]interface{}{
			inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data,
			s.chainID, uint(0), uint(0),
		})
	case *AccessListTx:
		return prefixedRlpHash(byte(AccessListTxType), []interface{}{
			s.chainID, inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data, inner.AccessList,
		})
	case *DynamicFeeTx:
		return prefixedRlpHash(byte(DynamicFeeTxType), []interface{}{
			s.chainID, inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas, inner.To, inner.Value, inner.Data, inner.AccessList,
		})
	case *BlobTx:
		return prefixedRlpHash(byte(BlobTxType), []interface{}{
			s.chainID, inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas, inner.To, inner.Value, inner.Data, inner.AccessList, inner.BlobFeeCap, inner.BlobHashes,
		})
	default:
		panic(fmt.Sprintf("unsupported tx type %T", inner))
	}
}

// Sender recovers the sender address from a signed transaction's signature.
func (s *Signer) Sender(tx *Transaction) (common.Address, error) {
	if tx.Type() != LegacyTxType {
		if tx.ChainId() != nil && tx.ChainId().Cmp(s.chainID) != 0 {
			return common.Address{}, fmt.Errorf("transaction chain id %s, signer chain id %s", tx.ChainId(), s.chainID)
		}
		v, r, sVal := tx.RawSignatureValues()
		return recoverPlain(s.Hash(tx), r, sVal, v, true)
	}
	v, r, sVal := tx.RawSignatureValues()
	chainID := chainIDFromV(v)
	if chainID == nil {
		// Pre-155: v = 27 + yParity.
		return recoverPlain(s.Hash(tx), r, sVal, new(big.Int).Sub(v, big.NewInt(27)), false)
	}
	if chainID.Cmp(s.chainID) != 0 {
		return common.Address{}, fmt.Errorf("transaction chain id %s, signer chain id %s", chainID, s.chainID)
	}
	// v = 2*chainID + 35 + yParity -> yParity = v - 2*chainID - 35
	yParity := new(big.Int).Sub(v, new(big.Int).Lsh(chainID, 1))
	yParity.Sub(yParity, big.NewInt(35))
	return recoverPlain(s.Hash(tx), r, sVal, yParity, false)
}

func recoverPlain(sighash common.Hash, r, sVal, v *big.Int, legacyUnusedParam bool) (common.Address, error) {
	if r.Sign() <= 0 || sVal.Sign() <= 0 {
		return common.Address{}, ErrInvalidTxSig
	}
	if r.BitLen() > 256 || sVal.BitLen() > 256 {
		return common.Address{}, ErrInvalidTxSig
	}
	sig := make([]byte, 65)
	rb, sb := r.Bytes(), sVal.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	if v.BitLen() > 8 || (v.Uint64() != 0 && v.Uint64() != 1) {
		return common.Address{}, fmt.Errorf("invalid y-parity %s", v)
	}
	sig[64] = byte(v.Uint64())
	pub, err := crypto.SigToPub(sighash[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignTx signs tx with the given key using s and returns the signed copy.
func SignTx(tx *Transaction, s *Signer, prv *ecdsa.PrivateKey) (*Transaction, error) {
	h := s.Hash(tx)
	sig, err := crypto.Sign(h[:], prv)
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(s, sig)
}

// WithSignature returns a copy of tx with the given 65-byte [R || S || V]
// signature installed.
func (tx *Transaction) WithSignature(s *Signer, sig []byte) (*Transaction, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("wrong size for signature: got %d, want 65", len(sig))
	}
	cpy := tx.inner.copy()
	r := new(big.Int).SetBytes(sig[:32])
	sVal := new(big.Int).SetBytes(sig[32:64])
	var v *big.Int
	if tx.Type() == LegacyTxType {
		if s.chainID.Sign() == 0 {
			v = new(big.Int).SetUint64(uint64(sig[64]) + 27)
		} else {
			v = big.NewInt(int64(sig[64]))
			v.Add(v, big.NewInt(35))
			v.Add(v, new(big.Int).Lsh(s.chainID, 1))
		}
	} else {
		v = big.NewInt(int64(sig[64]))
	}
	cpy.setSignatureValues(s.chainID, v, r, sVal)
	return &Transaction{inner: cpy}, nil
}

// FakeSign installs a syntactically valid but cryptographically
// meaningless signature for `from`, accepted only by development RPCs
// impersonating an account without its private key. v/r/s are populated
// with non-zero sentinel values so the envelope still round-trips through
// ordinary RLP decoders; recovery
// against this signature will not yield `from` and must never be relied
// upon — the provider records `from` out of band instead.
func FakeSign(tx *Transaction, from common.Address) *Transaction {
	cpy := tx.inner.copy()
	one := big.NewInt(1)
	cpy.setSignatureValues(cpy.chainID(), one, one, one)
	return &Transaction{inner: cpy}
}

var errInvalidSig = errors.New("invalid transaction signature")
