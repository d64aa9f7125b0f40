package chaintypes

import (
	"bytes"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

const (
	ReceiptStatusFailed    = uint64(0)
	ReceiptStatusSuccessful = uint64(1)
)

var (
	receiptStatusFailedRLP     = []byte{}
	receiptStatusSuccessfulRLP = []byte{0x01}
)

// Receipt is the typed receipt envelope: pre-EIP-658 legacy receipts carry
// PostState, everything else carries Status.
type Receipt struct {
	Type              TxType
	PostState         []byte
	Status            uint64
	CumulativeGasUsed uint64
	Bloom             Bloom
	Logs              []*Log

	// Implementation fields, not part of consensus encoding.
	TxHash          common.Hash
	ContractAddress *common.Address
	GasUsed         uint64
	EffectiveGasPrice *big.Int `json:"-"`
	BlockHash        common.Hash
	BlockNumber      *big.Int
	TransactionIndex uint
}

// receiptRLP is the legacy/consensus field set shared by every variant.
type receiptRLP struct {
	PostStateOrStatus []byte
	CumulativeGasUsed uint64
	Bloom             Bloom
	Logs              []*Log
}

func (r *Receipt) statusEncoding() []byte {
	if len(r.PostState) != 0 {
		return r.PostState
	}
	if r.Status == ReceiptStatusFailed {
		return receiptStatusFailedRLP
	}
	return receiptStatusSuccessfulRLP
}

func (r *Receipt) setStatus(postStateOrStatus []byte) error {
	switch {
	case bytes.Equal(postStateOrStatus, receiptStatusSuccessfulRLP):
		r.Status = ReceiptStatusSuccessful
	case len(postStateOrStatus) == 0:
		r.Status = ReceiptStatusFailed
	case len(postStateOrStatus) == common.HashLength:
		r.PostState = postStateOrStatus
	default:
		// any non-canonical non-zero status byte normalizes to 1.
		r.Status = ReceiptStatusSuccessful
	}
	return nil
}

// EncodeRLP implements rlp.Encoder. Legacy receipts (Type == LegacyTxType)
// encode as a bare list; typed receipts encode as the string
// `type || rlp(payload)`, mirroring the transaction envelope.
func (r *Receipt) EncodeRLP(w io.Writer) error {
	data := &receiptRLP{r.statusEncoding(), r.CumulativeGasUsed, r.Bloom, r.Logs}
	if r.Type == LegacyTxType {
		return rlp.Encode(w, data)
	}
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(r.Type))
	if err := rlp.Encode(buf, data); err != nil {
		return err
	}
	return rlp.Encode(w, buf.Bytes())
}

// DecodeRLP implements rlp.Decoder.
func (r *Receipt) DecodeRLP(s *rlp.Stream) error {
	kind, _, err := s.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case rlp.List:
		var dec receiptRLP
		if err := s.Decode(&dec); err != nil {
			return err
		}
		if err := r.setStatus(dec.PostStateOrStatus); err != nil {
			return err
		}
		r.CumulativeGasUsed, r.Bloom, r.Logs = dec.CumulativeGasUsed, dec.Bloom, dec.Logs
		r.Type = LegacyTxType
		return nil
	case rlp.String:
		b, err := s.Bytes()
		if err != nil {
			return fmt.Errorf("read typed receipt: %w", err)
		}
		if len(b) == 0 {
			return fmt.Errorf("empty typed receipt")
		}
		r.Type = TxType(b[0])
		switch r.Type {
		case AccessListTxType, DynamicFeeTxType, BlobTxType:
		default:
			return ErrTxTypeNotSupported
		}
		var dec receiptRLP
		if err := rlp.DecodeBytes(b[1:], &dec); err != nil {
			return err
		}
		if err := r.setStatus(dec.PostStateOrStatus); err != nil {
			return err
		}
		r.CumulativeGasUsed, r.Bloom, r.Logs = dec.CumulativeGasUsed, dec.Bloom, dec.Logs
		return nil
	default:
		return rlp.ErrExpectedList
	}
}

// Receipts implements DerivableList for the receipts-root trie.
type Receipts []*Receipt

func (rs Receipts) Len() int { return len(rs) }

func (rs Receipts) EncodeIndex(i int, w *bytes.Buffer) {
	r := rs[i]
	data := &receiptRLP{r.statusEncoding(), r.CumulativeGasUsed, r.Bloom, r.Logs}
	if r.Type == LegacyTxType {
		rlp.Encode(w, data)
		return
	}
	w.WriteByte(byte(r.Type))
	rlp.Encode(w, data)
}
