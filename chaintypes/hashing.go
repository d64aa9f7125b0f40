package chaintypes

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

// DerivableList is anything the transactions/receipts/withdrawals trie root
// can be computed over.
type DerivableList interface {
	Len() int
	EncodeIndex(i int, w *bytes.Buffer)
}

// DeriveSha builds an ephemeral Merkle-Patricia trie keyed by the RLP of
// the item's index, and returns its root — the same construction used for
// transactions-root, receipts-root and withdrawals-root alike.
func DeriveSha(list DerivableList, hasher *trie.StackTrie) common.Hash {
	hasher.Reset()
	var indexBuf []byte
	for i := 0; i < list.Len(); i++ {
		indexBuf = rlp.AppendUint64(indexBuf[:0], uint64(i))
		value := encodeForDerive(list, i)
		hasher.Update(indexBuf, value)
	}
	return hasher.Hash()
}

func encodeForDerive(list DerivableList, i int) []byte {
	buf := new(bytes.Buffer)
	list.EncodeIndex(i, buf)
	return buf.Bytes()
}
