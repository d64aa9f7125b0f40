package chaintypes

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Withdrawal is an EIP-4895 beacon-chain withdrawal credited to an
// execution-layer address.
type Withdrawal struct {
	Index     uint64
	Validator uint64
	Address   common.Address
	Amount    uint64 // in Gwei
}

// Withdrawals implements DerivableList for the withdrawals-root trie.
type Withdrawals []*Withdrawal

func (w Withdrawals) Len() int { return len(w) }

func (w Withdrawals) EncodeIndex(i int, buf *bytes.Buffer) {
	rlp.Encode(buf, w[i])
}
