package chaintypes

import (
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// Block is an immutable header plus its transactions, ommers and
// (post-Shanghai) withdrawals.
type Block struct {
	header       *Header
	transactions Transactions
	uncles       []*Header
	withdrawals  Withdrawals

	size atomic.Uint64
}

// NewBlockFromParts assembles a block whose header's trie roots have
// already been set by the caller (the block builder computes them via
// DeriveSha before calling this); it does not mutate the header further.
func NewBlockFromParts(header *Header, txs Transactions, uncles []*Header, withdrawals Withdrawals) *Block {
	b := &Block{header: CopyHeader(header)}
	if len(txs) > 0 {
		b.transactions = make(Transactions, len(txs))
		copy(b.transactions, txs)
	}
	if len(uncles) > 0 {
		b.uncles = make([]*Header, len(uncles))
		for i, u := range uncles {
			b.uncles[i] = CopyHeader(u)
		}
	}
	if withdrawals != nil {
		b.withdrawals = make(Withdrawals, len(withdrawals))
		copy(b.withdrawals, withdrawals)
	}
	return b
}

func (b *Block) Header() *Header              { return CopyHeader(b.header) }
func (b *Block) Transactions() Transactions    { return b.transactions }
func (b *Block) Uncles() []*Header             { return b.uncles }
func (b *Block) Withdrawals() Withdrawals      { return b.withdrawals }

func (b *Block) Transaction(hash common.Hash) *Transaction {
	for _, tx := range b.transactions {
		if tx.Hash() == hash {
			return tx
		}
	}
	return nil
}

func (b *Block) Number() *big.Int       { return new(big.Int).Set(b.header.Number) }
func (b *Block) NumberU64() uint64      { return b.header.Number.Uint64() }
func (b *Block) GasLimit() uint64       { return b.header.GasLimit }
func (b *Block) GasUsed() uint64        { return b.header.GasUsed }
func (b *Block) Difficulty() *big.Int   { return new(big.Int).Set(b.header.Difficulty) }
func (b *Block) Time() uint64           { return b.header.Time }
func (b *Block) Coinbase() common.Address { return b.header.Coinbase }
func (b *Block) Root() common.Hash      { return b.header.Root }
func (b *Block) ParentHash() common.Hash { return b.header.ParentHash }
func (b *Block) TxHash() common.Hash    { return b.header.TxHash }
func (b *Block) ReceiptHash() common.Hash { return b.header.ReceiptHash }
func (b *Block) Bloom() Bloom           { return b.header.Bloom }
func (b *Block) BaseFee() *big.Int {
	if b.header.BaseFee == nil {
		return nil
	}
	return new(big.Int).Set(b.header.BaseFee)
}

// Hash returns the header's cached hash.
func (b *Block) Hash() common.Hash { return b.header.Hash() }

// WithSeal returns a new block with the given header replacing the current
// one, keeping the same body (for example to fill in mix-hash, nonce or
// difficulty after the block was assembled).
func (b *Block) WithSeal(header *Header) *Block {
	return &Block{
		header:       CopyHeader(header),
		transactions: b.transactions,
		uncles:       b.uncles,
		withdrawals:  b.withdrawals,
	}
}
