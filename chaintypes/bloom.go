// Package chaintypes defines the block, transaction and receipt model used
// by the provider data plane: headers, the five transaction envelopes, and
// the typed receipt variants, with RLP encoding delegated to
// github.com/ethereum/go-ethereum/rlp and hashing to
// github.com/ethereum/go-ethereum/crypto.
package chaintypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// BloomByteLength is the number of bytes backing a logs bloom filter.
const BloomByteLength = 256

// BloomBitLength is the number of bits in a logs bloom filter.
const BloomBitLength = 8 * BloomByteLength

// Bloom is a 2048-bit logs bloom filter.
type Bloom [BloomByteLength]byte

// BytesToBloom converts a byte slice to a bloom filter, panicking if the
// slice is longer than BloomByteLength.
func BytesToBloom(b []byte) Bloom {
	var bloom Bloom
	bloom.SetBytes(b)
	return bloom
}

// SetBytes sets the content of b to the given bytes, right-aligned.
func (b *Bloom) SetBytes(d []byte) {
	if len(b) < len(d) {
		panic("bloom bytes too big")
	}
	copy(b[BloomByteLength-len(d):], d)
}

// Bytes returns the backing byte slice of the bloom filter.
func (b Bloom) Bytes() []byte { return b[:] }

// Big converts b to a big integer.
func (b Bloom) Big() *big.Int { return new(big.Int).SetBytes(b[:]) }

// Add adds d to the filter, encoding it with keccak256 the way Ethereum's
// logs bloom does: three 11-bit indices derived from the hash select the
// bits to set.
func (b *Bloom) Add(d []byte) {
	h := crypto.Keccak256(d)
	for i := 0; i < 6; i += 2 {
		bit := (uint(h[i+1]) + (uint(h[i]) << 8)) & 2047
		b[BloomByteLength-1-bit/8] |= 1 << (bit % 8)
	}
}

// OrBloom ors other into b in place, used to fold per-log blooms into a
// per-transaction bloom and per-transaction blooms into the block bloom.
func (b *Bloom) OrBloom(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

// Test reports whether the topic/address bytes are possibly present.
func (b Bloom) Test(topic []byte) bool {
	h := crypto.Keccak256(topic)
	for i := 0; i < 6; i += 2 {
		bit := (uint(h[i+1]) + (uint(h[i]) << 8)) & 2047
		if b[BloomByteLength-1-bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// CreateBloom folds every log's address and topics into a fresh bloom
// filter, the same construction used to fill Header.Bloom and
// Receipt.Bloom.
func CreateBloom(logs []*Log) Bloom {
	var bin Bloom
	for _, log := range logs {
		bin.Add(log.Address.Bytes())
		for _, topic := range log.Topics {
			bin.Add(topic.Bytes())
		}
	}
	return bin
}
