package chaintypes

import (
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockNonce is the 8-byte proof-of-work nonce.
type BlockNonce [8]byte

// EncodeNonce converts a uint64 into a BlockNonce.
func EncodeNonce(i uint64) BlockNonce {
	var n BlockNonce
	for i2 := 0; i2 < 8; i2++ {
		n[i2] = byte(i >> (56 - i2*8))
	}
	return n
}

// Uint64 returns the integer value of a block nonce.
func (n BlockNonce) Uint64() uint64 {
	var v uint64
	for _, b := range n {
		v = v<<8 | uint64(b)
	}
	return v
}

// Header is an Ethereum block header. Fields introduced after Byzantium are
// pointers tagged "optional": a nil pointer omits the field from the RLP
// encoding (pre-fork), a non-nil pointer always emits it, including the
// zero value (post-fork), so RLP encoding always omits trailing fields
// exactly for forks that precede their introduction.
type Header struct {
	ParentHash  common.Hash    `json:"parentHash"`
	UncleHash   common.Hash    `json:"sha3Uncles"`
	Coinbase    common.Address `json:"miner"`
	Root        common.Hash    `json:"stateRoot"`
	TxHash      common.Hash    `json:"transactionsRoot"`
	ReceiptHash common.Hash    `json:"receiptsRoot"`
	Bloom       Bloom          `json:"logsBloom"`
	Difficulty  *big.Int       `json:"difficulty"`
	Number      *big.Int       `json:"number"`
	GasLimit    uint64         `json:"gasLimit"`
	GasUsed     uint64         `json:"gasUsed"`
	Time        uint64         `json:"timestamp"`
	Extra       []byte         `json:"extraData"`
	MixDigest   common.Hash    `json:"mixHash"`
	Nonce       BlockNonce     `json:"nonce"`

	// EIP-1559
	BaseFee *big.Int `json:"baseFeePerGas" rlp:"optional"`
	// EIP-4895
	WithdrawalsHash *common.Hash `json:"withdrawalsRoot" rlp:"optional"`
	// EIP-4844
	BlobGasUsed   *uint64 `json:"blobGasUsed" rlp:"optional"`
	ExcessBlobGas *uint64 `json:"excessBlobGas" rlp:"optional"`
	// EIP-4788
	ParentBeaconRoot *common.Hash `json:"parentBeaconBlockRoot" rlp:"optional"`

	hash atomic.Pointer[common.Hash]
}

// CopyHeader makes a deep copy of a header, resetting its hash cache.
func CopyHeader(h *Header) *Header {
	cpy := *h
	cpy.hash.Store(nil)
	if cpy.Difficulty = new(big.Int); h.Difficulty != nil {
		cpy.Difficulty.Set(h.Difficulty)
	}
	if cpy.Number = new(big.Int); h.Number != nil {
		cpy.Number.Set(h.Number)
	}
	if h.BaseFee != nil {
		cpy.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	if len(h.Extra) > 0 {
		cpy.Extra = make([]byte, len(h.Extra))
		copy(cpy.Extra, h.Extra)
	}
	if h.WithdrawalsHash != nil {
		hsh := *h.WithdrawalsHash
		cpy.WithdrawalsHash = &hsh
	}
	if h.BlobGasUsed != nil {
		v := *h.BlobGasUsed
		cpy.BlobGasUsed = &v
	}
	if h.ExcessBlobGas != nil {
		v := *h.ExcessBlobGas
		cpy.ExcessBlobGas = &v
	}
	if h.ParentBeaconRoot != nil {
		v := *h.ParentBeaconRoot
		cpy.ParentBeaconRoot = &v
	}
	return &cpy
}

// Hash returns the keccak256 hash of the RLP encoding of the header,
// computing it once and caching it for subsequent calls. The cache is a
// write-once atomic pointer so that a header handed to multiple readers
// never recomputes or races.
func (h *Header) Hash() common.Hash {
	if p := h.hash.Load(); p != nil {
		return *p
	}
	v := rlpHash(h)
	h.hash.CompareAndSwap(nil, &v)
	return *h.hash.Load()
}

func rlpHash(x interface{}) (h common.Hash) {
	enc, err := rlp.EncodeToBytes(x)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// EmptyRootHash is the root hash of an empty Merkle-Patricia trie, used as
// the sentinel value for an empty withdrawals list.
var EmptyRootHash = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

// EmptyUncleHash is keccak256(RLP([])), the sha3Uncles of a block with no
// ommers.
var EmptyUncleHash = rlpHash([]*Header(nil))
