// Package rpccache derives stable, content-addressed cache keys for
// cacheable remote JSON-RPC calls, and
// classifies the corresponding write as immediately safe, pending a
// reorg-safety check, or pending resolution of a symbolic block tag.
package rpccache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// ErrSymbolicBlockTag is returned while hashing a method whose BlockSpec
// argument is an unresolved `earliest`/`safe`/`finalized` tag (`latest` and
// `pending` cannot be expressed as a BlockSpec at all). It signals the caller to fall back to the
// NeedsBlockNumber write-key path.
var ErrSymbolicBlockTag = errors.New("rpccache: symbolic block tag is not hashable")

// ReadKey is the hex-encoded sha3-256 digest used to look up a cached
// response.
type ReadKey string

// BlockTag is one of the three reorg-safe symbolic tags. `latest` and
// `pending` are deliberately not representable here — see BlockSpec.
type BlockTag uint8

const (
	TagEarliest BlockTag = iota
	TagSafe
	TagFinalized
)

// BlockSpec is the cacheable subset of a JSON-RPC block parameter: an
// exact number, an exact hash (with optional canonical requirement), or a
// symbolic tag. `latest` and `pending` can never be proven reorg-safe and
// so have no constructor here; callers must bypass the cache for them.
type BlockSpec struct {
	kind             blockSpecKind
	number           uint64
	hash             common.Hash
	requireCanonical *bool
	tag              BlockTag
}

type blockSpecKind uint8

const (
	specNumber blockSpecKind = iota
	specHash
	specTag
)

func BlockSpecNumber(n uint64) BlockSpec { return BlockSpec{kind: specNumber, number: n} }

func BlockSpecHash(h common.Hash, requireCanonical *bool) BlockSpec {
	return BlockSpec{kind: specHash, hash: h, requireCanonical: requireCanonical}
}

func BlockSpecTag(tag BlockTag) BlockSpec { return BlockSpec{kind: specTag, tag: tag} }

// IsSymbolic reports whether the spec is one of the three symbolic tags
// (earliest/safe/finalized) as opposed to a concrete number or hash.
func (b BlockSpec) IsSymbolic() bool { return b.kind == specTag }

// String renders b the way a JSON-RPC block parameter expects it on the
// wire: a 0x-prefixed hex number, a tag name, or (for a hash argument) an
// object is expected instead — callers needing {"blockHash":...} build
// that themselves and never call String for specHash.
func (b BlockSpec) String() string {
	switch b.kind {
	case specNumber:
		return "0x" + formatHex(b.number)
	case specTag:
		switch b.tag {
		case TagEarliest:
			return "earliest"
		case TagSafe:
			return "safe"
		case TagFinalized:
			return "finalized"
		}
	}
	return "latest"
}

func formatHex(n uint64) string {
	const hexDigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = hexDigits[n&0xf]
		n >>= 4
	}
	return string(buf[i:])
}

// hasher accumulates a deterministic byte sequence via sha3-256. Each
// method takes the receiver by value and returns a new hasher, matching
// the "consume self" discipline of the reference cache-key construction:
// a partially built hash is simply discarded rather than mutated in place
// when hashing fails partway through (e.g. a symbolic tag is encountered).
type hasher struct {
	// running sha3-256 state; sha3.New256 satisfies hash.Hash.
	state interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
	}
}

func newHasher() hasher {
	return hasher{state: sha3.New256()}
}

func (h hasher) bytes(b []byte) hasher {
	h.state.Write(b)
	return h
}

func (h hasher) u8(v uint8) hasher { return h.bytes([]byte{v}) }

func (h hasher) bool(v bool) hasher {
	if v {
		return h.u8(1)
	}
	return h.u8(0)
}

func (h hasher) address(a common.Address) hasher { return h.bytes(a.Bytes()) }

func (h hasher) u64(v uint64) hasher {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return h.bytes(buf[:])
}

func (h hasher) hash256(v common.Hash) hasher { return h.bytes(v.Bytes()) }

func (h hasher) optionalTag(present bool) hasher { return h.bool(present) }

func (h hasher) blockSpec(b BlockSpec) (hasher, error) {
	this := h.u8(uint8(b.kind))
	switch b.kind {
	case specNumber:
		return this.u64(b.number), nil
	case specHash:
		this = this.hash256(b.hash).optionalTag(b.requireCanonical != nil)
		if b.requireCanonical != nil {
			this = this.bool(*b.requireCanonical)
		}
		return this, nil
	case specTag:
		return this, ErrSymbolicBlockTag
	default:
		return this, ErrSymbolicBlockTag
	}
}

func (h hasher) rewardPercentiles(ps []float64) hasher {
	this := h.u64(uint64(len(ps)))
	for _, p := range ps {
		this = this.u64(uint64(math.Floor(p * 100)))
	}
	return this
}

func (h hasher) finalize() ReadKey {
	sum := h.state.Sum(nil)
	return ReadKey(hex.EncodeToString(sum))
}

// MethodVariant enumerates the cacheable RPC methods; the value is hashed
// first as a one-byte variant discriminant so that differently-shaped
// arguments to different methods can never collide.
type MethodVariant uint8

const (
	MethodFeeHistory MethodVariant = iota
	MethodGetBalance
	MethodGetBlockByNumber
	MethodGetBlockByHash
	MethodGetCode
	MethodGetLogs
	MethodGetStorageAt
	MethodGetTransactionByHash
	MethodGetTransactionCount
	MethodGetTransactionReceipt
	MethodNetVersion
)

// LogFilterRange is either an exact block hash, or a [from,to] BlockSpec
// range, mirroring eth_getLogs's two addressing modes.
type LogFilterRange struct {
	byHash  *common.Hash
	from    BlockSpec
	to      BlockSpec
	isRange bool
}

func LogFilterRangeByHash(h common.Hash) LogFilterRange { return LogFilterRange{byHash: &h} }
func LogFilterRangeByBlocks(from, to BlockSpec) LogFilterRange {
	return LogFilterRange{from: from, to: to, isRange: true}
}

func (h hasher) logFilterRange(r LogFilterRange) (hasher, error) {
	if r.byHash != nil {
		return h.u8(0).hash256(*r.byHash), nil
	}
	this := h.u8(1)
	this, err := this.blockSpec(r.from)
	if err != nil {
		return this, err
	}
	return this.blockSpec(r.to)
}

// TopicOption is one position of an eth_getLogs topics argument: absent
// (match anything), or a disjunction of zero-or-more hashes.
type TopicOption struct {
	present bool
	hashes  []common.Hash
}

func NoTopicFilter() TopicOption                { return TopicOption{} }
func TopicOneOf(hashes []common.Hash) TopicOption { return TopicOption{present: true, hashes: hashes} }

// LogFilterOptions is the cacheable shape of an eth_getLogs argument.
type LogFilterOptions struct {
	Range     LogFilterRange
	Addresses []common.Address
	Topics    []TopicOption
}

func (h hasher) logFilterOptions(p LogFilterOptions) (hasher, error) {
	this, err := h.logFilterRange(p.Range)
	if err != nil {
		return this, err
	}
	this = this.u64(uint64(len(p.Addresses)))
	for _, a := range p.Addresses {
		this = this.address(a)
	}
	this = this.u64(uint64(len(p.Topics)))
	for _, topic := range p.Topics {
		this = this.optionalTag(topic.present)
		if topic.present {
			this = this.u64(uint64(len(topic.hashes)))
			for _, hsh := range topic.hashes {
				this = this.hash256(hsh)
			}
		}
	}
	return this, nil
}
