package rpccache

import "github.com/ethereum/go-ethereum/common"

// MethodInvocation is a cacheable method call together with its arguments,
// in exactly the shape needed to compute its cache key. Only the fields
// relevant to Variant are read.
type MethodInvocation struct {
	Variant MethodVariant

	Address             common.Address
	BlockSpec           BlockSpec
	IncludeTxData       bool
	BlockHash           common.Hash
	StorageSlot         uint64
	TransactionHash     common.Hash
	LogFilter           LogFilterOptions
	FeeHistoryBlockCount uint64
	RewardPercentiles   []float64
	HasRewardPercentile bool
}

// ReadCacheKey returns the key used to look up a cached response, or false
// if the method/arguments are not cacheable (e.g. a symbolic `earliest`
// block tag).
func (m MethodInvocation) ReadCacheKey() (ReadKey, bool) {
	h, err := newHasher().hashMethod(m)
	if err != nil {
		return "", false
	}
	return h.finalize(), true
}

// WriteDisposition classifies how (or whether) a response may be persisted.
type WriteDisposition int

const (
	// WriteNone means the method is not cacheable at all.
	WriteNone WriteDisposition = iota
	// WriteResolved means the key is safe to store unconditionally.
	WriteResolved
	// WriteNeedsSafetyCheck means the key may be stored only once
	// BlockNumber is proven at least safe_block_depth blocks behind the tip.
	WriteNeedsSafetyCheck
	// WriteNeedsBlockNumber means the argument referenced a symbolic tag;
	// the caller must resolve it from the response before reclassifying
	// via ResolvedWriteKey.
	WriteNeedsBlockNumber
)

// WriteKey is the result of classifying a method invocation for caching a
// response that has already been fetched.
type WriteKey struct {
	Disposition WriteDisposition
	Key         ReadKey
	BlockNumber uint64
}

// WriteCacheKey classifies the write path for m. For WriteNeedsBlockNumber
// the caller must extract the concrete block number from the RPC response
// (e.g. eth_getBlockByNumber("earliest", ...) returns the block's own
// number in the result) and call ResolvedWriteKey to get a finished key.
func (m MethodInvocation) WriteCacheKey() WriteKey {
	h, err := newHasher().hashMethod(m)
	if err != nil {
		return WriteKey{Disposition: WriteNeedsBlockNumber}
	}
	switch m.Variant {
	case MethodGetBlockByHash, MethodGetTransactionByHash, MethodGetTransactionReceipt, MethodNetVersion:
		return WriteKey{Disposition: WriteResolved, Key: h.finalize()}
	case MethodFeeHistory, MethodGetBalance, MethodGetBlockByNumber, MethodGetCode,
		MethodGetStorageAt, MethodGetTransactionCount:
		return writeKeyForBlockSpec(h, m.BlockSpec)
	case MethodGetLogs:
		return writeKeyForLogRange(h, m.LogFilter.Range)
	default:
		return WriteKey{Disposition: WriteNone}
	}
}

func writeKeyForBlockSpec(h hasher, spec BlockSpec) WriteKey {
	switch spec.kind {
	case specNumber:
		return WriteKey{Disposition: WriteNeedsSafetyCheck, Key: h.finalize(), BlockNumber: spec.number}
	case specHash:
		return WriteKey{Disposition: WriteResolved, Key: h.finalize()}
	default:
		// earliest/safe/finalized never reach here with a successful hash,
		// since blockSpec() returns ErrSymbolicBlockTag for them first.
		return WriteKey{Disposition: WriteNeedsBlockNumber}
	}
}

func writeKeyForLogRange(h hasher, r LogFilterRange) WriteKey {
	if r.byHash != nil {
		return WriteKey{Disposition: WriteResolved, Key: h.finalize()}
	}
	// A range write is safe only once the `to` end is safely behind the
	// tip; callers check NeedsSafetyCheck against r.to's block number
	// exactly as for a single BlockSpec argument.
	return writeKeyForBlockSpec(h, r.to)
}

// ResolvedWriteKey re-derives a WriteKey after the caller has substituted a
// concrete block number for an originally-symbolic tag.
func ResolvedWriteKey(m MethodInvocation, resolvedNumber uint64) WriteKey {
	resolved := m
	resolved.BlockSpec = BlockSpecNumber(resolvedNumber)
	if resolved.LogFilter.Range.isRange {
		resolved.LogFilter.Range.to = BlockSpecNumber(resolvedNumber)
	}
	return resolved.WriteCacheKey()
}

func (h hasher) hashMethod(m MethodInvocation) (hasher, error) {
	this := h.u8(uint8(m.Variant))
	switch m.Variant {
	case MethodFeeHistory:
		this = this.u64(m.FeeHistoryBlockCount)
		this, err := this.blockSpec(m.BlockSpec)
		if err != nil {
			return this, err
		}
		this = this.optionalTag(m.HasRewardPercentile)
		if m.HasRewardPercentile {
			this = this.rewardPercentiles(m.RewardPercentiles)
		}
		return this, nil
	case MethodGetBalance, MethodGetCode, MethodGetTransactionCount:
		this = this.address(m.Address)
		return this.blockSpec(m.BlockSpec)
	case MethodGetBlockByNumber:
		this, err := this.blockSpec(m.BlockSpec)
		if err != nil {
			return this, err
		}
		return this.bool(m.IncludeTxData), nil
	case MethodGetBlockByHash:
		return this.hash256(m.BlockHash).bool(m.IncludeTxData), nil
	case MethodGetLogs:
		return this.logFilterOptions(m.LogFilter)
	case MethodGetStorageAt:
		this = this.address(m.Address).u64(m.StorageSlot)
		return this.blockSpec(m.BlockSpec)
	case MethodGetTransactionByHash, MethodGetTransactionReceipt:
		return this.hash256(m.TransactionHash), nil
	case MethodNetVersion:
		return this, nil
	default:
		return this, ErrSymbolicBlockTag
	}
}
