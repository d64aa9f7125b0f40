package chaintypes

// EncodeRLP/DecodeRLP are intentionally left to the default struct
// reflection in github.com/ethereum/go-ethereum/rlp, driven by the
// `rlp:"optional"` tags on Header above: the encoder omits a trailing
// optional field when it and everything after it is nil, and requires
// every optional field once a later one is non-nil (mirrors London's
// base fee, Shanghai's withdrawals root, Cancun's blob-gas pair and
// parent beacon root each turning on only once their predecessor is set).
//
// No hand-written encoder is needed for the two Cancun blob fields, which
// are encoded as two scalars rather than a nested list: the struct tags
// already get this right because BlobGasUsed and ExcessBlobGas are plain
// *uint64 fields, not a struct. This file documents that invariant next
// to the type definition rather than adding behavior.

// fieldCount returns how many of the post-Byzantium optional fields are
// present, distinguishing a "legacy 15-field header" from a post-fork
// header without touching RLP. Nothing in the module calls it.
func (h *Header) fieldCount() int {
	n := 0
	for _, present := range []bool{
		h.BaseFee != nil,
		h.WithdrawalsHash != nil,
		h.BlobGasUsed != nil,
		h.ExcessBlobGas != nil,
		h.ParentBeaconRoot != nil,
	} {
		if present {
			n++
		}
	}
	return n
}
