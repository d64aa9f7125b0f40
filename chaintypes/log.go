package chaintypes

import "github.com/ethereum/go-ethereum/common"

// Log is a single EVM log entry produced by a LOG0..LOG4 opcode. Only
// Address, Topics and Data are consensus-encoded; the rest are derived once
// the log's position in the chain is known and are excluded from RLP via
// the "-" tag.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`

	BlockNumber uint64      `json:"blockNumber" rlp:"-"`
	TxHash      common.Hash `json:"transactionHash" rlp:"-"`
	TxIndex     uint        `json:"transactionIndex" rlp:"-"`
	BlockHash   common.Hash `json:"blockHash" rlp:"-"`
	Index       uint        `json:"logIndex" rlp:"-"`
	Removed     bool        `json:"removed" rlp:"-"`
}

// AccessTuple is one entry of an EIP-2930 access list: an address plus the
// storage slots within it that are pre-warmed.
type AccessTuple struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storageKeys"`
}

// AccessList is an EIP-2930 access list.
type AccessList []AccessTuple

// StorageKeys returns the total number of storage keys across the list,
// used for intrinsic gas accounting.
func (al AccessList) StorageKeys() int {
	n := 0
	for _, tuple := range al {
		n += len(tuple.StorageKeys)
	}
	return n
}
