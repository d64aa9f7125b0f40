// Package state implements the account and per-account storage tries that
// back a single execution context: an account trie keyed by
// keccak(address) whose leaves are RLP-encoded
// basic accounts, each carrying the root of its own per-account storage
// trie keyed by keccak(slot).
package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethlocal/devnode/chaintypes"
)

// EmptyRootHash is the root of a trie with no entries.
var EmptyRootHash = chaintypes.EmptyRootHash

// Account is the RLP-encoded leaf of the account trie, mirroring go-ethereum's
// state.StateAccount shape so it can be fed straight into core/vm via the
// StateDB adapter.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash // storage trie root
	CodeHash []byte
}

// EmptyCodeHash is the keccak256 of an empty byte string — the CodeHash of
// every externally-owned account.
var EmptyCodeHash = crypto.Keccak256Hash(nil)

// EmptyAccount returns the zero-value account a never-seen address implies:
// zero nonce and balance, an empty storage trie, and no code.
func EmptyAccount() Account {
	return Account{
		Balance:  new(big.Int),
		Root:     EmptyRootHash,
		CodeHash: EmptyCodeHash.Bytes(),
	}
}

// IsEmpty reports whether a matches the EIP-161 definition of an empty
// account: zero nonce, zero balance, no code.
func (a Account) IsEmpty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.Sign() == 0) && len(a.CodeHash) > 0 &&
		common.BytesToHash(a.CodeHash) == EmptyCodeHash
}

func (a Account) encode() ([]byte, error) {
	root := a.Root
	if root == (common.Hash{}) {
		root = EmptyRootHash
	}
	balance := a.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	codeHash := a.CodeHash
	if len(codeHash) == 0 {
		codeHash = EmptyCodeHash.Bytes()
	}
	return rlp.EncodeToBytes(&rlpAccount{
		Nonce:    a.Nonce,
		Balance:  balance,
		Root:     root,
		CodeHash: codeHash,
	})
}

func decodeAccount(data []byte) (Account, error) {
	var raw rlpAccount
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return Account{}, err
	}
	return Account{Nonce: raw.Nonce, Balance: raw.Balance, Root: raw.Root, CodeHash: raw.CodeHash}, nil
}

type rlpAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}

// hashedAddress is the trie key for an account: keccak256(address), exactly
// as go-ethereum's own secure trie hashes state keys.
func hashedAddress(addr common.Address) common.Hash {
	return crypto.Keccak256Hash(addr.Bytes())
}

// hashedSlot is the trie key for a storage slot.
func hashedSlot(slot common.Hash) common.Hash {
	return crypto.Keccak256Hash(slot.Bytes())
}
