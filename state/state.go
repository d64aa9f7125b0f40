package state

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie/trienode"
)

// State is a single execution context: a committed trie root plus an
// in-memory overlay of changes not yet folded into a trie. Overlay writes
// are cheap (plain Go maps); Commit is the only operation that touches the
// underlying tries, matching the "build the trie from layers of changes"
// discipline accounts are maintained under.
type State struct {
	store *Store
	root  common.Hash

	// dirtyAccounts maps an address to its pending account value, or to a
	// nil entry meaning the account was deleted (selfdestructed or swept
	// for being EIP-161-empty) since the last commit.
	dirtyAccounts map[common.Address]*Account
	dirtyStorage  map[common.Address]map[common.Hash]common.Hash
}

// New creates an empty state over a fresh Store.
func New() *State {
	return &State{
		store:         NewStore(),
		root:          EmptyRootHash,
		dirtyAccounts: make(map[common.Address]*Account),
		dirtyStorage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// FromRoot resumes a state already persisted at root in store — used when
// restoring a snapshot or an irregular-state override.
func FromRoot(store *Store, root common.Hash) *State {
	if root == (common.Hash{}) {
		root = EmptyRootHash
	}
	return &State{
		store:         store,
		root:          root,
		dirtyAccounts: make(map[common.Address]*Account),
		dirtyStorage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// Store returns the underlying trie store, e.g. for sharing it with a
// clone that starts from a different root.
func (s *State) Store() *Store { return s.store }

// Basic returns addr's account, or EmptyAccount() if it has never been
// touched.
func (s *State) Basic(addr common.Address) (Account, error) {
	if acc, ok := s.dirtyAccounts[addr]; ok {
		if acc == nil {
			return EmptyAccount(), nil
		}
		return *acc, nil
	}
	return s.basicFromTrie(addr)
}

func (s *State) basicFromTrie(addr common.Address) (Account, error) {
	cacheKey := append(append([]byte{}, s.root.Bytes()...), addr.Bytes()...)
	if cached, ok := s.store.accountCache.HasGet(nil, cacheKey); ok {
		if len(cached) == 0 {
			return EmptyAccount(), nil
		}
		return decodeAccount(cached)
	}

	tr, err := s.store.accountTrie(s.root)
	if err != nil {
		return Account{}, err
	}
	gethAcc, err := tr.GetAccount(addr)
	if err != nil {
		return Account{}, fmt.Errorf("state: read account %s: %w", addr, err)
	}
	if gethAcc == nil {
		s.store.accountCache.Set(cacheKey, nil)
		return EmptyAccount(), nil
	}
	acc := Account{
		Nonce:    gethAcc.Nonce,
		Balance:  new(big.Int).Set(gethAcc.Balance),
		Root:     gethAcc.Root,
		CodeHash: gethAcc.CodeHash,
	}
	if encoded, err := acc.encode(); err == nil {
		s.store.accountCache.Set(cacheKey, encoded)
	}
	return acc, nil
}

// CodeByHash returns the contract code for hash.
func (s *State) CodeByHash(hash common.Hash) []byte {
	return s.store.CodeByHash(hash)
}

// SetCode installs code and returns its hash, for ModifyAccount callers
// that are deploying or overriding a contract's bytecode.
func (s *State) SetCode(code []byte) common.Hash {
	return s.store.PutCode(code)
}

// Storage returns the value at addr's slot, or the zero hash if unset.
func (s *State) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	if byAddr, ok := s.dirtyStorage[addr]; ok {
		if v, ok := byAddr[slot]; ok {
			return v, nil
		}
	}

	acc, err := s.Basic(addr)
	if err != nil {
		return common.Hash{}, err
	}
	if acc.Root == (common.Hash{}) || acc.Root == EmptyRootHash {
		return common.Hash{}, nil
	}
	tr, err := s.store.storageTrie(addr, acc.Root)
	if err != nil {
		return common.Hash{}, err
	}
	val, err := tr.GetStorage(addr, slot.Bytes())
	if err != nil {
		return common.Hash{}, fmt.Errorf("state: read storage %s/%s: %w", addr, slot, err)
	}
	return common.BytesToHash(val), nil
}

// SetAccountStorageSlot sets addr's slot to value. If addr has never been
// touched, it is implicitly materialized as an empty account first (the
// Open Question of what "set storage on a never-seen address" means is
// resolved that way here — see DESIGN.md).
func (s *State) SetAccountStorageSlot(addr common.Address, slot common.Hash, value common.Hash) error {
	if _, ok := s.dirtyAccounts[addr]; !ok {
		acc, err := s.basicFromTrie(addr)
		if err != nil {
			return err
		}
		s.dirtyAccounts[addr] = &acc
	}
	if s.dirtyStorage[addr] == nil {
		s.dirtyStorage[addr] = make(map[common.Hash]common.Hash)
	}
	s.dirtyStorage[addr][slot] = value
	return nil
}

// ModifyAccount loads addr's current account (or EmptyAccount if unseen),
// applies fn, and stores the result as a pending change.
func (s *State) ModifyAccount(addr common.Address, fn func(Account) Account) error {
	current, err := s.Basic(addr)
	if err != nil {
		return err
	}
	updated := fn(current)
	s.dirtyAccounts[addr] = &updated
	return nil
}

// DeleteAccount removes addr and its storage entirely (selfdestruct, or
// EIP-161 state clearing of a touched-but-empty account).
func (s *State) DeleteAccount(addr common.Address) {
	s.dirtyAccounts[addr] = nil
	delete(s.dirtyStorage, addr)
}

// Root returns the state's last-committed root without folding in
// uncommitted overlay changes.
func (s *State) Root() common.Hash { return s.root }

// StateRoot computes the root the state would have if Commit were called
// now, without clearing the overlay — callers that just need to observe
// (e.g. a call simulated against a pending block) can do so without losing
// the ability to keep building on the same State.
func (s *State) StateRoot() (common.Hash, error) {
	return s.computeRoot(false)
}

// Commit folds every pending change into the underlying tries, persists
// the new nodes, clears the overlay, and returns the new root.
func (s *State) Commit() (common.Hash, error) {
	root, err := s.computeRoot(true)
	if err != nil {
		return common.Hash{}, err
	}
	s.root = root
	s.dirtyAccounts = make(map[common.Address]*Account)
	s.dirtyStorage = make(map[common.Address]map[common.Hash]common.Hash)
	return root, nil
}

func (s *State) computeRoot(persist bool) (common.Hash, error) {
	if len(s.dirtyAccounts) == 0 {
		return s.root, nil
	}

	tr, err := s.store.accountTrie(s.root)
	if err != nil {
		return common.Hash{}, err
	}

	addrs := make([]common.Address, 0, len(s.dirtyAccounts))
	for addr := range s.dirtyAccounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0 })

	for _, addr := range addrs {
		acc := s.dirtyAccounts[addr]
		if acc == nil {
			if err := tr.DeleteAccount(addr); err != nil {
				return common.Hash{}, fmt.Errorf("state: delete account %s: %w", addr, err)
			}
			continue
		}

		storageRoot := acc.Root
		if storageRoot == (common.Hash{}) {
			storageRoot = EmptyRootHash
		}
		if byAddr := s.dirtyStorage[addr]; len(byAddr) > 0 {
			newRoot, err := s.commitStorage(addr, storageRoot, byAddr, persist)
			if err != nil {
				return common.Hash{}, err
			}
			storageRoot = newRoot
		}

		balance := acc.Balance
		if balance == nil {
			balance = new(big.Int)
		}
		codeHash := acc.CodeHash
		if len(codeHash) == 0 {
			codeHash = EmptyCodeHash.Bytes()
		}
		if err := tr.UpdateAccount(addr, &types.StateAccount{
			Nonce:    acc.Nonce,
			Balance:  new(big.Int).Set(balance),
			Root:     storageRoot,
			CodeHash: codeHash,
		}); err != nil {
			return common.Hash{}, fmt.Errorf("state: update account %s: %w", addr, err)
		}
	}

	root, nodes, err := tr.Commit(false)
	if err != nil {
		return common.Hash{}, fmt.Errorf("state: commit account trie: %w", err)
	}
	if persist {
		if nodes != nil {
			if err := s.store.triedb.Update(root, s.root, 0, trienode.NewWithNodeSet(nodes), nil); err != nil {
				return common.Hash{}, fmt.Errorf("state: persist account trie nodes: %w", err)
			}
		}
		for _, addr := range addrs {
			cacheKey := append(append([]byte{}, s.root.Bytes()...), addr.Bytes()...)
			s.store.accountCache.Del(cacheKey)
		}
	}
	return root, nil
}

func (s *State) commitStorage(addr common.Address, oldRoot common.Hash, changes map[common.Hash]common.Hash, persist bool) (common.Hash, error) {
	tr, err := s.store.storageTrie(addr, oldRoot)
	if err != nil {
		return common.Hash{}, err
	}
	slots := make([]common.Hash, 0, len(changes))
	for slot := range changes {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return bytes.Compare(slots[i].Bytes(), slots[j].Bytes()) < 0 })

	for _, slot := range slots {
		value := changes[slot]
		if value == (common.Hash{}) {
			if err := tr.DeleteStorage(addr, slot.Bytes()); err != nil {
				return common.Hash{}, fmt.Errorf("state: delete storage %s/%s: %w", addr, slot, err)
			}
			continue
		}
		if err := tr.UpdateStorage(addr, slot.Bytes(), bytes.TrimLeft(value.Bytes(), "\x00")); err != nil {
			return common.Hash{}, fmt.Errorf("state: update storage %s/%s: %w", addr, slot, err)
		}
	}
	root, nodes, err := tr.Commit(false)
	if err != nil {
		return common.Hash{}, fmt.Errorf("state: commit storage trie for %s: %w", addr, err)
	}
	if persist && nodes != nil {
		if err := s.store.triedb.Update(root, oldRoot, 0, trienode.NewWithNodeSet(nodes), nil); err != nil {
			return common.Hash{}, fmt.Errorf("state: persist storage trie nodes for %s: %w", addr, err)
		}
	}
	return root, nil
}

// Clone returns an independent State sharing this one's committed nodes
// and code but with its own copy of the pending overlay — cheap after a
// Commit, since the overlay starts empty either way.
func (s *State) Clone() *State {
	accounts := make(map[common.Address]*Account, len(s.dirtyAccounts))
	for k, v := range s.dirtyAccounts {
		if v == nil {
			accounts[k] = nil
			continue
		}
		cp := *v
		if v.Balance != nil {
			cp.Balance = new(big.Int).Set(v.Balance)
		}
		accounts[k] = &cp
	}
	storage := make(map[common.Address]map[common.Hash]common.Hash, len(s.dirtyStorage))
	for addr, slots := range s.dirtyStorage {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		storage[addr] = cp
	}
	return &State{
		store:         s.store,
		root:          s.root,
		dirtyAccounts: accounts,
		dirtyStorage:  storage,
	}
}
