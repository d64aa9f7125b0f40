package state

import (
	"fmt"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
)

const (
	accountCacheBytes = 16 * 1024 * 1024
	codeCacheBytes    = 16 * 1024 * 1024
)

// Store owns the underlying trie database and the code-by-hash table
// shared by every State snapshot cloned from it. It is the thing that
// actually persists nodes; individual States are just (root, Store) pairs
// plus their dirty overlays.
type Store struct {
	triedb *trie.Database

	mu   sync.RWMutex
	code map[common.Hash][]byte

	accountCache *fastcache.Cache
	codeCache    *fastcache.Cache
}

// NewStore creates an empty, purely in-memory trie store. The forking
// layer seeds it with remote-fetched accounts before the first block is
// built on top.
func NewStore() *Store {
	db := rawdb.NewMemoryDatabase()
	return &Store{
		triedb:       trie.NewDatabase(db, nil),
		code:         make(map[common.Hash][]byte),
		accountCache: fastcache.New(accountCacheBytes),
		codeCache:    fastcache.New(codeCacheBytes),
	}
}

// PutCode records the preimage of a code hash. Called once per
// never-before-seen contract, whether deployed locally or pulled from the
// fork source.
func (s *Store) PutCode(code []byte) common.Hash {
	if len(code) == 0 {
		return EmptyCodeHash
	}
	hash := crypto.Keccak256Hash(code)
	s.mu.Lock()
	s.code[hash] = append([]byte(nil), code...)
	s.mu.Unlock()
	s.codeCache.Set(hash.Bytes(), code)
	return hash
}

// CodeByHash returns the code for hash, or nil if unknown to this store.
func (s *Store) CodeByHash(hash common.Hash) []byte {
	if hash == EmptyCodeHash || hash == (common.Hash{}) {
		return nil
	}
	if cached, ok := s.codeCache.HasGet(nil, hash.Bytes()); ok {
		return cached
	}
	s.mu.RLock()
	code := s.code[hash]
	s.mu.RUnlock()
	if code != nil {
		s.codeCache.Set(hash.Bytes(), code)
	}
	return code
}

// accountTrie opens the account trie rooted at root.
func (s *Store) accountTrie(root common.Hash) (*trie.StateTrie, error) {
	if root == (common.Hash{}) {
		root = EmptyRootHash
	}
	tr, err := trie.NewStateTrie(trie.StateTrieID(root), s.triedb)
	if err != nil {
		return nil, fmt.Errorf("state: open account trie at %s: %w", root, err)
	}
	return tr, nil
}

// storageTrie opens addr's storage trie rooted at root.
func (s *Store) storageTrie(addr common.Address, root common.Hash) (*trie.StateTrie, error) {
	if root == (common.Hash{}) {
		root = EmptyRootHash
	}
	id := trie.StorageTrieID(root, crypto.Keccak256Hash(addr.Bytes()), root)
	tr, err := trie.NewStateTrie(id, s.triedb)
	if err != nil {
		return nil, fmt.Errorf("state: open storage trie for %s at %s: %w", addr, root, err)
	}
	return tr, nil
}
