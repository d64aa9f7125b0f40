package blockbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

// journalEntry undoes one mutation made since a snapshot; stateDB keeps a
// flat journal rather than go-ethereum's per-kind journal objects since our
// overlay already makes "undo" cheap — replay the pre-image.
type journalEntry func(*stateDB)

// stateDB adapts state.State to go-ethereum's core/vm.StateDB interface so
// the block builder can drive the real EVM interpreter against our trie
// layer. One instance serves one block: the builder constructs it once and
// reuses it across AddTransaction calls, matching the provider's
// single-threaded ownership model.
type stateDB struct {
	state *state.State

	journal    []journalEntry
	snapshotID int

	refund uint64

	accessListAddresses map[common.Address]struct{}
	accessListSlots     map[common.Address]map[common.Hash]struct{}

	selfDestructed map[common.Address]struct{}
	created        map[common.Address]struct{}

	transient map[common.Address]map[common.Hash]common.Hash

	logs []*chaintypes.Log
}

func newStateDB(s *state.State) *stateDB {
	return &stateDB{
		state:               s,
		accessListAddresses: make(map[common.Address]struct{}),
		accessListSlots:     make(map[common.Address]map[common.Hash]struct{}),
		selfDestructed:      make(map[common.Address]struct{}),
		created:             make(map[common.Address]struct{}),
		transient:           make(map[common.Address]map[common.Hash]common.Hash),
	}
}

func (db *stateDB) account(addr common.Address) state.Account {
	acc, err := db.state.Basic(addr)
	if err != nil {
		return state.EmptyAccount()
	}
	return acc
}

func (db *stateDB) mutate(addr common.Address, fn func(state.Account) state.Account) {
	before := db.account(addr)
	db.journal = append(db.journal, func(d *stateDB) {
		d.state.ModifyAccount(addr, func(state.Account) state.Account { return before })
	})
	db.state.ModifyAccount(addr, fn)
}

func (db *stateDB) CreateAccount(addr common.Address) {
	db.created[addr] = struct{}{}
	db.mutate(addr, func(acc state.Account) state.Account { return acc })
}

func (db *stateDB) CreateContract(addr common.Address) {
	db.created[addr] = struct{}{}
}

func (db *stateDB) SubBalance(addr common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	db.mutate(addr, func(acc state.Account) state.Account {
		acc.Balance = new(big.Int).Sub(acc.Balance, amount.ToBig())
		return acc
	})
}

func (db *stateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	db.mutate(addr, func(acc state.Account) state.Account {
		if acc.Balance == nil {
			acc.Balance = new(big.Int)
		}
		acc.Balance = new(big.Int).Add(acc.Balance, amount.ToBig())
		return acc
	})
}

func (db *stateDB) GetBalance(addr common.Address) *uint256.Int {
	acc := db.account(addr)
	if acc.Balance == nil {
		return new(uint256.Int)
	}
	v, _ := uint256.FromBig(acc.Balance)
	return v
}

func (db *stateDB) GetNonce(addr common.Address) uint64 { return db.account(addr).Nonce }

func (db *stateDB) SetNonce(addr common.Address, nonce uint64) {
	db.mutate(addr, func(acc state.Account) state.Account {
		acc.Nonce = nonce
		return acc
	})
}

func (db *stateDB) GetCodeHash(addr common.Address) common.Hash {
	acc := db.account(addr)
	if acc.IsEmpty() {
		return common.Hash{}
	}
	return common.BytesToHash(acc.CodeHash)
}

func (db *stateDB) GetCode(addr common.Address) []byte {
	return db.state.CodeByHash(common.BytesToHash(db.account(addr).CodeHash))
}

func (db *stateDB) SetCode(addr common.Address, code []byte) {
	hash := db.state.SetCode(code)
	db.mutate(addr, func(acc state.Account) state.Account {
		acc.CodeHash = hash.Bytes()
		return acc
	})
}

func (db *stateDB) GetCodeSize(addr common.Address) int { return len(db.GetCode(addr)) }

func (db *stateDB) AddRefund(gas uint64) {
	before := db.refund
	db.journal = append(db.journal, func(d *stateDB) { d.refund = before })
	db.refund += gas
}

func (db *stateDB) SubRefund(gas uint64) {
	before := db.refund
	db.journal = append(db.journal, func(d *stateDB) { d.refund = before })
	if gas > db.refund {
		panic("blockbuilder: refund counter below zero")
	}
	db.refund -= gas
}

func (db *stateDB) GetRefund() uint64 { return db.refund }

func (db *stateDB) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	v, _ := db.state.Storage(addr, slot)
	return v
}

func (db *stateDB) GetState(addr common.Address, slot common.Hash) common.Hash {
	v, _ := db.state.Storage(addr, slot)
	return v
}

func (db *stateDB) SetState(addr common.Address, slot common.Hash, value common.Hash) {
	before, _ := db.state.Storage(addr, slot)
	db.journal = append(db.journal, func(d *stateDB) {
		d.state.SetAccountStorageSlot(addr, slot, before)
	})
	db.state.SetAccountStorageSlot(addr, slot, value)
}

func (db *stateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	if byAddr, ok := db.transient[addr]; ok {
		return byAddr[key]
	}
	return common.Hash{}
}

func (db *stateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	if db.transient[addr] == nil {
		db.transient[addr] = make(map[common.Hash]common.Hash)
	}
	before := db.transient[addr][key]
	db.journal = append(db.journal, func(d *stateDB) { d.transient[addr][key] = before })
	db.transient[addr][key] = value
}

func (db *stateDB) SelfDestruct(addr common.Address) {
	db.selfDestructed[addr] = struct{}{}
	db.mutate(addr, func(acc state.Account) state.Account {
		acc.Balance = new(big.Int)
		return acc
	})
}

func (db *stateDB) HasSelfDestructed(addr common.Address) bool {
	_, ok := db.selfDestructed[addr]
	return ok
}

// Selfdestruct6780 implements EIP-6780: SELFDESTRUCT only actually deletes
// the account if it was created earlier in the same transaction.
func (db *stateDB) Selfdestruct6780(addr common.Address) {
	db.SelfDestruct(addr)
	if _, created := db.created[addr]; created {
		db.state.DeleteAccount(addr)
	}
}

func (db *stateDB) Exist(addr common.Address) bool {
	acc, err := db.state.Basic(addr)
	if err != nil {
		return false
	}
	return !acc.IsEmpty() || db.hasTouched(addr)
}

func (db *stateDB) hasTouched(addr common.Address) bool {
	_, ok := db.created[addr]
	return ok
}

func (db *stateDB) Empty(addr common.Address) bool {
	return db.account(addr).IsEmpty()
}

func (db *stateDB) AddressInAccessList(addr common.Address) bool {
	_, ok := db.accessListAddresses[addr]
	return ok
}

func (db *stateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	addrOK := db.AddressInAccessList(addr)
	if slots, ok := db.accessListSlots[addr]; ok {
		_, slotOK := slots[slot]
		return addrOK, slotOK
	}
	return addrOK, false
}

func (db *stateDB) AddAddressToAccessList(addr common.Address) {
	db.accessListAddresses[addr] = struct{}{}
}

func (db *stateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	db.accessListAddresses[addr] = struct{}{}
	if db.accessListSlots[addr] == nil {
		db.accessListSlots[addr] = make(map[common.Hash]struct{})
	}
	db.accessListSlots[addr][slot] = struct{}{}
}

func (db *stateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses gethtypes.AccessList) {
	db.accessListAddresses = make(map[common.Address]struct{})
	db.accessListSlots = make(map[common.Address]map[common.Hash]struct{})
	db.created = make(map[common.Address]struct{})
	db.AddAddressToAccessList(sender)
	if dest != nil {
		db.AddAddressToAccessList(*dest)
	}
	for _, addr := range precompiles {
		db.AddAddressToAccessList(addr)
	}
	for _, el := range txAccesses {
		db.AddAddressToAccessList(el.Address)
		for _, key := range el.StorageKeys {
			db.AddSlotToAccessList(el.Address, key)
		}
	}
	if rules.IsBerlin {
		db.AddAddressToAccessList(coinbase)
	}
}

func (db *stateDB) RevertToSnapshot(id int) {
	for len(db.journal) > id {
		last := db.journal[len(db.journal)-1]
		db.journal = db.journal[:len(db.journal)-1]
		last(db)
	}
}

func (db *stateDB) Snapshot() int { return len(db.journal) }

func (db *stateDB) AddLog(log *gethtypes.Log) {
	db.logs = append(db.logs, &chaintypes.Log{
		Address: log.Address,
		Topics:  log.Topics,
		Data:    log.Data,
	})
}

func (db *stateDB) AddPreimage(common.Hash, []byte) {
	// Preimage recording is a debugging aid go-ethereum's full node keeps
	// for state rebuilding tools; this node never needs to reconstruct
	// preimages, so it discards them.
}

func (db *stateDB) ForEachStorage(addr common.Address, fn func(common.Hash, common.Hash) bool) error {
	// Full storage iteration would require walking the storage trie here;
	// no EVM opcode needs it and the provider reads individual slots, so
	// it is intentionally unsupported.
	return nil
}

// logsAndClear returns the logs recorded since the last call and resets the
// buffer, for the builder to attach to the transaction's receipt.
func (db *stateDB) logsAndClear() []*chaintypes.Log {
	logs := db.logs
	db.logs = nil
	return logs
}
