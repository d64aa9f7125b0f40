// Package txpool implements the account-ordered mempool: a pending queue
// of contiguous-nonce transactions per
// sender and a future queue for anything with a nonce gap, admitted
// against a live state view and re-validated after every out-of-band
// mutation.
package txpool

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/chaintypes"
	"github.com/ethlocal/devnode/state"
)

// Error taxonomy surfaced verbatim to RPC callers.
var (
	ErrExceedsBlockGasLimit             = errors.New("tx gas limit exceeds block gas limit")
	ErrNonceTooLow                      = errors.New("nonce too low")
	ErrTransactionAlreadyExists         = errors.New("known transaction")
	ErrInsufficientFunds                = errors.New("insufficient funds for gas * price + value")
	ErrReplacementMaxFeePerGasTooLow    = errors.New("replacement transaction underpriced: max fee per gas too low")
	ErrReplacementMaxPriorityFeeTooLow  = errors.New("replacement transaction underpriced: max priority fee per gas too low")
)

// replacementBumpNumerator/Denominator implement the "at least 10%,
// rounded up" replacement rule: minIncrease = ceil(incumbent * 10 / 100).
const (
	replacementBumpNumerator   = 10
	replacementBumpDenominator = 100
)

// StateReader is the account view the pool validates against.
type StateReader interface {
	Basic(common.Address) (state.Account, error)
}

// entry is one pooled transaction plus its admission-order tiebreaker.
type entry struct {
	tx      *chaintypes.Transaction
	sender  common.Address
	orderID uint64
}

// senderQueue is one account's view into the pool: a contiguous run of
// pending nonces and a sparse set of future (gapped) ones.
type senderQueue struct {
	pending map[uint64]*entry
	future  map[uint64]*entry
}

func newSenderQueue() *senderQueue {
	return &senderQueue{pending: make(map[uint64]*entry), future: make(map[uint64]*entry)}
}

// Pool is the account-ordered mempool. It never recovers a sender address
// itself — callers (the provider) resolve it once, either via signature
// recovery or from an impersonated-account's declared from address, and
// pass it in alongside the transaction.
type Pool struct {
	mu sync.RWMutex

	blockGasLimit uint64

	bySender     map[common.Address]*senderQueue
	byHash       map[common.Hash]struct{}
	senderByHash map[common.Hash]common.Address
	nextOrder    uint64
}

// New creates an empty pool that validates transaction nonces/costs
// against state and caps tx.gas_limit at blockGasLimit.
func New(blockGasLimit uint64) *Pool {
	return &Pool{
		blockGasLimit: blockGasLimit,
		bySender:      make(map[common.Address]*senderQueue),
		byHash:        make(map[common.Hash]struct{}),
		senderByHash:  make(map[common.Hash]common.Address),
	}
}

// SetBlockGasLimit updates the cap enforced on admission and on Update's
// gas-limit-exceeded eviction — called when a block's gas limit changes.
func (p *Pool) SetBlockGasLimit(limit uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockGasLimit = limit
}

func (p *Pool) queueFor(sender common.Address) *senderQueue {
	q, ok := p.bySender[sender]
	if !ok {
		q = newSenderQueue()
		p.bySender[sender] = q
	}
	return q
}

// AddTransaction runs the five-step admission pipeline and, on success,
// places tx in pending or future and promotes any future entries that now
// connect to the pending tail. sender must already be resolved by the
// caller (recovered from the signature, or the impersonated account's
// declared address for a fake-signed transaction).
func (p *Pool) AddTransaction(state StateReader, tx *chaintypes.Transaction, sender common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tx.Gas() > p.blockGasLimit {
		return fmt.Errorf("%w: tx gas limit %d, block gas limit %d", ErrExceedsBlockGasLimit, tx.Gas(), p.blockGasLimit)
	}

	account, err := state.Basic(sender)
	if err != nil {
		return fmt.Errorf("txpool: load sender account: %w", err)
	}
	if tx.Nonce() < account.Nonce {
		return fmt.Errorf("%w: tx nonce %d, account nonce %d", ErrNonceTooLow, tx.Nonce(), account.Nonce)
	}

	if _, exists := p.byHash[tx.Hash()]; exists {
		return fmt.Errorf("%w: %s", ErrTransactionAlreadyExists, tx.Hash())
	}

	upfrontCost := maxUpfrontCost(tx)
	if upfrontCost.Cmp(account.Balance) > 0 {
		return fmt.Errorf("%w: upfront cost %s, balance %s", ErrInsufficientFunds, upfrontCost, account.Balance)
	}

	q := p.queueFor(sender)
	if err := checkReplacement(q, tx); err != nil {
		return err
	}

	e := &entry{tx: tx, sender: sender, orderID: p.nextOrder}
	p.nextOrder++
	p.byHash[tx.Hash()] = struct{}{}
	p.senderByHash[tx.Hash()] = sender

	nextExpected := nextExpectedPendingNonce(q, account.Nonce)
	if tx.Nonce() == nextExpected {
		q.pending[tx.Nonce()] = e
	} else {
		q.future[tx.Nonce()] = e
	}
	promote(q)
	return nil
}

// maxUpfrontCost is gas_limit * effective_gas_price + value, plus blob-gas
// cost for EIP-4844 transactions.
func maxUpfrontCost(tx *chaintypes.Transaction) *big.Int {
	price := tx.GasFeeCap()
	if tx.Type() == chaintypes.LegacyTxType || tx.Type() == chaintypes.AccessListTxType {
		price = tx.GasPrice()
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), price)
	cost.Add(cost, tx.Value())
	if tx.Type() == chaintypes.BlobTxType {
		blobCost := new(big.Int).Mul(
			new(big.Int).SetUint64(uint64(len(tx.BlobHashes()))*chaintypes.BlobTxGasPerBlob),
			tx.BlobGasFeeCap(),
		)
		cost.Add(cost, blobCost)
	}
	return cost
}

// checkReplacement enforces the 10%-bump rule when tx.nonce already has an
// incumbent entry in either queue.
func checkReplacement(q *senderQueue, tx *chaintypes.Transaction) error {
	incumbent := q.pending[tx.Nonce()]
	if incumbent == nil {
		incumbent = q.future[tx.Nonce()]
	}
	if incumbent == nil {
		return nil
	}

	oldFeeCap, oldTip := feeFields(incumbent.tx)
	newFeeCap, newTip := feeFields(tx)

	minFeeCap := bumpedBy10Percent(oldFeeCap)
	minTip := bumpedBy10Percent(oldTip)

	feeCapOK := newFeeCap.Cmp(minFeeCap) >= 0
	tipOK := newTip.Cmp(minTip) >= 0

	if feeCapOK && tipOK {
		return nil
	}
	if feeCapOK && !tipOK {
		return fmt.Errorf("%w: have %s want %s, nonce %d", ErrReplacementMaxPriorityFeeTooLow, newTip, minTip, tx.Nonce())
	}
	return fmt.Errorf("%w: have %s want %s, nonce %d", ErrReplacementMaxFeePerGasTooLow, newFeeCap, minFeeCap, tx.Nonce())
}

func feeFields(tx *chaintypes.Transaction) (feeCap, tip *big.Int) {
	switch tx.Type() {
	case chaintypes.LegacyTxType, chaintypes.AccessListTxType:
		return tx.GasPrice(), tx.GasPrice()
	default:
		return tx.GasFeeCap(), tx.GasTipCap()
	}
}

func bumpedBy10Percent(v *big.Int) *big.Int {
	increase := new(big.Int).Mul(v, big.NewInt(replacementBumpNumerator))
	// ceil division by 100
	increase.Add(increase, big.NewInt(replacementBumpDenominator-1))
	increase.Div(increase, big.NewInt(replacementBumpDenominator))
	return new(big.Int).Add(v, increase)
}

// nextExpectedPendingNonce is the nonce that would extend the pending run;
// if pending is empty it's the sender's current account nonce.
func nextExpectedPendingNonce(q *senderQueue, accountNonce uint64) uint64 {
	if len(q.pending) == 0 {
		return accountNonce
	}
	max := accountNonce
	n := accountNonce
	for {
		e, ok := q.pending[n]
		if !ok {
			break
		}
		_ = e
		max = n + 1
		n++
	}
	return max
}

// promote moves future entries into pending while their nonce equals the
// growing pending tail + 1, never skipping a gap.
func promote(q *senderQueue) {
	if len(q.pending) == 0 {
		return
	}
	tail := minPendingNonce(q)
	for {
		next := tail
		for {
			if _, ok := q.pending[next]; !ok {
				break
			}
			next++
		}
		e, ok := q.future[next]
		if !ok {
			return
		}
		delete(q.future, next)
		q.pending[next] = e
	}
}

func minPendingNonce(q *senderQueue) uint64 {
	min := ^uint64(0)
	for n := range q.pending {
		if n < min {
			min = n
		}
	}
	return min
}

// LastPendingNonce returns the highest contiguous pending nonce for
// sender, or false if sender has no pending entries.
func (p *Pool) LastPendingNonce(sender common.Address) (uint64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.bySender[sender]
	if !ok || len(q.pending) == 0 {
		return 0, false
	}
	min := minPendingNonce(q)
	max := min
	for {
		if _, ok := q.pending[max+1]; !ok {
			break
		}
		max++
	}
	return max, true
}

// Update rereuns validity for every pooled transaction against state —
// called after any out-of-band state mutation.
func (p *Pool) Update(state StateReader) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for sender, q := range p.bySender {
		account, err := state.Basic(sender)
		if err != nil {
			return fmt.Errorf("txpool: update: load account %s: %w", sender, err)
		}
		p.pruneInvalid(q, account)
	}
	return nil
}

func (p *Pool) pruneInvalid(q *senderQueue, account state.Account) {
	for nonce, e := range q.pending {
		if p.invalid(e, account) {
			delete(q.pending, nonce)
			delete(p.byHash, e.tx.Hash())
		}
	}
	for nonce, e := range q.future {
		if p.invalid(e, account) {
			delete(q.future, nonce)
			delete(p.byHash, e.tx.Hash())
		}
	}

	// Split the remaining pending queue at the first now-invalid nonce.
	if len(q.pending) > 0 {
		cutoff := account.Nonce
		for {
			e, ok := q.pending[cutoff]
			if !ok {
				break
			}
			cutoff++
			_ = e
		}
		for nonce, e := range q.pending {
			if nonce >= cutoff {
				delete(q.pending, nonce)
				q.future[nonce] = e
			}
		}
	}
	promote(q)
}

func (p *Pool) invalid(e *entry, account state.Account) bool {
	if e.tx.Nonce() < account.Nonce {
		return true
	}
	if e.tx.Gas() > p.blockGasLimit {
		return true
	}
	if maxUpfrontCost(e.tx).Cmp(account.Balance) > 0 {
		return true
	}
	return false
}

// SenderOf returns the sender recorded for a pooled transaction hash, as
// passed to AddTransaction at admission time.
func (p *Pool) SenderOf(hash common.Hash) (common.Address, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sender, ok := p.senderByHash[hash]
	return sender, ok
}

// Transaction returns the pooled transaction with the given hash, pending
// or future, for eth_getTransactionByHash's pool lookup.
func (p *Pool) Transaction(hash common.Hash) (*chaintypes.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sender, ok := p.senderByHash[hash]
	if !ok {
		return nil, false
	}
	q := p.bySender[sender]
	for _, e := range q.pending {
		if e.tx.Hash() == hash {
			return e.tx, true
		}
	}
	for _, e := range q.future {
		if e.tx.Hash() == hash {
			return e.tx, true
		}
	}
	return nil, false
}

// PendingBySender returns, for every sender with pending transactions, its
// contiguous pending run ordered by nonce — the shape the block builder
// consumes.
func (p *Pool) PendingBySender() map[common.Address][]*chaintypes.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make(map[common.Address][]*chaintypes.Transaction, len(p.bySender))
	for sender, q := range p.bySender {
		if len(q.pending) == 0 {
			continue
		}
		nonces := make([]uint64, 0, len(q.pending))
		for n := range q.pending {
			nonces = append(nonces, n)
		}
		sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
		txs := make([]*chaintypes.Transaction, len(nonces))
		for i, n := range nonces {
			txs[i] = q.pending[n].tx
		}
		result[sender] = txs
	}
	return result
}

// OrderedPending returns every pending transaction across all senders,
// ordered by ascending nonce within sender and, across senders, by the
// admission order_id of each sender's next transaction — the default mining
// order.
func (p *Pool) OrderedPending() []*chaintypes.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Each sender's pending nonces must come out in strictly ascending
	// order regardless of admission order — a nonce gap promoted later
	// (e.g. A@1 admitted as future, then A@0 admitted and promoting it)
	// can carry a higher order_id than the nonce before it. So sort each
	// sender's own nonces first, then merge the senders' heads by
	// order_id/FIFO, only ever advancing a sender's own cursor in nonce
	// order.
	type cursor struct {
		sender common.Address
		nonces []uint64
		idx    int
	}
	cursors := make([]*cursor, 0, len(p.bySender))
	total := 0
	for sender, q := range p.bySender {
		if len(q.pending) == 0 {
			continue
		}
		nonces := make([]uint64, 0, len(q.pending))
		for nonce := range q.pending {
			nonces = append(nonces, nonce)
		}
		sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
		cursors = append(cursors, &cursor{sender: sender, nonces: nonces})
		total += len(nonces)
	}

	out := make([]*chaintypes.Transaction, 0, total)
	for len(out) < total {
		var best *cursor
		var bestEntry *entry
		for _, c := range cursors {
			if c.idx >= len(c.nonces) {
				continue
			}
			e := p.bySender[c.sender].pending[c.nonces[c.idx]]
			if bestEntry == nil || e.orderID < bestEntry.orderID {
				best, bestEntry = c, e
			}
		}
		out = append(out, bestEntry.tx)
		best.idx++
	}
	return out
}

// Remove discards tx after it has been mined.
func (p *Pool) Remove(tx *chaintypes.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sender, ok := p.senderByHash[tx.Hash()]
	delete(p.byHash, tx.Hash())
	delete(p.senderByHash, tx.Hash())
	if !ok {
		return
	}
	q, ok := p.bySender[sender]
	if !ok {
		return
	}
	delete(q.pending, tx.Nonce())
	delete(q.future, tx.Nonce())
}

// Clone returns an independent copy of the pool's contents, sharing only
// the gas limit configuration — used by the provider to capture a
// snapshot.
func (p *Pool) Clone() *Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clone := New(p.blockGasLimit)
	clone.nextOrder = p.nextOrder
	for sender, q := range p.bySender {
		cq := newSenderQueue()
		for n, e := range q.pending {
			cq.pending[n] = &entry{tx: e.tx, sender: e.sender, orderID: e.orderID}
		}
		for n, e := range q.future {
			cq.future[n] = &entry{tx: e.tx, sender: e.sender, orderID: e.orderID}
		}
		clone.bySender[sender] = cq
	}
	for h := range p.byHash {
		clone.byHash[h] = struct{}{}
	}
	for h, s := range p.senderByHash {
		clone.senderByHash[h] = s
	}
	return clone
}
