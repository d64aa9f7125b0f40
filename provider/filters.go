package provider

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethlocal/devnode/chaintypes"
)

// LogFilterCriteria mirrors eth_getLogs/eth_newFilter's params object.
type LogFilterCriteria struct {
	FromBlock BlockSpec
	ToBlock   BlockSpec
	Addresses []common.Address
	Topics    [][]common.Hash // topics[i] is an OR-set matched against log position i; empty/nil matches any
}

// logFilter is a registered eth_newFilter subscription: criteria plus a
// high-water mark of the last block number served to eth_getFilterChanges.
type logFilter struct {
	criteria LogFilterCriteria
	lastSeen uint64 // exclusive: logs from lastSeen+1 onward are unseen
}

// pendingTxFilter is a registered eth_newPendingTransactionFilter
// subscription: hashes are appended as transactions are admitted, and
// drained wholesale on the next eth_getFilterChanges.
type pendingTxFilter struct {
	buffer []common.Hash
}

// EthNewFilter registers a log filter and returns its id.
func (p *Provider) EthNewFilter(criteria LogFilterCriteria) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextFilterID
	p.nextFilterID++
	last, _ := p.resolveBlockNumber(criteria.FromBlock)
	if last > 0 {
		last--
	}
	p.logFilters[id] = &logFilter{criteria: criteria, lastSeen: last}
	return id
}

// EthNewPendingTransactionFilter registers a pending-transaction filter and
// returns its id.
func (p *Provider) EthNewPendingTransactionFilter() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextFilterID
	p.nextFilterID++
	p.pendingTxFilters[id] = &pendingTxFilter{}
	return id
}

// EthUninstallFilter discards a registered filter of either kind, reporting
// whether one existed.
func (p *Provider) EthUninstallFilter(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.logFilters[id]; ok {
		delete(p.logFilters, id)
		return true
	}
	if _, ok := p.pendingTxFilters[id]; ok {
		delete(p.pendingTxFilters, id)
		return true
	}
	return false
}

// EthGetFilterChanges drains whatever is new since the last call: for a
// pending-tx filter, its buffered hashes (then clears the buffer); for a
// log filter, logs accumulated in blocks mined since its high-water mark
// (then advances it to the chain's current tip).
func (p *Provider) EthGetFilterChanges(ctx context.Context, id uint64) (txHashes []common.Hash, logs []*chaintypes.Log, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.pendingTxFilters[id]; ok {
		txHashes = f.buffer
		f.buffer = nil
		return txHashes, nil, nil
	}
	f, ok := p.logFilters[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownFilter, id)
	}
	tip := p.chain.LatestBlockNumber()
	logs, err = p.collectLogs(ctx, f.criteria, f.lastSeen+1, tip)
	if err != nil {
		return nil, nil, err
	}
	f.lastSeen = tip
	return nil, logs, nil
}

// EthGetFilterLogs returns every log matching a registered log filter's
// criteria across its entire block range, ignoring the high-water mark.
func (p *Provider) EthGetFilterLogs(ctx context.Context, id uint64) ([]*chaintypes.Log, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.logFilters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFilter, id)
	}
	from, err := p.resolveBlockNumber(f.criteria.FromBlock)
	if err != nil {
		return nil, err
	}
	to, err := p.resolveBlockNumber(f.criteria.ToBlock)
	if err != nil {
		return nil, err
	}
	return p.collectLogs(ctx, f.criteria, from, to)
}

// EthGetLogs runs a one-shot, unregistered query over criteria's block
// range, for eth_getLogs.
func (p *Provider) EthGetLogs(ctx context.Context, criteria LogFilterCriteria) ([]*chaintypes.Log, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	from, err := p.resolveBlockNumber(criteria.FromBlock)
	if err != nil {
		return nil, err
	}
	to, err := p.resolveBlockNumber(criteria.ToBlock)
	if err != nil {
		return nil, err
	}
	return p.collectLogs(ctx, criteria, from, to)
}

// collectLogs scans every receipt in [from, to] and keeps the logs that
// pass criteria's address/topic match.
func (p *Provider) collectLogs(ctx context.Context, criteria LogFilterCriteria, from, to uint64) ([]*chaintypes.Log, error) {
	var out []*chaintypes.Log
	if to > p.chain.LatestBlockNumber() {
		to = p.chain.LatestBlockNumber()
	}
	for n := from; n <= to && n <= p.chain.LatestBlockNumber(); n++ {
		block, err := p.chain.BlockByNumber(ctx, n)
		if err != nil {
			continue
		}
		receipts, err := p.chain.ReceiptsByBlockHash(ctx, block.Hash())
		if err != nil {
			return nil, err
		}
		for _, r := range receipts {
			for _, l := range r.Logs {
				if matchesLogFilter(criteria, l) {
					out = append(out, l)
				}
			}
		}
	}
	return out, nil
}

func matchesLogFilter(criteria LogFilterCriteria, l *chaintypes.Log) bool {
	if len(criteria.Addresses) > 0 {
		found := false
		for _, a := range criteria.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, wanted := range criteria.Topics {
		if len(wanted) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		match := false
		for _, w := range wanted {
			if w == l.Topics[i] {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}
