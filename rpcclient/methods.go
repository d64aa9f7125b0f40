package rpcclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethlocal/devnode/rpccache"
)

// blockSpecParam renders a rpccache.BlockSpec the way eth_* methods expect
// their block parameter on the wire.
func blockSpecParam(spec rpccache.BlockSpec) any {
	return spec.String()
}

// AccountInfo is the consolidated result of the three-call batch
// eth_getBalance + eth_getTransactionCount + eth_getCode, mirroring
// revm's AccountInfo shape.
type AccountInfo struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
}

// GetAccountInfo fetches balance, nonce and code for address as of block in
// a single batched round-trip, each leg independently cacheable.
func (c *Client) GetAccountInfo(ctx context.Context, address common.Address, block rpccache.BlockSpec) (*AccountInfo, error) {
	var codeHex hexutil.Bytes
	var balance hexutil.Big
	var nonce hexutil.Uint64

	calls := []batchCall{
		{
			method: "eth_getBalance",
			params: []any{address, blockSpecParam(block)},
			invocation: rpccache.MethodInvocation{
				Variant: rpccache.MethodGetBalance, Address: address, BlockSpec: block,
			},
			result: &balance,
		},
		{
			method: "eth_getTransactionCount",
			params: []any{address, blockSpecParam(block)},
			invocation: rpccache.MethodInvocation{
				Variant: rpccache.MethodGetTransactionCount, Address: address, BlockSpec: block,
			},
			result: &nonce,
		},
		{
			method: "eth_getCode",
			params: []any{address, blockSpecParam(block)},
			invocation: rpccache.MethodInvocation{
				Variant: rpccache.MethodGetCode, Address: address, BlockSpec: block,
			},
			result: &codeHex,
		},
	}
	if err := c.batchCached(ctx, calls); err != nil {
		return nil, fmt.Errorf("rpcclient: get account info for %s: %w", address, err)
	}
	return &AccountInfo{
		Balance: (*big.Int)(&balance),
		Nonce:   uint64(nonce),
		Code:    []byte(codeHex),
	}, nil
}

// GetBalance calls eth_getBalance.
func (c *Client) GetBalance(ctx context.Context, address common.Address, block rpccache.BlockSpec) (*big.Int, error) {
	var out hexutil.Big
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetBalance, Address: address, BlockSpec: block}
	if err := c.callCached(ctx, "eth_getBalance", []any{address, blockSpecParam(block)}, inv, &out); err != nil {
		return nil, err
	}
	return (*big.Int)(&out), nil
}

// GetTransactionCount calls eth_getTransactionCount.
func (c *Client) GetTransactionCount(ctx context.Context, address common.Address, block rpccache.BlockSpec) (uint64, error) {
	var out hexutil.Uint64
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetTransactionCount, Address: address, BlockSpec: block}
	if err := c.callCached(ctx, "eth_getTransactionCount", []any{address, blockSpecParam(block)}, inv, &out); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// GetCode calls eth_getCode.
func (c *Client) GetCode(ctx context.Context, address common.Address, block rpccache.BlockSpec) ([]byte, error) {
	var out hexutil.Bytes
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetCode, Address: address, BlockSpec: block}
	if err := c.callCached(ctx, "eth_getCode", []any{address, blockSpecParam(block)}, inv, &out); err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// GetStorageAt calls eth_getStorageAt.
func (c *Client) GetStorageAt(ctx context.Context, address common.Address, slot uint64, block rpccache.BlockSpec) (common.Hash, error) {
	var out common.Hash
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetStorageAt, Address: address, StorageSlot: slot, BlockSpec: block}
	key := (*hexutil.Big)(new(big.Int).SetUint64(slot))
	if err := c.callCached(ctx, "eth_getStorageAt", []any{address, key, blockSpecParam(block)}, inv, &out); err != nil {
		return common.Hash{}, err
	}
	return out, nil
}

// RawBlock is the untyped eth_getBlock* response body, decoded just enough
// to recover its number and hash. The blockchain package turns it into a
// number-only stub block; nothing decodes the rest of the block body.
type RawBlock struct {
	NumberHex hexutil.Uint64 `json:"number"`
	HashField common.Hash    `json:"hash"`
}

// BlockNumber implements blockNumberCarrier so a getBlockByNumber("earliest",
// ...) response can resolve its own write-cache key.
func (b *RawBlock) BlockNumber() (uint64, bool) {
	if b == nil {
		return 0, false
	}
	return uint64(b.NumberHex), true
}

// GetBlockByNumber calls eth_getBlockByNumber.
func (c *Client) GetBlockByNumber(ctx context.Context, block rpccache.BlockSpec, includeTxData bool) (*RawBlock, error) {
	var out RawBlock
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetBlockByNumber, BlockSpec: block, IncludeTxData: includeTxData}
	if err := c.callCached(ctx, "eth_getBlockByNumber", []any{blockSpecParam(block), includeTxData}, inv, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlockByHash calls eth_getBlockByHash.
func (c *Client) GetBlockByHash(ctx context.Context, hash common.Hash, includeTxData bool) (*RawBlock, error) {
	var out RawBlock
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetBlockByHash, BlockHash: hash, IncludeTxData: includeTxData}
	if err := c.callCached(ctx, "eth_getBlockByHash", []any{hash, includeTxData}, inv, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionByHash calls eth_getTransactionByHash.
func (c *Client) GetTransactionByHash(ctx context.Context, hash common.Hash) (map[string]any, error) {
	var out map[string]any
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetTransactionByHash, TransactionHash: hash}
	if err := c.callCached(ctx, "eth_getTransactionByHash", []any{hash}, inv, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransactionReceipt calls eth_getTransactionReceipt.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (map[string]any, error) {
	var out map[string]any
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetTransactionReceipt, TransactionHash: hash}
	if err := c.callCached(ctx, "eth_getTransactionReceipt", []any{hash}, inv, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLogs calls eth_getLogs.
func (c *Client) GetLogs(ctx context.Context, filter rpccache.LogFilterOptions, rawParams map[string]any) ([]map[string]any, error) {
	var out []map[string]any
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodGetLogs, LogFilter: filter}
	if err := c.callCached(ctx, "eth_getLogs", []any{rawParams}, inv, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FeeHistory calls eth_feeHistory.
func (c *Client) FeeHistory(ctx context.Context, blockCount uint64, newestBlock rpccache.BlockSpec, rewardPercentiles []float64) (map[string]any, error) {
	var out map[string]any
	inv := rpccache.MethodInvocation{
		Variant:              rpccache.MethodFeeHistory,
		FeeHistoryBlockCount: blockCount,
		BlockSpec:            newestBlock,
		RewardPercentiles:    rewardPercentiles,
		HasRewardPercentile:  rewardPercentiles != nil,
	}
	params := []any{hexutil.Uint64(blockCount), blockSpecParam(newestBlock)}
	if rewardPercentiles != nil {
		params = append(params, rewardPercentiles)
	}
	if err := c.callCached(ctx, "eth_feeHistory", params, inv, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NetVersion calls net_version.
func (c *Client) NetVersion(ctx context.Context) (string, error) {
	var out string
	inv := rpccache.MethodInvocation{Variant: rpccache.MethodNetVersion}
	if err := c.callCached(ctx, "net_version", []any{}, inv, &out); err != nil {
		return "", err
	}
	return out, nil
}
