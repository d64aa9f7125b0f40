package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethlocal/devnode/rpccache"
)

// batchCall is one leg of a consolidated JSON-RPC batch request.
type batchCall struct {
	method     string
	params     any
	invocation rpccache.MethodInvocation
	result     any
}

// batchCached resolves each call independently against the cache, sends a
// single batched request for whatever legs miss, and stages writes for the
// misses exactly as callCached does for a lone call.
func (c *Client) batchCached(ctx context.Context, calls []batchCall) error {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return err
	}

	misses := make([]int, 0, len(calls))
	keys := make([]rpccache.ReadKey, len(calls))
	for i, call := range calls {
		key, ok := call.invocation.ReadCacheKey()
		if !ok {
			misses = append(misses, i)
			continue
		}
		keys[i] = key
		cached, hit, err := c.readFromCache(chainID, key)
		if err != nil {
			return err
		}
		if !hit {
			misses = append(misses, i)
			continue
		}
		if err := json.Unmarshal(cached, call.result); err != nil {
			return fmt.Errorf("rpcclient: decode cached result for %s: %w", call.method, err)
		}
	}
	if len(misses) == 0 {
		return nil
	}

	reqs := make([]request, len(misses))
	for j, i := range misses {
		reqs[j] = c.newRequest(calls[i].method, calls[i].params)
	}
	body, err := c.doWithRetry(ctx, reqs)
	if err != nil {
		return err
	}
	var resps []response
	if err := json.Unmarshal(body, &resps); err != nil {
		return fmt.Errorf("rpcclient: decode batch response: %w", err)
	}
	byID := make(map[uint64]response, len(resps))
	for _, r := range resps {
		byID[r.ID] = r
	}

	for j, i := range misses {
		r, ok := byID[reqs[j].ID]
		if !ok {
			return fmt.Errorf("rpcclient: missing response for method %q in batch", calls[i].method)
		}
		if r.Error != nil {
			return r.Error
		}
		if err := json.Unmarshal(r.Result, calls[i].result); err != nil {
			return fmt.Errorf("rpcclient: decode batch result for %s: %w", calls[i].method, err)
		}
		c.stageCacheWrite(ctx, chainID, calls[i].invocation, r.Result, nil)
	}
	return nil
}
