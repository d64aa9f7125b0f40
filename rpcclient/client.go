// Package rpcclient is a JSON-RPC client for a remote archive node used to
// service forked reads. Responses to
// reorg-safe queries are cached on disk, content-addressed by rpccache
// keys, so that re-running against the same fork doesn't re-fetch data
// that can never change.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethlocal/devnode/rpccache"

	gethlog "github.com/ethereum/go-ethereum/log"
)

const (
	rpcCacheDirName = "rpc_cache"
	tmpDirName      = "tmp"

	minRetryInterval   = 1 * time.Second
	maxRetryInterval   = 16 * time.Second
	totalRetryDuration = 60 * time.Second

	blockNumberCacheSize = 1
)

// Client talks JSON-RPC to a single remote endpoint, caching cacheable
// reads under cacheDir/<sha3_256(chainID)>/<key>.json, where cacheDir is
// cacheRoot/rpc_cache.
type Client struct {
	url        string
	httpClient *http.Client

	cacheDir string
	tmpDir   string

	chainID atomic.Uint64 // 0 means "not yet fetched"
	nextID  atomic.Uint64

	// blockNumberCache remembers the last-observed chain head for a short
	// window so that repeated "latest"-relative calls in the same tick
	// don't each round-trip to the remote node.
	blockNumberCache *lru.Cache[string, cachedBlockNumber]
}

type cachedBlockNumber struct {
	number     uint64
	observedAt time.Time
}

// blockNumberFreshness bounds how long a cached chain head may be reused
// before a fresh eth_blockNumber call is forced.
const blockNumberFreshness = 1 * time.Second

// New creates a client for url, storing its on-disk cache under
// cacheRoot/rpc_cache. cacheRoot is the caller's (shared, user-configured)
// cache directory — many Clients for different remote endpoints may share
// one, since cache entries are additionally namespaced by chain id.
func New(url string, cacheRoot string) *Client {
	cacheDir := filepath.Join(cacheRoot, rpcCacheDirName)
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cacheDir:   cacheDir,
		// The tmp dir must live on the same filesystem as cacheDir so the
		// rename used to finish a cache write is atomic.
		tmpDir: filepath.Join(cacheDir, tmpDirName),
	}
	c.blockNumberCache, _ = lru.New[string, cachedBlockNumber](blockNumberCacheSize)
	return c
}

// request is a single JSON-RPC 2.0 request object.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

// response is a single JSON-RPC 2.0 response object.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func (c *Client) newRequest(method string, params any) request {
	return request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
}

// call performs a single request with retry, without consulting the cache.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	req := c.newRequest(method, params)
	body, err := c.doWithRetry(ctx, []request{req})
	if err != nil {
		return err
	}
	var resps []response
	if err := json.Unmarshal(body, &resps); err != nil {
		// Some servers reply with a bare object for a single-element batch.
		var single response
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return fmt.Errorf("rpcclient: decode response: %w", err)
		}
		resps = []response{single}
	}
	for _, r := range resps {
		if r.ID != req.ID {
			continue
		}
		if r.Error != nil {
			return r.Error
		}
		if result == nil || len(r.Result) == 0 {
			return nil
		}
		return json.Unmarshal(r.Result, result)
	}
	return fmt.Errorf("rpcclient: missing response for method %q id %d", method, req.ID)
}

func (c *Client) doWithRetry(ctx context.Context, reqs []request) ([]byte, error) {
	payload, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("rpcclient: encode request: %w", err)
	}

	var body []byte
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isTransientNetworkError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err // a truncated body is worth retrying
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("rpcclient: remote returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("rpcclient: remote returned status %d", resp.StatusCode))
		}

		body = data
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = minRetryInterval
	policy.MaxInterval = maxRetryInterval
	policy.MaxElapsedTime = totalRetryDuration
	policy.Multiplier = 2

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("rpcclient: request to %s failed: %w", c.url, err)
	}
	return body, nil
}

// ChainID returns (and memoizes) the remote node's chain id. Every cache
// path is namespaced by this value, so it is always resolved before any
// cached call.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	if id := c.chainID.Load(); id != 0 {
		return id, nil
	}
	var hexID string
	if err := c.call(ctx, "eth_chainId", []any{}, &hexID); err != nil {
		return 0, fmt.Errorf("rpcclient: fetch chain id: %w", err)
	}
	id, err := parseHexUint64(hexID)
	if err != nil {
		return 0, fmt.Errorf("rpcclient: parse chain id %q: %w", hexID, err)
	}
	c.chainID.Store(id)
	return id, nil
}

// BlockNumber returns the remote node's current block height, using a
// short-lived memoized value to avoid hammering the endpoint when many
// "latest"-relative reads land in the same tick.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	const key = "head"
	if cached, ok := c.blockNumberCache.Get(key); ok && time.Since(cached.observedAt) < blockNumberFreshness {
		return cached.number, nil
	}
	var hexNum string
	if err := c.call(ctx, "eth_blockNumber", []any{}, &hexNum); err != nil {
		return 0, fmt.Errorf("rpcclient: fetch block number: %w", err)
	}
	n, err := parseHexUint64(hexNum)
	if err != nil {
		return 0, fmt.Errorf("rpcclient: parse block number %q: %w", hexNum, err)
	}
	c.blockNumberCache.Add(key, cachedBlockNumber{number: n, observedAt: time.Now()})
	return n, nil
}

// IsSafe reports whether blockNumber is far enough behind the current head
// to be cached unconditionally without a reorg-safety check on read.
func (c *Client) IsSafe(ctx context.Context, chainID uint64, blockNumber uint64) (bool, error) {
	head, err := c.BlockNumber(ctx)
	if err != nil {
		return false, err
	}
	depth := rpccache.SafeBlockDepth(chainID)
	if head < blockNumber {
		return false, nil
	}
	return head-blockNumber >= depth, nil
}

func parseHexUint64(s string) (uint64, error) {
	var n uint64
	_, err := fmt.Sscanf(s, "0x%x", &n)
	return n, err
}

var logger = gethlog.New("module", "rpcclient")
