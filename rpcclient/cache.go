package rpcclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/ethlocal/devnode/rpccache"
)

// cacheDirForChain returns (creating if needed) the per-chain cache
// directory, named by the hex sha3-256 digest of the chain id's
// little-endian byte encoding — matching the key-hashing discipline used
// for the cache keys themselves, so the layout stays uniform.
func (c *Client) cacheDirForChain(chainID uint64) (string, error) {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(chainID >> (8 * i))
	}
	sum := sha3.Sum256(buf[:])
	dir := filepath.Join(c.cacheDir, hex.EncodeToString(sum[:]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("rpcclient: create cache directory: %w", err)
	}
	return dir, nil
}

func (c *Client) cachePath(chainID uint64, key rpccache.ReadKey) (string, error) {
	dir, err := c.cacheDirForChain(chainID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, string(key)+".json"), nil
}

// readFromCache returns (value, true, nil) on a cache hit, (nil, false,
// nil) on a clean miss, and a non-nil error only for I/O failures other
// than "file does not exist" — a corrupt cache entry is logged and treated
// as a miss rather than surfaced, since the remote is always the source of
// truth.
func (c *Client) readFromCache(chainID uint64, key rpccache.ReadKey) (json.RawMessage, bool, error) {
	path, err := c.cachePath(chainID, key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rpcclient: read cache entry %s: %w", key, err)
	}
	var v json.RawMessage
	if err := json.Unmarshal(data, &v); err != nil {
		logger.Warn("discarding corrupt RPC cache entry", "key", key, "err", err)
		return nil, false, nil
	}
	return v, true, nil
}

// writeToCache stages the write under tmpDir using a random file name and
// renames it into place, so a reader never observes a partially written
// cache file. The tmp directory must share a filesystem with the cache
// directory for the rename to be atomic.
func (c *Client) writeToCache(chainID uint64, key rpccache.ReadKey, value json.RawMessage) error {
	if err := os.MkdirAll(c.tmpDir, 0o755); err != nil {
		return fmt.Errorf("rpcclient: create tmp directory: %w", err)
	}
	finalPath, err := c.cachePath(chainID, key)
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(c.tmpDir, uuid.New().String())
	if err := os.WriteFile(tmpPath, value, 0o644); err != nil {
		return fmt.Errorf("rpcclient: write temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rpcclient: rename temp cache file into place: %w", err)
	}
	return nil
}

// callCached resolves inv's read key (if any), serves a hit from disk, and
// otherwise performs the call and classifies + stages the write via inv's
// write key.
func (c *Client) callCached(ctx context.Context, method string, params any, inv rpccache.MethodInvocation, result any) error {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return err
	}

	if key, ok := inv.ReadCacheKey(); ok {
		if cached, hit, err := c.readFromCache(chainID, key); err != nil {
			return err
		} else if hit {
			return json.Unmarshal(cached, result)
		}
	}

	var raw json.RawMessage
	if err := c.call(ctx, method, params, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("rpcclient: decode result for %s: %w", method, err)
	}

	c.stageCacheWrite(ctx, chainID, inv, raw, blockNumberExtractor(method, result))
	return nil
}

// blockNumberExtractor pulls a concrete block number out of a decoded
// result for methods whose write key may start out as NeedsBlockNumber
// (an `earliest`/`safe`/`finalized` tag resolved only by the response
// itself).
func blockNumberExtractor(method string, result any) func() (uint64, bool) {
	return func() (uint64, bool) {
		switch v := result.(type) {
		case blockNumberCarrier:
			return v.BlockNumber()
		default:
			return 0, false
		}
	}
}

// blockNumberCarrier is implemented by decoded result types that can
// report their own block number (blocks, transactions, receipts).
type blockNumberCarrier interface {
	BlockNumber() (uint64, bool)
}

func (c *Client) stageCacheWrite(ctx context.Context, chainID uint64, inv rpccache.MethodInvocation, raw json.RawMessage, resolve func() (uint64, bool)) {
	wk := inv.WriteCacheKey()
	switch wk.Disposition {
	case rpccache.WriteNone:
		return
	case rpccache.WriteResolved:
		c.commitWrite(chainID, wk.Key, raw)
	case rpccache.WriteNeedsSafetyCheck:
		safe, err := c.IsSafe(ctx, chainID, wk.BlockNumber)
		if err != nil || !safe {
			return
		}
		c.commitWrite(chainID, wk.Key, raw)
	case rpccache.WriteNeedsBlockNumber:
		if resolve == nil {
			return
		}
		n, ok := resolve()
		if !ok {
			return
		}
		resolved := rpccache.ResolvedWriteKey(inv, n)
		if resolved.Disposition != rpccache.WriteNeedsSafetyCheck {
			return
		}
		safe, err := c.IsSafe(ctx, chainID, resolved.BlockNumber)
		if err != nil || !safe {
			return
		}
		c.commitWrite(chainID, resolved.Key, raw)
	}
}

func (c *Client) commitWrite(chainID uint64, key rpccache.ReadKey, raw json.RawMessage) {
	if err := c.writeToCache(chainID, key, raw); err != nil {
		logger.Warn("failed to write RPC response cache entry", "key", key, "err", err)
	}
}
