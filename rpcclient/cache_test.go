package rpcclient

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethlocal/devnode/rpccache"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	c := New("http://127.0.0.1:0", dir)
	c.chainID.Store(1)
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	key := rpccache.ReadKey("deadbeef")

	_, hit, err := c.readFromCache(1, key)
	require.NoError(t, err)
	assert.False(t, hit)

	payload, _ := json.Marshal("0x2a")
	require.NoError(t, c.writeToCache(1, key, payload))

	got, hit, err := c.readFromCache(1, key)
	require.NoError(t, err)
	require.True(t, hit)
	assert.JSONEq(t, `"0x2a"`, string(got))
}

func TestCacheWriteIsAtomicViaTmpDir(t *testing.T) {
	c := newTestClient(t)
	key := rpccache.ReadKey("cafebabe")
	payload, _ := json.Marshal(map[string]any{"x": 1})
	require.NoError(t, c.writeToCache(1, key, payload))

	entries, err := os.ReadDir(c.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be renamed away, not left behind")
}

func TestCorruptCacheEntryIsTreatedAsMiss(t *testing.T) {
	c := newTestClient(t)
	key := rpccache.ReadKey("0123")
	path, err := c.cachePath(1, key)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(c.cacheDir, 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, hit, err := c.readFromCache(1, key)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestIsTransientNetworkError(t *testing.T) {
	assert.True(t, isTransientNetworkError(io.ErrUnexpectedEOF))
	assert.True(t, isTransientNetworkError(errors.New("read: connection reset by peer")))
	assert.False(t, isTransientNetworkError(errors.New("no such host")))
	assert.False(t, isTransientNetworkError(nil))
}
