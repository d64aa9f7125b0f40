package rpccache

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCacheKeyStableAcrossCalls(t *testing.T) {
	m := MethodInvocation{
		Variant:   MethodGetBalance,
		Address:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		BlockSpec: BlockSpecNumber(100),
	}
	k1, ok1 := m.ReadCacheKey()
	k2, ok2 := m.ReadCacheKey()
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, k1, k2)
	assert.Len(t, string(k1), 64)
}

func TestReadCacheKeyDiffersByVariant(t *testing.T) {
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	balance := MethodInvocation{Variant: MethodGetBalance, Address: addr, BlockSpec: BlockSpecNumber(5)}
	code := MethodInvocation{Variant: MethodGetCode, Address: addr, BlockSpec: BlockSpecNumber(5)}

	kb, ok := balance.ReadCacheKey()
	require.True(t, ok)
	kc, ok := code.ReadCacheKey()
	require.True(t, ok)
	assert.NotEqual(t, kb, kc)
}

func TestReadCacheKeyRejectsSymbolicTag(t *testing.T) {
	m := MethodInvocation{
		Variant:   MethodGetBalance,
		BlockSpec: BlockSpecTag(TagEarliest),
	}
	_, ok := m.ReadCacheKey()
	assert.False(t, ok)
}

func TestWriteCacheKeyByHashIsResolved(t *testing.T) {
	m := MethodInvocation{
		Variant:   MethodGetBlockByNumber,
		BlockSpec: BlockSpecHash(common.HexToHash("0xabc"), nil),
	}
	wk := m.WriteCacheKey()
	assert.Equal(t, WriteResolved, wk.Disposition)
}

func TestWriteCacheKeyByNumberNeedsSafetyCheck(t *testing.T) {
	m := MethodInvocation{
		Variant:   MethodGetBalance,
		BlockSpec: BlockSpecNumber(42),
	}
	wk := m.WriteCacheKey()
	assert.Equal(t, WriteNeedsSafetyCheck, wk.Disposition)
	assert.EqualValues(t, 42, wk.BlockNumber)
}

func TestWriteCacheKeySymbolicNeedsBlockNumber(t *testing.T) {
	m := MethodInvocation{
		Variant:   MethodGetBlockByNumber,
		BlockSpec: BlockSpecTag(TagEarliest),
	}
	wk := m.WriteCacheKey()
	assert.Equal(t, WriteNeedsBlockNumber, wk.Disposition)

	resolved := ResolvedWriteKey(m, 7)
	assert.Equal(t, WriteNeedsSafetyCheck, resolved.Disposition)
	assert.EqualValues(t, 7, resolved.BlockNumber)
}

func TestGetLogsRangeHashIncludesAddressesAndTopics(t *testing.T) {
	base := MethodInvocation{
		Variant: MethodGetLogs,
		LogFilter: LogFilterOptions{
			Range: LogFilterRangeByBlocks(BlockSpecNumber(1), BlockSpecNumber(10)),
		},
	}
	withAddr := base
	withAddr.LogFilter.Addresses = []common.Address{common.HexToAddress("0x1")}

	k1, _ := base.ReadCacheKey()
	k2, _ := withAddr.ReadCacheKey()
	assert.NotEqual(t, k1, k2)
}

func TestGetLogsByHashIsResolvedOnWrite(t *testing.T) {
	m := MethodInvocation{
		Variant: MethodGetLogs,
		LogFilter: LogFilterOptions{
			Range: LogFilterRangeByHash(common.HexToHash("0xdead")),
		},
	}
	wk := m.WriteCacheKey()
	assert.Equal(t, WriteResolved, wk.Disposition)
}

func TestSafeBlockDepthKnownChains(t *testing.T) {
	assert.EqualValues(t, 128, SafeBlockDepth(1))
	assert.EqualValues(t, 5, SafeBlockDepth(10))
	assert.EqualValues(t, 128, SafeBlockDepth(999999))
}
