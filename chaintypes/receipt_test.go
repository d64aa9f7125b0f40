package chaintypes

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptStatusRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		status uint64
		typ    TxType
	}{
		{"legacy-success", ReceiptStatusSuccessful, LegacyTxType},
		{"legacy-failed", ReceiptStatusFailed, LegacyTxType},
		{"dynamic-fee-success", ReceiptStatusSuccessful, DynamicFeeTxType},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := &Receipt{
				Type:              tc.typ,
				Status:            tc.status,
				CumulativeGasUsed: 21000,
				Logs:              []*Log{},
			}
			raw, err := rlp.EncodeToBytes(r)
			require.NoError(t, err)

			decoded := new(Receipt)
			require.NoError(t, rlp.DecodeBytes(raw, decoded))
			assert.Equal(t, tc.status, decoded.Status)
			assert.Equal(t, tc.typ, decoded.Type)
			assert.Equal(t, r.CumulativeGasUsed, decoded.CumulativeGasUsed)
		})
	}
}

func TestReceiptNonCanonicalStatusNormalizesToSuccess(t *testing.T) {
	r := &Receipt{}
	require.NoError(t, r.setStatus([]byte{0x07}))
	assert.Equal(t, ReceiptStatusSuccessful, r.Status)
}

func TestDeriveShaMatchesOrderAndIsDeterministic(t *testing.T) {
	to := common.HexToAddress("0xbeef")
	txs := Transactions{
		NewTx(&LegacyTx{Nonce: 0, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(1)}),
		NewTx(&LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(2)}),
	}
	root1 := DeriveSha(txs, trie.NewStackTrie(nil))
	root2 := DeriveSha(txs, trie.NewStackTrie(nil))
	assert.Equal(t, root1, root2)

	reordered := Transactions{txs[1], txs[0]}
	rootReordered := DeriveSha(reordered, trie.NewStackTrie(nil))
	assert.NotEqual(t, root1, rootReordered)
}

func TestCreateBloomMatchesLogs(t *testing.T) {
	addr := common.HexToAddress("0xbeef")
	topic := common.HexToHash("0x01")
	logs := []*Log{{Address: addr, Topics: []common.Hash{topic}}}

	bloom := CreateBloom(logs)
	assert.True(t, bloom.Test(addr.Bytes()))
	assert.True(t, bloom.Test(topic.Bytes()))
	assert.False(t, bloom.Test(common.HexToAddress("0xdead").Bytes()))
}

func TestBloomOrBloomUnion(t *testing.T) {
	var a, b Bloom
	a.Add([]byte("a"))
	b.Add([]byte("b"))
	combined := a
	combined.OrBloom(b)
	assert.True(t, combined.Test([]byte("a")))
	assert.True(t, combined.Test([]byte("b")))
}
