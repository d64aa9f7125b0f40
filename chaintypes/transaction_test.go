package chaintypes

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedDynamicFeeTx(t *testing.T, chainID *big.Int) (*Transaction, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA("0123456789012345678901234567890123456789012345678901234567890a")
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress("0xbeef")

	unsigned := NewTx(&DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1000),
	})
	signer := LatestSigner(chainID)
	signed, err := SignTx(unsigned, signer, key)
	require.NoError(t, err)
	return signed, addr
}

func TestRLPRoundTripPerEnvelope(t *testing.T) {
	chainID := big.NewInt(1337)
	to := common.HexToAddress("0xbeef")

	cases := map[string]*Transaction{
		"legacy": NewTx(&LegacyTx{
			Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(1),
		}),
		"access-list": NewTx(&AccessListTx{
			ChainID: chainID, Nonce: 2, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(2),
		}),
		"dynamic-fee": NewTx(&DynamicFeeTx{
			ChainID: chainID, Nonce: 3, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2), Gas: 21000, To: &to, Value: big.NewInt(3),
		}),
	}

	for name, tx := range cases {
		tx, name := tx, name
		t.Run(name, func(t *testing.T) {
			raw, err := tx.MarshalBinary()
			require.NoError(t, err)

			decoded := new(Transaction)
			require.NoError(t, decoded.UnmarshalBinary(raw))

			assert.Equal(t, tx.Type(), decoded.Type())
			assert.Equal(t, tx.Nonce(), decoded.Nonce())
			assert.Equal(t, tx.Value(), decoded.Value())
			assert.Equal(t, tx.Hash(), decoded.Hash())
		})
	}
}

func TestHashIsStableAndCached(t *testing.T) {
	to := common.HexToAddress("0xbeef")
	tx := NewTx(&LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(1)})

	h1 := tx.Hash()
	h2 := tx.Hash()
	assert.Equal(t, h1, h2)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	decoded := new(Transaction)
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, h1, decoded.Hash())
}

func TestSignerRecoversSender(t *testing.T) {
	chainID := big.NewInt(1337)
	signed, addr := signedDynamicFeeTx(t, chainID)

	signer := LatestSigner(chainID)
	recovered, err := signer.Sender(signed)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestSignerRejectsWrongChainID(t *testing.T) {
	signed, _ := signedDynamicFeeTx(t, big.NewInt(1337))

	wrongSigner := LatestSigner(big.NewInt(1))
	_, err := wrongSigner.Sender(signed)
	assert.Error(t, err)
}

func TestFakeSignDoesNotRecoverToFrom(t *testing.T) {
	to := common.HexToAddress("0xbeef")
	from := common.HexToAddress("0xf00d")
	unsigned := NewTx(&LegacyTx{Nonce: 0, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(1)})

	faked := FakeSign(unsigned, from)
	v, r, s := faked.RawSignatureValues()
	assert.NotZero(t, v)
	assert.NotZero(t, r)
	assert.NotZero(t, s)

	signer := LatestSigner(big.NewInt(1337))
	recovered, err := signer.Sender(faked)
	if err == nil {
		assert.NotEqual(t, from, recovered)
	}

	raw, err := faked.MarshalBinary()
	require.NoError(t, err)
	decoded := new(Transaction)
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, faked.Hash(), decoded.Hash())
}

func TestLegacySignIsEIP155Protected(t *testing.T) {
	unsigned := NewTx(&LegacyTx{Nonce: 0, GasPrice: big.NewInt(1), Gas: 21000, Value: big.NewInt(1)})

	key, err := crypto.HexToECDSA("0123456789012345678901234567890123456789012345678901234567890a")
	require.NoError(t, err)
	signer := LatestSigner(big.NewInt(5))
	signed, err := SignTx(unsigned, signer, key)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), signed.ChainId())

	recovered, err := signer.Sender(signed)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}
