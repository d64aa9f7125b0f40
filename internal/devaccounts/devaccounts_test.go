package devaccounts

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringSignPersonalRecoversToAddress(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	k := NewKeyring(pk)
	addr := crypto.PubkeyToAddress(pk.PublicKey)

	sig, err := k.SignPersonal(addr, []byte("hello"))
	require.NoError(t, err)
	require.Len(t, sig, 65)

	digest := personalMessageHash([]byte("hello"))
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest[:], sig)
	require.NoError(t, err)
	assert.Equal(t, addr, crypto.PubkeyToAddress(*pub))
}

func TestKeyringUnknownAddress(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	k := NewKeyring(pk)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = k.SignPersonal(crypto.PubkeyToAddress(other.PublicKey), []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownAddress)
}
