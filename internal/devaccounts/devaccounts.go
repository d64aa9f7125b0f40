// Package devaccounts holds the private keys for the node's own funded
// development accounts and signs on their behalf for eth_sign,
// personal_sign and EIP-712 typed data, and ordinary transaction signing
// when a caller asks the provider to sign rather than supplying a raw
// envelope.
package devaccounts

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnknownAddress is returned by every signing method when addr is not
// one of the keyring's accounts.
var ErrUnknownAddress = errors.New("devaccounts: unknown address for signing")

// Keyring holds a fixed set of local accounts, ordered the way eth_accounts
// reports them (insertion order — usually the order the node derived or
// was configured with).
type Keyring struct {
	order []common.Address
	keys  map[common.Address]*ecdsa.PrivateKey
}

// NewKeyring builds a keyring from raw private keys, deriving each
// account's address.
func NewKeyring(privateKeys ...*ecdsa.PrivateKey) *Keyring {
	k := &Keyring{keys: make(map[common.Address]*ecdsa.PrivateKey, len(privateKeys))}
	for _, pk := range privateKeys {
		addr := crypto.PubkeyToAddress(pk.PublicKey)
		if _, exists := k.keys[addr]; exists {
			continue
		}
		k.keys[addr] = pk
		k.order = append(k.order, addr)
	}
	return k
}

// Accounts returns every account the keyring can sign for, in the order
// eth_accounts/eth_coinbase report them.
func (k *Keyring) Accounts() []common.Address {
	out := make([]common.Address, len(k.order))
	copy(out, k.order)
	return out
}

// Has reports whether addr is one of the keyring's accounts.
func (k *Keyring) Has(addr common.Address) bool {
	_, ok := k.keys[addr]
	return ok
}

// PrivateKey returns addr's private key, for the caller to sign a
// transaction envelope directly via chaintypes.SignTx.
func (k *Keyring) PrivateKey(addr common.Address) (*ecdsa.PrivateKey, error) {
	pk, ok := k.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
	}
	return pk, nil
}

// SignPersonal implements eth_sign/personal_sign: it prefixes message with
// the EIP-191 "\x19Ethereum Signed Message:\n<len>" preamble, signs the
// keccak256 digest, and returns a 65-byte [R || S || V] signature with V
// in {27, 28} as every wallet and verifier expects.
func (k *Keyring) SignPersonal(addr common.Address, message []byte) ([]byte, error) {
	pk, ok := k.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
	}
	digest := personalMessageHash(message)
	sig, err := crypto.Sign(digest[:], pk)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

func personalMessageHash(message []byte) common.Hash {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256Hash([]byte(prefix), message)
}

// SignTypedData implements eth_signTypedData's EIP-712 digest: keccak256
// ("\x19\x01" || domainSeparator || hashStruct(message)). Callers compute
// the two hashes per the EIP-712 encoding rules; this only performs the
// final signature.
func (k *Keyring) SignTypedData(addr common.Address, domainSeparator, hashStruct common.Hash) ([]byte, error) {
	pk, ok := k.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
	}
	digest := crypto.Keccak256Hash([]byte("\x19\x01"), domainSeparator.Bytes(), hashStruct.Bytes())
	sig, err := crypto.Sign(digest[:], pk)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Sorted returns the keyring's accounts sorted by address, primarily for
// deterministic test output.
func (k *Keyring) Sorted() []common.Address {
	out := k.Accounts()
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}
