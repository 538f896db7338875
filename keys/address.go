package keys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// DeriveAccountAddress returns the EVM address of a secp256k1 public key, the low
// 20 bytes of keccak256(X || Y). Both the 33-byte compressed and the 65-byte
// uncompressed encodings are accepted.
func DeriveAccountAddress(publicKey []byte) (common.Address, error) {
	pub, err := unmarshalSecp256k1(publicKey)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// DeriveCreate1Address returns the address of the contract that sender would
// deploy at the given nonce: the low 20 bytes of keccak256(rlp([sender, nonce])).
func DeriveCreate1Address(sender common.Address, nonce uint64) common.Address {
	data, err := rlp.EncodeToBytes([]interface{}{sender, nonce})
	if err != nil {
		panic(err) // can't fail for these types
	}
	return common.BytesToAddress(crypto.Keccak256(data)[12:])
}

// EVMAddress returns the address derived from a secp256k1 key.
func (k Key) EVMAddress() (common.Address, error) {
	if k.Type != ECDSASecp256k1 {
		return common.Address{}, fmt.Errorf("no EVM address for %v key", k.Type)
	}
	return DeriveAccountAddress(k.Bytes)
}

func unmarshalSecp256k1(b []byte) (*ecdsa.PublicKey, error) {
	switch len(b) {
	case 33:
		return crypto.DecompressPubkey(b)
	case 65:
		return crypto.UnmarshalPubkey(b)
	default:
		return nil, fmt.Errorf("invalid secp256k1 public key length %d", len(b))
	}
}
