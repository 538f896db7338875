package keys

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
)

// Pair is a generated key pair. Test fixtures keep pairs in the registry under a
// logical name.
type Pair struct {
	secp256k1 *ecdsa.PrivateKey
	ed25519   ed25519.PrivateKey
}

// Generate creates a new key pair of the given type.
func Generate(t Type) (*Pair, error) {
	switch t {
	case Ed25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &Pair{ed25519: priv}, nil
	case ECDSASecp256k1:
		priv, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		return &Pair{secp256k1: priv}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %v", t)
	}
}

// FromECDSA wraps an existing secp256k1 private key.
func FromECDSA(priv *ecdsa.PrivateKey) *Pair {
	return &Pair{secp256k1: priv}
}

// LoadECDSAFile reads a hex-encoded secp256k1 private key from a file, as written
// by node tooling for the genesis and operator accounts.
func LoadECDSAFile(file string) (*Pair, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("0x"))
	priv, err := crypto.HexToECDSA(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid key file %s: %v", file, err)
	}
	return FromECDSA(priv), nil
}

// Type returns the key algorithm.
func (p *Pair) Type() Type {
	if p.secp256k1 != nil {
		return ECDSASecp256k1
	}
	return Ed25519
}

// Public returns the public half. secp256k1 keys use the compressed encoding.
func (p *Pair) Public() Key {
	if p.secp256k1 != nil {
		return Key{Type: ECDSASecp256k1, Bytes: crypto.CompressPubkey(&p.secp256k1.PublicKey)}
	}
	return Key{Type: Ed25519, Bytes: []byte(p.ed25519.Public().(ed25519.PublicKey))}
}

// Sign signs a 32-byte digest (secp256k1) or an arbitrary message (ed25519).
func (p *Pair) Sign(msg []byte) ([]byte, error) {
	if p.secp256k1 != nil {
		return crypto.Sign(msg, p.secp256k1)
	}
	return ed25519.Sign(p.ed25519, msg), nil
}

// Verify checks a signature made by Pair.Sign.
func Verify(k Key, msg, sig []byte) bool {
	switch k.Type {
	case ECDSASecp256k1:
		if len(sig) != 65 {
			return false
		}
		return crypto.VerifySignature(k.Bytes, msg, sig[:64])
	case Ed25519:
		if len(k.Bytes) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(k.Bytes), msg, sig)
	default:
		return false
	}
}
