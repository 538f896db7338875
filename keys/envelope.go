// Package keys generates test keys, serializes them into the node's key envelope
// and derives EVM addresses from them.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Type is the algorithm of a public key.
type Type int

const (
	Ed25519 Type = iota + 1
	ECDSASecp256k1
)

func (t Type) String() string {
	switch t {
	case Ed25519:
		return "ed25519"
	case ECDSASecp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Field numbers of the key oneof in the envelope message.
const (
	ed25519Field   protowire.Number = 2
	secp256k1Field protowire.Number = 7
)

// ErrInvalidAlias is returned by ParseAlias for byte strings that are not a
// serialized key envelope.
var ErrInvalidAlias = errors.New("alias is not a serialized key")

// Key is a public key as carried on the ledger.
type Key struct {
	Type  Type
	Bytes []byte
}

// Marshal encodes the key as a key envelope.
func (k Key) Marshal() []byte {
	var field protowire.Number
	switch k.Type {
	case Ed25519:
		field = ed25519Field
	case ECDSASecp256k1:
		field = secp256k1Field
	default:
		panic(fmt.Errorf("can't marshal key of type %v", k.Type))
	}
	b := protowire.AppendTag(nil, field, protowire.BytesType)
	return protowire.AppendBytes(b, k.Bytes)
}

// Equal reports whether both keys have the same type and bytes.
func (k Key) Equal(o Key) bool {
	return k.Type == o.Type && string(k.Bytes) == string(o.Bytes)
}

func (k Key) String() string {
	return k.Type.String() + ":" + hex.EncodeToString(k.Bytes)
}

// ParseAlias decodes b as a key envelope. The envelope must hold exactly one
// non-empty ed25519 or secp256k1 field and nothing else. Anything else yields
// ErrInvalidAlias.
func ParseAlias(b []byte) (Key, error) {
	var (
		key   Key
		found bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Key{}, ErrInvalidAlias
		}
		b = b[n:]
		if typ != protowire.BytesType || found {
			return Key{}, ErrInvalidAlias
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 || len(v) == 0 {
			return Key{}, ErrInvalidAlias
		}
		b = b[n:]
		switch num {
		case ed25519Field:
			key.Type = Ed25519
		case secp256k1Field:
			key.Type = ECDSASecp256k1
		default:
			return Key{}, ErrInvalidAlias
		}
		key.Bytes = append([]byte(nil), v...)
		found = true
	}
	if !found {
		return Key{}, ErrInvalidAlias
	}
	return key, nil
}

// BuildEd25519AliasBytes returns an ed25519 envelope around a random placeholder.
// The result parses as a key but is not a usable public key.
func BuildEd25519AliasBytes() []byte {
	return buildAlias(Ed25519, rand.Reader)
}

// BuildECDSAAliasBytes returns a secp256k1 envelope around a random placeholder.
func BuildECDSAAliasBytes() []byte {
	return buildAlias(ECDSASecp256k1, rand.Reader)
}

const placeholderLen = 32

func buildAlias(t Type, r io.Reader) []byte {
	return Key{Type: t, Bytes: []byte(randomUppercase(r, placeholderLen))}.Marshal()
}

func randomUppercase(r io.Reader, n int) string {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		panic(fmt.Errorf("can't read randomness: %v", err))
	}
	for i := range buf {
		buf[i] = 'A' + buf[i]%26
	}
	return string(buf)
}
