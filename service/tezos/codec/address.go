package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// PublicKeyHashSize is the size of a raw public key hash.
	PublicKeyHashSize = 20

	// BlockHashSize is the size of a raw block hash.
	BlockHashSize = 32
)

// Curve tags shared by public key hashes, public keys and signatures.
const (
	TagEd25519   byte = 0
	TagSecp256k1 byte = 1
	TagP256      byte = 2
)

var pkhPrefixes = map[byte]Prefix{
	TagEd25519:   PrefixEd25519PublicKeyHash,
	TagSecp256k1: PrefixSecp256k1PublicKeyHash,
	TagP256:      PrefixP256PublicKeyHash,
}

var publicKeyPrefixes = map[byte]Prefix{
	TagEd25519:   PrefixEd25519PublicKey,
	TagSecp256k1: PrefixSecp256k1PublicKey,
	TagP256:      PrefixP256PublicKey,
}

var publicKeySizes = map[byte]int{
	TagEd25519:   32,
	TagSecp256k1: 33,
	TagP256:      33,
}

// PublicKeyHashTag returns the curve tag of a tz1/tz2/tz3 address.
func PublicKeyHashTag(address string) (byte, error) {
	switch {
	case strings.HasPrefix(address, "tz1"):
		return TagEd25519, nil
	case strings.HasPrefix(address, "tz2"):
		return TagSecp256k1, nil
	case strings.HasPrefix(address, "tz3"):
		return TagP256, nil
	default:
		return 0, fmt.Errorf("unsupported public key hash %q", address)
	}
}

// PublicKeyTag returns the curve tag of an edpk/sppk/p2pk public key.
func PublicKeyTag(publicKey string) (byte, error) {
	switch {
	case strings.HasPrefix(publicKey, "edpk"):
		return TagEd25519, nil
	case strings.HasPrefix(publicKey, "sppk"):
		return TagSecp256k1, nil
	case strings.HasPrefix(publicKey, "p2pk"):
		return TagP256, nil
	default:
		return 0, fmt.Errorf("unsupported public key %q", publicKey)
	}
}

// EncodePublicKeyHash returns the 21 byte tagged form of an implicit address.
func EncodePublicKeyHash(address string) ([]byte, error) {
	tag, err := PublicKeyHashTag(address)
	if err != nil {
		return nil, err
	}
	payload, err := DecodeBase58Check(pkhPrefixes[tag], address, PublicKeyHashSize)
	if err != nil {
		return nil, err
	}
	return append([]byte{tag}, payload...), nil
}

// PublicKeyHash reads a 21 byte tagged public key hash.
func (d *Decoder) PublicKeyHash() (string, error) {
	tag, err := d.Byte()
	if err != nil {
		return "", err
	}
	prefix, ok := pkhPrefixes[tag]
	if !ok {
		return "", fmt.Errorf("invalid public key hash tag %d at offset %d", tag, d.pos-1)
	}
	payload, err := d.Raw(PublicKeyHashSize)
	if err != nil {
		return "", err
	}
	return EncodeBase58Check(prefix, payload), nil
}

// EncodeContractID returns the 22 byte contract id of an implicit (tz) or
// originated (KT1) address.
func EncodeContractID(address string) ([]byte, error) {
	if strings.HasPrefix(address, "KT1") {
		payload, err := DecodeBase58Check(PrefixContractHash, address, PublicKeyHashSize)
		if err != nil {
			return nil, err
		}
		id := append([]byte{0x01}, payload...)
		return append(id, 0x00), nil
	}

	pkh, err := EncodePublicKeyHash(address)
	if err != nil {
		return nil, err
	}
	return append([]byte{0x00}, pkh...), nil
}

// ContractID reads a 22 byte contract id.
func (d *Decoder) ContractID() (string, error) {
	tag, err := d.Byte()
	if err != nil {
		return "", err
	}
	switch tag {
	case 0x00:
		return d.PublicKeyHash()
	case 0x01:
		payload, err := d.Raw(PublicKeyHashSize)
		if err != nil {
			return "", err
		}
		if _, err := d.Byte(); err != nil {
			return "", err
		}
		return EncodeBase58Check(PrefixContractHash, payload), nil
	default:
		return "", fmt.Errorf("invalid contract id tag %d at offset %d", tag, d.pos-1)
	}
}

// EncodePublicKey returns the tagged binary form of a public key.
func EncodePublicKey(publicKey string) ([]byte, error) {
	tag, err := PublicKeyTag(publicKey)
	if err != nil {
		return nil, err
	}
	payload, err := DecodeBase58Check(publicKeyPrefixes[tag], publicKey, publicKeySizes[tag])
	if err != nil {
		return nil, err
	}
	return append([]byte{tag}, payload...), nil
}

// PublicKey reads a tagged public key.
func (d *Decoder) PublicKey() (string, error) {
	tag, err := d.Byte()
	if err != nil {
		return "", err
	}
	prefix, ok := publicKeyPrefixes[tag]
	if !ok {
		return "", fmt.Errorf("invalid public key tag %d at offset %d", tag, d.pos-1)
	}
	payload, err := d.Raw(publicKeySizes[tag])
	if err != nil {
		return "", err
	}
	return EncodeBase58Check(prefix, payload), nil
}

// PublicKeyHashFromKey derives the implicit address of a base58 public key:
// the 20 byte blake2b digest of the raw key under the curve's address prefix.
func PublicKeyHashFromKey(publicKey string) (string, error) {
	tagged, err := EncodePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New(PublicKeyHashSize, nil)
	if err != nil {
		return "", err
	}
	h.Write(tagged[1:])
	return EncodeBase58Check(pkhPrefixes[tagged[0]], h.Sum(nil)), nil
}

// EncodeBlockHash returns the 32 raw bytes of a "B..." block hash.
func EncodeBlockHash(hash string) ([]byte, error) {
	return DecodeBase58Check(PrefixBlockHash, hash, BlockHashSize)
}

// BlockHash reads a raw 32 byte block hash.
func (d *Decoder) BlockHash() (string, error) {
	payload, err := d.Raw(BlockHashSize)
	if err != nil {
		return "", err
	}
	return EncodeBase58Check(PrefixBlockHash, payload), nil
}

// OperationGroupHash computes the "o..." hash of a signed operation group.
func OperationGroupHash(signed []byte) string {
	sum := blake2b.Sum256(signed)
	return EncodeBase58Check(PrefixOperationHash, sum[:])
}

// OperationGroupHashHex is OperationGroupHash for hex input.
func OperationGroupHashHex(signedHex string) (string, error) {
	signed, err := hex.DecodeString(signedHex)
	if err != nil {
		return "", fmt.Errorf("could not decode signed operation: %w", err)
	}
	return OperationGroupHash(signed), nil
}
