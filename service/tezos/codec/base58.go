package codec

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Prefix is the version prefix prepended to a payload before base58check
// encoding. It is what makes Tezos strings start with "tz1", "edpk" and so on.
type Prefix []byte

var (
	PrefixEd25519PublicKeyHash   = Prefix{6, 161, 159}          // tz1
	PrefixSecp256k1PublicKeyHash = Prefix{6, 161, 161}          // tz2
	PrefixP256PublicKeyHash      = Prefix{6, 161, 164}          // tz3
	PrefixContractHash           = Prefix{2, 90, 121}           // KT1
	PrefixEd25519PublicKey       = Prefix{13, 15, 37, 217}      // edpk
	PrefixSecp256k1PublicKey     = Prefix{3, 254, 226, 86}      // sppk
	PrefixP256PublicKey          = Prefix{3, 178, 139, 127}     // p2pk
	PrefixEd25519SecretKey       = Prefix{43, 246, 78, 7}       // edsk, 64 bytes
	PrefixEd25519Seed            = Prefix{13, 15, 58, 7}        // edsk, 32 bytes
	PrefixSecp256k1SecretKey     = Prefix{17, 162, 224, 201}    // spsk
	PrefixP256SecretKey          = Prefix{16, 81, 238, 189}     // p2sk
	PrefixEd25519Signature       = Prefix{9, 245, 205, 134, 18} // edsig
	PrefixSecp256k1Signature     = Prefix{13, 115, 101, 19, 63} // spsig1
	PrefixP256Signature          = Prefix{54, 240, 44, 52}      // p2sig
	PrefixGenericSignature       = Prefix{4, 130, 43}           // sig
	PrefixBlockHash              = Prefix{1, 52}                // B
	PrefixOperationHash          = Prefix{5, 116}               // o
	PrefixProtocolHash           = Prefix{2, 170}               // P
)

var (
	// ErrChecksum is returned when a base58check string fails its checksum.
	ErrChecksum = errors.New("invalid base58check checksum")

	// ErrPrefix is returned when a decoded string does not carry the expected prefix.
	ErrPrefix = errors.New("unexpected base58check prefix")
)

// EncodeBase58Check encodes payload under the given prefix with a four byte
// double-SHA256 checksum.
func EncodeBase58Check(prefix Prefix, payload []byte) string {
	data := make([]byte, 0, len(prefix)+len(payload)+4)
	data = append(data, prefix...)
	data = append(data, payload...)
	data = append(data, checksum(data)...)
	return base58.Encode(data)
}

// DecodeBase58Check decodes s, verifies its checksum and prefix and returns
// the payload. If size is positive the payload must have exactly that length.
func DecodeBase58Check(prefix Prefix, s string, size int) ([]byte, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("could not decode base58 %q: %w", s, err)
	}
	if len(data) < len(prefix)+4 {
		return nil, fmt.Errorf("base58check string %q too short", s)
	}

	body, sum := data[:len(data)-4], data[len(data)-4:]
	if !bytes.Equal(checksum(body), sum) {
		return nil, fmt.Errorf("%q: %w", s, ErrChecksum)
	}
	if !bytes.HasPrefix(body, prefix) {
		return nil, fmt.Errorf("%q: %w", s, ErrPrefix)
	}

	payload := body[len(prefix):]
	if size > 0 && len(payload) != size {
		return nil, fmt.Errorf("%q: invalid payload length (have: %d, want: %d)", s, len(payload), size)
	}

	return payload, nil
}

func checksum(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:4]
}
