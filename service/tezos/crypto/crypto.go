// Package crypto holds the key handling and detached signature primitives for
// the three Tezos curves: ed25519 (tz1), secp256k1 (tz2) and p256 (tz3).
package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"

	"github.com/brojonat/tzwriter/service/tezos/codec"
)

// DigestSize is the size of the signing digest.
const DigestSize = 32

// SignatureSize is the size of a raw detached signature on every curve.
const SignatureSize = 64

// ErrInvalidSignature is returned by Verify for a signature that does not match.
var ErrInvalidSignature = errors.New("invalid signature")

// Curve identifies the signature scheme of a key.
type Curve byte

const (
	Ed25519   = Curve(codec.TagEd25519)
	Secp256k1 = Curve(codec.TagSecp256k1)
	P256      = Curve(codec.TagP256)
)

func (c Curve) String() string {
	switch c {
	case Ed25519:
		return "ed25519"
	case Secp256k1:
		return "secp256k1"
	case P256:
		return "p256"
	default:
		return fmt.Sprintf("curve(%d)", byte(c))
	}
}

// SignaturePrefix returns the base58check prefix of signatures on the curve.
func (c Curve) SignaturePrefix() codec.Prefix {
	switch c {
	case Ed25519:
		return codec.PrefixEd25519Signature
	case Secp256k1:
		return codec.PrefixSecp256k1Signature
	case P256:
		return codec.PrefixP256Signature
	default:
		return codec.PrefixGenericSignature
	}
}

// CurveOfPublicKey returns the curve of a base58 public key.
func CurveOfPublicKey(publicKey string) (Curve, error) {
	tag, err := codec.PublicKeyTag(publicKey)
	if err != nil {
		return 0, err
	}
	return Curve(tag), nil
}

// Digest returns the 32 byte blake2b hash that gets signed.
func Digest(message []byte) []byte {
	sum := blake2b.Sum256(message)
	return sum[:]
}

// EncodeSignature renders a raw signature in its prefixed base58 form.
func EncodeSignature(curve Curve, signature []byte) string {
	return codec.EncodeBase58Check(curve.SignaturePrefix(), signature)
}

// DecodeSignature parses a prefixed base58 signature.
func DecodeSignature(signature string) ([]byte, error) {
	var prefix codec.Prefix
	switch {
	case strings.HasPrefix(signature, "edsig"):
		prefix = codec.PrefixEd25519Signature
	case strings.HasPrefix(signature, "spsig1"):
		prefix = codec.PrefixSecp256k1Signature
	case strings.HasPrefix(signature, "p2sig"):
		prefix = codec.PrefixP256Signature
	case strings.HasPrefix(signature, "sig"):
		prefix = codec.PrefixGenericSignature
	default:
		return nil, fmt.Errorf("unsupported signature %q", signature)
	}
	return codec.DecodeBase58Check(prefix, signature, SignatureSize)
}

// SecretKey is a decoded private key on one of the supported curves.
type SecretKey struct {
	curve     Curve
	ed25519   ed25519.PrivateKey
	secp256k1 *secp256k1.PrivateKey
	p256      *ecdsa.PrivateKey
}

// ParseSecretKey decodes an edsk (seed or expanded), spsk or p2sk string.
func ParseSecretKey(encoded string) (*SecretKey, error) {
	switch {
	case strings.HasPrefix(encoded, "edsk"):
		if seed, err := codec.DecodeBase58Check(codec.PrefixEd25519Seed, encoded, ed25519.SeedSize); err == nil {
			return &SecretKey{curve: Ed25519, ed25519: ed25519.NewKeyFromSeed(seed)}, nil
		}
		raw, err := codec.DecodeBase58Check(codec.PrefixEd25519SecretKey, encoded, ed25519.PrivateKeySize)
		if err != nil {
			return nil, fmt.Errorf("could not decode ed25519 secret key: %w", err)
		}
		return &SecretKey{curve: Ed25519, ed25519: ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])}, nil

	case strings.HasPrefix(encoded, "spsk"):
		raw, err := codec.DecodeBase58Check(codec.PrefixSecp256k1SecretKey, encoded, 32)
		if err != nil {
			return nil, fmt.Errorf("could not decode secp256k1 secret key: %w", err)
		}
		return &SecretKey{curve: Secp256k1, secp256k1: secp256k1.PrivKeyFromBytes(raw)}, nil

	case strings.HasPrefix(encoded, "p2sk"):
		raw, err := codec.DecodeBase58Check(codec.PrefixP256SecretKey, encoded, 32)
		if err != nil {
			return nil, fmt.Errorf("could not decode p256 secret key: %w", err)
		}
		return &SecretKey{curve: P256, p256: p256KeyFromBytes(raw)}, nil

	default:
		return nil, fmt.Errorf("unsupported secret key format")
	}
}

// NewEd25519SecretKey builds a key from a 32 byte seed.
func NewEd25519SecretKey(seed []byte) (*SecretKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid ed25519 seed length %d", len(seed))
	}
	return &SecretKey{curve: Ed25519, ed25519: ed25519.NewKeyFromSeed(seed)}, nil
}

// NewSecp256k1SecretKey builds a key from a 32 byte scalar.
func NewSecp256k1SecretKey(scalar []byte) (*SecretKey, error) {
	if len(scalar) != 32 {
		return nil, fmt.Errorf("invalid secp256k1 key length %d", len(scalar))
	}
	return &SecretKey{curve: Secp256k1, secp256k1: secp256k1.PrivKeyFromBytes(scalar)}, nil
}

// NewP256SecretKey builds a key from a 32 byte scalar.
func NewP256SecretKey(scalar []byte) (*SecretKey, error) {
	if len(scalar) != 32 {
		return nil, fmt.Errorf("invalid p256 key length %d", len(scalar))
	}
	return &SecretKey{curve: P256, p256: p256KeyFromBytes(scalar)}, nil
}

func p256KeyFromBytes(raw []byte) *ecdsa.PrivateKey {
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	x, y := curve.ScalarBaseMult(d.FillBytes(make([]byte, 32)))
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}
}

// Curve returns the key's curve.
func (k *SecretKey) Curve() Curve {
	return k.curve
}

// String renders the key in its canonical prefixed base58 form.
func (k *SecretKey) String() string {
	switch k.curve {
	case Ed25519:
		return codec.EncodeBase58Check(codec.PrefixEd25519SecretKey, k.ed25519)
	case Secp256k1:
		return codec.EncodeBase58Check(codec.PrefixSecp256k1SecretKey, k.secp256k1.Serialize())
	default:
		return codec.EncodeBase58Check(codec.PrefixP256SecretKey, k.p256.D.FillBytes(make([]byte, 32)))
	}
}

// PublicKey returns the prefixed base58 public key.
func (k *SecretKey) PublicKey() string {
	switch k.curve {
	case Ed25519:
		return codec.EncodeBase58Check(codec.PrefixEd25519PublicKey, k.ed25519.Public().(ed25519.PublicKey))
	case Secp256k1:
		return codec.EncodeBase58Check(codec.PrefixSecp256k1PublicKey, k.secp256k1.PubKey().SerializeCompressed())
	default:
		return codec.EncodeBase58Check(codec.PrefixP256PublicKey, elliptic.MarshalCompressed(k.p256.Curve, k.p256.X, k.p256.Y))
	}
}

// PublicKeyHash returns the implicit account address of the key.
func (k *SecretKey) PublicKeyHash() string {
	// The public key is produced locally, so it always decodes.
	address, _ := codec.PublicKeyHashFromKey(k.PublicKey())
	return address
}

// Sign produces a 64 byte detached signature over a 32 byte digest.
func (k *SecretKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != DigestSize {
		return nil, fmt.Errorf("invalid digest length %d", len(digest))
	}

	switch k.curve {
	case Ed25519:
		return ed25519.Sign(k.ed25519, digest), nil

	case Secp256k1:
		sig := secpecdsa.Sign(k.secp256k1, digest)
		r, s := sig.R(), sig.S()
		out := make([]byte, 0, SignatureSize)
		rb, sb := r.Bytes(), s.Bytes()
		out = append(out, rb[:]...)
		return append(out, sb[:]...), nil

	default:
		r, s, err := ecdsa.Sign(rand.Reader, k.p256, digest)
		if err != nil {
			return nil, fmt.Errorf("could not sign with p256 key: %w", err)
		}
		s = lowS(s, k.p256.Curve.Params().N)
		out := make([]byte, SignatureSize)
		r.FillBytes(out[:32])
		s.FillBytes(out[32:])
		return out, nil
	}
}

// lowS normalizes s to the lower half of the group order.
func lowS(s, n *big.Int) *big.Int {
	half := new(big.Int).Rsh(n, 1)
	if s.Cmp(half) > 0 {
		return new(big.Int).Sub(n, s)
	}
	return s
}

// Verify checks a 64 byte detached signature over digest against a base58
// public key.
func Verify(publicKey string, digest []byte, signature []byte) error {
	tagged, err := codec.EncodePublicKey(publicKey)
	if err != nil {
		return err
	}
	if len(signature) != SignatureSize {
		return fmt.Errorf("invalid signature length %d", len(signature))
	}
	raw := tagged[1:]

	switch Curve(tagged[0]) {
	case Ed25519:
		if !ed25519.Verify(ed25519.PublicKey(raw), digest, signature) {
			return ErrInvalidSignature
		}
		return nil

	case Secp256k1:
		pub, err := secp256k1.ParsePubKey(raw)
		if err != nil {
			return fmt.Errorf("could not parse secp256k1 public key: %w", err)
		}
		var r, s secp256k1.ModNScalar
		if overflow := r.SetByteSlice(signature[:32]); overflow {
			return ErrInvalidSignature
		}
		if overflow := s.SetByteSlice(signature[32:]); overflow {
			return ErrInvalidSignature
		}
		if !secpecdsa.NewSignature(&r, &s).Verify(digest, pub) {
			return ErrInvalidSignature
		}
		return nil

	default:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), raw)
		if x == nil {
			return fmt.Errorf("could not parse p256 public key")
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		r := new(big.Int).SetBytes(signature[:32])
		s := new(big.Int).SetBytes(signature[32:])
		if !ecdsa.Verify(pub, digest, r, s) {
			return ErrInvalidSignature
		}
		return nil
	}
}
