package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) map[string]*SecretKey {
	t.Helper()

	ed, err := NewEd25519SecretKey(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)
	sp, err := NewSecp256k1SecretKey(bytes.Repeat([]byte{0x02}, 32))
	require.NoError(t, err)
	p2, err := NewP256SecretKey(bytes.Repeat([]byte{0x03}, 32))
	require.NoError(t, err)

	return map[string]*SecretKey{"ed25519": ed, "secp256k1": sp, "p256": p2}
}

func TestSecretKey_Encoding(t *testing.T) {
	prefixes := map[string][3]string{
		"ed25519":   {"edsk", "edpk", "tz1"},
		"secp256k1": {"spsk", "sppk", "tz2"},
		"p256":      {"p2sk", "p2pk", "tz3"},
	}

	for name, key := range testKeys(t) {
		t.Run(name, func(t *testing.T) {
			want := prefixes[name]
			assert.True(t, strings.HasPrefix(key.String(), want[0]), key.String())
			assert.True(t, strings.HasPrefix(key.PublicKey(), want[1]), key.PublicKey())
			assert.True(t, strings.HasPrefix(key.PublicKeyHash(), want[2]), key.PublicKeyHash())

			parsed, err := ParseSecretKey(key.String())
			require.NoError(t, err)
			assert.Equal(t, key.PublicKey(), parsed.PublicKey())
			assert.Equal(t, key.Curve(), parsed.Curve())

			curve, err := CurveOfPublicKey(key.PublicKey())
			require.NoError(t, err)
			assert.Equal(t, key.Curve(), curve)
		})
	}
}

func TestSecretKey_SignVerify(t *testing.T) {
	digest := Digest([]byte("operation bytes"))
	require.Len(t, digest, DigestSize)

	for name, key := range testKeys(t) {
		t.Run(name, func(t *testing.T) {
			signature, err := key.Sign(digest)
			require.NoError(t, err)
			require.Len(t, signature, SignatureSize)

			assert.NoError(t, Verify(key.PublicKey(), digest, signature))

			other := Digest([]byte("other bytes"))
			assert.ErrorIs(t, Verify(key.PublicKey(), other, signature), ErrInvalidSignature)

			encoded := EncodeSignature(key.Curve(), signature)
			decoded, err := DecodeSignature(encoded)
			require.NoError(t, err)
			assert.Equal(t, signature, decoded)
		})
	}
}

func TestSecretKey_Ed25519Deterministic(t *testing.T) {
	key := testKeys(t)["ed25519"]
	digest := Digest([]byte("payload"))

	first, err := key.Sign(digest)
	require.NoError(t, err)
	second, err := key.Sign(digest)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSign_InvalidDigest(t *testing.T) {
	key := testKeys(t)["ed25519"]
	_, err := key.Sign([]byte("short"))
	assert.Error(t, err)
}

func TestEncodeSignature_Prefixes(t *testing.T) {
	raw := make([]byte, SignatureSize)
	assert.True(t, strings.HasPrefix(EncodeSignature(Ed25519, raw), "edsig"))
	assert.True(t, strings.HasPrefix(EncodeSignature(Secp256k1, raw), "spsig1"))
	assert.True(t, strings.HasPrefix(EncodeSignature(P256, raw), "p2sig"))
}

func TestParseSecretKey_Invalid(t *testing.T) {
	for _, input := range []string{"", "xxsk123", "edskNotBase58!!", "spsk1"} {
		_, err := ParseSecretKey(input)
		assert.Error(t, err, input)
	}
}
