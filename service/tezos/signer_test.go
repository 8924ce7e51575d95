package tezos

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/tzwriter/service/tezos/crypto"
)

// recordingSigner returns a fixed signature and keeps what it was asked to
// sign.
type recordingSigner struct {
	signature []byte
	err       error
	got       []byte
	path      string
}

func (s *recordingSigner) Sign(_ context.Context, watermarked []byte, path string) ([]byte, error) {
	s.got = append([]byte(nil), watermarked...)
	s.path = path
	return s.signature, s.err
}

type fakeDevice struct {
	path      string
	payload   string
	signature []byte
	err       error
}

func (d *fakeDevice) SignOperation(_ context.Context, path string, watermarkedHex string) ([]byte, error) {
	d.path = path
	d.payload = watermarkedHex
	return d.signature, d.err
}

func TestSignOperationGroup_Watermark(t *testing.T) {
	ks := testKeyStore(t)
	forged, err := ForgeOperations(testBranch(1), []Operation{
		Transaction{Source: ks.PublicKeyHash, Destination: testAddress(2), Amount: 1, Fee: 1, Counter: 1},
	})
	require.NoError(t, err)
	forgedBytes, err := hex.DecodeString(forged)
	require.NoError(t, err)

	signer := &recordingSigner{signature: bytes.Repeat([]byte{0xaa}, crypto.SignatureSize)}
	signed, err := SignOperationGroup(context.Background(), forged, ks, signer, "44'/1729'/0'/0'")
	require.NoError(t, err)

	require.Len(t, signer.got, len(forgedBytes)+1)
	assert.Equal(t, OperationWatermark, signer.got[0])
	assert.Equal(t, forgedBytes, signer.got[1:])
	assert.Equal(t, "44'/1729'/0'/0'", signer.path)

	assert.Equal(t, append(append([]byte{}, forgedBytes...), signer.signature...), signed.Bytes)
	assert.NotEqual(t, OperationWatermark, signed.Bytes[0])
	assert.True(t, strings.HasPrefix(signed.Signature, "edsig"))
}

func TestSoftwareSigner_Verifies(t *testing.T) {
	account := testAccount(t)
	forged, err := ForgeOperations(testBranch(2), []Operation{
		Delegation{Source: account.KeyStore.PublicKeyHash, Fee: 1258, Counter: 3, GasLimit: 10000},
	})
	require.NoError(t, err)

	signed, err := SignOperationGroup(context.Background(), forged, account.KeyStore, account.Signer, "")
	require.NoError(t, err)

	forgedBytes, _ := hex.DecodeString(forged)
	signature := signed.Bytes[len(forgedBytes):]
	digest := crypto.Digest(append([]byte{OperationWatermark}, forgedBytes...))
	assert.NoError(t, crypto.Verify(account.KeyStore.PublicKey, digest, signature))

	decoded, err := crypto.DecodeSignature(signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, signature, decoded)
}

func TestHardwareSigner(t *testing.T) {
	ks := testKeyStore(t)
	ks.SecretKey = ""
	ks.StoreType = StoreHardware

	device := &fakeDevice{signature: bytes.Repeat([]byte{0x01}, crypto.SignatureSize)}
	signer, err := SignerFor(ks, device)
	require.NoError(t, err)
	require.IsType(t, &HardwareSigner{}, signer)

	signed, err := SignOperationGroup(context.Background(), "cafe", ks, signer, "44'/1729'/0'/0'")
	require.NoError(t, err)
	assert.Equal(t, "03cafe", device.payload)
	assert.Equal(t, "44'/1729'/0'/0'", device.path)
	assert.Equal(t, "cafe"+strings.Repeat("01", crypto.SignatureSize), hex.EncodeToString(signed.Bytes))
}

func TestSignerFor(t *testing.T) {
	ks := testKeyStore(t)

	signer, err := SignerFor(ks, nil)
	require.NoError(t, err)
	assert.IsType(t, &SoftwareSigner{}, signer)

	ks.StoreType = StoreFundraiser
	signer, err = SignerFor(ks, nil)
	require.NoError(t, err)
	assert.IsType(t, &SoftwareSigner{}, signer)

	ks.StoreType = StoreHardware
	_, err = SignerFor(ks, nil)
	assert.Error(t, err)

	other := testKeyStore(t)
	other.PublicKey = "edpkNotMine"
	_, err = NewSoftwareSigner(other)
	assert.Error(t, err)
}

func TestSignOperationGroup_Failures(t *testing.T) {
	ks := testKeyStore(t)

	backendErr := errors.New("device disconnected")
	_, err := SignOperationGroup(context.Background(), "cafe", ks, &recordingSigner{err: backendErr}, "")
	var signingErr *SigningError
	require.ErrorAs(t, err, &signingErr)
	assert.ErrorIs(t, err, backendErr)

	_, err = SignOperationGroup(context.Background(), "cafe", ks, &recordingSigner{signature: []byte{1, 2, 3}}, "")
	assert.ErrorAs(t, err, &signingErr)

	_, err = SignOperationGroup(context.Background(), "zz", ks, &recordingSigner{}, "")
	assert.Error(t, err)
}
