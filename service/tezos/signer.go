package tezos

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/brojonat/tzwriter/service/tezos/crypto"
)

// OperationWatermark is prepended to a forged operation group before it is
// hashed or handed to a hardware device.
const OperationWatermark byte = 0x03

// Signer produces a raw 64 byte detached signature over watermarked
// operation bytes.
type Signer interface {
	Sign(ctx context.Context, watermarked []byte, derivationPath string) ([]byte, error)
}

// HardwareDevice is the transport to a hardware wallet.
type HardwareDevice interface {
	SignOperation(ctx context.Context, derivationPath string, watermarkedHex string) ([]byte, error)
}

// SoftwareSigner signs with a secret key held in memory.
type SoftwareSigner struct {
	key *crypto.SecretKey
}

// NewSoftwareSigner decodes the secret key of keyStore.
func NewSoftwareSigner(keyStore KeyStore) (*SoftwareSigner, error) {
	key, err := crypto.ParseSecretKey(keyStore.SecretKey)
	if err != nil {
		return nil, err
	}
	if keyStore.PublicKey != "" && key.PublicKey() != keyStore.PublicKey {
		return nil, errors.New("secret key does not match public key")
	}
	return &SoftwareSigner{key: key}, nil
}

// Sign hashes watermarked with blake2b-256 and signs the digest. The
// derivation path is ignored.
func (s *SoftwareSigner) Sign(_ context.Context, watermarked []byte, _ string) ([]byte, error) {
	return s.key.Sign(crypto.Digest(watermarked))
}

// HardwareSigner delegates signing to a device.
type HardwareSigner struct {
	device HardwareDevice
}

// NewHardwareSigner creates a signer backed by device.
func NewHardwareSigner(device HardwareDevice) *HardwareSigner {
	return &HardwareSigner{device: device}
}

// Sign sends the watermarked bytes and derivation path to the device. The
// device hashes them itself.
func (s *HardwareSigner) Sign(ctx context.Context, watermarked []byte, derivationPath string) ([]byte, error) {
	return s.device.SignOperation(ctx, derivationPath, hex.EncodeToString(watermarked))
}

// SignerFor selects the signer matching the store type of keyStore. device
// is only used for hardware stores.
func SignerFor(keyStore KeyStore, device HardwareDevice) (Signer, error) {
	switch keyStore.StoreType {
	case StoreHardware:
		if device == nil {
			return nil, errors.New("hardware key store without a device")
		}
		return NewHardwareSigner(device), nil
	case StoreSoftware, StoreFundraiser:
		return NewSoftwareSigner(keyStore)
	default:
		return nil, fmt.Errorf("unsupported store type %s", keyStore.StoreType)
	}
}

// KeyStoreFromSecretKey builds a software KeyStore from an encoded secret
// key.
func KeyStoreFromSecretKey(secretKey string) (KeyStore, error) {
	key, err := crypto.ParseSecretKey(secretKey)
	if err != nil {
		return KeyStore{}, err
	}
	return KeyStore{
		PublicKey:     key.PublicKey(),
		SecretKey:     key.String(),
		PublicKeyHash: key.PublicKeyHash(),
		StoreType:     StoreSoftware,
	}, nil
}

// SignOperationGroup watermarks forgedHex, signs it and appends the raw
// signature to the forged bytes.
func SignOperationGroup(ctx context.Context, forgedHex string, keyStore KeyStore, signer Signer, derivationPath string) (SignedOperationGroup, error) {
	forged, err := hex.DecodeString(forgedHex)
	if err != nil {
		return SignedOperationGroup{}, fmt.Errorf("could not decode forged operation: %w", err)
	}
	curve, err := crypto.CurveOfPublicKey(keyStore.PublicKey)
	if err != nil {
		return SignedOperationGroup{}, &SigningError{StoreType: keyStore.StoreType, Err: err}
	}

	watermarked := make([]byte, 0, len(forged)+1)
	watermarked = append(watermarked, OperationWatermark)
	watermarked = append(watermarked, forged...)

	signature, err := signer.Sign(ctx, watermarked, derivationPath)
	if err != nil {
		return SignedOperationGroup{}, &SigningError{StoreType: keyStore.StoreType, Err: err}
	}
	if len(signature) != crypto.SignatureSize {
		return SignedOperationGroup{}, &SigningError{
			StoreType: keyStore.StoreType,
			Err:       fmt.Errorf("signature is %d bytes, expected %d", len(signature), crypto.SignatureSize),
		}
	}

	signed := make([]byte, 0, len(forged)+len(signature))
	signed = append(signed, forged...)
	signed = append(signed, signature...)
	return SignedOperationGroup{
		Bytes:     signed,
		Signature: crypto.EncodeSignature(curve, signature),
	}, nil
}
