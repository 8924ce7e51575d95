// Package tezos builds, forges, signs and submits Tezos operation groups.
//
// A submission runs as a strictly sequential pipeline: read the chain head,
// forge the group, sign it, preapply it on the node, check the applied
// results and inject. Nothing in this package is process-global, so
// submissions for different accounts can run concurrently. Submissions for
// the same account are not serialized: two concurrent calls can read the
// same counter and one of them will be rejected by the node. Callers that
// need ordering must run one submission per account at a time.
package tezos

import (
	"encoding/json"
	"fmt"
)

// StoreType tells how the secret key of a KeyStore is held.
type StoreType int

const (
	StoreSoftware StoreType = iota
	StoreFundraiser
	StoreHardware
)

func (s StoreType) String() string {
	switch s {
	case StoreSoftware:
		return "software"
	case StoreFundraiser:
		return "fundraiser"
	case StoreHardware:
		return "hardware"
	default:
		return fmt.Sprintf("store(%d)", int(s))
	}
}

// ParseStoreType is the inverse of StoreType.String.
func ParseStoreType(s string) (StoreType, error) {
	switch s {
	case "", "software":
		return StoreSoftware, nil
	case "fundraiser":
		return StoreFundraiser, nil
	case "hardware":
		return StoreHardware, nil
	default:
		return 0, fmt.Errorf("unknown store type %q", s)
	}
}

// KeyStore is the key material for one account. SecretKey is empty for
// hardware stores.
type KeyStore struct {
	PublicKey     string
	SecretKey     string
	PublicKeyHash string
	StoreType     StoreType
}

// SignedOperationGroup is a forged group followed by its detached signature.
type SignedOperationGroup struct {
	// Bytes is the forged group concatenated with the raw signature.
	Bytes []byte

	// Signature is the prefixed base58 signature.
	Signature string
}

// BlockHead is the part of the chain head a submission anchors to.
type BlockHead struct {
	Hash     string `json:"hash"`
	Protocol string `json:"protocol"`
}

// AppliedOperationResult is the node's preapply answer for one operation
// group. Raw keeps the node's bytes so the result can be handed back
// unchanged.
type AppliedOperationResult struct {
	Kind     string                   `json:"kind,omitempty"`
	ID       string                   `json:"id,omitempty"`
	Metadata json.RawMessage          `json:"metadata,omitempty"`
	Contents []AppliedOperationResult `json:"contents,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the result and keeps a copy of the raw document.
func (r *AppliedOperationResult) UnmarshalJSON(data []byte) error {
	type alias AppliedOperationResult
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = AppliedOperationResult(a)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the node's original document when there is one.
func (r AppliedOperationResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	type alias AppliedOperationResult
	return json.Marshal(alias(r))
}

// OperationResult is what a successful submission returns.
// OperationGroupID is the injection response body, verbatim. OperationHash
// is the same id computed locally from the signed bytes.
type OperationResult struct {
	Results          AppliedOperationResult `json:"results"`
	OperationGroupID string                 `json:"operationGroupID"`
	OperationHash    string                 `json:"operationHash,omitempty"`
}
