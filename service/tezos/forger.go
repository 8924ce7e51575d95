package tezos

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/brojonat/tzwriter/service/tezos/codec"
)

// Forger turns a branch and an ordered list of operations into the hex
// encoded bytes that get signed.
type Forger interface {
	Forge(ctx context.Context, branch string, ops []Operation) (string, error)
}

// Node is the write side of the node RPC. Request bodies are JSON; the raw
// response body is returned so callers own its parsing.
type Node interface {
	ForgeOperations(ctx context.Context, body []byte) ([]byte, error)
	PreapplyOperations(ctx context.Context, body []byte) ([]byte, error)
	InjectOperation(ctx context.Context, body []byte) ([]byte, error)
}

// LocalForger encodes operations in process. It is deterministic and never
// talks to the network.
type LocalForger struct{}

// Forge implements Forger.
func (LocalForger) Forge(_ context.Context, branch string, ops []Operation) (string, error) {
	return ForgeOperations(branch, ops)
}

// ForgeOperations encodes branch followed by each operation in order.
func ForgeOperations(branch string, ops []Operation) (string, error) {
	b, err := codec.EncodeBlockHash(branch)
	if err != nil {
		return "", fmt.Errorf("invalid branch %q: %w", branch, err)
	}

	e := codec.NewEncoder()
	e.Raw(b)
	for i, op := range ops {
		if err := op.forge(e); err != nil {
			return "", fmt.Errorf("could not forge %s operation %d: %w", op.Kind(), i, err)
		}
	}
	return e.Hex(), nil
}

// RemoteValidatingForger asks the node to forge and decodes the answer
// locally to check it against the requested operations. It is NOT
// trustless: fields outside the checked set (counters, limits, parameters,
// script bodies) are taken on the node's word. Use LocalForger unless the
// local codec cannot encode the operation.
type RemoteValidatingForger struct {
	node   Node
	logger *slog.Logger
}

// NewRemoteValidatingForger creates a forger backed by node.
func NewRemoteValidatingForger(node Node, logger *slog.Logger) *RemoteValidatingForger {
	if logger == nil {
		logger = defaultLogger()
	}
	return &RemoteValidatingForger{node: node, logger: logger}
}

type forgeRequest struct {
	Branch   string      `json:"branch"`
	Contents []Operation `json:"contents"`
}

// Forge implements Forger.
func (f *RemoteValidatingForger) Forge(ctx context.Context, branch string, ops []Operation) (string, error) {
	f.logger.WarnContext(ctx, "forging operations remotely; result is validated but not trustless",
		"branch", branch,
		"operations", len(ops),
	)

	payload, err := json.Marshal(forgeRequest{Branch: branch, Contents: ops})
	if err != nil {
		return "", fmt.Errorf("could not encode forge request: %w", err)
	}

	body, err := f.node.ForgeOperations(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("remote forge failed: %w", err)
	}

	var forged string
	if err := json.Unmarshal(body, &forged); err != nil {
		return "", &ResponseParseError{Endpoint: "forge", Body: string(body), Payload: string(payload), Err: err}
	}
	if _, err := hex.DecodeString(forged); err != nil {
		return "", &ResponseParseError{Endpoint: "forge", Body: string(body), Payload: string(payload), Err: err}
	}

	if err := ValidateForged(forged, branch, ops); err != nil {
		return "", err
	}
	return forged, nil
}

// ValidateForged decodes forgedHex and compares it with what was requested.
// Reveals, transactions, delegations and originations are compared on
// kind, fee and their kind specific fields. Activations are decoded but not
// compared. A tag the decoder does not know fails validation, since the
// requested operation at that position was not forged.
func ValidateForged(forgedHex, branch string, ops []Operation) error {
	raw, err := hex.DecodeString(forgedHex)
	if err != nil {
		return &ForgeValidationError{Err: fmt.Errorf("invalid hex: %w", err)}
	}

	d := codec.NewDecoder(raw)
	decodedBranch, err := d.BlockHash()
	if err != nil {
		return &ForgeValidationError{Err: fmt.Errorf("could not read branch: %w", err)}
	}
	if decodedBranch != branch {
		return &ForgeValidationError{Err: fmt.Errorf("branch %s, expected %s", decodedBranch, branch)}
	}

	i := 0
	for ; d.Remaining() > 0; i++ {
		decoded, err := decodeOperation(d)
		if i >= len(ops) {
			return &ForgeValidationError{Index: i, Err: errors.New("node forged more operations than requested")}
		}
		want := ops[i]
		if errors.Is(err, errUnknownTag) {
			return &ForgeValidationError{Kind: want.Kind(), Index: i, Err: fmt.Errorf("forged as unknown operation: %w", err)}
		}
		if err != nil {
			return &ForgeValidationError{Kind: want.Kind(), Index: i, Err: err}
		}
		if decoded.Kind() != want.Kind() {
			return &ForgeValidationError{Kind: want.Kind(), Index: i, Err: fmt.Errorf("forged as %s", decoded.Kind())}
		}
		if err := compareOperation(want, decoded); err != nil {
			return &ForgeValidationError{Kind: want.Kind(), Index: i, Err: err}
		}
	}
	if i != len(ops) {
		return &ForgeValidationError{Index: i, Err: fmt.Errorf("node forged %d of %d operations", i, len(ops))}
	}
	return nil
}

func compareOperation(want, got Operation) error {
	var result *multierror.Error
	mismatch := func(field string, expected, actual any) {
		if expected != actual {
			result = multierror.Append(result, fmt.Errorf("%s is %v, expected %v", field, actual, expected))
		}
	}

	switch w := want.(type) {
	case Reveal:
		g := got.(Reveal)
		mismatch("fee", w.Fee, g.Fee)

	case Transaction:
		g := got.(Transaction)
		mismatch("fee", w.Fee, g.Fee)
		mismatch("amount", w.Amount, g.Amount)
		mismatch("destination", w.Destination, g.Destination)

	case Delegation:
		g := got.(Delegation)
		mismatch("fee", w.Fee, g.Fee)
		mismatch("delegate", w.Delegate, g.Delegate)

	case Origination:
		g := got.(Origination)
		mismatch("fee", w.Fee, g.Fee)
		mismatch("balance", w.Balance, g.Balance)
		mismatch("spendable", w.Spendable, g.Spendable)
		mismatch("delegatable", w.Delegatable, g.Delegatable)
		mismatch("delegate", w.Delegate, g.Delegate)
		mismatch("script", w.Script != nil, g.Script != nil)
	}
	return result.ErrorOrNil()
}
