package tezos

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/brojonat/tzwriter/service/tezos/codec"
)

// errUnknownTag is returned by decodeOperation for a tag outside the five
// operation kinds.
var errUnknownTag = errors.New("unknown operation tag")

// DecodeOperations parses a forged (unsigned) operation group.
func DecodeOperations(forgedHex string) (string, []Operation, error) {
	raw, err := hex.DecodeString(forgedHex)
	if err != nil {
		return "", nil, fmt.Errorf("could not decode hex: %w", err)
	}

	d := codec.NewDecoder(raw)
	branch, err := d.BlockHash()
	if err != nil {
		return "", nil, fmt.Errorf("could not read branch: %w", err)
	}

	var ops []Operation
	for d.Remaining() > 0 {
		op, err := decodeOperation(d)
		if err != nil {
			return "", nil, fmt.Errorf("operation %d: %w", len(ops), err)
		}
		ops = append(ops, op)
	}
	return branch, ops, nil
}

func decodeOperation(d *codec.Decoder) (Operation, error) {
	tag, err := d.Byte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagActivation:
		pkh, err := d.Raw(codec.PublicKeyHashSize)
		if err != nil {
			return nil, err
		}
		secret, err := d.Raw(activationSecretSize)
		if err != nil {
			return nil, err
		}
		return Activation{
			PublicKeyHash: codec.EncodeBase58Check(codec.PrefixEd25519PublicKeyHash, pkh),
			Secret:        hex.EncodeToString(secret),
		}, nil

	case tagReveal:
		var op Reveal
		if err := decodeManagerHeader(d, &op.Source, &op.Fee, &op.Counter, &op.GasLimit, &op.StorageLimit); err != nil {
			return nil, err
		}
		if op.PublicKey, err = d.PublicKey(); err != nil {
			return nil, err
		}
		return op, nil

	case tagTransaction:
		var op Transaction
		if err := decodeManagerHeader(d, &op.Source, &op.Fee, &op.Counter, &op.GasLimit, &op.StorageLimit); err != nil {
			return nil, err
		}
		if op.Amount, err = d.Natural(); err != nil {
			return nil, err
		}
		if op.Destination, err = d.ContractID(); err != nil {
			return nil, err
		}
		hasParams, err := d.Bool()
		if err != nil {
			return nil, err
		}
		if hasParams {
			params, err := d.Dynamic()
			if err != nil {
				return nil, err
			}
			if op.Parameters, err = codec.DecodeMicheline(params); err != nil {
				return nil, err
			}
		}
		return op, nil

	case tagOrigination:
		var op Origination
		if err := decodeManagerHeader(d, &op.Source, &op.Fee, &op.Counter, &op.GasLimit, &op.StorageLimit); err != nil {
			return nil, err
		}
		if _, err := d.PublicKeyHash(); err != nil {
			return nil, err
		}
		if op.Balance, err = d.Natural(); err != nil {
			return nil, err
		}
		if op.Spendable, err = d.Bool(); err != nil {
			return nil, err
		}
		if op.Delegatable, err = d.Bool(); err != nil {
			return nil, err
		}
		if op.Delegate, err = decodeOptionalPublicKeyHash(d); err != nil {
			return nil, err
		}
		hasScript, err := d.Bool()
		if err != nil {
			return nil, err
		}
		if hasScript {
			code, err := d.Dynamic()
			if err != nil {
				return nil, err
			}
			storage, err := d.Dynamic()
			if err != nil {
				return nil, err
			}
			op.Script = &Script{}
			if op.Script.Code, err = codec.DecodeMicheline(code); err != nil {
				return nil, err
			}
			if op.Script.Storage, err = codec.DecodeMicheline(storage); err != nil {
				return nil, err
			}
		}
		return op, nil

	case tagDelegation:
		var op Delegation
		if err := decodeManagerHeader(d, &op.Source, &op.Fee, &op.Counter, &op.GasLimit, &op.StorageLimit); err != nil {
			return nil, err
		}
		if op.Delegate, err = decodeOptionalPublicKeyHash(d); err != nil {
			return nil, err
		}
		return op, nil

	default:
		return nil, fmt.Errorf("%w %d at offset %d", errUnknownTag, tag, d.Offset()-1)
	}
}

func decodeManagerHeader(d *codec.Decoder, source *string, fee, counter, gas, storage *uint64) error {
	var err error
	if *source, err = d.ContractID(); err != nil {
		return err
	}
	for _, field := range []*uint64{fee, counter, gas, storage} {
		if *field, err = d.Natural(); err != nil {
			return err
		}
	}
	return nil
}

func decodeOptionalPublicKeyHash(d *codec.Decoder) (string, error) {
	present, err := d.Bool()
	if err != nil || !present {
		return "", err
	}
	return d.PublicKeyHash()
}
