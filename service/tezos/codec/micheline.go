package codec

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidMicheline is returned for canonical JSON that is not a valid
// Micheline expression.
var ErrInvalidMicheline = errors.New("invalid micheline expression")

// Micheline node tags.
const (
	michelineInt               byte = 0
	michelineString            byte = 1
	michelineSequence          byte = 2
	michelinePrimNoArgs        byte = 3
	michelinePrimNoArgsAnnots  byte = 4
	michelinePrimOneArg        byte = 5
	michelinePrimOneArgAnnots  byte = 6
	michelinePrimTwoArgs       byte = 7
	michelinePrimTwoArgsAnnots byte = 8
	michelinePrimGeneric       byte = 9
	michelineBytes             byte = 10
)

// primitives lists Michelson primitive names in opcode order.
var primitives = []string{
	"parameter", "storage", "code", "False", "Elt", "Left", "None", "Pair",
	"Right", "Some", "True", "Unit", "PACK", "UNPACK", "BLAKE2B", "SHA256",
	"SHA512", "ABS", "ADD", "AMOUNT", "AND", "BALANCE", "CAR", "CDR",
	"CHECK_SIGNATURE", "COMPARE", "CONCAT", "CONS", "CREATE_ACCOUNT",
	"CREATE_CONTRACT", "IMPLICIT_ACCOUNT", "DIP", "DROP", "DUP", "EDIV",
	"EMPTY_MAP", "EMPTY_SET", "EQ", "EXEC", "FAILWITH", "GE", "GET", "GT",
	"HASH_KEY", "IF", "IF_CONS", "IF_LEFT", "IF_NONE", "INT", "LAMBDA", "LE",
	"LEFT", "LOOP", "LSL", "LSR", "LT", "MAP", "MEM", "MUL", "NEG", "NEQ",
	"NIL", "NONE", "NOT", "NOW", "OR", "PAIR", "PUSH", "RIGHT", "SIZE",
	"SOME", "SOURCE", "SENDER", "SELF", "STEPS_TO_QUOTA", "SUB", "SWAP",
	"TRANSFER_TOKENS", "SET_DELEGATE", "UNIT", "UPDATE", "XOR", "ITER",
	"LOOP_LEFT", "ADDRESS", "CONTRACT", "ISNAT", "CAST", "RENAME", "bool",
	"contract", "int", "key", "key_hash", "lambda", "list", "map", "big_map",
	"nat", "option", "or", "pair", "set", "signature", "string", "bytes",
	"mutez", "timestamp", "unit", "operation", "address", "SLICE", "DIG",
	"DUG", "EMPTY_BIG_MAP", "APPLY", "chain_id", "CHAIN_ID",
}

var primitiveCodes = func() map[string]byte {
	codes := make(map[string]byte, len(primitives))
	for i, name := range primitives {
		codes[name] = byte(i)
	}
	return codes
}()

// EncodeMicheline converts a canonical JSON Micheline expression to its
// binary form.
func EncodeMicheline(expression []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(expression))
	dec.UseNumber()

	var node any
	if err := dec.Decode(&node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMicheline, err)
	}

	e := NewEncoder()
	if err := encodeNode(e, node); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

func encodeNode(e *Encoder, node any) error {
	switch n := node.(type) {
	case []any:
		inner := NewEncoder()
		for _, child := range n {
			if err := encodeNode(inner, child); err != nil {
				return err
			}
		}
		e.Byte(michelineSequence)
		e.Dynamic(inner.Bytes())
		return nil

	case map[string]any:
		return encodeObject(e, n)

	default:
		return fmt.Errorf("%w: unexpected node %v", ErrInvalidMicheline, node)
	}
}

func encodeObject(e *Encoder, n map[string]any) error {
	if v, ok := n["int"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: int literal must be a string", ErrInvalidMicheline)
		}
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("%w: invalid int literal %q", ErrInvalidMicheline, s)
		}
		e.Byte(michelineInt)
		e.Integer(i)
		return nil
	}

	if v, ok := n["string"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: string literal must be a string", ErrInvalidMicheline)
		}
		e.Byte(michelineString)
		e.Dynamic([]byte(s))
		return nil
	}

	if v, ok := n["bytes"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: bytes literal must be a string", ErrInvalidMicheline)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("%w: invalid bytes literal %q", ErrInvalidMicheline, s)
		}
		e.Byte(michelineBytes)
		e.Dynamic(b)
		return nil
	}

	name, ok := n["prim"].(string)
	if !ok {
		return fmt.Errorf("%w: object without prim, int, string or bytes", ErrInvalidMicheline)
	}
	code, ok := primitiveCodes[name]
	if !ok {
		return fmt.Errorf("%w: unknown primitive %q", ErrInvalidMicheline, name)
	}

	var args []any
	if raw, present := n["args"]; present {
		args, ok = raw.([]any)
		if !ok {
			return fmt.Errorf("%w: args of %s must be an array", ErrInvalidMicheline, name)
		}
	}

	var annots []string
	if raw, present := n["annots"]; present {
		list, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("%w: annots of %s must be an array", ErrInvalidMicheline, name)
		}
		for _, a := range list {
			s, ok := a.(string)
			if !ok {
				return fmt.Errorf("%w: annotation of %s must be a string", ErrInvalidMicheline, name)
			}
			annots = append(annots, s)
		}
	}

	if len(args) > 2 {
		inner := NewEncoder()
		for _, arg := range args {
			if err := encodeNode(inner, arg); err != nil {
				return err
			}
		}
		e.Byte(michelinePrimGeneric)
		e.Byte(code)
		e.Dynamic(inner.Bytes())
		e.Dynamic([]byte(strings.Join(annots, " ")))
		return nil
	}

	tag := michelinePrimNoArgs + byte(len(args))*2
	if len(annots) > 0 {
		tag++
	}
	e.Byte(tag)
	e.Byte(code)
	for _, arg := range args {
		if err := encodeNode(e, arg); err != nil {
			return err
		}
	}
	if len(annots) > 0 {
		e.Dynamic([]byte(strings.Join(annots, " ")))
	}
	return nil
}

// Micheline reads one binary Micheline expression and returns it as
// canonical JSON.
func (d *Decoder) Micheline() (json.RawMessage, error) {
	node, err := decodeNode(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(node)
}

// DecodeMicheline converts a complete binary Micheline expression to
// canonical JSON.
func DecodeMicheline(data []byte) (json.RawMessage, error) {
	d := NewDecoder(data)
	out, err := d.Micheline()
	if err != nil {
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidMicheline, d.Remaining())
	}
	return out, nil
}

func decodeNode(d *Decoder) (any, error) {
	tag, err := d.Byte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case michelineInt:
		i, err := d.Integer()
		if err != nil {
			return nil, err
		}
		return map[string]any{"int": i.String()}, nil

	case michelineString:
		b, err := d.Dynamic()
		if err != nil {
			return nil, err
		}
		return map[string]any{"string": string(b)}, nil

	case michelineBytes:
		b, err := d.Dynamic()
		if err != nil {
			return nil, err
		}
		return map[string]any{"bytes": hex.EncodeToString(b)}, nil

	case michelineSequence:
		b, err := d.Dynamic()
		if err != nil {
			return nil, err
		}
		return decodeList(NewDecoder(b))

	case michelinePrimGeneric:
		name, err := decodePrimitive(d)
		if err != nil {
			return nil, err
		}
		b, err := d.Dynamic()
		if err != nil {
			return nil, err
		}
		args, err := decodeList(NewDecoder(b))
		if err != nil {
			return nil, err
		}
		annots, err := d.Dynamic()
		if err != nil {
			return nil, err
		}
		return primitiveNode(name, args, string(annots)), nil

	case michelinePrimNoArgs, michelinePrimNoArgsAnnots,
		michelinePrimOneArg, michelinePrimOneArgAnnots,
		michelinePrimTwoArgs, michelinePrimTwoArgsAnnots:
		name, err := decodePrimitive(d)
		if err != nil {
			return nil, err
		}
		count := int(tag-michelinePrimNoArgs) / 2
		args := make([]any, 0, count)
		for i := 0; i < count; i++ {
			arg, err := decodeNode(d)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		var annots string
		if (tag-michelinePrimNoArgs)%2 == 1 {
			b, err := d.Dynamic()
			if err != nil {
				return nil, err
			}
			annots = string(b)
		}
		return primitiveNode(name, args, annots), nil

	default:
		return nil, fmt.Errorf("%w: unknown node tag %d at offset %d", ErrInvalidMicheline, tag, d.pos-1)
	}
}

func decodeList(d *Decoder) ([]any, error) {
	list := []any{}
	for d.Remaining() > 0 {
		node, err := decodeNode(d)
		if err != nil {
			return nil, err
		}
		list = append(list, node)
	}
	return list, nil
}

func decodePrimitive(d *Decoder) (string, error) {
	code, err := d.Byte()
	if err != nil {
		return "", err
	}
	if int(code) >= len(primitives) {
		return "", fmt.Errorf("%w: unknown primitive code %d", ErrInvalidMicheline, code)
	}
	return primitives[code], nil
}

func primitiveNode(name string, args []any, annots string) map[string]any {
	node := map[string]any{"prim": name}
	if len(args) > 0 {
		node["args"] = args
	}
	if annots != "" {
		node["annots"] = strings.Fields(annots)
	}
	return node
}
