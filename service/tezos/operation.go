package tezos

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/brojonat/tzwriter/service/tezos/codec"
)

// OperationKind is the "kind" of an operation as the node names it.
type OperationKind string

const (
	KindActivation  OperationKind = "activate_account"
	KindReveal      OperationKind = "reveal"
	KindTransaction OperationKind = "transaction"
	KindOrigination OperationKind = "origination"
	KindDelegation  OperationKind = "delegation"
)

// Binary operation tags.
const (
	tagActivation  byte = 4
	tagReveal      byte = 7
	tagTransaction byte = 8
	tagOrigination byte = 9
	tagDelegation  byte = 10
)

// appliedKinds are the kinds a healthy preapply result may report.
var appliedKinds = map[string]struct{}{
	string(KindActivation):  {},
	string(KindReveal):      {},
	string(KindTransaction): {},
	string(KindOrigination): {},
	string(KindDelegation):  {},
}

// Operation is one of Reveal, Transaction, Delegation, Origination or
// Activation. The set is closed: forge is unexported.
type Operation interface {
	Kind() OperationKind
	forge(e *codec.Encoder) error
}

// Stackable is a manager operation: it is paid for by a source account and
// consumes one of its counter slots.
type Stackable interface {
	Operation
	GetSource() string
	GetCounter() uint64
	GetFee() uint64

	// WithCounter returns a copy of the operation carrying counter.
	WithCounter(counter uint64) Stackable
}

// Reveal publishes the public key of an implicit account.
type Reveal struct {
	Source       string `json:"source"`
	Fee          uint64 `json:"fee,string"`
	Counter      uint64 `json:"counter,string"`
	GasLimit     uint64 `json:"gas_limit,string"`
	StorageLimit uint64 `json:"storage_limit,string"`
	PublicKey    string `json:"public_key"`
}

// Transaction moves tez and optionally calls a contract.
type Transaction struct {
	Source       string          `json:"source"`
	Fee          uint64          `json:"fee,string"`
	Counter      uint64          `json:"counter,string"`
	GasLimit     uint64          `json:"gas_limit,string"`
	StorageLimit uint64          `json:"storage_limit,string"`
	Amount       uint64          `json:"amount,string"`
	Destination  string          `json:"destination"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
}

// Delegation sets the delegate of Source. An empty Delegate withdraws it.
type Delegation struct {
	Source       string `json:"source"`
	Fee          uint64 `json:"fee,string"`
	Counter      uint64 `json:"counter,string"`
	GasLimit     uint64 `json:"gas_limit,string"`
	StorageLimit uint64 `json:"storage_limit,string"`
	Delegate     string `json:"delegate,omitempty"`
}

// Script is the code and initial storage of a contract, in canonical
// Micheline JSON.
type Script struct {
	Code    json.RawMessage `json:"code"`
	Storage json.RawMessage `json:"storage"`
}

// Origination creates an account, or a contract when Script is set. The
// manager of the new account is always Source.
type Origination struct {
	Source       string  `json:"source"`
	Fee          uint64  `json:"fee,string"`
	Counter      uint64  `json:"counter,string"`
	GasLimit     uint64  `json:"gas_limit,string"`
	StorageLimit uint64  `json:"storage_limit,string"`
	Balance      uint64  `json:"balance,string"`
	Spendable    bool    `json:"spendable"`
	Delegatable  bool    `json:"delegatable"`
	Delegate     string  `json:"delegate,omitempty"`
	Script       *Script `json:"script,omitempty"`
}

// Activation claims a fundraiser account.
type Activation struct {
	PublicKeyHash string `json:"pkh"`
	Secret        string `json:"secret"`
}

func (Reveal) Kind() OperationKind      { return KindReveal }
func (Transaction) Kind() OperationKind { return KindTransaction }
func (Delegation) Kind() OperationKind  { return KindDelegation }
func (Origination) Kind() OperationKind { return KindOrigination }
func (Activation) Kind() OperationKind  { return KindActivation }

func (o Reveal) GetSource() string      { return o.Source }
func (o Transaction) GetSource() string { return o.Source }
func (o Delegation) GetSource() string  { return o.Source }
func (o Origination) GetSource() string { return o.Source }

func (o Reveal) GetCounter() uint64      { return o.Counter }
func (o Transaction) GetCounter() uint64 { return o.Counter }
func (o Delegation) GetCounter() uint64  { return o.Counter }
func (o Origination) GetCounter() uint64 { return o.Counter }

func (o Reveal) GetFee() uint64      { return o.Fee }
func (o Transaction) GetFee() uint64 { return o.Fee }
func (o Delegation) GetFee() uint64  { return o.Fee }
func (o Origination) GetFee() uint64 { return o.Fee }

func (o Reveal) WithCounter(counter uint64) Stackable      { o.Counter = counter; return o }
func (o Transaction) WithCounter(counter uint64) Stackable { o.Counter = counter; return o }
func (o Delegation) WithCounter(counter uint64) Stackable  { o.Counter = counter; return o }
func (o Origination) WithCounter(counter uint64) Stackable { o.Counter = counter; return o }

func marshalKinded(kind OperationKind, body any, extra map[string]any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["kind"], _ = json.Marshal(kind)
	for k, v := range extra {
		if fields[k], err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

// MarshalJSON renders the operation as a node "contents" entry.
func (o Reveal) MarshalJSON() ([]byte, error) {
	type alias Reveal
	return marshalKinded(KindReveal, alias(o), nil)
}

// MarshalJSON renders the operation as a node "contents" entry.
func (o Transaction) MarshalJSON() ([]byte, error) {
	type alias Transaction
	return marshalKinded(KindTransaction, alias(o), nil)
}

// MarshalJSON renders the operation as a node "contents" entry.
func (o Delegation) MarshalJSON() ([]byte, error) {
	type alias Delegation
	return marshalKinded(KindDelegation, alias(o), nil)
}

// MarshalJSON renders the operation as a node "contents" entry, adding the
// manager_pubkey field the protocol expects.
func (o Origination) MarshalJSON() ([]byte, error) {
	type alias Origination
	return marshalKinded(KindOrigination, alias(o), map[string]any{"manager_pubkey": o.Source})
}

// MarshalJSON renders the operation as a node "contents" entry.
func (o Activation) MarshalJSON() ([]byte, error) {
	type alias Activation
	return marshalKinded(KindActivation, alias(o), nil)
}

func forgeManagerHeader(e *codec.Encoder, tag byte, source string, fee, counter, gas, storage uint64) error {
	id, err := codec.EncodeContractID(source)
	if err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	e.Byte(tag)
	e.Raw(id)
	e.Natural(fee)
	e.Natural(counter)
	e.Natural(gas)
	e.Natural(storage)
	return nil
}

func forgeOptionalPublicKeyHash(e *codec.Encoder, address string) error {
	if address == "" {
		e.Bool(false)
		return nil
	}
	pkh, err := codec.EncodePublicKeyHash(address)
	if err != nil {
		return err
	}
	e.Bool(true)
	e.Raw(pkh)
	return nil
}

func (o Reveal) forge(e *codec.Encoder) error {
	if err := forgeManagerHeader(e, tagReveal, o.Source, o.Fee, o.Counter, o.GasLimit, o.StorageLimit); err != nil {
		return err
	}
	key, err := codec.EncodePublicKey(o.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	e.Raw(key)
	return nil
}

func (o Transaction) forge(e *codec.Encoder) error {
	if err := forgeManagerHeader(e, tagTransaction, o.Source, o.Fee, o.Counter, o.GasLimit, o.StorageLimit); err != nil {
		return err
	}
	e.Natural(o.Amount)
	destination, err := codec.EncodeContractID(o.Destination)
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}
	e.Raw(destination)

	if len(o.Parameters) == 0 {
		e.Bool(false)
		return nil
	}
	params, err := codec.EncodeMicheline(o.Parameters)
	if err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	e.Bool(true)
	e.Dynamic(params)
	return nil
}

func (o Delegation) forge(e *codec.Encoder) error {
	if err := forgeManagerHeader(e, tagDelegation, o.Source, o.Fee, o.Counter, o.GasLimit, o.StorageLimit); err != nil {
		return err
	}
	if err := forgeOptionalPublicKeyHash(e, o.Delegate); err != nil {
		return fmt.Errorf("invalid delegate: %w", err)
	}
	return nil
}

func (o Origination) forge(e *codec.Encoder) error {
	if err := forgeManagerHeader(e, tagOrigination, o.Source, o.Fee, o.Counter, o.GasLimit, o.StorageLimit); err != nil {
		return err
	}
	manager, err := codec.EncodePublicKeyHash(o.Source)
	if err != nil {
		return fmt.Errorf("invalid manager: %w", err)
	}
	e.Raw(manager)
	e.Natural(o.Balance)
	e.Bool(o.Spendable)
	e.Bool(o.Delegatable)
	if err := forgeOptionalPublicKeyHash(e, o.Delegate); err != nil {
		return fmt.Errorf("invalid delegate: %w", err)
	}

	if o.Script == nil {
		e.Bool(false)
		return nil
	}
	code, err := codec.EncodeMicheline(o.Script.Code)
	if err != nil {
		return fmt.Errorf("invalid code: %w", err)
	}
	storage, err := codec.EncodeMicheline(o.Script.Storage)
	if err != nil {
		return fmt.Errorf("invalid storage: %w", err)
	}
	e.Bool(true)
	e.Dynamic(code)
	e.Dynamic(storage)
	return nil
}

func (o Activation) forge(e *codec.Encoder) error {
	pkh, err := codec.DecodeBase58Check(codec.PrefixEd25519PublicKeyHash, o.PublicKeyHash, codec.PublicKeyHashSize)
	if err != nil {
		return fmt.Errorf("invalid activation address: %w", err)
	}
	secret, err := hex.DecodeString(o.Secret)
	if err != nil || len(secret) != activationSecretSize {
		return fmt.Errorf("invalid activation secret %q", o.Secret)
	}
	e.Byte(tagActivation)
	e.Raw(pkh)
	e.Raw(secret)
	return nil
}

const activationSecretSize = 20
