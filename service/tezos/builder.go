package tezos

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/brojonat/tzwriter/service/tezos/codec"
)

// Defaults applied by the Builder when a field is left at zero.
const (
	DefaultTransactionGasLimit     = 10600
	DefaultTransactionStorageLimit = 496

	DefaultDelegationFee          = 1258
	DefaultDelegationGasLimit     = 10000
	DefaultDelegationStorageLimit = 0

	DefaultAccountOriginationFee          = 1266
	DefaultAccountOriginationGasLimit     = 10600
	DefaultAccountOriginationStorageLimit = 496

	DefaultKeyRevealFee          = 1270
	DefaultKeyRevealGasLimit     = 10000
	DefaultKeyRevealStorageLimit = 0
)

// CodeFormat is the notation contract code, storage and parameters are
// given in.
type CodeFormat string

const (
	FormatMichelson CodeFormat = "michelson"
	FormatMicheline CodeFormat = "micheline"
)

// ErrNoTranslator is returned for Michelson input when the Builder has no
// Translator.
var ErrNoTranslator = errors.New("no michelson translator configured")

// Translator converts Michelson source text to canonical Micheline JSON.
type Translator interface {
	TranslateToCanonical(source string) (string, error)
}

// TransactionParams describes a transfer or a contract call.
type TransactionParams struct {
	Destination     string     `json:"destination" validate:"required,tz_contract"`
	Amount          uint64     `json:"amount"`
	Fee             uint64     `json:"fee,omitempty"`
	GasLimit        uint64     `json:"gas_limit,omitempty"`
	StorageLimit    uint64     `json:"storage_limit,omitempty"`
	Parameters      string     `json:"parameters,omitempty"`
	ParameterFormat CodeFormat `json:"parameter_format,omitempty" validate:"omitempty,code_format"`
}

// DelegationParams describes a delegation. An empty Delegate withdraws the
// current one.
type DelegationParams struct {
	Delegate     string `json:"delegate,omitempty" validate:"omitempty,tz_implicit"`
	Fee          uint64 `json:"fee,omitempty"`
	GasLimit     uint64 `json:"gas_limit,omitempty"`
	StorageLimit uint64 `json:"storage_limit,omitempty"`
}

// OriginationParams describes an account origination, or a contract
// origination when Code is set.
type OriginationParams struct {
	Balance      uint64     `json:"balance"`
	Delegate     string     `json:"delegate,omitempty" validate:"omitempty,tz_implicit"`
	Spendable    bool       `json:"spendable"`
	Delegatable  bool       `json:"delegatable"`
	Fee          uint64     `json:"fee,omitempty"`
	GasLimit     uint64     `json:"gas_limit,omitempty"`
	StorageLimit uint64     `json:"storage_limit,omitempty"`
	Code         string     `json:"code,omitempty"`
	Storage      string     `json:"storage,omitempty" validate:"required_with=Code"`
	CodeFormat   CodeFormat `json:"code_format,omitempty" validate:"omitempty,code_format"`
}

// RevealParams describes a standalone reveal.
type RevealParams struct {
	PublicKey    string `validate:"required,tz_public_key"`
	Fee          uint64
	GasLimit     uint64
	StorageLimit uint64
}

// ActivationParams describes a fundraiser activation.
type ActivationParams struct {
	PublicKeyHash string `validate:"required,tz_implicit,startswith=tz1"`
	Secret        string `validate:"required,hexadecimal,len=40"`
}

// Builder constructs operations from caller parameters. Counters are left
// at zero; the Writer assigns them.
type Builder struct {
	translator Translator
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewBuilder creates a Builder. translator may be nil, in which case only
// Micheline input is accepted.
func NewBuilder(translator Translator, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Builder{
		translator: translator,
		validate:   newValidator(),
		logger:     logger,
	}
}

func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("tz_implicit", func(fl validator.FieldLevel) bool {
		_, err := codec.EncodePublicKeyHash(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("tz_contract", func(fl validator.FieldLevel) bool {
		_, err := codec.EncodeContractID(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("tz_public_key", func(fl validator.FieldLevel) bool {
		_, err := codec.EncodePublicKey(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("code_format", func(fl validator.FieldLevel) bool {
		switch CodeFormat(fl.Field().String()) {
		case FormatMichelson, FormatMicheline:
			return true
		}
		return false
	})
	return validate
}

func (b *Builder) check(source string, params any) error {
	if _, err := codec.EncodeContractID(source); err != nil {
		return fmt.Errorf("invalid source %q: %w", source, err)
	}
	if err := b.validate.Struct(params); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// Transaction builds a transaction from source.
func (b *Builder) Transaction(source string, p TransactionParams) (Transaction, error) {
	if err := b.check(source, p); err != nil {
		return Transaction{}, err
	}

	op := Transaction{
		Source:       source,
		Destination:  p.Destination,
		Amount:       p.Amount,
		Fee:          p.Fee,
		GasLimit:     orDefault(p.GasLimit, DefaultTransactionGasLimit),
		StorageLimit: orDefault(p.StorageLimit, DefaultTransactionStorageLimit),
	}
	if p.Parameters != "" {
		params, err := b.normalize(p.Parameters, p.ParameterFormat)
		if err != nil {
			return Transaction{}, fmt.Errorf("could not parse parameters: %w", err)
		}
		op.Parameters = params
	}
	return op, nil
}

// Delegation builds a delegation from source.
func (b *Builder) Delegation(source string, p DelegationParams) (Delegation, error) {
	if err := b.check(source, p); err != nil {
		return Delegation{}, err
	}
	return Delegation{
		Source:       source,
		Delegate:     p.Delegate,
		Fee:          orDefault(p.Fee, DefaultDelegationFee),
		GasLimit:     orDefault(p.GasLimit, DefaultDelegationGasLimit),
		StorageLimit: orDefault(p.StorageLimit, DefaultDelegationStorageLimit),
	}, nil
}

// Origination builds an account or contract origination from source.
// Spendable contracts are refused by the protocol; asking for one is logged
// and passed through.
func (b *Builder) Origination(source string, p OriginationParams) (Origination, error) {
	if err := b.check(source, p); err != nil {
		return Origination{}, err
	}

	op := Origination{
		Source:       source,
		Balance:      p.Balance,
		Delegate:     p.Delegate,
		Spendable:    p.Spendable,
		Delegatable:  p.Delegatable,
		Fee:          orDefault(p.Fee, DefaultAccountOriginationFee),
		GasLimit:     orDefault(p.GasLimit, DefaultAccountOriginationGasLimit),
		StorageLimit: orDefault(p.StorageLimit, DefaultAccountOriginationStorageLimit),
	}
	if p.Code == "" {
		return op, nil
	}

	if p.Spendable {
		b.logger.Warn("spendable contracts are not allowed by the protocol",
			"source", source,
		)
	}

	code, err := b.normalize(p.Code, p.CodeFormat)
	if err != nil {
		return Origination{}, fmt.Errorf("could not parse code: %w", err)
	}
	storage, err := b.normalize(p.Storage, p.CodeFormat)
	if err != nil {
		return Origination{}, fmt.Errorf("could not parse storage: %w", err)
	}
	op.Script = &Script{Code: code, Storage: storage}
	return op, nil
}

// Reveal builds a standalone reveal from source.
func (b *Builder) Reveal(source string, p RevealParams) (Reveal, error) {
	if err := b.check(source, p); err != nil {
		return Reveal{}, err
	}
	return Reveal{
		Source:       source,
		PublicKey:    p.PublicKey,
		Fee:          orDefault(p.Fee, DefaultKeyRevealFee),
		GasLimit:     orDefault(p.GasLimit, DefaultKeyRevealGasLimit),
		StorageLimit: orDefault(p.StorageLimit, DefaultKeyRevealStorageLimit),
	}, nil
}

// Activation builds a fundraiser activation.
func (b *Builder) Activation(p ActivationParams) (Activation, error) {
	if err := b.validate.Struct(p); err != nil {
		return Activation{}, fmt.Errorf("invalid parameters: %w", err)
	}
	return Activation{PublicKeyHash: p.PublicKeyHash, Secret: strings.ToLower(p.Secret)}, nil
}

// normalize returns source as canonical Micheline JSON. Micheline is the
// default format.
func (b *Builder) normalize(source string, format CodeFormat) (json.RawMessage, error) {
	canonical := source
	if format == FormatMichelson {
		if b.translator == nil {
			return nil, ErrNoTranslator
		}
		translated, err := b.translator.TranslateToCanonical(source)
		if err != nil {
			return nil, err
		}
		canonical = translated
	}

	if _, err := codec.EncodeMicheline([]byte(canonical)); err != nil {
		return nil, err
	}
	return compactJSON(canonical)
}

func compactJSON(s string) (json.RawMessage, error) {
	var node any
	if err := json.Unmarshal([]byte(s), &node); err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrInvalidMicheline, err)
	}
	return json.Marshal(node)
}

func orDefault(v, def uint64) uint64 {
	if v == 0 {
		return def
	}
	return v
}
