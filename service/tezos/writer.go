package tezos

import (
	"context"
	"io"
	"log/slog"

	"github.com/brojonat/tzwriter/service/metrics"
)

// Account is the signing identity of a submission.
type Account struct {
	KeyStore       KeyStore
	Signer         Signer
	DerivationPath string
}

// Writer is the public entry point: each Send method builds its operation,
// assigns counters, prepends a reveal when needed and submits the group.
type Writer struct {
	chain     ChainAccessor
	builder   *Builder
	submitter *Submitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewWriter creates a Writer. If metrics is nil, no metrics are recorded.
// If logger is nil, log output is discarded.
func NewWriter(chain ChainAccessor, node Node, forger Forger, builder *Builder, m *metrics.Metrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Writer{
		chain:     chain,
		builder:   builder,
		submitter: NewSubmitter(chain, node, forger, m, logger),
		metrics:   m,
		logger:    logger,
	}
}

// Builder returns the builder the writer constructs operations with.
func (w *Writer) Builder() *Builder {
	return w.builder
}

// SendTransactionOperation transfers tez from the account.
func (w *Writer) SendTransactionOperation(ctx context.Context, account Account, p TransactionParams) (OperationResult, error) {
	op, err := w.builder.Transaction(account.KeyStore.PublicKeyHash, p)
	if err != nil {
		return OperationResult{}, err
	}
	return w.SendOperations(ctx, account, []Stackable{op})
}

// SendContractInvocationOperation calls a contract. It is a transaction
// whose parameters are required.
func (w *Writer) SendContractInvocationOperation(ctx context.Context, account Account, p TransactionParams) (OperationResult, error) {
	if p.Parameters == "" {
		p.Parameters = `{"prim":"Unit"}`
		p.ParameterFormat = FormatMicheline
	}
	return w.SendTransactionOperation(ctx, account, p)
}

// SendDelegationOperation sets the delegate of the account.
func (w *Writer) SendDelegationOperation(ctx context.Context, account Account, p DelegationParams) (OperationResult, error) {
	op, err := w.builder.Delegation(account.KeyStore.PublicKeyHash, p)
	if err != nil {
		return OperationResult{}, err
	}
	return w.SendOperations(ctx, account, []Stackable{op})
}

// SendUndelegationOperation withdraws the delegate of the account.
func (w *Writer) SendUndelegationOperation(ctx context.Context, account Account, fee uint64) (OperationResult, error) {
	return w.SendDelegationOperation(ctx, account, DelegationParams{Fee: fee})
}

// SendAccountOriginationOperation originates an account managed by the
// account. Code and storage in p are ignored.
func (w *Writer) SendAccountOriginationOperation(ctx context.Context, account Account, p OriginationParams) (OperationResult, error) {
	p.Code, p.Storage = "", ""
	op, err := w.builder.Origination(account.KeyStore.PublicKeyHash, p)
	if err != nil {
		return OperationResult{}, err
	}
	return w.SendOperations(ctx, account, []Stackable{op})
}

// SendContractOriginationOperation originates a contract.
func (w *Writer) SendContractOriginationOperation(ctx context.Context, account Account, p OriginationParams) (OperationResult, error) {
	if p.Code == "" {
		return OperationResult{}, errMissingCode
	}
	op, err := w.builder.Origination(account.KeyStore.PublicKeyHash, p)
	if err != nil {
		return OperationResult{}, err
	}
	return w.SendOperations(ctx, account, []Stackable{op})
}

// SendKeyRevealOperation reveals the account's public key on its own,
// without bundling.
func (w *Writer) SendKeyRevealOperation(ctx context.Context, account Account, fee uint64) (OperationResult, error) {
	op, err := w.builder.Reveal(account.KeyStore.PublicKeyHash, RevealParams{
		PublicKey: account.KeyStore.PublicKey,
		Fee:       fee,
	})
	if err != nil {
		return OperationResult{}, err
	}
	counter, err := NextCounter(ctx, w.chain, account.KeyStore.PublicKeyHash)
	if err != nil {
		return OperationResult{}, err
	}
	ops := []Operation{op.WithCounter(counter)}
	return w.submitter.SendOperation(ctx, ops, account.KeyStore, account.Signer, account.DerivationPath)
}

// SendIdentityActivationOperation activates the fundraiser account of the
// key store with its activation secret. Activations carry no counter.
func (w *Writer) SendIdentityActivationOperation(ctx context.Context, account Account, secret string) (OperationResult, error) {
	op, err := w.builder.Activation(ActivationParams{
		PublicKeyHash: account.KeyStore.PublicKeyHash,
		Secret:        secret,
	})
	if err != nil {
		return OperationResult{}, err
	}
	return w.submitter.SendOperation(ctx, []Operation{op}, account.KeyStore, account.Signer, account.DerivationPath)
}

// SendOperations submits manager operations from the account as one group.
// Counters are assigned in order from the account's next counter and a
// reveal is prepended when the key is not on chain yet.
func (w *Writer) SendOperations(ctx context.Context, account Account, ops []Stackable) (OperationResult, error) {
	group, err := w.prepare(ctx, account, ops)
	if err != nil {
		return OperationResult{}, err
	}
	return w.submitter.SendOperation(ctx, group, account.KeyStore, account.Signer, account.DerivationPath)
}

// SimulateOperation prepares ops like SendOperations and preapplies them
// without injecting.
func (w *Writer) SimulateOperation(ctx context.Context, account Account, ops []Stackable) (AppliedOperationResult, error) {
	group, err := w.prepare(ctx, account, ops)
	if err != nil {
		return AppliedOperationResult{}, err
	}
	return w.submitter.Simulate(ctx, group, account.KeyStore, account.Signer, account.DerivationPath)
}

func (w *Writer) prepare(ctx context.Context, account Account, ops []Stackable) ([]Operation, error) {
	source := account.KeyStore.PublicKeyHash
	next, err := NextCounter(ctx, w.chain, source)
	if err != nil {
		return nil, err
	}

	numbered := make([]Stackable, len(ops))
	for i, op := range ops {
		numbered[i] = op.WithCounter(next + uint64(i))
	}

	bundled, err := BundleReveal(ctx, w.chain, account.KeyStore, next-1, numbered)
	if err != nil {
		return nil, err
	}
	if len(bundled) > len(numbered) {
		w.logger.DebugContext(ctx, "prepending reveal", "source", source, "counter", bundled[0].GetCounter())
		if w.metrics != nil {
			w.metrics.RecordRevealBundled()
		}
	}

	group := make([]Operation, len(bundled))
	for i, op := range bundled {
		group[i] = op
	}
	return group, nil
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
