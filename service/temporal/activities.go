package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/brojonat/tzwriter/service/db"
	"github.com/brojonat/tzwriter/service/metrics"
	natspkg "github.com/brojonat/tzwriter/service/nats"
	"github.com/brojonat/tzwriter/service/tezos"
)

// SubmitOperationResult is what the SubmitOperation activity returns.
type SubmitOperationResult struct {
	OperationGroupID string          `json:"operation_group_id"`
	OperationHash    string          `json:"operation_hash"`
	Kinds            []string        `json:"kinds"`
	Counters         []int64         `json:"counters"`
	Results          json.RawMessage `json:"results"`
}

// RecordOperationGroupInput contains parameters for the RecordOperationGroup activity.
type RecordOperationGroupInput struct {
	Source     string                `json:"source"`
	Submitted  SubmitOperationResult `json:"submitted"`
	WorkflowID string                `json:"workflow_id"`
}

// RecordOperationGroupResult contains the journal row that was written.
type RecordOperationGroupResult struct {
	Group *db.OperationGroup `json:"group"`
}

// PublishOperationEventInput contains parameters for the PublishOperationEvent activity.
type PublishOperationEventInput struct {
	Group *db.OperationGroup `json:"group"`
}

// OperationWriter is the part of tezos.Writer the activities drive.
type OperationWriter interface {
	SendTransactionOperation(ctx context.Context, account tezos.Account, p tezos.TransactionParams) (tezos.OperationResult, error)
	SendContractInvocationOperation(ctx context.Context, account tezos.Account, p tezos.TransactionParams) (tezos.OperationResult, error)
	SendDelegationOperation(ctx context.Context, account tezos.Account, p tezos.DelegationParams) (tezos.OperationResult, error)
	SendUndelegationOperation(ctx context.Context, account tezos.Account, fee uint64) (tezos.OperationResult, error)
	SendAccountOriginationOperation(ctx context.Context, account tezos.Account, p tezos.OriginationParams) (tezos.OperationResult, error)
	SendContractOriginationOperation(ctx context.Context, account tezos.Account, p tezos.OriginationParams) (tezos.OperationResult, error)
	SendKeyRevealOperation(ctx context.Context, account tezos.Account, fee uint64) (tezos.OperationResult, error)
	SendIdentityActivationOperation(ctx context.Context, account tezos.Account, secret string) (tezos.OperationResult, error)
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	RecordOperationGroup(ctx context.Context, params db.RecordOperationGroupParams) (*db.OperationGroup, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishOperation(ctx context.Context, event *natspkg.OperationEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	writer    OperationWriter
	account   tezos.Account
	network   string
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance. account is the identity
// the worker signs with. publisher and metrics may be nil.
func NewActivities(
	writer OperationWriter,
	account tezos.Account,
	network string,
	store StoreInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		writer:    writer,
		account:   account,
		network:   network,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// SubmitOperation builds, signs and injects the requested operation group.
func (a *Activities) SubmitOperation(ctx context.Context, input SubmitOperationInput) (*SubmitOperationResult, error) {
	defer a.timeActivity("SubmitOperation")()

	if err := input.Validate(); err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(err.Error(), "InvalidInput", err)
	}
	if input.Source != a.account.KeyStore.PublicKeyHash {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("worker signs for %s, not %s", a.account.KeyStore.PublicKeyHash, input.Source),
			"SourceMismatch", nil)
	}

	a.logger.DebugContext(ctx, "submitting operation",
		"request", input.Request,
		"source", input.Source,
	)

	res, err := a.send(ctx, input)
	status := StatusInjected
	if err != nil {
		status = StatusFailed
	}
	if a.metrics != nil && !input.StartedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(string(input.Request), status, time.Since(input.StartedAt).Seconds())
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to submit operation",
			"request", input.Request,
			"source", input.Source,
			"error", err,
		)
		return nil, fmt.Errorf("failed to submit %s: %w", input.Request, err)
	}

	kinds, counters, err := summarizeGroup(res.Results)
	if err != nil {
		// The group is already injected.
		a.logger.WarnContext(ctx, "failed to summarize applied group", "error", err)
	}
	results, err := json.Marshal(res.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode applied result: %w", err)
	}

	a.logger.InfoContext(ctx, "submitted operation",
		"request", input.Request,
		"source", input.Source,
		"operation_hash", res.OperationHash,
		"kinds", kinds,
	)

	return &SubmitOperationResult{
		OperationGroupID: res.OperationGroupID,
		OperationHash:    res.OperationHash,
		Kinds:            kinds,
		Counters:         counters,
		Results:          results,
	}, nil
}

func (a *Activities) send(ctx context.Context, input SubmitOperationInput) (tezos.OperationResult, error) {
	account := a.account
	switch input.Request {
	case RequestTransaction:
		return a.writer.SendTransactionOperation(ctx, account, *input.Transaction)
	case RequestContractInvocation:
		return a.writer.SendContractInvocationOperation(ctx, account, *input.Transaction)
	case RequestDelegation:
		return a.writer.SendDelegationOperation(ctx, account, *input.Delegation)
	case RequestUndelegation:
		return a.writer.SendUndelegationOperation(ctx, account, input.Fee)
	case RequestAccountOrigination:
		return a.writer.SendAccountOriginationOperation(ctx, account, *input.Origination)
	case RequestContractOrigination:
		return a.writer.SendContractOriginationOperation(ctx, account, *input.Origination)
	case RequestReveal:
		return a.writer.SendKeyRevealOperation(ctx, account, input.Fee)
	case RequestActivation:
		return a.writer.SendIdentityActivationOperation(ctx, account, input.Secret)
	}
	return tezos.OperationResult{}, fmt.Errorf("unknown request %q", input.Request)
}

// RecordOperationGroup writes an injected group to the journal.
func (a *Activities) RecordOperationGroup(ctx context.Context, input RecordOperationGroupInput) (*RecordOperationGroupResult, error) {
	defer a.timeActivity("RecordOperationGroup")()

	workflowID := input.WorkflowID
	params := db.RecordOperationGroupParams{
		Hash:     input.Submitted.OperationHash,
		GroupID:  input.Submitted.OperationGroupID,
		Source:   input.Source,
		Network:  a.network,
		Kinds:    input.Submitted.Kinds,
		Counters: input.Submitted.Counters,
		Result:   input.Submitted.Results,
	}
	if workflowID != "" {
		params.WorkflowID = &workflowID
	}

	group, err := a.store.RecordOperationGroup(ctx, params)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to record operation group",
			"hash", params.Hash,
			"error", err,
		)
		return nil, fmt.Errorf("failed to record operation group %s: %w", params.Hash, err)
	}

	a.logger.InfoContext(ctx, "recorded operation group",
		"hash", group.Hash,
		"source", group.Source,
		"network", group.Network,
	)
	return &RecordOperationGroupResult{Group: group}, nil
}

// PublishOperationEvent announces a journaled group on NATS. Without a
// publisher it does nothing.
func (a *Activities) PublishOperationEvent(ctx context.Context, input PublishOperationEventInput) error {
	defer a.timeActivity("PublishOperationEvent")()

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping operation event")
		return nil
	}
	if input.Group == nil {
		return temporalsdk.NewNonRetryableApplicationError("no operation group to publish", "InvalidInput", nil)
	}

	event := natspkg.FromOperationGroup(input.Group)
	if err := a.publisher.PublishOperation(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish operation event",
			"hash", event.Hash,
			"error", err,
		)
		return fmt.Errorf("failed to publish operation event: %w", err)
	}
	return nil
}

func (a *Activities) timeActivity(name string) func() {
	return metrics.Timer(time.Now(), func(seconds float64) {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration(name, seconds)
		}
	})
}

// summarizeGroup lists the kinds and counters of an applied group in
// order. Activations carry no counter and contribute none.
func summarizeGroup(applied tezos.AppliedOperationResult) ([]string, []int64, error) {
	kinds := make([]string, 0, len(applied.Contents))
	counters := make([]int64, 0, len(applied.Contents))
	for _, content := range applied.Contents {
		kinds = append(kinds, content.Kind)
		if len(content.Raw) == 0 {
			continue
		}
		var c struct {
			Counter string `json:"counter"`
		}
		if err := json.Unmarshal(content.Raw, &c); err != nil {
			return kinds, counters, fmt.Errorf("failed to decode %s content: %w", content.Kind, err)
		}
		if c.Counter == "" {
			continue
		}
		n, err := strconv.ParseInt(c.Counter, 10, 64)
		if err != nil {
			return kinds, counters, fmt.Errorf("invalid counter %q: %w", c.Counter, err)
		}
		counters = append(counters, n)
	}
	return kinds, counters, nil
}
