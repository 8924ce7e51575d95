package temporal

import (
	"errors"
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/brojonat/tzwriter/service/tezos"
)

var a *Activities // for type-safe activity invocation

// Request names what a submission asks the writer to send.
type Request string

const (
	RequestTransaction         Request = "transaction"
	RequestContractInvocation  Request = "contract_invocation"
	RequestDelegation          Request = "delegation"
	RequestUndelegation        Request = "undelegation"
	RequestAccountOrigination  Request = "account_origination"
	RequestContractOrigination Request = "contract_origination"
	RequestReveal              Request = "reveal"
	RequestActivation          Request = "activation"
)

// Submission statuses.
const (
	StatusInjected = "injected"
	StatusFailed   = "failed"
)

// SubmitOperationInput is the input of SubmitOperationWorkflow. Exactly the
// parameter block matching Request is read.
type SubmitOperationInput struct {
	Request Request `json:"request"`
	Source  string  `json:"source"`

	Transaction *tezos.TransactionParams `json:"transaction,omitempty"`
	Delegation  *tezos.DelegationParams  `json:"delegation,omitempty"`
	Origination *tezos.OriginationParams `json:"origination,omitempty"`

	// Fee of a reveal or an undelegation.
	Fee uint64 `json:"fee,omitempty"`

	// Secret is the activation secret, hex encoded.
	Secret string `json:"secret,omitempty"`

	// StartedAt is set by the workflow.
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Validate checks that the input names a known request and carries the
// parameters that request needs.
func (in SubmitOperationInput) Validate() error {
	if in.Source == "" {
		return errors.New("source is required")
	}
	switch in.Request {
	case RequestTransaction, RequestContractInvocation:
		if in.Transaction == nil {
			return fmt.Errorf("%s requires transaction parameters", in.Request)
		}
	case RequestDelegation:
		if in.Delegation == nil {
			return fmt.Errorf("%s requires delegation parameters", in.Request)
		}
	case RequestAccountOrigination, RequestContractOrigination:
		if in.Origination == nil {
			return fmt.Errorf("%s requires origination parameters", in.Request)
		}
	case RequestActivation:
		if in.Secret == "" {
			return errors.New("activation requires a secret")
		}
	case RequestUndelegation, RequestReveal:
	default:
		return fmt.Errorf("unknown request %q", in.Request)
	}
	return nil
}

// SubmitOperationWorkflowResult is the outcome of one submission.
type SubmitOperationWorkflowResult struct {
	Request          Request   `json:"request"`
	Source           string    `json:"source"`
	Status           string    `json:"status"`
	OperationGroupID string    `json:"operation_group_id,omitempty"`
	OperationHash    string    `json:"operation_hash,omitempty"`
	Kinds            []string  `json:"kinds,omitempty"`
	Counters         []int64   `json:"counters,omitempty"`
	Journaled        bool      `json:"journaled"`
	Published        bool      `json:"published"`
	CompletedAt      time.Time `json:"completed_at"`
	Error            *string   `json:"error,omitempty"`
}

// SubmitOperationWorkflow submits one operation group and then records it
// in the journal and announces it on NATS.
//
// The submit activity runs once. A signed group that timed out may still be
// injected, so it is never re-signed blindly; the caller decides whether to
// submit again. Journal and event failures after injection are logged and
// reported in the result but do not fail the workflow.
func SubmitOperationWorkflow(ctx workflow.Context, input SubmitOperationInput) (*SubmitOperationWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SubmitOperationWorkflow started",
		"request", input.Request,
		"source", input.Source,
	)

	result := &SubmitOperationWorkflowResult{
		Request: input.Request,
		Source:  input.Source,
	}
	input.StartedAt = workflow.GetInfo(ctx).WorkflowStartTime

	submitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var submitted *SubmitOperationResult
	err := workflow.ExecuteActivity(submitCtx, a.SubmitOperation, input).Get(ctx, &submitted)
	if err != nil {
		logger.Error("submission failed", "source", input.Source, "error", err)
		errMsg := fmt.Sprintf("submission failed: %v", err)
		result.Error = &errMsg
		result.Status = StatusFailed
		result.CompletedAt = workflow.Now(ctx)
		return result, fmt.Errorf("submission failed: %w", err)
	}

	result.Status = StatusInjected
	result.OperationGroupID = submitted.OperationGroupID
	result.OperationHash = submitted.OperationHash
	result.Kinds = submitted.Kinds
	result.Counters = submitted.Counters

	logger.Info("operation group injected",
		"source", input.Source,
		"operation_hash", submitted.OperationHash,
	)

	bookkeepingCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	recordInput := RecordOperationGroupInput{
		Source:     input.Source,
		Submitted:  *submitted,
		WorkflowID: workflow.GetInfo(ctx).WorkflowExecution.ID,
	}
	var recorded *RecordOperationGroupResult
	err = workflow.ExecuteActivity(bookkeepingCtx, a.RecordOperationGroup, recordInput).Get(ctx, &recorded)
	if err != nil {
		logger.Error("failed to record operation group", "operation_hash", submitted.OperationHash, "error", err)
		errMsg := fmt.Sprintf("failed to record operation group: %v", err)
		result.Error = &errMsg
		result.CompletedAt = workflow.Now(ctx)
		return result, nil
	}
	result.Journaled = true

	err = workflow.ExecuteActivity(bookkeepingCtx, a.PublishOperationEvent, PublishOperationEventInput{Group: recorded.Group}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish operation event", "operation_hash", submitted.OperationHash, "error", err)
	} else {
		result.Published = true
	}

	result.CompletedAt = workflow.Now(ctx)
	logger.Info("SubmitOperationWorkflow completed",
		"source", input.Source,
		"operation_hash", result.OperationHash,
		"journaled", result.Journaled,
		"published", result.Published,
	)
	return result, nil
}
