package tezos

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/tzwriter/service/metrics"
	"github.com/brojonat/tzwriter/service/tezos/codec"
)

// Stage names one step of a submission.
type Stage string

const (
	StageFetchHead       Stage = "fetch_head"
	StageForge           Stage = "forge"
	StageSign            Stage = "sign"
	StagePreapply        Stage = "preapply"
	StageValidateApplied Stage = "validate_applied"
	StageInject          Stage = "inject"
	StageDone            Stage = "done"
)

// Submitter drives an operation group through
// FetchHead, Forge, Sign, Preapply, ValidateApplied and Inject. Stages run
// in order and the first failure aborts the call; nothing is retried. To
// retry, call again: the head is re-read and the group re-forged.
type Submitter struct {
	chain   ChainAccessor
	node    Node
	forger  Forger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSubmitter creates a Submitter. If metrics is nil, no metrics are
// recorded.
func NewSubmitter(chain ChainAccessor, node Node, forger Forger, m *metrics.Metrics, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Submitter{
		chain:   chain,
		node:    node,
		forger:  forger,
		metrics: m,
		logger:  logger,
	}
}

// submission is the call-local state threaded through the stages.
type submission struct {
	ops            []Operation
	keyStore       KeyStore
	signer         Signer
	derivationPath string

	head    BlockHead
	forged  string
	signed  SignedOperationGroup
	applied []AppliedOperationResult
	groupID string
}

// SendOperation submits ops as one signed group and returns the preapply
// result with the operation group id the node answered with.
func (s *Submitter) SendOperation(ctx context.Context, ops []Operation, keyStore KeyStore, signer Signer, derivationPath string) (OperationResult, error) {
	sub := &submission{ops: ops, keyStore: keyStore, signer: signer, derivationPath: derivationPath}
	if err := s.apply(ctx, sub); err != nil {
		s.recordOperations(ops, "failed")
		return OperationResult{}, err
	}
	if err := s.stage(ctx, StageInject, func() error { return s.inject(ctx, sub) }); err != nil {
		s.recordOperations(ops, "failed")
		return OperationResult{}, err
	}
	s.recordOperations(ops, "injected")

	s.logger.InfoContext(ctx, "injected operation group",
		"source", keyStore.PublicKeyHash,
		"operation_group_id", sub.groupID,
		"operations", len(ops),
	)
	return OperationResult{
		Results:          sub.applied[0],
		OperationGroupID: sub.groupID,
		OperationHash:    codec.OperationGroupHash(sub.signed.Bytes),
	}, nil
}

// Simulate runs every stage but Inject and returns the preapply result.
func (s *Submitter) Simulate(ctx context.Context, ops []Operation, keyStore KeyStore, signer Signer, derivationPath string) (AppliedOperationResult, error) {
	sub := &submission{ops: ops, keyStore: keyStore, signer: signer, derivationPath: derivationPath}
	if err := s.apply(ctx, sub); err != nil {
		return AppliedOperationResult{}, err
	}
	return sub.applied[0], nil
}

func (s *Submitter) apply(ctx context.Context, sub *submission) error {
	if len(sub.ops) == 0 {
		return errors.New("no operations to submit")
	}

	stages := []struct {
		stage Stage
		run   func() error
	}{
		{StageFetchHead, func() error { return s.fetchHead(ctx, sub) }},
		{StageForge, func() error { return s.forge(ctx, sub) }},
		{StageSign, func() error { return s.sign(ctx, sub) }},
		{StagePreapply, func() error { return s.preapply(ctx, sub) }},
		{StageValidateApplied, func() error { return ValidateApplied(sub.applied) }},
	}
	for _, st := range stages {
		if err := s.stage(ctx, st.stage, st.run); err != nil {
			return err
		}
	}
	return nil
}

func (s *Submitter) stage(ctx context.Context, stage Stage, run func() error) error {
	start := time.Now()
	err := run()
	if s.metrics != nil {
		s.metrics.RecordStage(string(stage), time.Since(start).Seconds(), err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "submission stage failed",
			"stage", stage,
			"error", err,
		)
		return err
	}
	s.logger.DebugContext(ctx, "submission stage complete",
		"stage", stage,
		"duration", time.Since(start),
	)
	return nil
}

func (s *Submitter) fetchHead(ctx context.Context, sub *submission) error {
	head, err := s.chain.GetBlockHead(ctx)
	if err != nil {
		return &ChainQueryError{Query: "head", Err: err}
	}
	sub.head = head
	return nil
}

func (s *Submitter) forge(ctx context.Context, sub *submission) error {
	forged, err := s.forger.Forge(ctx, sub.head.Hash, sub.ops)
	if err != nil {
		return err
	}
	sub.forged = forged
	return nil
}

func (s *Submitter) sign(ctx context.Context, sub *submission) error {
	signed, err := SignOperationGroup(ctx, sub.forged, sub.keyStore, sub.signer, sub.derivationPath)
	if err != nil {
		return err
	}
	sub.signed = signed
	return nil
}

type preapplyRequest struct {
	Protocol  string      `json:"protocol"`
	Branch    string      `json:"branch"`
	Contents  []Operation `json:"contents"`
	Signature string      `json:"signature"`
}

func (s *Submitter) preapply(ctx context.Context, sub *submission) error {
	payload, err := json.Marshal([]preapplyRequest{{
		Protocol:  sub.head.Protocol,
		Branch:    sub.head.Hash,
		Contents:  sub.ops,
		Signature: sub.signed.Signature,
	}})
	if err != nil {
		return fmt.Errorf("could not encode preapply request: %w", err)
	}

	body, err := s.node.PreapplyOperations(ctx, payload)
	if err != nil {
		return preapplyFailure(err, payload)
	}

	var applied []AppliedOperationResult
	if err := json.Unmarshal(body, &applied); err != nil {
		return &ResponseParseError{Endpoint: "preapply", Body: string(body), Payload: string(payload), Err: err}
	}
	if len(applied) == 0 {
		return &ResponseParseError{Endpoint: "preapply", Body: string(body), Payload: string(payload), Err: errors.New("empty result array")}
	}
	sub.applied = applied
	return nil
}

// preapplyFailure maps a failed preapply call onto the result taxonomy. A
// node rejects an operation with a non-2xx status and a JSON error array;
// the first error's kind and id are reported as an AppliedResultError.
// Any other body is a ResponseParseError carrying the body and payload.
func preapplyFailure(err error, payload []byte) error {
	var respErr nodeResponseError
	if !errors.As(err, &respErr) {
		return fmt.Errorf("preapply request failed: %w", err)
	}
	body := respErr.ResponseBody()
	var applied []AppliedOperationResult
	if jsonErr := json.Unmarshal([]byte(body), &applied); jsonErr == nil && len(applied) > 0 {
		if applied[0].Kind != "" || len(applied[0].Contents) > 0 {
			if validationErr := ValidateApplied(applied); validationErr != nil {
				return validationErr
			}
		}
	}
	return &ResponseParseError{Endpoint: "preapply", Body: body, Payload: string(payload), Err: err}
}

// ValidateApplied checks the first preapply result. Its kind, when present,
// and the kind of every content entry must be one of the applied kinds; a
// node can answer 200 while reporting a failed or backtracked operation.
func ValidateApplied(results []AppliedOperationResult) error {
	if len(results) == 0 {
		return errors.New("no preapply results")
	}
	first := results[0]
	if first.Kind != "" {
		if _, ok := appliedKinds[first.Kind]; !ok {
			return &AppliedResultError{Kind: first.Kind, ID: first.ID}
		}
	}
	for _, content := range first.Contents {
		if _, ok := appliedKinds[content.Kind]; !ok {
			return &AppliedResultError{Kind: content.Kind, Metadata: string(content.Metadata)}
		}
	}
	return nil
}

func (s *Submitter) inject(ctx context.Context, sub *submission) error {
	payload, err := json.Marshal(hex.EncodeToString(sub.signed.Bytes))
	if err != nil {
		return err
	}
	body, err := s.node.InjectOperation(ctx, payload)
	if err != nil {
		return fmt.Errorf("injection failed: %w", err)
	}
	sub.groupID = string(body)
	return nil
}

func (s *Submitter) recordOperations(ops []Operation, status string) {
	if s.metrics == nil {
		return
	}
	for _, op := range ops {
		s.metrics.RecordOperationSubmitted(string(op.Kind()), status)
	}
}
