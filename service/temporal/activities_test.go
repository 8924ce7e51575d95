package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/tzwriter/service/db"
	"github.com/brojonat/tzwriter/service/metrics"
	natspkg "github.com/brojonat/tzwriter/service/nats"
	"github.com/brojonat/tzwriter/service/tezos"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) result(args mock.Arguments) (tezos.OperationResult, error) {
	if args.Get(0) == nil {
		return tezos.OperationResult{}, args.Error(1)
	}
	return args.Get(0).(tezos.OperationResult), args.Error(1)
}

func (m *MockWriter) SendTransactionOperation(ctx context.Context, account tezos.Account, p tezos.TransactionParams) (tezos.OperationResult, error) {
	return m.result(m.Called(ctx, account, p))
}

func (m *MockWriter) SendContractInvocationOperation(ctx context.Context, account tezos.Account, p tezos.TransactionParams) (tezos.OperationResult, error) {
	return m.result(m.Called(ctx, account, p))
}

func (m *MockWriter) SendDelegationOperation(ctx context.Context, account tezos.Account, p tezos.DelegationParams) (tezos.OperationResult, error) {
	return m.result(m.Called(ctx, account, p))
}

func (m *MockWriter) SendUndelegationOperation(ctx context.Context, account tezos.Account, fee uint64) (tezos.OperationResult, error) {
	return m.result(m.Called(ctx, account, fee))
}

func (m *MockWriter) SendAccountOriginationOperation(ctx context.Context, account tezos.Account, p tezos.OriginationParams) (tezos.OperationResult, error) {
	return m.result(m.Called(ctx, account, p))
}

func (m *MockWriter) SendContractOriginationOperation(ctx context.Context, account tezos.Account, p tezos.OriginationParams) (tezos.OperationResult, error) {
	return m.result(m.Called(ctx, account, p))
}

func (m *MockWriter) SendKeyRevealOperation(ctx context.Context, account tezos.Account, fee uint64) (tezos.OperationResult, error) {
	return m.result(m.Called(ctx, account, fee))
}

func (m *MockWriter) SendIdentityActivationOperation(ctx context.Context, account tezos.Account, secret string) (tezos.OperationResult, error) {
	return m.result(m.Called(ctx, account, secret))
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) RecordOperationGroup(ctx context.Context, params db.RecordOperationGroupParams) (*db.OperationGroup, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.OperationGroup), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccount() tezos.Account {
	return tezos.Account{KeyStore: tezos.KeyStore{PublicKeyHash: testSource}}
}

func appliedGroup(t *testing.T) tezos.OperationResult {
	t.Helper()
	var applied tezos.AppliedOperationResult
	require.NoError(t, json.Unmarshal([]byte(`{
		"contents": [
			{"kind":"reveal","source":"`+testSource+`","counter":"6","metadata":{"operation_result":{"status":"applied"}}},
			{"kind":"transaction","source":"`+testSource+`","counter":"7","metadata":{"operation_result":{"status":"applied"}}}
		],
		"signature":"edsigtest"
	}`), &applied))
	return tezos.OperationResult{
		Results:          applied,
		OperationGroupID: "\"ooHash\"\n",
		OperationHash:    "ooHash",
	}
}

func TestActivities_SubmitOperation(t *testing.T) {
	writer := &MockWriter{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	activities := NewActivities(writer, testAccount(), "mainnet", &MockStore{}, nil, m, testLogger())

	input := transactionInput()
	input.StartedAt = time.Now().Add(-time.Second)
	writer.On("SendTransactionOperation", mock.Anything, testAccount(), *input.Transaction).
		Return(appliedGroup(t), nil)

	result, err := activities.SubmitOperation(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "ooHash", result.OperationHash)
	assert.Equal(t, "\"ooHash\"\n", result.OperationGroupID)
	assert.Equal(t, []string{"reveal", "transaction"}, result.Kinds)
	assert.Equal(t, []int64{6, 7}, result.Counters)
	assert.Contains(t, string(result.Results), `"signature":"edsigtest"`)
	writer.AssertExpectations(t)
}

func TestActivities_SubmitOperation_Dispatch(t *testing.T) {
	origination := &tezos.OriginationParams{Balance: 5}
	tests := []struct {
		input  SubmitOperationInput
		method string
		arg    interface{}
	}{
		{SubmitOperationInput{Request: RequestContractInvocation, Source: testSource, Transaction: &tezos.TransactionParams{Destination: "KT1"}}, "SendContractInvocationOperation", tezos.TransactionParams{Destination: "KT1"}},
		{SubmitOperationInput{Request: RequestDelegation, Source: testSource, Delegation: &tezos.DelegationParams{Delegate: "tz1d"}}, "SendDelegationOperation", tezos.DelegationParams{Delegate: "tz1d"}},
		{SubmitOperationInput{Request: RequestUndelegation, Source: testSource, Fee: 1300}, "SendUndelegationOperation", uint64(1300)},
		{SubmitOperationInput{Request: RequestAccountOrigination, Source: testSource, Origination: origination}, "SendAccountOriginationOperation", *origination},
		{SubmitOperationInput{Request: RequestContractOrigination, Source: testSource, Origination: origination}, "SendContractOriginationOperation", *origination},
		{SubmitOperationInput{Request: RequestReveal, Source: testSource, Fee: 1270}, "SendKeyRevealOperation", uint64(1270)},
		{SubmitOperationInput{Request: RequestActivation, Source: testSource, Secret: "abcd"}, "SendIdentityActivationOperation", "abcd"},
	}

	for _, tt := range tests {
		t.Run(string(tt.input.Request), func(t *testing.T) {
			writer := &MockWriter{}
			writer.On(tt.method, mock.Anything, testAccount(), tt.arg).Return(appliedGroup(t), nil)
			activities := NewActivities(writer, testAccount(), "mainnet", &MockStore{}, nil, nil, testLogger())

			_, err := activities.SubmitOperation(context.Background(), tt.input)
			require.NoError(t, err)
			writer.AssertExpectations(t)
		})
	}
}

func TestActivities_SubmitOperation_Failures(t *testing.T) {
	t.Run("source the worker cannot sign for", func(t *testing.T) {
		writer := &MockWriter{}
		activities := NewActivities(writer, testAccount(), "mainnet", &MockStore{}, nil, nil, testLogger())
		input := transactionInput()
		input.Source = "tz1aSkwEot3L2kmUvcoxzjMomb9mvBNuzFK6"

		_, err := activities.SubmitOperation(context.Background(), input)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "worker signs for")
		writer.AssertNotCalled(t, "SendTransactionOperation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid input", func(t *testing.T) {
		activities := NewActivities(&MockWriter{}, testAccount(), "mainnet", &MockStore{}, nil, nil, testLogger())
		_, err := activities.SubmitOperation(context.Background(), SubmitOperationInput{Request: RequestTransaction, Source: testSource})
		assert.Error(t, err)
	})

	t.Run("writer error is wrapped", func(t *testing.T) {
		writer := &MockWriter{}
		applyErr := &tezos.AppliedResultError{Kind: "transaction", ID: "proto.004-Pt24m4xi.contract.balance_too_low"}
		writer.On("SendTransactionOperation", mock.Anything, mock.Anything, mock.Anything).Return(nil, applyErr)
		activities := NewActivities(writer, testAccount(), "mainnet", &MockStore{}, nil, nil, testLogger())

		_, err := activities.SubmitOperation(context.Background(), transactionInput())
		var target *tezos.AppliedResultError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, "transaction", target.Kind)
	})
}

func TestActivities_RecordOperationGroup(t *testing.T) {
	store := &MockStore{}
	activities := NewActivities(&MockWriter{}, testAccount(), "ghostnet", store, nil, nil, testLogger())

	wf := "submit-" + testSource
	expected := db.RecordOperationGroupParams{
		Hash:       "ooHash",
		GroupID:    "\"ooHash\"\n",
		Source:     testSource,
		Network:    "ghostnet",
		Kinds:      []string{"reveal", "transaction"},
		Counters:   []int64{6, 7},
		WorkflowID: &wf,
		Result:     []byte(`{"contents":[]}`),
	}
	group := &db.OperationGroup{Hash: "ooHash", Source: testSource, Network: "ghostnet"}
	store.On("RecordOperationGroup", mock.Anything, expected).Return(group, nil)

	result, err := activities.RecordOperationGroup(context.Background(), RecordOperationGroupInput{
		Source:     testSource,
		Submitted:  *submitted(),
		WorkflowID: wf,
	})
	require.NoError(t, err)
	assert.Same(t, group, result.Group)
	store.AssertExpectations(t)
}

func TestActivities_RecordOperationGroup_Error(t *testing.T) {
	store := &MockStore{}
	store.On("RecordOperationGroup", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	activities := NewActivities(&MockWriter{}, testAccount(), "mainnet", store, nil, nil, testLogger())

	_, err := activities.RecordOperationGroup(context.Background(), RecordOperationGroupInput{Submitted: *submitted()})
	assert.ErrorContains(t, err, "connection refused")
}

func TestActivities_PublishOperationEvent(t *testing.T) {
	group := &db.OperationGroup{Hash: "ooHash", Source: testSource, Kinds: []string{"transaction"}}

	t.Run("publishes to the source subject", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		activities := NewActivities(&MockWriter{}, testAccount(), "mainnet", &MockStore{}, publisher, nil, testLogger())

		require.NoError(t, activities.PublishOperationEvent(context.Background(), PublishOperationEventInput{Group: group}))
		events := publisher.GetPublishedEventsForSource(testSource)
		require.Len(t, events, 1)
		assert.Equal(t, "ooHash", events[0].Hash)
		assert.Equal(t, "ops."+testSource, events[0].Subject())
	})

	t.Run("publisher error", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		publisher.SetPublishError(errors.New("nats down"))
		activities := NewActivities(&MockWriter{}, testAccount(), "mainnet", &MockStore{}, publisher, nil, testLogger())

		assert.Error(t, activities.PublishOperationEvent(context.Background(), PublishOperationEventInput{Group: group}))
	})

	t.Run("no publisher", func(t *testing.T) {
		activities := NewActivities(&MockWriter{}, testAccount(), "mainnet", &MockStore{}, nil, nil, testLogger())
		assert.NoError(t, activities.PublishOperationEvent(context.Background(), PublishOperationEventInput{Group: group}))
	})
}

func TestSummarizeGroup_Activation(t *testing.T) {
	var applied tezos.AppliedOperationResult
	require.NoError(t, json.Unmarshal([]byte(`{"contents":[{"kind":"activate_account","pkh":"tz1abc","secret":"00"}]}`), &applied))

	kinds, counters, err := summarizeGroup(applied)
	require.NoError(t, err)
	assert.Equal(t, []string{"activate_account"}, kinds)
	assert.Empty(t, counters)
}
