package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func describeResponse(runID string, status enumspb.WorkflowExecutionStatus) *workflowservice.DescribeWorkflowExecutionResponse {
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
			Execution: &commonpb.WorkflowExecution{WorkflowId: submissionWorkflowID(testSource), RunId: runID},
			Status:    status,
		},
	}
}

func TestClient_StartSubmission(t *testing.T) {
	sdk := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("submit-" + testSource)
	run.On("GetRunID").Return("run-1")

	var options client.StartWorkflowOptions
	sdk.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			options = args.Get(1).(client.StartWorkflowOptions)
		}).
		Return(run, nil)

	c := NewClientFromSDK(sdk, "tzwriter-submissions", 2*time.Minute, testLogger())
	handle, err := c.StartSubmission(context.Background(), transactionInput())
	require.NoError(t, err)

	assert.Equal(t, "submit-"+testSource, handle.WorkflowID)
	assert.Equal(t, "run-1", handle.RunID)
	assert.Equal(t, "submit-"+testSource, options.ID)
	assert.Equal(t, "tzwriter-submissions", options.TaskQueue)
	assert.Equal(t, 2*time.Minute, options.WorkflowExecutionTimeout)
	assert.True(t, options.WorkflowExecutionErrorWhenAlreadyStarted)
}

func TestClient_StartSubmission_InProgress(t *testing.T) {
	sdk := &mocks.Client{}
	sdk.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run-0"))

	c := NewClientFromSDK(sdk, "q", time.Minute, testLogger())
	_, err := c.StartSubmission(context.Background(), transactionInput())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
}

func TestClient_StartSubmission_Error(t *testing.T) {
	sdk := &mocks.Client{}
	sdk.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("unavailable"))

	c := NewClientFromSDK(sdk, "q", time.Minute, testLogger())
	_, err := c.StartSubmission(context.Background(), transactionInput())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubmissionInProgress)
}

func TestClient_GetSubmissionStatus(t *testing.T) {
	id := submissionWorkflowID(testSource)

	t.Run("running", func(t *testing.T) {
		sdk := &mocks.Client{}
		sdk.On("DescribeWorkflowExecution", mock.Anything, id, "").
			Return(describeResponse("run-1", enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING), nil)

		c := NewClientFromSDK(sdk, "q", time.Minute, testLogger())
		status, err := c.GetSubmissionStatus(context.Background(), id, "")
		require.NoError(t, err)
		assert.Equal(t, "running", status.Status)
		assert.Equal(t, "run-1", status.RunID)
		assert.False(t, status.Done())
		assert.Nil(t, status.Result)
		sdk.AssertNotCalled(t, "GetWorkflow", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("completed", func(t *testing.T) {
		sdk := &mocks.Client{}
		run := &mocks.WorkflowRun{}
		sdk.On("DescribeWorkflowExecution", mock.Anything, id, "").
			Return(describeResponse("run-1", enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED), nil)
		sdk.On("GetWorkflow", mock.Anything, id, "run-1").Return(run)
		run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			out := args.Get(1).(*SubmitOperationWorkflowResult)
			*out = SubmitOperationWorkflowResult{Status: StatusInjected, OperationHash: "ooHash", Journaled: true}
		}).Return(nil)

		c := NewClientFromSDK(sdk, "q", time.Minute, testLogger())
		status, err := c.GetSubmissionStatus(context.Background(), id, "")
		require.NoError(t, err)
		assert.Equal(t, "completed", status.Status)
		assert.True(t, status.Done())
		require.NotNil(t, status.Result)
		assert.Equal(t, "ooHash", status.Result.OperationHash)
		assert.Nil(t, status.Error)
	})

	t.Run("failed", func(t *testing.T) {
		sdk := &mocks.Client{}
		run := &mocks.WorkflowRun{}
		sdk.On("DescribeWorkflowExecution", mock.Anything, id, "run-2").
			Return(describeResponse("run-2", enumspb.WORKFLOW_EXECUTION_STATUS_FAILED), nil)
		sdk.On("GetWorkflow", mock.Anything, id, "run-2").Return(run)
		run.On("Get", mock.Anything, mock.Anything).Return(errors.New("submission failed: preapply rejected"))

		c := NewClientFromSDK(sdk, "q", time.Minute, testLogger())
		status, err := c.GetSubmissionStatus(context.Background(), id, "run-2")
		require.NoError(t, err)
		assert.Equal(t, "failed", status.Status)
		require.NotNil(t, status.Error)
		assert.Contains(t, *status.Error, "preapply rejected")
		assert.Nil(t, status.Result)
	})

	t.Run("describe error", func(t *testing.T) {
		sdk := &mocks.Client{}
		sdk.On("DescribeWorkflowExecution", mock.Anything, id, "").
			Return(nil, serviceerror.NewNotFound("workflow not found"))

		c := NewClientFromSDK(sdk, "q", time.Minute, testLogger())
		_, err := c.GetSubmissionStatus(context.Background(), id, "")
		assert.ErrorIs(t, err, ErrSubmissionNotFound)
	})
}

func TestMockSubmissions(t *testing.T) {
	m := NewMockSubmissions()
	ctx := context.Background()

	handle, err := m.StartSubmission(ctx, transactionInput())
	require.NoError(t, err)

	_, err = m.StartSubmission(ctx, transactionInput())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	m.Complete(handle.WorkflowID, &SubmitOperationWorkflowResult{Status: StatusInjected})
	status, err := m.GetSubmissionStatus(ctx, handle.WorkflowID, "")
	require.NoError(t, err)
	assert.True(t, status.Done())

	_, err = m.StartSubmission(ctx, transactionInput())
	assert.NoError(t, err, "a finished source accepts a new submission")
}
