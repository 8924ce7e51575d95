package temporal

import (
	"context"
	"fmt"
	"sync"
)

// MockSubmissions is an in-memory implementation of Submissions for testing.
type MockSubmissions struct {
	mu       sync.Mutex
	inputs   map[string]SubmitOperationInput
	statuses map[string]*SubmissionStatus
	startErr error
}

// NewMockSubmissions creates a new MockSubmissions.
func NewMockSubmissions() *MockSubmissions {
	return &MockSubmissions{
		inputs:   make(map[string]SubmitOperationInput),
		statuses: make(map[string]*SubmissionStatus),
	}
}

// StartSubmission records the input and marks the submission running.
func (m *MockSubmissions) StartSubmission(ctx context.Context, input SubmitOperationInput) (*SubmissionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return nil, m.startErr
	}
	id := submissionWorkflowID(input.Source)
	if s, ok := m.statuses[id]; ok && !s.Done() {
		return nil, ErrSubmissionInProgress
	}
	runID := fmt.Sprintf("run-%d", len(m.inputs)+1)
	m.inputs[id] = input
	m.statuses[id] = &SubmissionStatus{WorkflowID: id, RunID: runID, Status: "running"}
	return &SubmissionHandle{WorkflowID: id, RunID: runID}, nil
}

// GetSubmissionStatus returns the recorded status.
func (m *MockSubmissions) GetSubmissionStatus(ctx context.Context, workflowID, runID string) (*SubmissionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.statuses[workflowID]
	if !ok || (runID != "" && runID != s.RunID) {
		return nil, ErrSubmissionNotFound
	}
	out := *s
	return &out, nil
}

// Complete finishes the running submission of workflowID with result.
func (m *MockSubmissions) Complete(workflowID string, result *SubmitOperationWorkflowResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.statuses[workflowID]; ok {
		s.Status = "completed"
		s.Result = result
	}
}

// Fail finishes the running submission of workflowID with an error.
func (m *MockSubmissions) Fail(workflowID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.statuses[workflowID]; ok {
		s.Status = "failed"
		s.Error = &message
	}
}

// Input returns the input a submission was started with.
func (m *MockSubmissions) Input(workflowID string) (SubmitOperationInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.inputs[workflowID]
	return in, ok
}

// SetStartError configures StartSubmission to fail.
func (m *MockSubmissions) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}
