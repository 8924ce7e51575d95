package temporal

import (
	"context"
	"errors"
)

// ErrSubmissionInProgress is returned when a submission for the same source
// is still running.
var ErrSubmissionInProgress = errors.New("a submission for this source is already running")

// ErrSubmissionNotFound is returned for an unknown workflow or run id.
var ErrSubmissionNotFound = errors.New("submission not found")

// Submissions starts submit workflows and reports on them.
type Submissions interface {
	// StartSubmission starts SubmitOperationWorkflow for input. Only one
	// submission per source runs at a time; a second one fails with
	// ErrSubmissionInProgress.
	StartSubmission(ctx context.Context, input SubmitOperationInput) (*SubmissionHandle, error)

	// GetSubmissionStatus describes a submission. An empty runID selects
	// the latest run.
	GetSubmissionStatus(ctx context.Context, workflowID, runID string) (*SubmissionStatus, error)
}

// SubmissionHandle identifies a started submission.
type SubmissionHandle struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// SubmissionStatus is the state of a submission.
type SubmissionStatus struct {
	WorkflowID string                         `json:"workflow_id"`
	RunID      string                         `json:"run_id"`
	Status     string                         `json:"status"` // running, completed, failed, timed_out, ...
	Result     *SubmitOperationWorkflowResult `json:"result,omitempty"`
	Error      *string                        `json:"error,omitempty"`
}

// Done reports whether the submission has finished.
func (s *SubmissionStatus) Done() bool {
	return s.Status != "running"
}

// submissionWorkflowID serializes submissions per source: a source has at
// most one running workflow at a time.
func submissionWorkflowID(source string) string {
	return "submit-" + source
}
