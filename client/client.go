// Package client is the Go client of the tzwriter HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brojonat/tzwriter/service/tezos"
)

// SubmitRequest asks the service to send one operation group. Request is
// one of transaction, contract_invocation, delegation, undelegation,
// account_origination, contract_origination, reveal or activation.
type SubmitRequest struct {
	Request     string                   `json:"request"`
	Source      string                   `json:"source"`
	Transaction *tezos.TransactionParams `json:"transaction,omitempty"`
	Delegation  *tezos.DelegationParams  `json:"delegation,omitempty"`
	Origination *tezos.OriginationParams `json:"origination,omitempty"`
	Fee         uint64                   `json:"fee,omitempty"`
	Secret      string                   `json:"secret,omitempty"`
}

// Submission identifies an accepted submission.
type Submission struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	StatusURL  string `json:"status_url"`
}

// SubmissionResult is the outcome of a finished submission.
type SubmissionResult struct {
	Request          string    `json:"request"`
	Source           string    `json:"source"`
	Status           string    `json:"status"` // injected, failed
	OperationGroupID string    `json:"operation_group_id,omitempty"`
	OperationHash    string    `json:"operation_hash,omitempty"`
	Kinds            []string  `json:"kinds,omitempty"`
	Counters         []int64   `json:"counters,omitempty"`
	Journaled        bool      `json:"journaled"`
	Published        bool      `json:"published"`
	CompletedAt      time.Time `json:"completed_at"`
	Error            *string   `json:"error,omitempty"`
}

// SubmissionStatus is the state of a submission.
type SubmissionStatus struct {
	WorkflowID string            `json:"workflow_id"`
	RunID      string            `json:"run_id"`
	Status     string            `json:"status"` // running, completed, failed, ...
	Result     *SubmissionResult `json:"result,omitempty"`
	Error      *string           `json:"error,omitempty"`
}

// Done reports whether the submission has finished.
func (s *SubmissionStatus) Done() bool {
	return s.Status != "running"
}

// OperationGroup is one journaled operation group.
type OperationGroup struct {
	Hash       string          `json:"hash"`
	GroupID    string          `json:"group_id"`
	Source     string          `json:"source"`
	Network    string          `json:"network"`
	Kinds      []string        `json:"kinds"`
	Counters   []int64         `json:"counters"`
	Status     string          `json:"status"`
	WorkflowID *string         `json:"workflow_id,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListOperationGroupsParams filters ListOperationGroups. Zero values use
// the server's defaults.
type ListOperationGroupsParams struct {
	Network string
	Limit   int
	Offset  int
}

// APIError is a non-success answer of the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the tzwriter service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Submit starts a submission.
func (c *Client) Submit(ctx context.Context, request SubmitRequest) (*Submission, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/operations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var submission Submission
	if err := c.do(req, http.StatusAccepted, &submission); err != nil {
		return nil, err
	}

	c.logger.Debug("submission accepted",
		"request", request.Request,
		"source", request.Source,
		"workflow_id", submission.WorkflowID,
	)
	return &submission, nil
}

// Status reports on a submission. An empty runID selects the latest run.
func (c *Client) Status(ctx context.Context, workflowID, runID string) (*SubmissionStatus, error) {
	u := fmt.Sprintf("%s/api/v1/operations/%s", c.baseURL, url.PathEscape(workflowID))
	if runID != "" {
		u += "?run_id=" + url.QueryEscape(runID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var status SubmissionStatus
	if err := c.do(req, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Await polls a submission until it finishes or ctx is done. It returns
// an error, along with the final status, when the submission did not
// complete.
func (c *Client) Await(ctx context.Context, workflowID, runID string, pollInterval time.Duration) (*SubmissionStatus, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, workflowID, runID)
		if err != nil {
			return nil, err
		}
		if status.Done() {
			c.logger.Debug("submission finished", "workflow_id", workflowID, "status", status.Status)
			if status.Status != "completed" {
				msg := status.Status
				if status.Error != nil {
					msg = *status.Error
				}
				return status, fmt.Errorf("submission %s did not complete: %s", workflowID, msg)
			}
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ListOperationGroups lists the journaled groups of source, newest first.
func (c *Client) ListOperationGroups(ctx context.Context, source string, params ListOperationGroupsParams) ([]*OperationGroup, error) {
	q := url.Values{}
	q.Set("source", source)
	if params.Network != "" {
		q.Set("network", params.Network)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/operation-groups?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var response struct {
		OperationGroups []*OperationGroup `json:"operation_groups"`
	}
	if err := c.do(req, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.OperationGroups, nil
}

// GetOperationGroup retrieves one journaled group by operation hash.
func (c *Client) GetOperationGroup(ctx context.Context, hash string) (*OperationGroup, error) {
	u := fmt.Sprintf("%s/api/v1/operation-groups/%s", c.baseURL, url.PathEscape(hash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var group OperationGroup
	if err := c.do(req, http.StatusOK, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
