package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/brojonat/tzwriter/service/db"
	"github.com/brojonat/tzwriter/service/temporal"
	"github.com/brojonat/tzwriter/service/tezos/codec"
)

const (
	maxRequestBodySize = 1 << 20 // contract code can be large
	maxAddressLength   = 64
	defaultListLimit   = 100
	maxListLimit       = 1000
)

// handleSubmitOperation returns a handler that starts a submit workflow.
// POST /api/v1/operations
func handleSubmitOperation(submissions temporal.Submissions, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var input temporal.SubmitOperationInput
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&input); err != nil {
			logger.Debug("invalid submission body", "error", err)
			writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}

		if err := validateImplicitAddress(input.Source); err != nil {
			writeError(w, fmt.Sprintf("invalid source: %v", err), http.StatusBadRequest)
			return
		}
		if err := input.Validate(); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		handle, err := submissions.StartSubmission(r.Context(), input)
		if errors.Is(err, temporal.ErrSubmissionInProgress) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			logger.Error("failed to start submission", "source", input.Source, "request", input.Request, "error", err)
			writeError(w, "failed to start submission", http.StatusInternalServerError)
			return
		}

		logger.Info("submission accepted",
			"source", input.Source,
			"request", input.Request,
			"workflow_id", handle.WorkflowID,
		)
		writeJSON(w, submissionResponse{
			WorkflowID: handle.WorkflowID,
			RunID:      handle.RunID,
			StatusURL:  fmt.Sprintf("/api/v1/operations/%s?run_id=%s", handle.WorkflowID, handle.RunID),
		}, http.StatusAccepted)
	})
}

// handleGetSubmissionStatus returns a handler that reports on a submission.
// GET /api/v1/operations/{workflow_id}?run_id=RUN
func handleGetSubmissionStatus(submissions temporal.Submissions, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workflowID := r.PathValue("workflow_id")
		if workflowID == "" {
			writeError(w, "workflow_id is required", http.StatusBadRequest)
			return
		}
		runID := r.URL.Query().Get("run_id")

		status, err := submissions.GetSubmissionStatus(r.Context(), workflowID, runID)
		if errors.Is(err, temporal.ErrSubmissionNotFound) {
			writeError(w, "submission not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get submission status", "workflow_id", workflowID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, status, http.StatusOK)
	})
}

// handleListOperationGroups returns a handler that lists the journal of a source.
// GET /api/v1/operation-groups?source=ADDRESS&network=NET&limit=N&offset=N
func handleListOperationGroups(store OperationGroupStore, defaultNetwork string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		source := query.Get("source")
		if source == "" {
			writeError(w, "source query parameter is required", http.StatusBadRequest)
			return
		}
		if err := validateImplicitAddress(source); err != nil {
			logger.Debug("invalid source", "source", source, "error", err)
			writeError(w, fmt.Sprintf("invalid source: %v", err), http.StatusBadRequest)
			return
		}

		network := query.Get("network")
		if network == "" {
			network = defaultNetwork
		}

		limit, err := parseBoundedInt(query.Get("limit"), defaultListLimit, 1, maxListLimit)
		if err != nil {
			writeError(w, fmt.Sprintf("invalid limit parameter: %v", err), http.StatusBadRequest)
			return
		}
		offset, err := parseBoundedInt(query.Get("offset"), 0, 0, math.MaxInt32)
		if err != nil {
			writeError(w, fmt.Sprintf("invalid offset parameter: %v", err), http.StatusBadRequest)
			return
		}

		groups, err := store.ListOperationGroupsBySource(r.Context(), db.ListOperationGroupsBySourceParams{
			Source:  source,
			Network: network,
			Limit:   int32(limit),
			Offset:  int32(offset),
		})
		if err != nil {
			logger.Error("failed to list operation groups", "source", source, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("operation groups listed", "source", source, "count", len(groups))

		resp := make([]operationGroupResponse, len(groups))
		for i, g := range groups {
			resp[i] = operationGroupToResponse(g)
		}
		writeJSON(w, map[string]interface{}{
			"operation_groups": resp,
			"count":            len(resp),
			"limit":            limit,
			"offset":           offset,
		}, http.StatusOK)
	})
}

// handleGetOperationGroup returns a handler that retrieves one journaled group.
// GET /api/v1/operation-groups/{hash}
func handleGetOperationGroup(store OperationGroupStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := r.PathValue("hash")
		if _, err := codec.DecodeBase58Check(codec.PrefixOperationHash, hash, 32); err != nil {
			writeError(w, "invalid operation hash", http.StatusBadRequest)
			return
		}

		group, err := store.GetOperationGroup(r.Context(), hash)
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, "operation group not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get operation group", "hash", hash, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, operationGroupToResponse(group), http.StatusOK)
	})
}

// submissionResponse is the JSON response to an accepted submission.
type submissionResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	StatusURL  string `json:"status_url"`
}

// operationGroupResponse is the JSON response format for a journaled group.
type operationGroupResponse struct {
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

func operationGroupToResponse(g *db.OperationGroup) operationGroupResponse {
	counters := g.Counters
	if counters == nil {
		counters = []int64{}
	}
	return operationGroupResponse{
		Hash:       g.Hash,
		GroupID:    g.GroupID,
		Source:     g.Source,
		Network:    g.Network,
		Kinds:      g.Kinds,
		Counters:   counters,
		Status:     g.Status,
		WorkflowID: g.WorkflowID,
		Result:     g.Result,
		CreatedAt:  g.CreatedAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateImplicitAddress accepts tz1, tz2 and tz3 addresses.
func validateImplicitAddress(address string) error {
	if address == "" {
		return errors.New("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long (max %d characters)", maxAddressLength)
	}
	if _, err := codec.EncodePublicKeyHash(address); err != nil {
		return err
	}
	return nil
}

// parseBoundedInt parses s, or returns def when s is empty. The result lies
// in [lo, hi].
func parseBoundedInt(s string, def, lo, hi int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < lo {
		return 0, fmt.Errorf("must be at least %d", lo)
	}
	if n > hi {
		return 0, fmt.Errorf("cannot exceed %d", hi)
	}
	return n, nil
}
