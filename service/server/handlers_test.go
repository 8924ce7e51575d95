package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/tzwriter/service/config"
	"github.com/brojonat/tzwriter/service/db"
	"github.com/brojonat/tzwriter/service/metrics"
	"github.com/brojonat/tzwriter/service/temporal"
	"github.com/brojonat/tzwriter/service/tezos/codec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAddress(seed byte) string {
	return codec.EncodeBase58Check(codec.PrefixEd25519PublicKeyHash, bytes.Repeat([]byte{seed}, codec.PublicKeyHashSize))
}

func testOperationHash(seed byte) string {
	return codec.EncodeBase58Check(codec.PrefixOperationHash, bytes.Repeat([]byte{seed}, 32))
}

// memoryStore is an in-memory OperationGroupStore.
type memoryStore struct {
	mu       sync.Mutex
	groups   []*db.OperationGroup
	err      error
	lastList db.ListOperationGroupsBySourceParams
}

func (s *memoryStore) GetOperationGroup(_ context.Context, hash string) (*db.OperationGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, g := range s.groups {
		if g.Hash == hash {
			return g, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memoryStore) ListOperationGroupsBySource(_ context.Context, params db.ListOperationGroupsBySourceParams) ([]*db.OperationGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastList = params
	if s.err != nil {
		return nil, s.err
	}
	var out []*db.OperationGroup
	for _, g := range s.groups {
		if g.Source == params.Source && (params.Network == "" || g.Network == params.Network) {
			out = append(out, g)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, store OperationGroupStore, submissions temporal.Submissions) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := New(":0", &config.Config{TezosNetwork: "mainnet"}, store, submissions, metrics.NewMetrics(reg), testLogger())
	s.gatherer = reg
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, reg
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestSubmitOperation(t *testing.T) {
	source := testAddress(1)
	submissions := temporal.NewMockSubmissions()
	srv, _ := newTestServer(t, &memoryStore{}, submissions)

	body := `{
		"request": "transaction",
		"source": "` + source + `",
		"transaction": {"destination": "` + testAddress(2) + `", "amount": 1000000, "fee": 1420}
	}`
	resp, err := http.Post(srv.URL+"/api/v1/operations", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted submissionResponse
	decodeBody(t, resp, &accepted)
	assert.Equal(t, "submit-"+source, accepted.WorkflowID)
	assert.NotEmpty(t, accepted.RunID)
	assert.Contains(t, accepted.StatusURL, accepted.WorkflowID)

	input, ok := submissions.Input(accepted.WorkflowID)
	require.True(t, ok)
	assert.Equal(t, temporal.RequestTransaction, input.Request)
	require.NotNil(t, input.Transaction)
	assert.Equal(t, uint64(1000000), input.Transaction.Amount)
	assert.Equal(t, uint64(1420), input.Transaction.Fee)

	// A second submission for the same source waits for the first.
	resp, err = http.Post(srv.URL+"/api/v1/operations", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubmitOperation_PathologicalInput(t *testing.T) {
	source := testAddress(1)
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"not json", `request=transaction`},
		{"unknown field", `{"request":"reveal","source":"` + source + `","mnemonic":"abandon"}`},
		{"missing source", `{"request":"reveal"}`},
		{"originated source", `{"request":"reveal","source":"KT1BEqzn5Wx8uJrZNvuS9DVHmLvG9td3fDLi"}`},
		{"bad checksum", `{"request":"reveal","source":"tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSy"}`},
		{"oversized source", `{"request":"reveal","source":"` + strings.Repeat("a", 100) + `"}`},
		{"unknown request", `{"request":"burn","source":"` + source + `"}`},
		{"transaction without params", `{"request":"transaction","source":"` + source + `"}`},
		{"negative amount", `{"request":"transaction","source":"` + source + `","transaction":{"destination":"x","amount":-1}}`},
	}

	srv, _ := newTestServer(t, &memoryStore{}, temporal.NewMockSubmissions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/operations", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			var body map[string]string
			decodeBody(t, resp, &body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSubmitOperation_StartFailure(t *testing.T) {
	submissions := temporal.NewMockSubmissions()
	submissions.SetStartError(errors.New("temporal unavailable"))
	srv, _ := newTestServer(t, &memoryStore{}, submissions)

	body := `{"request":"reveal","source":"` + testAddress(1) + `"}`
	resp, err := http.Post(srv.URL+"/api/v1/operations", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var errBody map[string]string
	decodeBody(t, resp, &errBody)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, errBody["error"], "temporal unavailable")
}

func TestGetSubmissionStatus(t *testing.T) {
	source := testAddress(1)
	submissions := temporal.NewMockSubmissions()
	srv, _ := newTestServer(t, &memoryStore{}, submissions)

	handle, err := submissions.StartSubmission(context.Background(), temporal.SubmitOperationInput{Request: temporal.RequestReveal, Source: source})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/v1/operations/" + handle.WorkflowID)
	require.NoError(t, err)
	var status temporal.SubmissionStatus
	decodeBody(t, resp, &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", status.Status)

	submissions.Complete(handle.WorkflowID, &temporal.SubmitOperationWorkflowResult{
		Status:        temporal.StatusInjected,
		OperationHash: testOperationHash(9),
	})
	resp, err = http.Get(srv.URL + "/api/v1/operations/" + handle.WorkflowID + "?run_id=" + handle.RunID)
	require.NoError(t, err)
	decodeBody(t, resp, &status)
	assert.Equal(t, "completed", status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, testOperationHash(9), status.Result.OperationHash)

	resp, err = http.Get(srv.URL + "/api/v1/operations/submit-unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListOperationGroups(t *testing.T) {
	source := testAddress(1)
	wf := "submit-" + source
	store := &memoryStore{groups: []*db.OperationGroup{
		{
			Hash:       testOperationHash(1),
			GroupID:    "\"" + testOperationHash(1) + "\"\n",
			Source:     source,
			Network:    "mainnet",
			Kinds:      []string{"reveal", "delegation"},
			Counters:   []int64{6, 7},
			Status:     "injected",
			WorkflowID: &wf,
			Result:     json.RawMessage(`{"contents":[]}`),
			CreatedAt:  time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{Hash: testOperationHash(2), Source: source, Network: "ghostnet", Kinds: []string{"transaction"}},
		{Hash: testOperationHash(3), Source: testAddress(2), Network: "mainnet", Kinds: []string{"transaction"}},
	}}
	srv, _ := newTestServer(t, store, temporal.NewMockSubmissions())

	resp, err := http.Get(srv.URL + "/api/v1/operation-groups?source=" + source)
	require.NoError(t, err)
	var body struct {
		OperationGroups []operationGroupResponse `json:"operation_groups"`
		Count           int                      `json:"count"`
		Limit           int                      `json:"limit"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Count, "defaults to the server's network")
	assert.Equal(t, defaultListLimit, body.Limit)
	assert.Equal(t, []int64{6, 7}, body.OperationGroups[0].Counters)
	assert.JSONEq(t, `{"contents":[]}`, string(body.OperationGroups[0].Result))
	assert.Equal(t, "mainnet", store.lastList.Network)

	resp, err = http.Get(srv.URL + "/api/v1/operation-groups?source=" + source + "&network=ghostnet&limit=5&offset=1")
	require.NoError(t, err)
	decodeBody(t, resp, &body)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, int32(5), store.lastList.Limit)
	assert.Equal(t, int32(1), store.lastList.Offset)
	assert.Equal(t, []int64{}, body.OperationGroups[0].Counters)
}

func TestListOperationGroups_PathologicalInput(t *testing.T) {
	source := testAddress(1)
	tests := []struct {
		name  string
		query string
	}{
		{"missing source", ""},
		{"invalid source", "source=tz1nope"},
		{"limit not a number", "source=" + source + "&limit=ten"},
		{"limit zero", "source=" + source + "&limit=0"},
		{"limit too large", "source=" + source + "&limit=1001"},
		{"negative offset", "source=" + source + "&offset=-1"},
		{"offset beyond int32", "source=" + source + "&offset=2147483648"},
	}

	srv, _ := newTestServer(t, &memoryStore{}, temporal.NewMockSubmissions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/v1/operation-groups?" + tt.query)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetOperationGroup(t *testing.T) {
	source := testAddress(1)
	store := &memoryStore{groups: []*db.OperationGroup{
		{Hash: testOperationHash(1), Source: source, Network: "mainnet", Kinds: []string{"transaction"}, Counters: []int64{3}},
	}}
	srv, _ := newTestServer(t, store, temporal.NewMockSubmissions())

	resp, err := http.Get(srv.URL + "/api/v1/operation-groups/" + testOperationHash(1))
	require.NoError(t, err)
	var group operationGroupResponse
	decodeBody(t, resp, &group)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, source, group.Source)
	assert.Equal(t, []int64{3}, group.Counters)

	resp, err = http.Get(srv.URL + "/api/v1/operation-groups/" + testOperationHash(2))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/operation-groups/not-a-hash")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	store.err = errors.New("connection refused")
	resp, err = http.Get(srv.URL + "/api/v1/operation-groups/" + testOperationHash(1))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &memoryStore{}, temporal.NewMockSubmissions())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(b))

	// Generate one instrumented request, then scrape.
	resp, err = http.Get(srv.URL + "/api/v1/operation-groups")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "http_requests_total")
	assert.Contains(t, string(b), `handler="/api/v1/operation-groups"`)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &memoryStore{}, temporal.NewMockSubmissions())

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/operations", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
