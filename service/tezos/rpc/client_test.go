package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/tzwriter/service/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewClient(srv.URL+"/", srv.Client(), "test", m, testLogger())
}

func TestClient_GetBlockHead(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/chains/main/blocks/head", r.URL.Path)
		w.Write([]byte(`{"protocol":"PsddFKi32cMJ2qPjf43Qv5GDWLDPZb3T3bF6fLKiF5HtvHNU7aP","chain_id":"NetXdQprcVkpaWU","hash":"BLockGenesisGenesisGenesisGenesisGenesisf79b5d1CoW2","header":{}}`))
	})

	head, err := c.GetBlockHead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BLockGenesisGenesisGenesisGenesisGenesisf79b5d1CoW2", head.Hash)
	assert.Equal(t, "PsddFKi32cMJ2qPjf43Qv5GDWLDPZb3T3bF6fLKiF5HtvHNU7aP", head.Protocol)
}

func TestClient_GetCounter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chains/main/blocks/head/context/contracts/tz1abc/counter", r.URL.Path)
		w.Write([]byte("\"5\"\n"))
	})

	counter, err := c.GetCounter(context.Background(), "tz1abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), counter)
}

func TestClient_IsManagerKeyRevealed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "null", body: "null\n", want: false},
		{name: "bare key", body: `"edpkuBknW28nW72KG6RoHtYW7p12T6GKc7nAbwYX5m8Wd9sDVC9yav"`, want: true},
		{name: "object with key", body: `{"manager":"tz1abc","key":"edpkuBknW28nW72KG6RoHtYW7p12T6GKc7nAbwYX5m8Wd9sDVC9yav"}`, want: true},
		{name: "object without key", body: `{"manager":"tz1abc"}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chains/main/blocks/head/context/contracts/tz1abc/manager_key", r.URL.Path)
				w.Write([]byte(tt.body))
			})
			got, err := c.IsManagerKeyRevealed(context.Background(), "tz1abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_PostEndpoints(t *testing.T) {
	var gotPath, gotQuery, gotBody, gotContentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte("\"ooResponse\"\n"))
	})

	tests := []struct {
		name  string
		call  func(ctx context.Context, body []byte) ([]byte, error)
		path  string
		query string
	}{
		{"forge", c.ForgeOperations, "/chains/main/blocks/head/helpers/forge/operations", ""},
		{"preapply", c.PreapplyOperations, "/chains/main/blocks/head/helpers/preapply/operations", ""},
		{"inject", c.InjectOperation, "/injection/operation", "chain=main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := tt.call(context.Background(), []byte(`"cafe"`))
			require.NoError(t, err)
			assert.Equal(t, "\"ooResponse\"\n", string(body), "response must be returned verbatim")
			assert.Equal(t, tt.path, gotPath)
			assert.Equal(t, tt.query, gotQuery)
			assert.Equal(t, `"cafe"`, gotBody)
			assert.Equal(t, "application/json", gotContentType)
		})
	}
}

func TestClient_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `[{"kind":"temporary","id":"failure"}]`, http.StatusInternalServerError)
	})

	_, err := c.PreapplyOperations(context.Background(), []byte("[]"))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "temporary")

	_, err = c.GetCounter(context.Background(), "tz1abc")
	assert.Error(t, err)
}

func TestClient_MalformedResponses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := c.GetBlockHead(context.Background())
	assert.Error(t, err)
	_, err = c.GetCounter(context.Background(), "tz1abc")
	assert.Error(t, err)
	_, err = c.IsManagerKeyRevealed(context.Background(), "tz1abc")
	assert.Error(t, err)
}
