// Package rpc is the HTTP client for a Tezos node. It implements the chain
// accessor and node interfaces of the tezos package.
package rpc

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
	"strings"
	"time"

	"github.com/brojonat/tzwriter/service/metrics"
	"github.com/brojonat/tzwriter/service/tezos"
)

const (
	pathHead     = "chains/main/blocks/head"
	pathContract = "chains/main/blocks/head/context/contracts/"
	pathForge    = "chains/main/blocks/head/helpers/forge/operations"
	pathPreapply = "chains/main/blocks/head/helpers/preapply/operations"
	pathInject   = "injection/operation?chain=main"
)

// StatusError is returned for a non-2xx node response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: node returned %d: %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

// ResponseBody returns the body the node answered with.
func (e *StatusError) ResponseBody() string { return e.Body }

// Client talks to one Tezos node.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
	endpoint   string // metrics label, e.g. "mainnet" or the node host
}

var (
	_ tezos.ChainAccessor = (*Client)(nil)
	_ tezos.Node          = (*Client)(nil)
)

// NewClient creates a node client. If metrics is nil, no metrics are
// recorded.
func NewClient(baseURL string, httpClient *http.Client, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// GetBlockHead returns the hash and protocol of the current head.
func (c *Client) GetBlockHead(ctx context.Context) (tezos.BlockHead, error) {
	body, err := c.do(ctx, "GetBlockHead", http.MethodGet, pathHead, nil)
	if err != nil {
		return tezos.BlockHead{}, err
	}
	var head tezos.BlockHead
	if err := json.Unmarshal(body, &head); err != nil {
		return tezos.BlockHead{}, fmt.Errorf("failed to decode block head: %w", err)
	}
	if head.Hash == "" || head.Protocol == "" {
		return tezos.BlockHead{}, fmt.Errorf("block head without hash or protocol")
	}
	return head, nil
}

// GetCounter returns the current counter of address.
func (c *Client) GetCounter(ctx context.Context, address string) (uint64, error) {
	body, err := c.do(ctx, "GetCounter", http.MethodGet, pathContract+url.PathEscape(address)+"/counter", nil)
	if err != nil {
		return 0, err
	}
	var counter string
	if err := json.Unmarshal(body, &counter); err != nil {
		return 0, fmt.Errorf("failed to decode counter: %w", err)
	}
	n, err := strconv.ParseUint(counter, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter %q: %w", counter, err)
	}
	return n, nil
}

// IsManagerKeyRevealed reports whether the public key of address is on
// chain. Nodes answer null, a bare key, or an object with a "key" field
// depending on the protocol.
func (c *Client) IsManagerKeyRevealed(ctx context.Context, address string) (bool, error) {
	body, err := c.do(ctx, "GetManagerKey", http.MethodGet, pathContract+url.PathEscape(address)+"/manager_key", nil)
	if err != nil {
		return false, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}
	var key string
	if err := json.Unmarshal(trimmed, &key); err == nil {
		return key != "", nil
	}
	var manager struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(trimmed, &manager); err != nil {
		return false, fmt.Errorf("failed to decode manager key: %w", err)
	}
	return manager.Key != "", nil
}

// ForgeOperations posts a forge request and returns the raw response.
func (c *Client) ForgeOperations(ctx context.Context, body []byte) ([]byte, error) {
	return c.do(ctx, "ForgeOperations", http.MethodPost, pathForge, body)
}

// PreapplyOperations posts a preapply request and returns the raw response.
func (c *Client) PreapplyOperations(ctx context.Context, body []byte) ([]byte, error) {
	return c.do(ctx, "PreapplyOperations", http.MethodPost, pathPreapply, body)
}

// InjectOperation posts signed bytes for injection and returns the raw
// response, which is the operation group id.
func (c *Client) InjectOperation(ctx context.Context, body []byte) ([]byte, error) {
	return c.do(ctx, "InjectOperation", http.MethodPost, pathInject, body)
}

func (c *Client) do(ctx context.Context, method, httpMethod, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+"/"+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "calling node", "method", method, "path", path)

	start := time.Now()
	body, err := c.roundTrip(req, httpMethod, path)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.ErrorContext(ctx, "node call failed",
			"method", method,
			"path", path,
			"error", err,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
	}
	return body, err
}

func (c *Client) roundTrip(req *http.Request, httpMethod, path string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: httpMethod, Path: path, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
