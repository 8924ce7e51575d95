package tezos

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brojonat/tzwriter/service/tezos/codec"
	"github.com/brojonat/tzwriter/service/tezos/crypto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBranch(seed byte) string {
	return codec.EncodeBase58Check(codec.PrefixBlockHash, bytes.Repeat([]byte{seed}, codec.BlockHashSize))
}

func testAddress(seed byte) string {
	return codec.EncodeBase58Check(codec.PrefixEd25519PublicKeyHash, bytes.Repeat([]byte{seed}, codec.PublicKeyHashSize))
}

func testKeyStore(t *testing.T) KeyStore {
	t.Helper()
	key, err := crypto.NewEd25519SecretKey(bytes.Repeat([]byte{0x07}, 32))
	require.NoError(t, err)
	ks, err := KeyStoreFromSecretKey(key.String())
	require.NoError(t, err)
	return ks
}

func testAccount(t *testing.T) Account {
	t.Helper()
	ks := testKeyStore(t)
	signer, err := NewSoftwareSigner(ks)
	require.NoError(t, err)
	return Account{KeyStore: ks, Signer: signer}
}

// fakeChain is an in-memory ChainAccessor.
type fakeChain struct {
	head       BlockHead
	counter    uint64
	revealed   bool
	headErr    error
	counterErr error
	revealErr  error
}

func (c *fakeChain) GetBlockHead(context.Context) (BlockHead, error) {
	return c.head, c.headErr
}

func (c *fakeChain) GetCounter(context.Context, string) (uint64, error) {
	return c.counter, c.counterErr
}

func (c *fakeChain) IsManagerKeyRevealed(context.Context, string) (bool, error) {
	return c.revealed, c.revealErr
}

// fakeNode records request bodies. Unless overridden, preapply echoes the
// submitted contents back as applied results.
type fakeNode struct {
	mu sync.Mutex

	forgeResponse    []byte
	preapplyResponse []byte
	injectResponse   []byte
	err              error

	forgeRequests    [][]byte
	preapplyRequests [][]byte
	injectRequests   [][]byte
}

// rejectedResponse is a node error that keeps the response body.
type rejectedResponse struct {
	body string
}

func (e *rejectedResponse) Error() string        { return "node returned 500: " + e.body }
func (e *rejectedResponse) ResponseBody() string { return e.body }

func (n *fakeNode) ForgeOperations(_ context.Context, body []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.forgeRequests = append(n.forgeRequests, body)
	return n.forgeResponse, n.err
}

func (n *fakeNode) PreapplyOperations(_ context.Context, body []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.preapplyRequests = append(n.preapplyRequests, body)
	if n.err != nil {
		return nil, n.err
	}
	if n.preapplyResponse != nil {
		return n.preapplyResponse, nil
	}
	return echoPreapply(body)
}

func (n *fakeNode) InjectOperation(_ context.Context, body []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.injectRequests = append(n.injectRequests, body)
	return n.injectResponse, n.err
}

func echoPreapply(body []byte) ([]byte, error) {
	var requests []struct {
		Contents  []map[string]any `json:"contents"`
		Signature string           `json:"signature"`
	}
	if err := json.Unmarshal(body, &requests); err != nil {
		return nil, err
	}
	for _, content := range requests[0].Contents {
		content["metadata"] = map[string]any{
			"operation_result": map[string]any{"status": "applied"},
		}
	}
	return json.Marshal([]any{map[string]any{
		"contents":  requests[0].Contents,
		"signature": requests[0].Signature,
	}})
}

// preappliedContents returns the contents of the single preapply request
// the node received.
func preappliedContents(t *testing.T, n *fakeNode) []map[string]any {
	t.Helper()
	require.Len(t, n.preapplyRequests, 1)
	var requests []struct {
		Contents []map[string]any `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(n.preapplyRequests[0], &requests))
	require.Len(t, requests, 1)
	return requests[0].Contents
}
