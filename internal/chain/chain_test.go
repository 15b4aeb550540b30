package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []any           `json:"params"`
}

// rpcServer answers a fixed set of JSON-RPC methods and records calls
type rpcServer struct {
	mu      sync.Mutex
	calls   []string
	results map[string]any
}

func (s *rpcServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.calls = append(s.calls, req.Method)
	result, ok := s.results[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if ok {
		resp["result"] = result
	} else {
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *rpcServer) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == method {
			n++
		}
	}
	return n
}

func dial(t *testing.T, srv *rpcServer, cfg Config) *Client {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	cfg.URL = ts.URL
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClient(t *testing.T) {
	srv := &rpcServer{results: map[string]any{
		"eth_getBalance":          "0xde0b6b3a7640000",
		"eth_getTransactionCount": "0x5",
		"eth_gasPrice":            "0x3b9aca00",
		"eth_chainId":             "0xaa36a7",
	}}
	c := dial(t, srv, DefaultConfig())
	ctx := context.Background()
	addr := common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")

	bal, err := c.BalanceAt(ctx, addr, nil)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", bal.String())

	nonce, err := c.PendingNonceAt(ctx, addr)
	require.NoError(t, err)
	assert.EqualValues(t, 5, nonce)

	price, err := c.SuggestGasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000), price)

	for i := 0; i < 3; i++ {
		id, err := c.ChainID(ctx)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(11155111), id)
	}
	assert.Equal(t, 1, srv.count("eth_chainId"), "chain id is cached")
}

func TestClientErrors(t *testing.T) {
	c := dial(t, &rpcServer{results: map[string]any{}}, DefaultConfig())
	_, err := c.BalanceAt(context.Background(), common.Address{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balance of 0x0000000000000000000000000000000000000000")

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(1)})
	err = c.SendTransaction(context.Background(), tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), tx.Hash().Hex())
}

func TestDialRequiresURL(t *testing.T) {
	_, err := Dial(context.Background(), Config{})
	assert.Error(t, err)
}

type slowBackend struct {
	Backend
}

func (slowBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeout(t *testing.T) {
	c := New(slowBackend{}, Config{Timeout: 20 * time.Millisecond})
	start := time.Now()
	_, err := c.SuggestGasPrice(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

type countingBackend struct {
	Backend
	mu sync.Mutex
	n  int
}

func (b *countingBackend) ChainID(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	return big.NewInt(1), nil
}

func TestRateLimit(t *testing.T) {
	backend := &countingBackend{}
	c := New(backend, Config{RateLimit: 1, Burst: 1})

	_, err := c.ChainID(context.Background())
	require.NoError(t, err)

	// the first call spent the only token, the next wait exceeds the deadline
	c.chainID = nil
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ChainID(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, backend.n)
}
