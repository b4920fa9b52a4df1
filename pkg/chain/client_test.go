package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sipeed/clawvault/pkg/config"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
}

// rpcServer answers eth_blockNumber with a fixed head.
func rpcServer(t *testing.T, head string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  head,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func brokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
}

func newTestClient(t *testing.T, rpcs []string) *Client {
	t.Helper()
	abis, err := NewABIRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("NewABIRegistry failed: %v", err)
	}
	c := NewClient(abis, 100)
	t.Cleanup(c.Close)

	err = c.AddChain(&config.EVMChain{
		Name:    "test",
		ChainID: 7441,
		RPCs:    rpcs,
	})
	if err != nil {
		t.Fatalf("AddChain failed: %v", err)
	}
	return c
}

func TestBlockNumber(t *testing.T) {
	srv := rpcServer(t, "0x2a", nil)
	defer srv.Close()

	c := newTestClient(t, []string{srv.URL})

	head, err := c.BlockNumber(context.Background(), 7441)
	if err != nil {
		t.Fatalf("BlockNumber failed: %v", err)
	}
	if head != 42 {
		t.Errorf("head = %d, want 42", head)
	}
}

func TestEndpointRotationOnFailure(t *testing.T) {
	bad := brokenServer(t)
	defer bad.Close()
	var goodHits atomic.Int64
	good := rpcServer(t, "0x64", &goodHits)
	defer good.Close()

	c := newTestClient(t, []string{bad.URL, good.URL})

	head, err := c.BlockNumber(context.Background(), 7441)
	if err != nil {
		t.Fatalf("BlockNumber should succeed via the fallback endpoint: %v", err)
	}
	if head != 100 {
		t.Errorf("head = %d, want 100", head)
	}
	if goodHits.Load() == 0 {
		t.Error("fallback endpoint was never reached")
	}
}

func TestAllEndpointsDownIsUnavailableNotZero(t *testing.T) {
	bad1 := brokenServer(t)
	bad2 := brokenServer(t)
	bad1.Close() // connection refused
	defer bad2.Close()

	c := newTestClient(t, []string{bad1.URL, bad2.URL})

	_, err := c.BlockNumber(context.Background(), 7441)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestUnknownChain(t *testing.T) {
	srv := rpcServer(t, "0x1", nil)
	defer srv.Close()

	c := newTestClient(t, []string{srv.URL})

	_, err := c.BlockNumber(context.Background(), 1)
	if err == nil {
		t.Fatal("unknown chain should error")
	}
}

func TestContextCancellation(t *testing.T) {
	srv := rpcServer(t, "0x1", nil)
	defer srv.Close()

	c := newTestClient(t, []string{srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.BlockNumber(ctx, 7441)
	if err == nil {
		t.Fatal("cancelled context should abort the call")
	}
}
