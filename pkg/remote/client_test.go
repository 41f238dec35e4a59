package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/seashell/internal/types"
)

// mockRPCServer creates a mock RPC server for testing.
func mockRPCServer(t *testing.T, handler func(method string, params []interface{}) (interface{}, error)) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string        `json:"jsonrpc"`
			ID      int           `json:"id"`
			Method  string        `json:"method"`
			Params  []interface{} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		result, err := handler(req.Method, req.Params)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if err != nil {
			resp["error"] = map[string]interface{}{
				"code":    -32000,
				"message": err.Error(),
			}
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAccount(t *testing.T) {
	id := types.NewUniquePubkey()
	srv := mockRPCServer(t, func(method string, params []interface{}) (interface{}, error) {
		assert.Equal(t, "getAccountInfo", method)
		if !assert.Len(t, params, 2) {
			return nil, errors.New("bad params")
		}
		assert.Equal(t, id.String(), params[0])
		opts := params[1].(map[string]interface{})
		assert.Equal(t, "base64", opts["encoding"])

		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value": map[string]interface{}{
				"data":       []string{base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), "base64"},
				"executable": true,
				"lamports":   1234,
				"owner":      types.BPFLoader2Addr.String(),
				"rentEpoch":  uint64(18446744073709551615),
				"space":      3,
			},
		}, nil
	})

	client := Dial(srv.URL, zerolog.Nop())
	acct, err := client.FetchAccount(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, uint64(1234), acct.Lamports)
	assert.Equal(t, []byte{1, 2, 3}, acct.Data)
	assert.Equal(t, types.BPFLoader2Addr, acct.Owner)
	assert.True(t, acct.Executable)
	assert.Equal(t, uint64(18446744073709551615), acct.RentEpoch)
}

func TestFetchAccountMissing(t *testing.T) {
	srv := mockRPCServer(t, func(string, []interface{}) (interface{}, error) {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value":   nil,
		}, nil
	})

	_, err := Dial(srv.URL, zerolog.Nop()).FetchAccount(context.Background(), types.NewUniquePubkey())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestFetchAccountRPCError(t *testing.T) {
	srv := mockRPCServer(t, func(string, []interface{}) (interface{}, error) {
		return nil, errors.New("node is behind")
	})

	pool := NewSimplePool(srv.URL)
	_, err := NewClient(pool, DefaultConfig()).FetchAccount(context.Background(), types.NewUniquePubkey())

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	// Application errors do not mark the endpoint unhealthy.
	assert.Equal(t, 1, pool.HealthyCount())
}

func TestFetchAccountHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pool := NewSimplePool(srv.URL)
	_, err := NewClient(pool, DefaultConfig()).FetchAccount(context.Background(), types.NewUniquePubkey())
	require.Error(t, err)
	assert.Equal(t, 0, pool.HealthyCount())
}

func TestSimplePool(t *testing.T) {
	urls := []string{"http://localhost:8899", "http://localhost:8900"}
	pool := NewSimplePool(urls...)
	ctx := context.Background()

	ep, err := pool.GetEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, urls[0], ep.URL)

	ep, err = pool.GetEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, urls[1], ep.URL)

	pool.MarkUnhealthy(urls[0], errors.New("down"))
	ep, err = pool.GetEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, urls[1], ep.URL)
	assert.Equal(t, 1, pool.HealthyCount())

	pool.MarkUnhealthy(urls[1], errors.New("down"))
	ep, err = pool.GetEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, urls[0], ep.URL, "falls back to the first endpoint")

	_, err = NewSimplePool().GetEndpoint(ctx)
	assert.ErrorIs(t, err, ErrNoEndpoints)
}
