package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// Timeout for each HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration

	// Commitment passed to getAccountInfo. Empty means "confirmed".
	Commitment string

	Logger zerolog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:    DefaultTimeout,
		Commitment: "confirmed",
		Logger:     zerolog.Nop(),
	}
}

// Client is a JSON-RPC account source.
type Client struct {
	httpClient *http.Client
	pool       Pool
	commitment string
	logger     zerolog.Logger
}

// NewClient creates a client that sends requests to endpoints from pool.
func NewClient(pool Pool, cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		pool:       pool,
		commitment: cfg.Commitment,
		logger:     cfg.Logger,
	}
}

// Dial is shorthand for a client over a single endpoint with default settings.
func Dial(url string, logger zerolog.Logger) *Client {
	cfg := DefaultConfig()
	cfg.Logger = logger
	return NewClient(NewSimplePool(url), cfg)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// call makes a JSON-RPC call to an endpoint from the pool.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	endpoint, err := c.pool.GetEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}

	start := time.Now()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.pool.MarkUnhealthy(endpoint.URL, fmt.Errorf("status %d", resp.StatusCode))
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		// RPC errors are not endpoint health issues
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	c.pool.MarkHealthy(endpoint.URL, time.Since(start))
	return nil
}

// accountInfo is the getAccountInfo value with base64 data.
type accountInfo struct {
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

type accountInfoResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value *accountInfo `json:"value"`
}

// FetchAccount fetches one account. It returns ErrAccountNotFound when the
// cluster has no account at id.
func (c *Client) FetchAccount(ctx context.Context, id types.Pubkey) (*accounts.Account, error) {
	c.logger.Debug().Str("pubkey", id.String()).Msg("fetching account from cluster")

	params := []interface{}{
		id.String(),
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": c.commitment,
		},
	}

	var res accountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return nil, err
	}
	if res.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return convertAccountInfo(res.Value)
}

func convertAccountInfo(info *accountInfo) (*accounts.Account, error) {
	if len(info.Data) != 2 || info.Data[1] != "base64" {
		return nil, ErrUnsupportedEncoding
	}
	data, err := base64.StdEncoding.DecodeString(info.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	owner, err := types.PubkeyFromBase58(info.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	return &accounts.Account{
		Lamports:   info.Lamports,
		Data:       data,
		Owner:      owner,
		Executable: info.Executable,
		RentEpoch:  info.RentEpoch,
	}, nil
}
