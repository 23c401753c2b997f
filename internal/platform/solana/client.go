// Package solana is a minimal JSON-RPC client for the wallet operations the
// trading core depends on: token balances, native balance, and transaction
// submission.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

const lamportsPerSol = 1_000_000_000

// Client talks JSON-RPC to a Solana node and implements domain.WalletClient
// for a single wallet address.
type Client struct {
	rpcURL     string
	address    string
	httpClient *http.Client
	reqID      atomic.Int64
}

// NewClient creates a wallet client for the given RPC endpoint and wallet
// address.
func NewClient(rpcURL, address string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rpcURL:     rpcURL,
		address:    address,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Address returns the wallet's base58 public key.
func (c *Client) Address() string {
	return c.address
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// TokenBalance returns the wallet's total raw-unit balance across all token
// accounts holding the given mint. A wallet with no account for the mint has
// a balance of zero.
func (c *Client) TokenBalance(ctx context.Context, mint string) (float64, error) {
	params := []any{
		c.address,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}

	result, err := c.call(ctx, "getTokenAccountsByOwner", params)
	if err != nil {
		return 0, fmt.Errorf("solana: token balance %s: %w", mint, err)
	}

	var resp struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, fmt.Errorf("solana: decode token accounts %s: %w", mint, err)
	}

	var total float64
	for _, acct := range resp.Value {
		raw := acct.Account.Data.Parsed.Info.TokenAmount.Amount
		if raw == "" {
			continue
		}
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("solana: parse token amount %s: %w", mint, err)
		}
		total += amount
	}

	return total, nil
}

// NativeBalance returns the wallet's SOL balance.
func (c *Client) NativeBalance(ctx context.Context) (float64, error) {
	result, err := c.call(ctx, "getBalance", []any{c.address})
	if err != nil {
		return 0, fmt.Errorf("solana: native balance: %w", err)
	}

	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, fmt.Errorf("solana: decode balance: %w", err)
	}

	return float64(resp.Value) / lamportsPerSol, nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	params := []any{
		base64.StdEncoding.EncodeToString(signedTx),
		map[string]any{"encoding": "base64", "skipPreflight": false},
	}

	result, err := c.call(ctx, "sendTransaction", params)
	if err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", err)
	}

	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return "", fmt.Errorf("solana: decode signature: %w", err)
	}
	return sig, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

// Compile-time interface check.
var _ domain.WalletClient = (*Client)(nil)
