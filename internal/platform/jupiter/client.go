// Package jupiter is the REST client for a Jupiter-style swap aggregator:
// price lookups, quotes, and swap transaction building.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// Signer signs a serialized transaction with the wallet's key.
type Signer interface {
	PublicKey() string
	SignTransaction(tx []byte) ([]byte, error)
}

// Client implements domain.PriceOracle against the aggregator's REST API.
// Swap transactions are built by the aggregator, signed locally, and
// submitted through the wallet's RPC connection.
type Client struct {
	priceURL    string
	quoteURL    string
	tokenURL    string
	slippageBps int
	signer      Signer
	wallet      domain.WalletClient
	httpClient  *http.Client
}

// Config holds the aggregator endpoints and swap parameters.
type Config struct {
	PriceURL    string
	QuoteURL    string
	TokenURL    string // token registry host; empty disables TokenInfo
	SlippageBps int
	Timeout     time.Duration
}

// NewClient creates a new aggregator client. signer and wallet may be nil for
// price-only use; ExecuteSwap requires both.
func NewClient(cfg Config, signer Signer, wallet domain.WalletClient) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	slippage := cfg.SlippageBps
	if slippage == 0 {
		slippage = 50
	}
	return &Client{
		priceURL:    strings.TrimRight(cfg.PriceURL, "/"),
		quoteURL:    strings.TrimRight(cfg.QuoteURL, "/"),
		tokenURL:    strings.TrimRight(cfg.TokenURL, "/"),
		slippageBps: slippage,
		signer:      signer,
		wallet:      wallet,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// CurrentPrice returns the aggregator's price for a token in base currency.
// It returns domain.ErrPriceUnavailable when the venue has no quote for the
// mint right now.
func (c *Client) CurrentPrice(ctx context.Context, tokenAddress string) (float64, error) {
	u := c.priceURL + "/price?ids=" + url.QueryEscape(tokenAddress)

	body, err := c.get(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("jupiter: get price %s: %w", tokenAddress, err)
	}

	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("jupiter: decode price %s: %w", tokenAddress, err)
	}

	entry, ok := resp.Data[tokenAddress]
	if !ok || entry.Price == "" {
		return 0, fmt.Errorf("jupiter: price %s: %w", tokenAddress, domain.ErrPriceUnavailable)
	}

	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("jupiter: parse price %s: %w", tokenAddress, err)
	}
	return price, nil
}

// Quote asks the aggregator for an executable route swapping amount raw units
// of inputMint into outputMint. The raw quote body is kept on the returned
// Quote so ExecuteSwap can pass it back unchanged.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount float64) (domain.Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(uint64(amount), 10))
	params.Set("slippageBps", strconv.Itoa(c.slippageBps))

	body, err := c.get(ctx, c.quoteURL+"/quote?"+params.Encode())
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: quote %s->%s: %w", inputMint, outputMint, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: decode quote: %w", err)
	}

	inAmount, err := strconv.ParseFloat(resp.InAmount, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: parse inAmount: %w", err)
	}
	outAmount, err := strconv.ParseFloat(resp.OutAmount, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter: parse outAmount: %w", err)
	}
	impact := 0.0
	if resp.PriceImpactPct != "" {
		impact, _ = strconv.ParseFloat(resp.PriceImpactPct, 64)
	}

	return domain.Quote{
		InputMint:  resp.InputMint,
		OutputMint: resp.OutputMint,
		InAmount:   inAmount,
		OutAmount:  outAmount,
		PriceImpct: impact,
		RoutePlan:  string(body),
	}, nil
}

// TokenInfo looks up token metadata in the aggregator's token registry. It
// returns domain.ErrNotFound for mints the registry does not know.
func (c *Client) TokenInfo(ctx context.Context, tokenAddress string) (domain.TokenInfo, error) {
	if c.tokenURL == "" {
		return domain.TokenInfo{}, fmt.Errorf("jupiter: token info %s: %w", tokenAddress, domain.ErrNotFound)
	}

	body, err := c.get(ctx, c.tokenURL+"/token/"+url.PathEscape(tokenAddress))
	if err != nil {
		if strings.Contains(err.Error(), "status 404") {
			return domain.TokenInfo{}, fmt.Errorf("jupiter: token info %s: %w", tokenAddress, domain.ErrNotFound)
		}
		return domain.TokenInfo{}, fmt.Errorf("jupiter: token info %s: %w", tokenAddress, err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("jupiter: decode token info %s: %w", tokenAddress, err)
	}

	return domain.TokenInfo{
		Address:  resp.Address,
		Symbol:   resp.Symbol,
		Name:     resp.Name,
		Decimals: resp.Decimals,
	}, nil
}

// ExecuteSwap builds the swap transaction for a quote, signs it, and submits
// it through the wallet. Expired-blockhash failures from the chain are
// wrapped in domain.ErrStaleTransaction so callers can back off longer before
// re-quoting.
func (c *Client) ExecuteSwap(ctx context.Context, quote domain.Quote) (domain.SwapResult, error) {
	if c.signer == nil || c.wallet == nil {
		return domain.SwapResult{}, fmt.Errorf("jupiter: execute swap: client not configured for signing")
	}

	req := swapRequest{
		QuoteResponse:    json.RawMessage(quote.RoutePlan),
		UserPublicKey:    c.signer.PublicKey(),
		WrapAndUnwrapSol: true,
	}
	body, err := c.post(ctx, c.quoteURL+"/swap", req)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("jupiter: build swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SwapResult{}, fmt.Errorf("jupiter: decode swap: %w", err)
	}

	rawTx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("jupiter: decode swap transaction: %w", err)
	}

	signedTx, err := c.signer.SignTransaction(rawTx)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("jupiter: sign swap: %w", err)
	}

	txID, err := c.wallet.SendTransaction(ctx, signedTx)
	if err != nil {
		if isStaleTx(err) {
			return domain.SwapResult{}, fmt.Errorf("jupiter: send swap: %w: %w", domain.ErrStaleTransaction, err)
		}
		return domain.SwapResult{}, fmt.Errorf("jupiter: send swap: %w", err)
	}

	return domain.SwapResult{
		TxID:         txID,
		InputAmount:  quote.InAmount,
		OutputAmount: quote.OutAmount,
	}, nil
}

// isStaleTx reports whether an RPC failure means the transaction's blockhash
// expired before landing.
func isStaleTx(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blockhash not found") ||
		strings.Contains(msg, "block height exceeded") ||
		strings.Contains(msg, "transaction expired")
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, u string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
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
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// Compile-time interface checks.
var (
	_ domain.PriceOracle     = (*Client)(nil)
	_ domain.TokenInfoSource = (*Client)(nil)
)
