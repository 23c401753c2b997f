package jupiter

// priceResponse is the shape of the price API response. Prices come back as
// strings keyed by mint; a mint the venue cannot price is simply absent.
type priceResponse struct {
	Data map[string]struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// quoteResponse is the raw quote from the aggregator. The full body is kept
// verbatim so it can be passed back unchanged when building the swap.
type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// tokenResponse is a single entry from the token registry.
type tokenResponse struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// swapRequest asks the aggregator to build a swap transaction for a
// previously obtained quote.
type swapRequest struct {
	QuoteResponse    any    `json:"quoteResponse"`
	UserPublicKey    string `json:"userPublicKey"`
	WrapAndUnwrapSol bool   `json:"wrapAndUnwrapSol"`
}

// swapResponse carries the unsigned transaction, base64-encoded.
type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// apiError is the error body returned by the aggregator on 4xx/5xx.
type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}
