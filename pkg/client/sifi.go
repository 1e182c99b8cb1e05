package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sifi-swap/pkg/types"
)

// DefaultBaseURL is the public swap API
const DefaultBaseURL = "https://api.sifi.org/v1/"

// APIError is a non-2xx response from the swap API
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// SifiClient talks to the swap API
type SifiClient struct {
	baseURL string
	http    *http.Client
}

// NewSifiClient creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func NewSifiClient(baseURL string) *SifiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &SifiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// bigValue is a big integer on the wire, sent as a decimal string and
// accepted as either a string or a JSON number
type bigValue string

func (b *bigValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = ""
		return nil
	}
	*b = bigValue(strings.Trim(string(data), `"`))
	return nil
}

type quoteResponse struct {
	FromAmount           bigValue          `json:"fromAmount"`
	FromToken            types.Token       `json:"fromToken"`
	ToToken              types.Token       `json:"toToken"`
	ToAmount             bigValue          `json:"toAmount"`
	EstimatedGas         bigValue          `json:"estimatedGas"`
	ApproveAddress       string            `json:"approveAddress,omitempty"`
	Permit2Address       string            `json:"permit2Address,omitempty"`
	ToAmountAfterFeesUsd string            `json:"toAmountAfterFeesUsd"`
	Source               types.QuoteSource `json:"source"`
}

// GetQuote prices a swap
func (c *SifiClient) GetQuote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error) {
	if req.FromAmount == nil {
		return nil, fmt.Errorf("from amount is required")
	}

	params := url.Values{}
	params.Set("fromToken", req.FromToken)
	params.Set("toToken", req.ToToken)
	params.Set("fromAmount", req.FromAmount.String())
	if req.FromChain != 0 {
		params.Set("fromChain", strconv.FormatUint(req.FromChain, 10))
	}
	if req.ToChain != 0 {
		params.Set("toChain", strconv.FormatUint(req.ToChain, 10))
	}

	resp, err := call[quoteResponse](ctx, c, http.MethodGet, "quote", nil, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	return resp.toQuote()
}

func (r *quoteResponse) toQuote() (*types.Quote, error) {
	fromAmount, err := parseBig("fromAmount", r.FromAmount)
	if err != nil {
		return nil, err
	}
	toAmount, err := parseBig("toAmount", r.ToAmount)
	if err != nil {
		return nil, err
	}
	estimatedGas, err := parseBig("estimatedGas", r.EstimatedGas)
	if err != nil {
		return nil, err
	}

	return &types.Quote{
		FromAmount:           fromAmount,
		FromToken:            r.FromToken,
		ToToken:              r.ToToken,
		ToAmount:             toAmount,
		EstimatedGas:         estimatedGas,
		ApproveAddress:       r.ApproveAddress,
		Permit2Address:       r.Permit2Address,
		ToAmountAfterFeesUsd: r.ToAmountAfterFeesUsd,
		Source:               r.Source,
	}, nil
}

func fromQuote(q *types.Quote) quoteResponse {
	return quoteResponse{
		FromAmount:           bigString(q.FromAmount),
		FromToken:            q.FromToken,
		ToToken:              q.ToToken,
		ToAmount:             bigString(q.ToAmount),
		EstimatedGas:         bigString(q.EstimatedGas),
		ApproveAddress:       q.ApproveAddress,
		Permit2Address:       q.Permit2Address,
		ToAmountAfterFeesUsd: q.ToAmountAfterFeesUsd,
		Source:               q.Source,
	}
}

type permitBody struct {
	Nonce     bigValue `json:"nonce"`
	Deadline  bigValue `json:"deadline"`
	Signature string   `json:"signature"`
}

type swapBody struct {
	Quote       quoteResponse `json:"quote"`
	FromAddress string        `json:"fromAddress"`
	Slippage    float64       `json:"slippage,omitempty"`
	ToAddress   string        `json:"toAddress,omitempty"`
	Partner     string        `json:"partner,omitempty"`
	FeeBps      int           `json:"feeBps,omitempty"`
	Permit      *permitBody   `json:"permit,omitempty"`
}

// GetSwap builds the swap transaction for a quote
func (c *SifiClient) GetSwap(ctx context.Context, req types.SwapRequest) (*types.Swap, error) {
	if req.Quote == nil {
		return nil, fmt.Errorf("quote is required")
	}
	if req.FromAddress == "" {
		return nil, fmt.Errorf("from address is required")
	}

	body := swapBody{
		Quote:       fromQuote(req.Quote),
		FromAddress: req.FromAddress,
		Slippage:    req.Slippage,
		ToAddress:   req.ToAddress,
		Partner:     req.Partner,
		FeeBps:      req.FeeBps,
	}
	if req.Permit != nil {
		body.Permit = &permitBody{
			Nonce:     bigString(req.Permit.Nonce),
			Deadline:  bigString(req.Permit.Deadline),
			Signature: req.Permit.Signature,
		}
	}

	swap, err := call[types.Swap](ctx, c, http.MethodPost, "swap", body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return &swap, nil
}

// GetTokens lists the tokens tradable on a chain
func (c *SifiClient) GetTokens(ctx context.Context, chainID uint64) ([]types.Token, error) {
	params := url.Values{}
	params.Set("chainId", strconv.FormatUint(chainID, 10))

	tokens, err := call[[]types.Token](ctx, c, http.MethodGet, "tokens", nil, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	return tokens, nil
}

// GetToken looks up a single token by address
func (c *SifiClient) GetToken(ctx context.Context, chainID uint64, address string) (*types.Token, error) {
	params := url.Values{}
	params.Set("chainId", strconv.FormatUint(chainID, 10))
	params.Set("address", address)

	token, err := call[types.Token](ctx, c, http.MethodGet, "token", nil, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// GetUsdPrice returns a token's USD price
func (c *SifiClient) GetUsdPrice(ctx context.Context, chainID uint64, address string) (*types.TokenUsdPrice, error) {
	params := url.Values{}
	params.Set("chainId", strconv.FormatUint(chainID, 10))
	params.Set("address", address)

	price, err := call[types.TokenUsdPrice](ctx, c, http.MethodGet, "token/usd-price", nil, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get usd price: %w", err)
	}
	return &price, nil
}

// GetJump returns the status of a cross-chain jump started by txHash
func (c *SifiClient) GetJump(ctx context.Context, txHash string) (*types.Jump, error) {
	params := url.Values{}
	params.Set("txhash", txHash)

	jump, err := call[types.Jump](ctx, c, http.MethodGet, "jump", nil, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get jump: %w", err)
	}
	return &jump, nil
}

// call sends one request and decodes a 2xx JSON response into T. Failures keep
// the status and the {code,message} body as an *APIError.
func call[T any](ctx context.Context, c *SifiClient, method, path string, body interface{}, query url.Values) (T, error) {
	var out T

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return out, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return out, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return out, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("failed to read response: %w", err)
	}

	isJSON := isJSONContent(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if isJSON && json.Unmarshal(bodyBytes, apiErr) == nil && apiErr.Message != "" {
			return out, apiErr
		}
		apiErr.Message = "Request failed: " + http.StatusText(resp.StatusCode)
		return out, apiErr
	}

	if !isJSON {
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "<none>"
		}
		return out, fmt.Errorf("unexpected response content type: %s", contentType)
	}

	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

func isJSONContent(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func parseBig(field string, value bigValue) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(string(value), 0)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q", field, value)
	}
	return v, nil
}

func bigString(v *big.Int) bigValue {
	if v == nil {
		return "0"
	}
	return bigValue(v.String())
}
