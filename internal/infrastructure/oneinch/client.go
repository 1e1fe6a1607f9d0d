package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unite-defi/swapd/internal/core/ports"
)

// Api wraps the 1inch quote endpoints. Quotes are priced server-side; this
// client only shapes requests and re-exports the fields the orchestrator
// needs to size the two legs.
type Api struct {
	URL      string
	ApiKey   string
	QuoteTTL time.Duration
	Client   http.Client
}

func NewApi(baseURL, apiKey string, quoteTTL time.Duration) ports.QuoteService {
	if quoteTTL <= 0 {
		quoteTTL = 30 * time.Second
	}
	return &Api{
		URL:      strings.TrimRight(baseURL, "/"),
		ApiKey:   apiKey,
		QuoteTTL: quoteTTL,
		Client:   http.Client{Timeout: 10 * time.Second},
	}
}

type quoteResponse struct {
	DstAmount string `json:"dstAmount"`
	Error     string `json:"error"`
}

func (api *Api) GetQuote(ctx context.Context, fromAsset, toAsset, amount string) (*ports.Quote, error) {
	query := url.Values{}
	query.Set("src", fromAsset)
	query.Set("dst", toAsset)
	query.Set("amount", amount)

	resp, err := sendGetRequest[quoteResponse](ctx, api, "/quote?"+query.Encode())
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}

	srcAmount, ok := new(big.Float).SetString(amount)
	if !ok || srcAmount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid source amount: %s", amount)
	}
	dstAmount, ok := new(big.Float).SetString(resp.DstAmount)
	if !ok {
		return nil, fmt.Errorf("invalid quote output amount: %s", resp.DstAmount)
	}

	rate, _ := new(big.Float).Quo(dstAmount, srcAmount).Float64()

	return &ports.Quote{
		FromAsset:       fromAsset,
		ToAsset:         toAsset,
		Amount:          amount,
		Rate:            rate,
		EstimatedOutput: resp.DstAmount,
		ExpiresAt:       time.Now().Add(api.QuoteTTL),
	}, nil
}

func sendGetRequest[T any](ctx context.Context, api *Api, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.URL+path, nil)
	if err != nil {
		return nil, err
	}
	if api.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+api.ApiKey)
	}

	resp, err := api.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	out := new(T)
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}
	return out, nil
}
