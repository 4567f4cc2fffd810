// Package dexscreener reads pool liquidity and volume from the DexScreener
// public API and derives a fee APR from them.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/yieldengine/internal/domain"
)

// DefaultFeePct is the swap fee assumed when a pair does not report one.
const DefaultFeePct = 0.3

// aprPrecision is the number of decimal places kept on a pool APR.
const aprPrecision int32 = 1

// Client is the REST client for DexScreener pair lookups.
type Client struct {
	baseURL    string
	feePct     decimal.Decimal
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a DexScreener client.
//
// baseURL is the API root, e.g. "https://api.dexscreener.com". feePct is the
// fallback swap fee in percent; zero selects DefaultFeePct.
func NewClient(baseURL string, feePct float64, timeout time.Duration) *Client {
	if feePct <= 0 {
		feePct = DefaultFeePct
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		feePct:     decimal.NewFromFloat(feePct),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	PairAddress string `json:"pairAddress"`
	Liquidity   struct {
		USD decimal.NullDecimal `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 decimal.NullDecimal `json:"h24"`
	} `json:"volume"`
	Fee *struct {
		Percentage decimal.NullDecimal `json:"percentage"`
	} `json:"fee,omitempty"`
}

// FetchPool returns the current snapshot for a pool. A pool DexScreener
// does not know returns domain.ErrNotFound.
func (c *Client) FetchPool(ctx context.Context, network, address string) (domain.PoolSnapshot, error) {
	chain := chainSlug(network)
	path := fmt.Sprintf("/latest/dex/pairs/%s/%s", url.PathEscape(chain), url.PathEscape(strings.ToLower(address)))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("dexscreener: fetch pool %s: %w", address, err)
	}

	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("dexscreener: decode pool %s: %w", address, err)
	}
	if len(resp.Pairs) == 0 {
		return domain.PoolSnapshot{}, fmt.Errorf("dexscreener: pool %s: %w", address, domain.ErrNotFound)
	}

	p := resp.Pairs[0]
	tvl := p.Liquidity.USD.Decimal
	volume := p.Volume.H24.Decimal
	feePct := c.feePct
	if p.Fee != nil && p.Fee.Percentage.Valid && p.Fee.Percentage.Decimal.IsPositive() {
		feePct = p.Fee.Percentage.Decimal
	}

	return domain.PoolSnapshot{
		Address:   strings.ToLower(address),
		Network:   chain,
		APR:       FeeAPR(volume, tvl, feePct),
		TVL:       tvl,
		Volume24h: volume,
		FetchedAt: c.now().UTC(),
	}, nil
}

// FeeAPR annualises a day of swap fees against TVL, in percent, rounded to
// one decimal place. A pool without liquidity has zero APR.
func FeeAPR(volume24h, tvl, feePct decimal.Decimal) decimal.Decimal {
	if !tvl.IsPositive() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	fees24h := volume24h.Mul(feePct).Div(hundred)
	return fees24h.Mul(decimal.NewFromInt(365)).Mul(hundred).Div(tvl).Round(aprPrecision)
}

func chainSlug(network string) string {
	switch n := strings.ToLower(strings.TrimSpace(network)); n {
	case "", "matic", "polygon":
		return "polygon"
	case "mainnet", "ethereum":
		return "ethereum"
	default:
		return n
	}
}

// doGet sends an unauthenticated GET request to the DexScreener API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
