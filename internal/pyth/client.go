// Package pyth fetches oracle prices from the Pyth Hermes HTTP API.
package pyth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUpstreamPriceUnavailable is returned when no usable price could be
// obtained for an asset.
var ErrUpstreamPriceUnavailable = errors.New("upstream price unavailable")

// DefaultBaseURL is the public Hermes endpoint.
const DefaultBaseURL = "https://hermes.pyth.network"

// Quote is one parsed feed update, scaled by its exponent.
type Quote struct {
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	PublishTime time.Time       `json:"publishTime"`
}

type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// Client provides access to Pyth Hermes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	feeds      map[string]string
	maxAge     time.Duration
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

// NewClient creates a client. feeds maps base symbols to feed ids and is
// merged over DefaultFeeds. A positive maxAge rejects updates older than that.
func NewClient(baseURL string, timeout time.Duration, feeds map[string]string, maxAge time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	merged := make(map[string]string, len(DefaultFeeds)+len(feeds))
	for k, v := range DefaultFeeds {
		merged[k] = v
	}
	for k, v := range feeds {
		merged[strings.ToUpper(k)] = strings.TrimPrefix(strings.ToLower(v), "0x")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		feeds:      merged,
		maxAge:     maxAge,
		maxRetries: 3,
		retryDelay: time.Second,
		now:        time.Now,
	}
}

// FeedID returns the feed id for a base symbol.
func (c *Client) FeedID(base string) (string, bool) {
	id, ok := c.feeds[strings.ToUpper(base)]
	return id, ok
}

// Latest fetches the newest USD price for a base symbol such as "SOL".
func (c *Client) Latest(ctx context.Context, base string) (Quote, error) {
	base = strings.ToUpper(base)
	feedID, ok := c.FeedID(base)
	if !ok {
		return Quote{}, fmt.Errorf("%w: no feed for %s", ErrUpstreamPriceUnavailable, base)
	}

	u, err := url.Parse(c.baseURL + "/v2/updates/price/latest")
	if err != nil {
		return Quote{}, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("ids[]", feedID)
	q.Set("parsed", "true")
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrUpstreamPriceUnavailable, base, err)
	}
	defer resp.Body.Close()

	var hr hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return Quote{}, fmt.Errorf("%w: %s: failed to decode response: %v", ErrUpstreamPriceUnavailable, base, err)
	}
	if len(hr.Parsed) == 0 {
		return Quote{}, fmt.Errorf("%w: %s: empty response", ErrUpstreamPriceUnavailable, base)
	}

	p := hr.Parsed[0].Price
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: bad price %q", ErrUpstreamPriceUnavailable, base, p.Price)
	}
	price = price.Shift(p.Expo)
	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s: non-positive price %s", ErrUpstreamPriceUnavailable, base, price)
	}
	conf, err := decimal.NewFromString(p.Conf)
	if err != nil {
		conf = decimal.Zero
	}

	quote := Quote{
		Symbol:      base,
		Price:       price,
		Conf:        conf.Shift(p.Expo),
		PublishTime: time.Unix(p.PublishTime, 0).UTC(),
	}
	if c.maxAge > 0 && c.now().Sub(quote.PublishTime) > c.maxAge {
		return Quote{}, fmt.Errorf("%w: %s: price published at %s is stale", ErrUpstreamPriceUnavailable, base, quote.PublishTime.Format(time.RFC3339))
	}
	return quote, nil
}

// SplitPair parses "BASE/QUOTE".
func SplitPair(asset string) (base, quote string, ok bool) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(asset)), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Price returns the current price of a trading pair. USD and USDC quotes use
// the base feed directly; any other quote is derived as base_usd / quote_usd.
func (c *Client) Price(ctx context.Context, asset string) (decimal.Decimal, error) {
	base, quote, ok := SplitPair(asset)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: malformed pair %q", ErrUpstreamPriceUnavailable, asset)
	}
	b, err := c.Latest(ctx, base)
	if err != nil {
		return decimal.Zero, err
	}
	if quote == "USD" || quote == "USDC" {
		return b.Price, nil
	}
	q, err := c.Latest(ctx, quote)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Price.DivRound(q.Price, 12), nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
