package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// APIError represents a market-data API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data API error %d: %s", e.Status, e.Body)
}

// Client is an HTTP client for a Tradier-style market-data API.
type Client struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// Ensure Client implements Provider at compile time.
var _ Provider = (*Client)(nil)

// NewClient creates a market-data client. An empty baseURL selects the
// production endpoint; sandbox selects the paper endpoint.
func NewClient(apiKey, baseURL string, sandbox bool) *Client {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.client = hc
	}
	return c
}

// WithTimeout sets the HTTP client timeout duration.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.client.Timeout = timeout
	return c
}

// Handle single-object vs array responses from the API.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quoteResponse struct {
	Quotes struct {
		Quote singleOrArray[apiQuote] `json:"quote"`
	} `json:"quotes"`
}

type apiQuote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Change float64 `json:"change"`
}

type expirationsResponse struct {
	Expirations struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[apiOption] `json:"option"`
	} `json:"options"`
}

type apiOption struct {
	Greeks         *apiGreeks `json:"greeks,omitempty"`
	Symbol         string     `json:"symbol"`
	OptionType     string     `json:"option_type"`
	ExpirationDate string     `json:"expiration_date"`
	Underlying     string     `json:"underlying"`
	Bid            float64    `json:"bid"`
	Ask            float64    `json:"ask"`
	Last           float64    `json:"last"`
	Volume         int64      `json:"volume"`
	OpenInterest   int64      `json:"open_interest"`
	Strike         float64    `json:"strike"`
}

type apiGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	MidIV float64 `json:"mid_iv"`
}

// GetUnderlyingQuote fetches the current quote for the underlying equity.
func (c *Client) GetUnderlyingQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{"symbols": {symbol}}
	var resp quoteResponse
	if err := c.get(ctx, "/markets/quotes", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}
	q := resp.Quotes.Quote[0]
	return &models.Quote{
		Symbol: q.Symbol,
		Bid:    q.Bid,
		Ask:    q.Ask,
		Last:   q.Last,
		Mid:    (q.Bid + q.Ask) / 2,
		Change: q.Change,
		Time:   time.Now().UTC(),
	}, nil
}

// GetExpirations fetches available option expiration dates for the symbol.
func (c *Client) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{"symbol": {symbol}, "includeAllRoots": {"true"}}
	var resp expirationsResponse
	if err := c.get(ctx, "/markets/options/expirations", params, &resp); err != nil {
		return nil, err
	}
	return resp.Expirations.Date, nil
}

// GetOptionChain fetches the full chain for one expiration, Greeks included.
func (c *Client) GetOptionChain(ctx context.Context, symbol, expiration string) ([]models.OptionContract, error) {
	params := url.Values{
		"symbol":     {symbol},
		"expiration": {expiration},
		"greeks":     {"true"},
	}
	var resp chainResponse
	if err := c.get(ctx, "/markets/options/chains", params, &resp); err != nil {
		return nil, err
	}

	contracts := make([]models.OptionContract, 0, len(resp.Options.Option))
	for _, o := range resp.Options.Option {
		exp, err := time.Parse("2006-01-02", o.ExpirationDate)
		if err != nil {
			return nil, fmt.Errorf("parsing expiration %q for %s: %w", o.ExpirationDate, o.Symbol, err)
		}
		contract := models.OptionContract{
			Symbol:       o.Symbol,
			Underlying:   o.Underlying,
			OptionType:   models.OptionType(o.OptionType),
			Strike:       o.Strike,
			Expiration:   exp,
			Bid:          o.Bid,
			Ask:          o.Ask,
			Last:         o.Last,
			Volume:       o.Volume,
			OpenInterest: o.OpenInterest,
		}
		if o.Greeks != nil {
			contract.Greeks = models.Greeks{
				Delta: o.Greeks.Delta,
				Gamma: o.Greeks.Gamma,
				Theta: o.Greeks.Theta,
				Vega:  o.Greeks.Vega,
				MidIV: o.Greeks.MidIV,
			}
		}
		contracts = append(contracts, contract)
	}
	return contracts, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("reading response for %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response for %s: %w", path, err)
	}
	return nil
}
