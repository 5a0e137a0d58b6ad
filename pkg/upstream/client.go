package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
)

var (
	// ErrInvalidTicker is returned for an empty or malformed ticker symbol.
	ErrInvalidTicker = errors.New("invalid ticker")

	// ErrTickerNotFound is returned when the provider knows no such symbol.
	ErrTickerNotFound = errors.New("ticker not found")
)

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 1 << 20

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-^=]{0,14}$`)

// StatusError is returned for a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Symbol     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.Symbol)
}

// Quote is the market data for one ticker. Missing provider fields are nil
// and listed in Warnings.
type Quote struct {
	Ticker      string    `json:"ticker"`
	CompanyName string    `json:"company_name,omitempty"`
	Currency    string    `json:"currency"`
	Price       *float64  `json:"current_price"`
	TrailingPE  *float64  `json:"trailing_pe"`
	ForwardPE   *float64  `json:"forward_pe"`
	TrailingEPS *float64  `json:"trailing_eps"`
	ForwardEPS  *float64  `json:"forward_eps"`
	MarketCap   *float64  `json:"market_cap"`
	FetchedAt   time.Time `json:"fetched_at"`
	Source      string    `json:"source"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// Complete reports whether the quote has a price and at least one P/E.
func (q *Quote) Complete() bool {
	return q.Price != nil && (q.TrailingPE != nil || q.ForwardPE != nil)
}

// Client fetches quotes from the market-data provider.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	clock     func() time.Time
}

// NewClient creates a client whose requests all pass through transport.
// Per-call timeouts belong on the transport so that the permit wait is not
// counted against them; see ThrottledTransport.CallTimeout.
func NewClient(cfg config.UpstreamConfig, transport http.RoundTripper) *Client {
	return &Client{
		http:      &http.Client{Transport: transport},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		clock:     time.Now,
	}
}

// NormalizeTicker trims and upper-cases symbol and validates it.
func NormalizeTicker(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !tickerPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, symbol)
	}
	return s, nil
}

// Quote fetches market data for symbol. A throttle timeout is returned as
// is, so callers can match limits.ErrThrottleTimeout.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol, err := NormalizeTicker(symbol)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + "/v7/finance/quote?" + url.Values{"symbols": {symbol}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unwrapURLError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, symbol)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, Symbol: symbol}
	}

	var body quoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode quote for %s: %w", symbol, err)
	}

	for _, r := range body.QuoteResponse.Result {
		if strings.EqualFold(r.Symbol, symbol) {
			return r.toQuote(symbol, c.clock()), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTickerNotFound, symbol)
}

// unwrapURLError strips the *url.Error added by http.Client so sentinel
// errors from the transport compare directly.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
	} `json:"quoteResponse"`
}

type quoteResult struct {
	Symbol             string   `json:"symbol"`
	ShortName          string   `json:"shortName"`
	LongName           string   `json:"longName"`
	Currency           string   `json:"currency"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	PreviousClose      *float64 `json:"regularMarketPreviousClose"`
	TrailingPE         *float64 `json:"trailingPE"`
	ForwardPE          *float64 `json:"forwardPE"`
	TrailingEPS        *float64 `json:"epsTrailingTwelveMonths"`
	ForwardEPS         *float64 `json:"epsForward"`
	MarketCap          *float64 `json:"marketCap"`
}

func (r quoteResult) toQuote(symbol string, now time.Time) *Quote {
	q := &Quote{
		Ticker:      symbol,
		CompanyName: r.ShortName,
		Currency:    r.Currency,
		Price:       r.RegularMarketPrice,
		TrailingPE:  r.TrailingPE,
		ForwardPE:   r.ForwardPE,
		TrailingEPS: r.TrailingEPS,
		ForwardEPS:  r.ForwardEPS,
		MarketCap:   r.MarketCap,
		FetchedAt:   now.UTC(),
		Source:      "yahoo_finance",
	}
	if q.CompanyName == "" {
		q.CompanyName = r.LongName
	}
	if q.Currency == "" {
		q.Currency = "USD"
	}
	if q.Price == nil && r.PreviousClose != nil {
		q.Price = r.PreviousClose
		q.Warnings = append(q.Warnings, "Using previous close as current price")
	}
	if q.TrailingPE == nil {
		q.Warnings = append(q.Warnings, "Missing trailing P/E")
	}
	if q.ForwardPE == nil {
		q.Warnings = append(q.Warnings, "Missing forward P/E")
	}
	if q.Price == nil {
		q.Warnings = append(q.Warnings, "Missing current price")
	}
	return q
}
