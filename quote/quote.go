// Package quote looks up live stock quotes from Finnhub.
//
// Lookup never returns an error: any failure (transport, status code,
// malformed or incomplete payload) yields nil and is logged. Successful
// quotes are cached briefly and recorded as price snapshots.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fa-sharp/cs50-finance-plus/models"
	"github.com/shopspring/decimal"
)

type Quote struct {
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PriceChange   decimal.Decimal `json:"price_change"`
	PercentChange decimal.Decimal `json:"percent_change"`
	Open          decimal.Decimal `json:"open"`
	Low           decimal.Decimal `json:"low"`
	High          decimal.Decimal `json:"high"`
	LastUpdate    time.Time       `json:"last_update"`
	LogoURL       string          `json:"logo_url,omitempty"`
	URL           string          `json:"url,omitempty"`
}

// Cache stores serialized quotes for a short time.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Store persists and reads back price snapshots.
type Store interface {
	RecordPrice(ctx context.Context, price *models.StockPrice) error
	PriceHistory(ctx context.Context, symbol string, limit int) ([]models.StockPrice, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      Cache
	cacheTTL   time.Duration
	store      Store
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

func WithStore(store Store) Option { return func(c *Client) { c.store = store } }

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Normalize upper-cases and trims a user supplied symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Lookup returns the current quote for symbol, or nil when none is available.
func (c *Client) Lookup(ctx context.Context, symbol string) *Quote {
	symbol = Normalize(symbol)
	if symbol == "" {
		return nil
	}

	if q := c.cached(ctx, symbol); q != nil {
		return q
	}

	q, err := c.fetch(ctx, symbol)
	if err != nil {
		slog.Warn("Quote lookup failed", "symbol", symbol, "error", err)
		return nil
	}

	c.remember(ctx, symbol, q)
	c.record(ctx, q)
	return q
}

// History returns recorded snapshots for symbol, newest first.
func (c *Client) History(ctx context.Context, symbol string, limit int) ([]models.StockPrice, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.PriceHistory(ctx, Normalize(symbol), limit)
}

func cacheKey(symbol string) string { return fmt.Sprintf("quote:%s", symbol) }

func (c *Client) cached(ctx context.Context, symbol string) *Quote {
	if c.cache == nil || c.cacheTTL <= 0 {
		return nil
	}
	raw, err := c.cache.Get(ctx, cacheKey(symbol))
	if err != nil {
		return nil
	}
	var q Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		slog.Warn("Dropping malformed cached quote", "symbol", symbol, "error", err)
		return nil
	}
	return &q
}

// remember caches q under the requested symbol, which is what cached reads.
func (c *Client) remember(ctx context.Context, symbol string, q *Quote) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(symbol), string(data), c.cacheTTL); err != nil {
		slog.Warn("Failed to cache quote", "symbol", symbol, "error", err)
	}
}

func (c *Client) record(ctx context.Context, q *Quote) {
	if c.store == nil {
		return
	}
	snapshot := &models.StockPrice{
		Symbol:        q.Symbol,
		Price:         q.Price,
		PriceChange:   q.PriceChange,
		PercentChange: q.PercentChange,
		RecordedAt:    time.Now().UTC(),
	}
	if err := c.store.RecordPrice(ctx, snapshot); err != nil {
		slog.Warn("Failed to record price snapshot", "symbol", q.Symbol, "error", err)
	}
}

type finnhubQuote struct {
	Current       *decimal.Decimal `json:"c"`
	Change        *decimal.Decimal `json:"d"`
	PercentChange *decimal.Decimal `json:"dp"`
	High          *decimal.Decimal `json:"h"`
	Low           *decimal.Decimal `json:"l"`
	Open          *decimal.Decimal `json:"o"`
	Timestamp     *int64           `json:"t"`
}

type finnhubProfile struct {
	Name   *string `json:"name"`
	Ticker *string `json:"ticker"`
	Logo   string  `json:"logo"`
	WebURL string  `json:"weburl"`
}

var errIncomplete = errors.New("incomplete quote payload")

func (c *Client) fetch(ctx context.Context, symbol string) (*Quote, error) {
	var fq finnhubQuote
	if err := c.getJSON(ctx, "/quote", symbol, &fq); err != nil {
		return nil, err
	}
	var fp finnhubProfile
	if err := c.getJSON(ctx, "/stock/profile2", symbol, &fp); err != nil {
		return nil, err
	}

	if fq.Current == nil || fq.Change == nil || fq.PercentChange == nil ||
		fq.High == nil || fq.Low == nil || fq.Open == nil || fq.Timestamp == nil ||
		fp.Name == nil || fp.Ticker == nil {
		return nil, errIncomplete
	}
	if !fq.Current.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive price %s", errIncomplete, fq.Current)
	}

	return &Quote{
		Name:          *fp.Name,
		Symbol:        Normalize(*fp.Ticker),
		Price:         *fq.Current,
		PriceChange:   *fq.Change,
		PercentChange: fq.PercentChange.Div(decimal.NewFromInt(100)),
		Open:          *fq.Open,
		Low:           *fq.Low,
		High:          *fq.High,
		LastUpdate:    time.Unix(*fq.Timestamp, 0).UTC(),
		LogoURL:       fp.Logo,
		URL:           fp.WebURL,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path, symbol string, out any) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
