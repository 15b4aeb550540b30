// Package pricefeed quotes the ETH price in USD from a simple-price style
// HTTP endpoint.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// DefaultURL is the public CoinGecko simple price query
const DefaultURL = "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd"

const maxBody = 1 << 16

var ErrBadQuote = errors.New("bad price quote")

// Config of the quote endpoint
type Config struct {
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Timeout  time.Duration     `yaml:"timeout"`
	CacheTTL time.Duration     `yaml:"cache_ttl"`
	Retry    types.RetryPolicy `yaml:"retry"`
}

func DefaultConfig() Config {
	return Config{
		URL:      DefaultURL,
		Timeout:  10 * time.Second,
		CacheTTL: 30 * time.Second,
		Retry:    types.NewRetryPolicy(),
	}
}

// Feed fetches quotes with retries. Concurrent callers share one request and
// a quote younger than CacheTTL is reused.
type Feed struct {
	url    string
	ttl    time.Duration
	client *retryablehttp.Client
	logger hclog.Logger
	now    func() time.Time

	flight singleflight.Group
	mu     sync.Mutex
	last   float64
	at     time.Time
}

// Option configures a Feed
type Option func(*Feed)

func WithLogger(logger hclog.Logger) Option {
	return func(f *Feed) { f.logger = logger.Named("pricefeed") }
}

// WithClock overrides time.Now for cache expiry
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

func New(cfg Config, opts ...Option) *Feed {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	f := &Feed{
		url:    cfg.URL,
		ttl:    cfg.CacheTTL,
		logger: hclog.NewNullLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.Retry.Retries()
	if cfg.Retry.InitialDelay > 0 {
		rc.RetryWaitMin = cfg.Retry.InitialDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		rc.RetryWaitMax = cfg.Retry.MaxDelay
	}
	rc.Logger = f.logger
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	f.client = rc
	return f
}

type quote struct {
	Ethereum *struct {
		USD *float64 `json:"usd"`
	} `json:"ethereum"`
}

// EthUSD returns the current price
func (f *Feed) EthUSD(ctx context.Context) (float64, error) {
	if p, ok := f.cached(); ok {
		return p, nil
	}
	ch := f.flight.DoChan("ethusd", func() (interface{}, error) {
		return f.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return 0, errors.Wrap(ctx.Err(), "price quote")
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	}
}

func (f *Feed) cached() (float64, bool) {
	if f.ttl <= 0 {
		return 0, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.at.IsZero() || f.now().Sub(f.at) >= f.ttl {
		return 0, false
	}
	return f.last, true
}

func (f *Feed) fetch(ctx context.Context) (float64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "build price request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "price request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Wrapf(ErrBadQuote, "status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, errors.Wrap(err, "read price response")
	}
	price, err := Parse(body)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.last, f.at = price, f.now()
	f.mu.Unlock()
	f.logger.Debug("price quote", "usd", price)
	return price, nil
}

// Parse extracts ethereum.usd from a quote body
func Parse(body []byte) (float64, error) {
	var q quote
	if err := json.Unmarshal(body, &q); err != nil {
		return 0, errors.Wrapf(ErrBadQuote, "decode: %v", err)
	}
	if q.Ethereum == nil || q.Ethereum.USD == nil {
		return 0, errors.Wrap(ErrBadQuote, "missing ethereum.usd")
	}
	p := *q.Ethereum.USD
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0, errors.Wrap(ErrBadQuote, fmt.Sprintf("price %v", p))
	}
	return p, nil
}
