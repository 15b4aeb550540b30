package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

func testConfig(url string) Config {
	return Config{
		URL:     url,
		Timeout: time.Second,
		Retry:   types.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		body string
		want float64
		ok   bool
	}{
		{"Valid", `{"ethereum":{"usd":2000.5}}`, 2000.5, true},
		{"Integer", `{"ethereum":{"usd":3100}}`, 3100, true},
		{"Zero", `{"ethereum":{"usd":0}}`, 0, true},
		{"MissingUSD", `{"ethereum":{}}`, 0, false},
		{"MissingCoin", `{"bitcoin":{"usd":1}}`, 0, false},
		{"Negative", `{"ethereum":{"usd":-1}}`, 0, false},
		{"NotJSON", `<html>`, 0, false},
		{"WrongType", `{"ethereum":{"usd":"2000"}}`, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse([]byte(tc.body))
			if !tc.ok {
				assert.True(t, errors.Is(err, ErrBadQuote), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEthUSD(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":2000}}`))
	}))
	defer ts.Close()

	feed := New(testConfig(ts.URL))
	price, err := feed.EthUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2000.0, price)

	_, err = feed.EthUSD(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load(), "no cache without ttl")
}

func TestRetries(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ethereum":{"usd":1234.5}}`))
	}))
	defer ts.Close()

	price, err := New(testConfig(ts.URL)).EthUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1234.5, price)
	assert.EqualValues(t, 3, hits.Load())
}

func TestFailures(t *testing.T) {
	t.Run("ServerError", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()
		_, err := New(testConfig(ts.URL)).EthUSD(context.Background())
		require.Error(t, err)
	})

	t.Run("NotFound", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		defer ts.Close()
		_, err := New(testConfig(ts.URL)).EthUSD(context.Background())
		assert.True(t, errors.Is(err, ErrBadQuote))
	})

	t.Run("MalformedBody", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ethereum":`))
		}))
		defer ts.Close()
		_, err := New(testConfig(ts.URL)).EthUSD(context.Background())
		assert.True(t, errors.Is(err, ErrBadQuote))
	})
}

func TestCacheAndCoalescing(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"ethereum":{"usd":1800}}`))
	}))
	defer ts.Close()

	now := time.Unix(1_700_000_000, 0)
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	cfg := testConfig(ts.URL)
	cfg.CacheTTL = time.Minute
	feed := New(cfg, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := feed.EthUSD(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 1800.0, p)
		}()
	}
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, hits.Load())

	_, err := feed.EthUSD(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load(), "cached")

	clockMu.Lock()
	now = now.Add(2 * time.Minute)
	clockMu.Unlock()
	_, err = feed.EthUSD(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load(), "expired")
}

func TestCallerCancel(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"ethereum":{"usd":1}}`))
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(testConfig(ts.URL)).EthUSD(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
