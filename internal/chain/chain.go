// Package chain is the rate limited Ethereum JSON-RPC client used by the
// balance and broadcast nodes.
package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Backend is the provider surface wrapped by Client. *ethclient.Client
// implements it.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config of the RPC endpoint
type Config struct {
	URL string `yaml:"url" validate:"omitempty,url"`
	// RateLimit is the sustained request rate per second, 0 for unlimited
	RateLimit float64       `yaml:"rate_limit" validate:"gte=0"`
	Burst     int           `yaml:"burst" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultConfig allows ten calls per second with a ten second deadline
func DefaultConfig() Config {
	return Config{RateLimit: 10, Burst: 5, Timeout: 10 * time.Second}
}

// Client throttles and times out every call to the backend
type Client struct {
	backend Backend
	limiter *rate.Limiter
	timeout time.Duration
	logger  hclog.Logger
	closer  func()

	mu      sync.Mutex
	chainID *big.Int
}

// Option configures a Client
type Option func(*Client)

func WithLogger(logger hclog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.Named("chain")
	}
}

// New wraps an existing backend
func New(backend Backend, cfg Config, opts ...Option) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		backend: backend,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		logger:  hclog.NewNullLogger(),
		closer:  func() {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to cfg.URL
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("ethereum rpc url is required")
	}
	rpc, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", cfg.URL)
	}
	c := New(rpc, cfg, opts...)
	c.closer = rpc.Close
	return c, nil
}

// Close releases the RPC connection
func (c *Client) Close() {
	c.closer()
}

func (c *Client) begin(ctx context.Context, method string) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, errors.Wrapf(err, "%s: rate limit", method)
	}
	c.logger.Trace("rpc call", "method", method)
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	ctx, cancel, err := c.begin(ctx, "eth_getBalance")
	if err != nil {
		return nil, err
	}
	defer cancel()
	bal, err := c.backend.BalanceAt(ctx, account, blockNumber)
	return bal, errors.Wrapf(err, "balance of %s", account.Hex())
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel, err := c.begin(ctx, "eth_getTransactionCount")
	if err != nil {
		return 0, err
	}
	defer cancel()
	nonce, err := c.backend.PendingNonceAt(ctx, account)
	return nonce, errors.Wrapf(err, "nonce of %s", account.Hex())
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel, err := c.begin(ctx, "eth_gasPrice")
	if err != nil {
		return nil, err
	}
	defer cancel()
	price, err := c.backend.SuggestGasPrice(ctx)
	return price, errors.Wrap(err, "gas price")
}

func (c *Client) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	ctx, cancel, err := c.begin(ctx, "eth_sendRawTransaction")
	if err != nil {
		return err
	}
	defer cancel()
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return errors.Wrapf(err, "send %s", tx.Hash().Hex())
	}
	c.logger.Debug("transaction sent", "hash", tx.Hash().Hex())
	return nil
}

// ChainID is fetched once and cached
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}
	ctx, cancel, err := c.begin(ctx, "eth_chainId")
	if err != nil {
		return nil, err
	}
	defer cancel()
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chain id")
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}
