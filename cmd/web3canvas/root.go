package main

import (
	"context"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Inferara/web3-canvas-sub000/internal/chain"
	"github.com/Inferara/web3-canvas-sub000/internal/config"
	"github.com/Inferara/web3-canvas-sub000/internal/logging"
	"github.com/Inferara/web3-canvas-sub000/internal/observability"
	"github.com/Inferara/web3-canvas-sub000/internal/persist"
	"github.com/Inferara/web3-canvas-sub000/internal/pricefeed"
	"github.com/Inferara/web3-canvas-sub000/pkg/canvas"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "web3canvas",
		Short: "Visual dataflow canvas for cryptography and Ethereum primitives",
		Long: `web3canvas evaluates node graphs of hashes, keys, signatures, Ethereum
providers and actor simulations.

Commands:
  serve    - run the HTTP and websocket API
  eval     - evaluate an exported flow file and print every node
  share    - print the share link of a flow file
  palette  - list the node kinds`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (trace, debug, info, warn, error, off)")

	cmd.AddCommand(
		newServeCmd(opts),
		newEvalCmd(opts),
		newShareCmd(opts),
		newPaletteCmd(),
	)
	return cmd
}

// load reads the configuration and applies flag overrides
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := config.Validate(cfg); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// services is what a command opens from config
type services struct {
	cfg     config.Config
	logger  hclog.Logger
	session *canvas.Session
	closers []io.Closer
	chain   *chain.Client
}

// open builds the logger, providers, persistence and session described by cfg
func open(ctx context.Context, cfg config.Config, extra ...canvas.Option) (*services, error) {
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	logger, logCloser, err := logging.New("web3canvas", cfg.Log)
	if err != nil {
		return nil, err
	}
	rt := &services{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	opts := []canvas.Option{
		canvas.WithLogger(logger),
		canvas.WithNodeTimeout(cfg.Engine.NodeTimeout),
		canvas.WithTracer(observability.Tracer("engine")),
		canvas.WithPrices(pricefeed.New(cfg.Price, pricefeed.WithLogger(logger))),
	}
	if cfg.Server.BaseURL != "" {
		opts = append(opts, canvas.WithShareBase(cfg.Server.BaseURL))
	}
	if cfg.Engine.Timers {
		opts = append(opts, canvas.WithTimers())
	}
	if cfg.Queue.Manual {
		opts = append(opts, canvas.WithManualQueue())
	}

	if cfg.Ethereum.URL != "" {
		c, err := chain.Dial(ctx, cfg.Ethereum, chain.WithLogger(logger))
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.chain = c
		opts = append(opts, canvas.WithChain(c))
	} else {
		logger.Info("no ethereum endpoint configured, provider nodes will report errors")
	}

	var store persist.Store
	switch cfg.Storage.Driver {
	case config.DriverBadger:
		bc := cfg.Storage.Badger
		bc.Logger = logger
		bs, err := persist.OpenBadger(bc)
		if err != nil {
			_ = rt.Close()
			return nil, errors.Wrap(err, "open storage")
		}
		store = bs
	default:
		store = persist.NewMemoryStore(cfg.Storage.Badger.MaxSnapshots)
	}
	opts = append(opts, canvas.WithPersistence(store))

	rt.session = canvas.NewSession(append(opts, extra...)...)
	return rt, nil
}

// Close shuts the session down before the providers and the log file
func (rt *services) Close() error {
	var first error
	if rt.session != nil {
		first = rt.session.Close()
	}
	if rt.chain != nil {
		rt.chain.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
