// Package canvas is the public entry point: a Session wires the graph store,
// node catalog, engine, queue and persistence of one open canvas.
package canvas

import (
	"context"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/engine"
	"github.com/Inferara/web3-canvas-sub000/internal/flowfile"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/internal/mq"
	"github.com/Inferara/web3-canvas-sub000/internal/nodes"
	"github.com/Inferara/web3-canvas-sub000/internal/persist"
)

// DefaultShareBase prefixes share links when no base is configured
const DefaultShareBase = "http://127.0.0.1:8080/"

type options struct {
	logger      hclog.Logger
	chain       catalog.ChainClient
	prices      catalog.PriceQuoter
	persist     persist.Store
	metrics     engine.Metrics
	tracer      trace.Tracer
	hooks       []engine.EvaluationHook
	middleware  []engine.Middleware
	nodeTimeout time.Duration
	timers      bool
	manualQueue bool
	rand        io.Reader
	now         func() time.Time
	shareBase   string
	graphID     string
}

// Option configures a Session
type Option func(*options)

// WithLogger sets the logger shared by every component. Defaults to a null
// logger.
func WithLogger(logger hclog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithChain sets the Ethereum provider used by balance, transaction and
// broadcast nodes
func WithChain(c catalog.ChainClient) Option {
	return func(o *options) { o.chain = c }
}

// WithPrices sets the ETH/USD quote source
func WithPrices(p catalog.PriceQuoter) Option {
	return func(o *options) { o.prices = p }
}

// WithPersistence sets the local store. Defaults to an in-memory one.
func WithPersistence(s persist.Store) Option {
	return func(o *options) { o.persist = s }
}

// WithMetrics records evaluation and wave metrics
func WithMetrics(m engine.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer opens a span per propagation wave
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithEvaluationHook observes every committed evaluation
func WithEvaluationHook(h engine.EvaluationHook) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// WithMiddleware wraps every evaluator, outermost first
func WithMiddleware(m ...engine.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, m...) }
}

// WithNodeTimeout bounds each async evaluation, 0 for no limit
func WithNodeTimeout(d time.Duration) Option {
	return func(o *options) { o.nodeTimeout = d }
}

// WithTimers starts a goroutine per interval node
func WithTimers() Option {
	return func(o *options) { o.timers = true }
}

// WithManualQueue holds simulation messages until ProcessMessages
func WithManualQueue() Option {
	return func(o *options) { o.manualQueue = true }
}

// WithRand sets the entropy source for key generation
func WithRand(r io.Reader) Option {
	return func(o *options) { o.rand = r }
}

// WithClock overrides time.Now for export names, the queue and node evaluators
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithShareBase sets the URL share links are built on
func WithShareBase(base string) Option {
	return func(o *options) { o.shareBase = base }
}

// WithGraphID fixes the graph id instead of generating one
func WithGraphID(id string) Option {
	return func(o *options) { o.graphID = id }
}

// Session is one open canvas
type Session struct {
	store   *graph.Store
	catalog *catalog.Registry
	engine  *engine.Engine
	queue   *mq.Queue
	ticker  *engine.Ticker
	persist persist.Store
	logger  hclog.Logger
	share   string
	now     func() time.Time
}

// NewSession builds a session with an empty graph
func NewSession(opts ...Option) *Session {
	o := options{
		logger:    hclog.NewNullLogger(),
		shareBase: DefaultShareBase,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.persist == nil {
		o.persist = persist.NewMemoryStore(0)
	}

	reg := nodes.Catalog(catalog.WithRand(o.rand))

	storeOpts := []graph.Option{graph.WithLogger(o.logger)}
	if o.graphID != "" {
		storeOpts = append(storeOpts, graph.WithGraphID(o.graphID))
	}
	store := graph.New(reg, storeOpts...)

	queueOpts := []mq.Option{mq.WithLogger(o.logger), mq.WithClock(o.now)}
	if o.manualQueue {
		queueOpts = append(queueOpts, mq.WithManualDelivery())
	}
	queue := mq.New(queueOpts...)

	engineOpts := []engine.Option{
		engine.WithLogger(o.logger),
		engine.WithNodeTimeout(o.nodeTimeout),
		engine.WithMiddleware(o.middleware...),
	}
	if o.metrics != nil {
		engineOpts = append(engineOpts, engine.WithMetrics(o.metrics))
	}
	if o.tracer != nil {
		engineOpts = append(engineOpts, engine.WithTracer(o.tracer))
	}
	for _, h := range o.hooks {
		engineOpts = append(engineOpts, engine.WithEvaluationHook(h))
	}
	env := &catalog.Env{
		Chain:  o.chain,
		Prices: o.prices,
		Queue:  queue,
		Logger: o.logger.Named("nodes"),
		Rand:   o.rand,
		Now:    o.now,
	}
	eng := engine.New(store, reg, env, engineOpts...)
	eng.Attach(queue)

	s := &Session{
		store:   store,
		catalog: reg,
		engine:  eng,
		queue:   queue,
		persist: o.persist,
		logger:  o.logger.Named("session"),
		share:   o.shareBase,
		now:     o.now,
	}
	if o.timers {
		s.ticker = engine.NewTicker(eng)
		s.ticker.Start()
	}
	return s
}

// Engine is the event loop every mutation goes through
func (s *Session) Engine() *engine.Engine { return s.engine }

// Store is the graph the engine mutates. Read it freely; mutate through Engine.
func (s *Session) Store() *graph.Store { return s.store }

// Catalog lists the node kinds of the session
func (s *Session) Catalog() *catalog.Registry { return s.catalog }

// Queue carries simulation messages between actor nodes
func (s *Session) Queue() *mq.Queue { return s.queue }

// Persistence is the store Save and Restore use
func (s *Session) Persistence() persist.Store { return s.persist }

// Palette describes every node kind for the canvas UI
func (s *Session) Palette() []catalog.PaletteEntry { return s.catalog.Palette() }

// Graph returns the current serialized graph
func (s *Session) Graph() graph.Graph {
	return s.store.Serialize()
}

// Load replaces the graph. Structural validation failures are reported as
// serialization errors and leave the current graph untouched.
func (s *Session) Load(ctx context.Context, g graph.Graph) error {
	err := s.engine.Load(ctx, g)
	if err != nil && !errors.Is(err, engine.ErrClosed) {
		return &flowfile.SerializationError{Op: "load", Err: err}
	}
	return err
}

// Import loads an exported file
func (s *Session) Import(ctx context.Context, data []byte) error {
	g, err := flowfile.Import(data)
	if err != nil {
		return err
	}
	return s.Load(ctx, g)
}

// Export renders the graph as a file and returns its download name
func (s *Session) Export() ([]byte, string, error) {
	data, err := flowfile.Export(s.Graph())
	if err != nil {
		return nil, "", err
	}
	return data, flowfile.Filename(s.now()), nil
}

// ShareURL packs the graph into a link
func (s *Session) ShareURL() (string, error) {
	return flowfile.ShareURL(s.share, s.Graph())
}

// LoadShareURL restores the graph carried by a share link
func (s *Session) LoadShareURL(ctx context.Context, link string) error {
	g, err := flowfile.FromShareURL(link)
	if err != nil {
		return err
	}
	return s.Load(ctx, g)
}

// Save mirrors the graph under the fixed key and appends a saved state
func (s *Session) Save(ctx context.Context, label string) (persist.Snapshot, error) {
	g := s.Graph()
	if err := s.persist.Save(ctx, g); err != nil {
		return persist.Snapshot{}, errors.Wrap(err, "save graph")
	}
	snap, err := s.persist.SaveSnapshot(ctx, label, g)
	if err != nil {
		return persist.Snapshot{}, errors.Wrap(err, "save snapshot")
	}
	s.logger.Debug("graph saved", "snapshot", snap.ID, "nodes", snap.Nodes)
	return snap, nil
}

// Snapshots lists saved states oldest first
func (s *Session) Snapshots(ctx context.Context) ([]persist.Snapshot, error) {
	return s.persist.Snapshots(ctx)
}

// Restore loads a saved state
func (s *Session) Restore(ctx context.Context, id string) error {
	snap, err := s.persist.Snapshot(ctx, id)
	if err != nil {
		return err
	}
	return s.Load(ctx, snap.Graph)
}

// RestoreLast loads the mirrored graph. It reports false when nothing was
// saved yet.
func (s *Session) RestoreLast(ctx context.Context) (bool, error) {
	g, err := s.persist.Load(ctx)
	if errors.Is(err, persist.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, s.Load(ctx, g)
}

// ProcessMessages delivers every pending simulation message now
func (s *Session) ProcessMessages() int {
	return s.queue.ProcessAll()
}

// Wait blocks until no I/O evaluation is in flight
func (s *Session) Wait() {
	s.engine.Wait()
}

// Close stops timers, the queue and the engine, then closes persistence
func (s *Session) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.queue.Close()
	s.engine.Close()
	return s.persist.Close()
}
