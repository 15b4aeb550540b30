// Package engine is the recompute trigger. It serializes every graph
// mutation on one loop, propagates changes downstream in bounded waves and
// re-enters the loop when asynchronous evaluators complete.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/internal/mq"
	"github.com/Inferara/web3-canvas-sub000/internal/resolve"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

var (
	// ErrClosed is returned by entry points after Close
	ErrClosed = errors.New("engine closed")

	// ErrNotTimeDriven is returned when ticking a node without a timer
	ErrNotTimeDriven = errors.New("node is not time-driven")
)

// Engine owns the event loop of one canvas session
type Engine struct {
	mu       sync.Mutex
	store    *graph.Store
	catalog  *catalog.Registry
	resolver *resolve.Resolver
	env      *catalog.Env

	logger     hclog.Logger
	metrics    Metrics
	tracer     trace.Tracer
	hooks      []EvaluationHook
	middleware []Middleware
	timeout    time.Duration

	generation uint64
	// visited holds, per node, the last wave that reached it
	visited map[string]uint64

	// epoch orders async dispatches against input clears and loads. A
	// completion older than its node's last clear, or than the last load, is
	// dropped.
	epoch   uint64
	cleared map[string]uint64
	loaded  uint64

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	closed   bool
	detach   []func()
}

// New creates an engine over a store. The env is copied; a nil logger in it
// is replaced by the engine's.
func New(store *graph.Store, reg *catalog.Registry, env *catalog.Env, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		catalog:  reg,
		resolver: resolve.New(store),
		logger:   hclog.NewNullLogger(),
		metrics:  nopMetrics{},
		tracer:   noop.NewTracerProvider().Tracer("engine"),
		visited:  make(map[string]uint64),
		cleared:  make(map[string]uint64),
	}
	for _, o := range opts {
		o(e)
	}

	var local catalog.Env
	if env != nil {
		local = *env
	}
	if local.Logger == nil {
		local.Logger = e.logger.Named("nodes")
	}
	e.env = &local
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Store returns the graph store the engine mutates
func (e *Engine) Store() *graph.Store {
	return e.store
}

// Catalog returns the registry of node kinds
func (e *Engine) Catalog() *catalog.Registry {
	return e.catalog
}

// Attach routes queue deliveries into the loop
func (e *Engine) Attach(q *mq.Queue) {
	unsubscribe := q.Subscribe(func(msg mq.Message) {
		if err := e.Deliver(e.ctx, msg); err != nil && !errors.Is(err, ErrClosed) {
			e.logger.Warn("delivery failed", "message", msg.ID, "error", err)
		}
	})
	e.mu.Lock()
	e.detach = append(e.detach, unsubscribe)
	e.mu.Unlock()
}

// Close stops accepting work and waits for in-flight evaluations to finish.
// Their results are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancel()
	detach := e.detach
	e.detach = nil
	e.mu.Unlock()

	for _, d := range detach {
		d()
	}
	e.inflight.Wait()
}

// Wait blocks until no async evaluation is in flight, including the ones
// started by completions
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) nextEpoch() uint64 {
	e.epoch++
	return e.epoch
}

func (e *Engine) lock() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// AddNode drops a node of the kind and evaluates it
func (e *Engine) AddNode(ctx context.Context, kind types.NodeKind, pos types.Position) (graph.Node, error) {
	if err := e.lock(); err != nil {
		return graph.Node{}, err
	}
	defer e.mu.Unlock()

	n, err := e.store.AddNode(kind, pos)
	if err != nil {
		return graph.Node{}, err
	}
	e.run(ctx, e.seeded(catalog.TriggerWave, n.ID))
	n, _ = e.store.Node(n.ID)
	return n, nil
}

// RemoveNode deletes a node with its edges and re-evaluates what it fed
func (e *Engine) RemoveNode(ctx context.Context, id string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	downstream := e.store.Downstream(id)
	if err := e.store.RemoveNode(id); err != nil {
		return err
	}
	delete(e.visited, id)
	delete(e.cleared, id)
	e.run(ctx, e.seeded(catalog.TriggerWave, downstream...))
	return nil
}

// MoveNode repositions a node
func (e *Engine) MoveNode(id string, pos types.Position) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	return e.store.MoveNode(id, pos)
}

// ResizeNode sets or clears a node's explicit size
func (e *Engine) ResizeNode(id string, size *types.Size) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	return e.store.ResizeNode(id, size)
}

// SetField edits a local control and propagates. Label edits do not.
func (e *Engine) SetField(ctx context.Context, id, key, value string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	if err := e.store.SetField(id, key, value); err != nil {
		return err
	}
	if key == "label" {
		return nil
	}
	e.run(ctx, e.seeded(catalog.TriggerWave, id))
	return nil
}

// Connect adds an edge and re-evaluates its target
func (e *Engine) Connect(ctx context.Context, c graph.EdgeCandidate) (graph.Edge, error) {
	if err := e.lock(); err != nil {
		return graph.Edge{}, err
	}
	defer e.mu.Unlock()

	edge, err := e.store.Connect(c)
	if err != nil {
		return graph.Edge{}, err
	}
	e.run(ctx, e.seeded(catalog.TriggerWave, edge.Target))
	return edge, nil
}

// Disconnect removes an edge and re-evaluates its former target
func (e *Engine) Disconnect(ctx context.Context, edgeID string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	target := ""
	for _, edge := range e.store.Edges() {
		if edge.ID == edgeID {
			target = edge.Target
			break
		}
	}
	if err := e.store.Disconnect(edgeID); err != nil {
		return err
	}
	e.run(ctx, e.seeded(catalog.TriggerWave, target))
	return nil
}

// Refresh manually re-triggers a node, the way a refresh control on an I/O
// node does
func (e *Engine) Refresh(ctx context.Context, id string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	if _, ok := e.store.Node(id); !ok {
		return errors.Wrapf(graph.ErrNodeNotFound, "%q", id)
	}
	e.run(ctx, e.seeded(catalog.TriggerRefresh, id))
	return nil
}

// Tick fires the timer of a time-driven node
func (e *Engine) Tick(ctx context.Context, id string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	n, ok := e.store.Node(id)
	if !ok {
		return errors.Wrapf(graph.ErrNodeNotFound, "%q", id)
	}
	if entry, ok := e.catalog.Lookup(n.Kind); !ok || !entry.TimeDriven {
		return errors.Wrapf(ErrNotTimeDriven, "%q", id)
	}
	e.run(ctx, e.seeded(catalog.TriggerTick, id))
	return nil
}

// Deliver offers a queue message to every node with a message handler, in
// store order, then propagates from the nodes that accepted it
func (e *Engine) Deliver(ctx context.Context, msg mq.Message) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	w := e.newWave()
	accepted := 0
	for _, n := range e.store.Nodes() {
		entry, ok := e.catalog.Lookup(n.Kind)
		if !ok || entry.OnMessage == nil {
			continue
		}
		res, ok := entry.OnMessage(e.request(n, catalog.TriggerMessage), msg)
		if !ok {
			continue
		}
		accepted++
		w.roots[n.ID] = e.commit(w, n, catalog.TriggerMessage, res, 0, false)
	}
	e.logger.Debug("message routed", "message", msg.ID, "kind", msg.Kind, "nodes", accepted)
	if accepted > 0 {
		e.propagate(ctx, w)
	}
	return nil
}

// Load replaces the graph and settles every node. Nodes see the load
// trigger, so side-effecting kinds do not fire on restore.
func (e *Engine) Load(ctx context.Context, g graph.Graph) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	if err := e.store.Deserialize(g); err != nil {
		return err
	}
	e.visited = make(map[string]uint64)
	e.cleared = make(map[string]uint64)
	e.loaded = e.nextEpoch()
	e.run(ctx, e.seeded(catalog.TriggerLoad, e.store.Order()...))
	return nil
}

// Settle re-evaluates every node once
func (e *Engine) Settle(ctx context.Context) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	e.run(ctx, e.seeded(catalog.TriggerWave, e.store.Order()...))
	return nil
}
