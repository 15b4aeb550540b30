package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/graph"
)

// Ticker keeps one timer goroutine per time-driven node, following the
// store as nodes come and go or change period
type Ticker struct {
	engine *Engine

	mu          sync.Mutex
	loops       map[string]*loop
	unsubscribe func()
	wg          sync.WaitGroup
}

type loop struct {
	period time.Duration
	stop   chan struct{}
}

// NewTicker creates a ticker for the engine's store
func NewTicker(e *Engine) *Ticker {
	return &Ticker{
		engine: e,
		loops:  make(map[string]*loop),
	}
}

// Start subscribes to the store and starts the timers of existing nodes
func (t *Ticker) Start() {
	t.mu.Lock()
	if t.unsubscribe == nil {
		t.unsubscribe = t.engine.store.Subscribe(t.observe)
	}
	t.mu.Unlock()
	t.Sync()
}

// Stop cancels every timer and waits for the goroutines to exit. It must not
// be called from the engine loop.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
	for id, l := range t.loops {
		close(l.stop)
		delete(t.loops, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Running returns how many timers are active
func (t *Ticker) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.loops)
}

func (t *Ticker) observe(ev graph.Event) {
	switch ev.Type {
	case graph.EventNodeAdded, graph.EventNodeRemoved, graph.EventFieldChanged, graph.EventGraphLoaded:
		t.Sync()
	}
}

// Sync reconciles the running timers with the store
func (t *Ticker) Sync() {
	want := make(map[string]time.Duration)
	for _, n := range t.engine.store.Nodes() {
		entry, ok := t.engine.catalog.Lookup(n.Kind)
		if !ok || !entry.TimeDriven {
			continue
		}
		want[n.ID] = entry.Period(n.Data.Fields)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, l := range t.loops {
		if period, ok := want[id]; !ok || period != l.period {
			close(l.stop)
			delete(t.loops, id)
		}
	}
	for id, period := range want {
		if _, ok := t.loops[id]; ok {
			continue
		}
		l := &loop{period: period, stop: make(chan struct{})}
		t.loops[id] = l
		t.wg.Add(1)
		go t.run(id, l)
	}
}

func (t *Ticker) run(id string, l *loop) {
	defer t.wg.Done()
	tk := time.NewTicker(l.period)
	defer tk.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-tk.C:
			err := t.engine.Tick(context.Background(), id)
			switch {
			case err == nil:
			case errors.Is(err, graph.ErrNodeNotFound), errors.Is(err, ErrClosed):
				return
			default:
				t.engine.logger.Debug("tick failed", "node", id, "error", err)
			}
		}
	}
}
