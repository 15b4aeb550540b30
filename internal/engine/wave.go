package engine

import (
	"context"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
)

// wave is one bounded propagation. Seeds are evaluated unconditionally;
// roots were committed before the wave started and only feed it.
type wave struct {
	gen       uint64
	seeds     map[string]catalog.Trigger
	roots     map[string]bool
	changed   map[string]bool
	evaluated int
}

func (e *Engine) newWave() *wave {
	e.generation++
	return &wave{
		gen:     e.generation,
		seeds:   make(map[string]catalog.Trigger),
		roots:   make(map[string]bool),
		changed: make(map[string]bool),
	}
}

func (e *Engine) seeded(trigger catalog.Trigger, ids ...string) *wave {
	w := e.newWave()
	for _, id := range ids {
		if id != "" {
			w.seeds[id] = trigger
		}
	}
	return w
}

func (e *Engine) run(ctx context.Context, w *wave) {
	if len(w.seeds) == 0 && len(w.roots) == 0 {
		return
	}
	e.propagate(ctx, w)
}

// propagate evaluates the downstream closure of the wave's seeds and roots
// in topological order, each node at most once
func (e *Engine) propagate(ctx context.Context, w *wave) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.wave", trace.WithAttributes(
		attribute.Int64("wave", int64(w.gen)),
		attribute.Int("seeds", len(w.seeds)),
	))
	defer span.End()

	for id, changed := range w.roots {
		w.changed[id] = changed
	}
	members := e.closure(w)
	sched := e.schedule(members, w.gen)
	live := func(id string) bool {
		_, seed := w.seeds[id]
		_, root := w.roots[id]
		return seed || root || e.upstreamChanged(w, id)
	}
	for {
		id, ok := sched.next(live)
		if !ok {
			break
		}
		if _, ok := w.roots[id]; ok {
			continue
		}
		trigger, seeded := w.seeds[id]
		if !seeded {
			if !e.upstreamChanged(w, id) {
				continue
			}
			trigger = catalog.TriggerWave
		}
		w.changed[id] = e.evaluate(ctx, w, id, trigger)
	}

	span.SetAttributes(attribute.Int("nodes", len(members)), attribute.Int("evaluated", w.evaluated))
	e.metrics.WaveObserved(w.evaluated, time.Since(start))
	e.logger.Trace("wave settled", "wave", w.gen, "nodes", len(members), "evaluated", w.evaluated)
}

// closure marks every node reachable from the wave's starting points.
// Time-driven nodes are never entered from upstream.
func (e *Engine) closure(w *wave) []string {
	var queue []string
	enter := func(id string) {
		if e.visited[id] == w.gen {
			return
		}
		e.visited[id] = w.gen
		queue = append(queue, id)
	}
	for _, id := range e.store.Order() {
		_, seed := w.seeds[id]
		_, root := w.roots[id]
		if seed || root {
			enter(id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range e.store.Downstream(id) {
			if n, ok := e.store.Node(next); ok {
				if entry, ok := e.catalog.Lookup(n.Kind); ok && entry.TimeDriven {
					continue
				}
			}
			enter(next)
		}
	}

	var members []string
	for _, id := range e.store.Order() {
		if e.visited[id] == w.gen {
			members = append(members, id)
		}
	}
	return members
}

// scheduler hands out wave members in topological order. Inside a cycle it
// picks a member that can still see a change, so one whose upstream fired
// is not passed over before that upstream runs.
type scheduler struct {
	members  []string
	indegree map[string]int
	succ     map[string][]string
	done     map[string]bool
}

func (e *Engine) schedule(members []string, gen uint64) *scheduler {
	type pair struct{ from, to string }
	s := &scheduler{
		members:  members,
		indegree: make(map[string]int, len(members)),
		succ:     make(map[string][]string),
		done:     make(map[string]bool, len(members)),
	}
	seen := make(map[pair]bool)
	for _, edge := range e.store.Edges() {
		p := pair{edge.Source, edge.Target}
		if p.from == p.to || seen[p] || e.visited[p.from] != gen || e.visited[p.to] != gen {
			continue
		}
		seen[p] = true
		s.indegree[p.to]++
		s.succ[p.from] = append(s.succ[p.from], p.to)
	}
	return s
}

// next returns the following member. When only cycles remain it takes the
// earliest member for which live holds; if none does, nothing left in the
// wave can change and it reports false.
func (s *scheduler) next(live func(id string) bool) (string, bool) {
	pick := ""
	for _, id := range s.members {
		if !s.done[id] && s.indegree[id] == 0 {
			pick = id
			break
		}
	}
	if pick == "" {
		for _, id := range s.members {
			if !s.done[id] && live(id) {
				pick = id
				break
			}
		}
	}
	if pick == "" {
		return "", false
	}
	s.done[pick] = true
	for _, to := range s.succ[pick] {
		s.indegree[to]--
	}
	return pick, true
}

func (e *Engine) upstreamChanged(w *wave, id string) bool {
	for _, edge := range e.store.IncomingEdges(id) {
		if w.changed[edge.Source] {
			return true
		}
	}
	return false
}

func (e *Engine) request(n graph.Node, trigger catalog.Trigger) catalog.Request {
	fields := maps.Clone(n.Data.Fields)
	if fields == nil {
		fields = map[string]string{}
	}
	return catalog.Request{
		NodeID:  n.ID,
		Kind:    n.Kind,
		Trigger: trigger,
		Inputs:  e.resolver.Inputs(n.ID),
		Fields:  fields,
		Prev:    n.Data.Out,
		Env:     e.env,
	}
}

func (e *Engine) evaluator(entry *catalog.Entry) catalog.Evaluator {
	mw := append([]Middleware{Recover(e.logger)}, e.middleware...)
	if entry.Async && e.timeout > 0 {
		mw = append(mw, Timeout(e.timeout))
	}
	return Chain(entry.Evaluator, mw...)
}

// evaluate runs one node and commits its result, reporting whether the
// published output or status changed. Async kinds are dispatched and report
// no change until they complete.
func (e *Engine) evaluate(ctx context.Context, w *wave, id string, trigger catalog.Trigger) bool {
	n, ok := e.store.Node(id)
	if !ok {
		return false
	}
	entry, ok := e.catalog.Lookup(n.Kind)
	if !ok {
		e.logger.Warn("no evaluator for kind", "node", id, "kind", n.Kind)
		return false
	}
	w.evaluated++
	req := e.request(n, trigger)

	if entry.Async {
		for _, h := range entry.Required {
			if v, ok := req.Input(h); !ok || v.IsEmpty() {
				e.cleared[id] = e.nextEpoch()
				return e.commit(w, n, trigger, catalog.Pending(), 0, false)
			}
		}
		e.dispatch(n, entry, req)
		return false
	}

	start := time.Now()
	res := e.evaluator(entry).Evaluate(ctx, req)
	return e.commit(w, n, trigger, res, time.Since(start), false)
}

func (e *Engine) commit(w *wave, n graph.Node, trigger catalog.Trigger, res catalog.Result, d time.Duration, async bool) bool {
	status := res.Status()
	outChanged, err := e.store.SetNodeOutput(n.ID, graph.Update{
		Out:     res.Out,
		Status:  status,
		Verdict: res.Verdict,
		Message: res.Message,
		Fields:  res.Fields,
		Wave:    w.gen,
	})
	if err != nil {
		e.logger.Debug("commit dropped", "node", n.ID, "error", err)
		return false
	}
	changed := outChanged || n.Data.Status != status

	e.metrics.EvaluationObserved(n.Kind, status, d)
	for _, h := range e.hooks {
		h(Evaluation{
			Wave:     w.gen,
			NodeID:   n.ID,
			Kind:     n.Kind,
			Trigger:  trigger,
			Result:   res,
			Changed:  changed,
			Async:    async,
			Duration: d,
		})
	}
	return changed
}

// dispatch runs an async evaluator off the loop. There is no cancellation:
// every completion still current commits and the last one to land wins.
func (e *Engine) dispatch(n graph.Node, entry *catalog.Entry, req catalog.Request) {
	ev := e.evaluator(entry)
	epoch := e.nextEpoch()
	e.inflight.Add(1)
	e.metrics.InFlight(1)
	e.logger.Debug("async evaluation started", "node", n.ID, "kind", n.Kind)

	go func() {
		defer e.inflight.Done()
		defer e.metrics.InFlight(-1)

		start := time.Now()
		res := ev.Evaluate(e.ctx, req)
		e.complete(req, res, time.Since(start), epoch)
	}()
}

func (e *Engine) complete(req catalog.Request, res catalog.Result, d time.Duration, epoch uint64) {
	if err := e.lock(); err != nil {
		return
	}
	defer e.mu.Unlock()

	n, ok := e.store.Node(req.NodeID)
	if !ok {
		e.logger.Debug("async result for removed node dropped", "node", req.NodeID)
		return
	}
	if epoch < e.loaded || epoch < e.cleared[n.ID] {
		e.logger.Debug("async result for cleared inputs dropped", "node", n.ID)
		return
	}
	w := e.newWave()
	w.roots[n.ID] = e.commit(w, n, req.Trigger, res, d, true)
	if w.roots[n.ID] {
		e.propagate(e.ctx, w)
	}
}
