// Package catalog defines the evaluator contract and the registry of node
// kinds: palette metadata, handles, defaults and evaluators.
package catalog

import (
	"context"
	"crypto/rand"
	"io"
	"maps"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/internal/mq"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Category groups kinds in the palette
type Category string

const (
	CategoryInput      Category = "input"
	CategoryTransform  Category = "transform"
	CategoryKeys       Category = "keys"
	CategoryCrypto     Category = "crypto"
	CategoryEthereum   Category = "ethereum"
	CategorySimulation Category = "simulation"
	CategoryOutput     Category = "output"
)

// Evaluator computes a node's output from its resolved inputs and fields
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) Result
}

// EvaluatorFunc adapts a function to Evaluator
type EvaluatorFunc func(ctx context.Context, req Request) Result

func (f EvaluatorFunc) Evaluate(ctx context.Context, req Request) Result {
	return f(ctx, req)
}

// MessageHandler reacts to a queue delivery. It reports false when the
// message is not for this node.
type MessageHandler func(req Request, msg mq.Message) (Result, bool)

// Initializer runs once when a node of the kind is created
type Initializer func(r io.Reader, data *graph.NodeData) error

// Entry describes one node kind
type Entry struct {
	Kind     types.NodeKind
	Label    string
	Category Category
	Handles  []types.HandleSpec
	Defaults map[string]string

	// Required lists the input handles an async evaluator needs before any
	// outbound call is made
	Required []string
	// Async evaluators run off the loop and re-enter on completion
	Async bool
	// TimeDriven kinds are only triggered by their own timer
	TimeDriven bool
	// Period returns the timer period of a time-driven node
	Period func(fields map[string]string) time.Duration

	Evaluator Evaluator
	Init      Initializer
	OnMessage MessageHandler
}

// Handle returns the spec of a handle id
func (e *Entry) Handle(id string) (types.HandleSpec, bool) {
	for _, h := range e.Handles {
		if h.ID == id {
			return h, true
		}
	}
	return types.HandleSpec{}, false
}

// Inputs returns the target handles in declaration order
func (e *Entry) Inputs() []types.HandleSpec {
	var out []types.HandleSpec
	for _, h := range e.Handles {
		if h.Type == types.HandleTarget {
			out = append(out, h)
		}
	}
	return out
}

// PaletteEntry is the static metadata the canvas renders
type PaletteEntry struct {
	Kind     types.NodeKind     `json:"kind"`
	Label    string             `json:"label"`
	Category Category           `json:"category"`
	Defaults map[string]string  `json:"defaults"`
	Handles  []types.HandleSpec `json:"handles"`
	Async    bool               `json:"async,omitempty"`
}

// Registry is the fixed table of node kinds. It satisfies graph.Catalog.
type Registry struct {
	entries map[types.NodeKind]*Entry
	order   []types.NodeKind
	rand    io.Reader
}

// Option configures a Registry
type Option func(*Registry)

// WithRand sets the entropy source used by initializers
func WithRand(r io.Reader) Option {
	return func(reg *Registry) {
		if r != nil {
			reg.rand = r
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[types.NodeKind]*Entry),
		rand:    rand.Reader,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds an entry. Kinds must be unique and carry an evaluator.
func (r *Registry) Register(e Entry) error {
	if e.Kind == "" {
		return errors.New("entry kind is required")
	}
	if _, exists := r.entries[e.Kind]; exists {
		return errors.Errorf("kind %q already registered", e.Kind)
	}
	if e.Evaluator == nil {
		return errors.Errorf("kind %q has no evaluator", e.Kind)
	}
	if e.TimeDriven && e.Period == nil {
		return errors.Errorf("time-driven kind %q has no period", e.Kind)
	}
	for _, id := range e.Required {
		if h, ok := e.Handle(id); !ok || h.Type != types.HandleTarget {
			return errors.Errorf("kind %q requires unknown input %q", e.Kind, id)
		}
	}
	entry := e
	entry.Defaults = maps.Clone(e.Defaults)
	r.entries[e.Kind] = &entry
	r.order = append(r.order, e.Kind)
	return nil
}

// MustRegister is Register that panics, for static tables
func (r *Registry) MustRegister(entries ...Entry) *Registry {
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the entry of a kind
func (r *Registry) Lookup(kind types.NodeKind) (*Entry, bool) {
	e, ok := r.entries[kind]
	return e, ok
}

// Kinds returns the registered kinds in registration order
func (r *Registry) Kinds() []types.NodeKind {
	return append([]types.NodeKind(nil), r.order...)
}

// Handles implements graph.Catalog
func (r *Registry) Handles(kind types.NodeKind) ([]types.HandleSpec, bool) {
	e, ok := r.entries[kind]
	if !ok {
		return nil, false
	}
	return e.Handles, true
}

// NewData implements graph.Catalog: default label and fields, then the
// kind's one-time initializer
func (r *Registry) NewData(kind types.NodeKind) (graph.NodeData, error) {
	e, ok := r.entries[kind]
	if !ok {
		return graph.NodeData{}, errors.Wrapf(graph.ErrUnknownKind, "%q", kind)
	}
	data := graph.NodeData{
		Label:  e.Label,
		Status: types.StatusUninitialized,
		Fields: maps.Clone(e.Defaults),
	}
	if data.Fields == nil {
		data.Fields = map[string]string{}
	}
	if e.Init != nil {
		if err := e.Init(r.rand, &data); err != nil {
			return graph.NodeData{}, errors.Wrapf(err, "init %s", kind)
		}
	}
	return data, nil
}

// Palette lists every kind grouped by category, then by label
func (r *Registry) Palette() []PaletteEntry {
	out := make([]PaletteEntry, 0, len(r.order))
	for _, k := range r.order {
		e := r.entries[k]
		out = append(out, PaletteEntry{
			Kind:     e.Kind,
			Label:    e.Label,
			Category: e.Category,
			Defaults: maps.Clone(e.Defaults),
			Handles:  append([]types.HandleSpec(nil), e.Handles...),
			Async:    e.Async,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Label < out[j].Label
	})
	return out
}
