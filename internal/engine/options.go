package engine

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Metrics receives evaluation measurements
type Metrics interface {
	EvaluationObserved(kind types.NodeKind, status types.NodeStatus, d time.Duration)
	WaveObserved(evaluated int, d time.Duration)
	InFlight(delta int)
}

type nopMetrics struct{}

func (nopMetrics) EvaluationObserved(types.NodeKind, types.NodeStatus, time.Duration) {}
func (nopMetrics) WaveObserved(int, time.Duration)                                    {}
func (nopMetrics) InFlight(int)                                                       {}

// Evaluation describes one committed evaluator result
type Evaluation struct {
	Wave     uint64
	NodeID   string
	Kind     types.NodeKind
	Trigger  catalog.Trigger
	Result   catalog.Result
	Changed  bool
	Async    bool
	Duration time.Duration
}

// EvaluationHook is called on the loop after every commit. It must not call
// back into the engine.
type EvaluationHook func(Evaluation)

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger hclog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.Named("engine")
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer sets the tracer used for wave spans
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithEvaluationHook adds a commit hook
func WithEvaluationHook(h EvaluationHook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, h)
	}
}

// WithNodeTimeout bounds every async evaluation
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithMiddleware wraps every evaluator, outermost first
func WithMiddleware(m ...Middleware) Option {
	return func(e *Engine) {
		e.middleware = append(e.middleware, m...)
	}
}
