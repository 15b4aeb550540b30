package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
)

// Middleware wraps an evaluator
type Middleware func(catalog.Evaluator) catalog.Evaluator

// Chain applies middleware so that the first one runs outermost
func Chain(ev catalog.Evaluator, mw ...Middleware) catalog.Evaluator {
	for i := len(mw) - 1; i >= 0; i-- {
		ev = mw[i](ev)
	}
	return ev
}

// Timeout bounds the evaluation context
func Timeout(d time.Duration) Middleware {
	return func(next catalog.Evaluator) catalog.Evaluator {
		return catalog.EvaluatorFunc(func(ctx context.Context, req catalog.Request) catalog.Result {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Evaluate(ctx, req)
		})
	}
}

// Recover turns an evaluator panic into a pending result
func Recover(logger hclog.Logger) Middleware {
	return func(next catalog.Evaluator) catalog.Evaluator {
		return catalog.EvaluatorFunc(func(ctx context.Context, req catalog.Request) (res catalog.Result) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("evaluator panicked", "node", req.NodeID, "kind", req.Kind, "panic", r)
					res = catalog.PendingMsg(fmt.Sprintf("evaluator panicked: %v", r))
				}
			}()
			return next.Evaluate(ctx, req)
		})
	}
}
