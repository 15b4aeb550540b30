package catalog

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-hclog"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/mq"
	"github.com/Inferara/web3-canvas-sub000/internal/resolve"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Trigger says why an evaluation runs
type Trigger string

const (
	TriggerWave    Trigger = "wave"    // upstream output, field or edge change
	TriggerLoad    Trigger = "load"    // graph restored
	TriggerTick    Trigger = "tick"    // own timer
	TriggerMessage Trigger = "message" // queue delivery
	TriggerRefresh Trigger = "refresh" // manual re-trigger
)

// ChainClient is the Ethereum provider surface I/O nodes use
type ChainClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

// PriceQuoter returns the current ETH price in USD
type PriceQuoter interface {
	EthUSD(ctx context.Context) (float64, error)
}

// Sender enqueues simulation messages
type Sender interface {
	Enqueue(msg mq.Message) (string, error)
}

// Env holds the services injected into evaluators for one session
type Env struct {
	Chain  ChainClient
	Prices PriceQuoter
	Queue  Sender
	Logger hclog.Logger
	Rand   io.Reader
	Now    func() time.Time
}

// Request is one evaluation's view of a node
type Request struct {
	NodeID  string
	Kind    types.NodeKind
	Trigger Trigger
	// Inputs maps an input handle to its resolved values in edge-creation order
	Inputs map[string][]resolve.Input
	Fields map[string]string
	// Prev is the currently published output, nil before the first evaluation
	Prev *codec.Output
	Env  *Env
}

// Connected reports whether any edge feeds the handle
func (r Request) Connected(handle string) bool {
	return len(r.Inputs[handle]) > 0
}

// Input returns the value feeding a single fan-in handle. The most recently
// connected edge wins. ok is false when the handle is unconnected or the
// upstream value is missing or malformed.
func (r Request) Input(handle string) (codec.Value, bool) {
	ins := r.Inputs[handle]
	if len(ins) == 0 {
		return codec.Value{}, false
	}
	in := ins[len(ins)-1]
	if !in.OK() {
		return codec.Value{}, false
	}
	return in.Value, true
}

// Text returns the non-empty text feeding a handle
func (r Request) Text(handle string) (string, bool) {
	v, ok := r.Input(handle)
	if !ok || v.IsEmpty() {
		return "", false
	}
	return v.Text(), true
}

// All returns every well-formed value feeding a handle in edge-creation
// order, and false if any connected input is missing or malformed
func (r Request) All(handle string) ([]codec.Value, bool) {
	ins := r.Inputs[handle]
	out := make([]codec.Value, 0, len(ins))
	for _, in := range ins {
		if !in.OK() {
			return nil, false
		}
		out = append(out, in.Value)
	}
	return out, true
}

// Field returns a local field
func (r Request) Field(key string) string {
	return r.Fields[key]
}

// Logger returns the env logger or a null logger
func (r Request) Logger() hclog.Logger {
	if r.Env == nil || r.Env.Logger == nil {
		return hclog.NewNullLogger()
	}
	return r.Env.Logger
}

// Now returns the env clock time
func (r Request) Now() time.Time {
	if r.Env == nil || r.Env.Now == nil {
		return time.Now()
	}
	return r.Env.Now()
}

// Result is what an evaluator publishes
type Result struct {
	Out     codec.Output
	Ready   bool
	Verdict types.Verdict
	Message string
	// Failed marks an external call failure
	Failed bool
	// Fields are merged into the node's fields
	Fields map[string]string
}

// Pending clears the output because inputs are incomplete or malformed
func Pending() Result {
	return Result{Out: codec.Scalar(codec.Empty)}
}

// PendingMsg is Pending with a status message
func PendingMsg(msg string) Result {
	r := Pending()
	r.Message = msg
	return r
}

// Ready publishes an encoded scalar
func Ready(encoded string) Result {
	return Result{Out: codec.Scalar(encoded), Ready: true}
}

// ReadyValue publishes a value
func ReadyValue(v codec.Value) Result {
	return Ready(v.Encode())
}

// Failed publishes the error sentinel for an external call failure
func Failed(err error) Result {
	return Result{Out: codec.Scalar(codec.ErrorSentinel), Failed: true, Message: err.Error()}
}

// Status maps the result to a node status
func (r Result) Status() types.NodeStatus {
	switch {
	case r.Failed:
		return types.StatusError
	case r.Ready:
		return types.StatusReady
	default:
		return types.StatusPending
	}
}
