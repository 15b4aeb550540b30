package canvas

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/internal/nodes"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Builder assembles a graph on a session through the engine, so every step
// propagates as a canvas edit would. The first error sticks; later steps
// become no-ops.
type Builder struct {
	session *Session
	ctx     context.Context
	err     error
	next    float64
}

// NewBuilder starts building on s
func NewBuilder(ctx context.Context, s *Session) *Builder {
	return &Builder{session: s, ctx: ctx}
}

// Err returns the first failure
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Add drops a node of the kind, laid out left to right
func (b *Builder) Add(kind types.NodeKind) *FlowNode {
	fn := &FlowNode{b: b}
	if b.err != nil {
		return fn
	}
	n, err := b.session.engine.AddNode(b.ctx, kind, types.Position{X: b.next, Y: 0})
	if err != nil {
		b.fail(errors.Wrapf(err, "add %s", kind))
		return fn
	}
	b.next += 250
	fn.id = n.ID
	return fn
}

// Text adds a text input holding s
func (b *Builder) Text(s string) *FlowNode {
	return b.Add(nodes.KindTextInput).Set(nodes.FieldText, s)
}

// Number adds a number input holding the decimal v
func (b *Builder) Number(v string) *FlowNode {
	return b.Add(nodes.KindNumberInput).Set(nodes.FieldValue, v)
}

// Settle re-evaluates the whole graph and waits for I/O
func (b *Builder) Settle() error {
	if b.err != nil {
		return b.err
	}
	if err := b.session.engine.Settle(b.ctx); err != nil {
		b.fail(err)
		return err
	}
	b.session.engine.Wait()
	return nil
}

// FlowNode references a node added by a Builder
type FlowNode struct {
	b  *Builder
	id string
}

// ID is empty when the node could not be added
func (n *FlowNode) ID() string {
	return n.id
}

// Err returns the builder's first failure
func (n *FlowNode) Err() error {
	return n.b.err
}

// Set edits a field
func (n *FlowNode) Set(key, value string) *FlowNode {
	if n.b.err != nil {
		return n
	}
	if err := n.b.session.engine.SetField(n.b.ctx, n.id, key, value); err != nil {
		n.b.fail(errors.Wrapf(err, "set %s.%s", n.id, key))
	}
	return n
}

// At moves the node
func (n *FlowNode) At(x, y float64) *FlowNode {
	if n.b.err != nil {
		return n
	}
	if err := n.b.session.engine.MoveNode(n.id, types.Position{X: x, Y: y}); err != nil {
		n.b.fail(errors.Wrapf(err, "move %s", n.id))
	}
	return n
}

// Then wires this node's scalar output into the target handle of next and
// returns next
func (n *FlowNode) Then(next *FlowNode, targetHandle string) *FlowNode {
	return n.ThenFrom(nodes.HandleOut, next, targetHandle)
}

// ThenFrom wires a named output handle, for key material
func (n *FlowNode) ThenFrom(sourceHandle string, next *FlowNode, targetHandle string) *FlowNode {
	if n.b.err != nil || next.b.err != nil {
		return next
	}
	_, err := n.b.session.engine.Connect(n.b.ctx, graph.EdgeCandidate{
		Source:       n.id,
		SourceHandle: sourceHandle,
		Target:       next.id,
		TargetHandle: targetHandle,
	})
	if err != nil {
		n.b.fail(errors.Wrapf(err, "connect %s.%s -> %s.%s", n.id, sourceHandle, next.id, targetHandle))
	}
	return next
}

// Node returns the current state of the node
func (n *FlowNode) Node() (graph.Node, bool) {
	if n.id == "" {
		return graph.Node{}, false
	}
	return n.b.session.store.Node(n.id)
}

// Output returns the encoded value published on a handle, Empty when none
func (n *FlowNode) Output(handle string) string {
	node, ok := n.Node()
	if !ok || node.Data.Out == nil {
		return codec.Empty
	}
	v, ok := node.Data.Out.Select(handle)
	if !ok {
		return codec.Empty
	}
	return v
}

// Status returns the node's lifecycle status
func (n *FlowNode) Status() types.NodeStatus {
	node, ok := n.Node()
	if !ok {
		return types.StatusUninitialized
	}
	return node.Data.Status
}
