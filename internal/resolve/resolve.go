// Package resolve finds and decodes the upstream values feeding a node's
// input handles.
package resolve

import (
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

var (
	// ErrNoValue is returned when the upstream node has not published yet
	ErrNoValue = errors.New("upstream has no output")

	// ErrUnknownOutput is returned when key material has no field for the source handle
	ErrUnknownOutput = errors.New("upstream has no such output")
)

// Graph is the read side of the store the resolver needs
type Graph interface {
	IncomingEdges(nodeID string) []graph.Edge
	Node(id string) (graph.Node, bool)
}

// Source is one upstream connection feeding an input handle
type Source struct {
	EdgeID       string
	NodeID       string
	Handle       string
	TargetHandle string
	// Shape is the upstream output shape at resolution time
	Shape codec.Shape
}

// Input is a resolved and decoded upstream value
type Input struct {
	Source
	Value codec.Value
	// Err is set when the upstream value is missing or malformed
	Err error
	// Ready mirrors the upstream node's status
	Ready bool
}

// OK reports whether the input carries a decodable value
func (in Input) OK() bool {
	return in.Err == nil
}

// Resolver maps input handles to upstream sources
type Resolver struct {
	g Graph
}

// New creates a resolver over a graph
func New(g Graph) *Resolver {
	return &Resolver{g: g}
}

func (r *Resolver) source(e graph.Edge) Source {
	src := Source{
		EdgeID:       e.ID,
		NodeID:       e.Source,
		Handle:       e.SourceHandle,
		TargetHandle: e.TargetHandle,
	}
	if n, ok := r.g.Node(e.Source); ok {
		src.Shape = n.Data.OutputShape()
	}
	return src
}

// ResolveInput returns the source feeding a handle. When several edges exist
// the most recently created one wins.
func (r *Resolver) ResolveInput(nodeID, handleID string) (Source, bool) {
	edges := r.g.IncomingEdges(nodeID)
	for i := len(edges) - 1; i >= 0; i-- {
		if edges[i].TargetHandle == handleID {
			return r.source(edges[i]), true
		}
	}
	return Source{}, false
}

// ResolveAllInputs returns every source feeding the node in edge-creation order
func (r *Resolver) ResolveAllInputs(nodeID string) []Source {
	edges := r.g.IncomingEdges(nodeID)
	out := make([]Source, 0, len(edges))
	for _, e := range edges {
		out = append(out, r.source(e))
	}
	return out
}

// ResolveHandle returns the fan-in of one handle in edge-creation order
func (r *Resolver) ResolveHandle(nodeID, handleID string) []Source {
	var out []Source
	for _, e := range r.g.IncomingEdges(nodeID) {
		if e.TargetHandle == handleID {
			out = append(out, r.source(e))
		}
	}
	return out
}

// Value reads the source node's output, selects the composite field by
// source handle for key material, and decodes it
func (r *Resolver) Value(src Source) (codec.Value, error) {
	n, ok := r.g.Node(src.NodeID)
	if !ok {
		return codec.Value{}, errors.Wrapf(graph.ErrNodeNotFound, "%q", src.NodeID)
	}
	if n.Data.Out == nil {
		return codec.Value{}, errors.Wrapf(ErrNoValue, "node %s", src.NodeID)
	}
	enc, ok := n.Data.Out.Select(src.Handle)
	if !ok {
		return codec.Value{}, errors.Wrapf(ErrUnknownOutput, "node %s handle %q", src.NodeID, src.Handle)
	}
	return codec.Decode(enc)
}

// Read resolves a source into an Input
func (r *Resolver) Read(src Source) Input {
	in := Input{Source: src}
	in.Value, in.Err = r.Value(src)
	if n, ok := r.g.Node(src.NodeID); ok {
		in.Ready = n.Data.Status == types.StatusReady
	}
	return in
}

// Inputs resolves every handle of a node. Each handle maps to its inputs in
// edge-creation order.
func (r *Resolver) Inputs(nodeID string) map[string][]Input {
	out := make(map[string][]Input)
	for _, src := range r.ResolveAllInputs(nodeID) {
		out[src.TargetHandle] = append(out[src.TargetHandle], r.Read(src))
	}
	return out
}
