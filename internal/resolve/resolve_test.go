package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

type catalog map[types.NodeKind][]types.HandleSpec

func (c catalog) Handles(kind types.NodeKind) ([]types.HandleSpec, bool) {
	h, ok := c[kind]
	return h, ok
}

func (catalog) NewData(types.NodeKind) (graph.NodeData, error) {
	return graph.NodeData{}, nil
}

func newStore(t *testing.T) *graph.Store {
	t.Helper()
	return graph.New(catalog{
		"text": {{ID: "out", Type: types.HandleSource}},
		"keys": {
			{ID: codec.HandlePublicKey, Type: types.HandleSource},
			{ID: codec.HandlePrivateKey, Type: types.HandleSource},
			{ID: codec.HandleAddress, Type: types.HandleSource},
		},
		"join": {
			{ID: "in", Type: types.HandleTarget},
			{ID: "single", Type: types.HandleTarget, MaxConnections: 1},
		},
	})
}

func add(t *testing.T, s *graph.Store, kind types.NodeKind, out *codec.Output) string {
	t.Helper()
	n, err := s.AddNode(kind, types.Position{})
	require.NoError(t, err)
	if out != nil {
		_, err = s.SetNodeOutput(n.ID, graph.Update{Out: *out, Status: types.StatusReady})
		require.NoError(t, err)
	}
	return n.ID
}

func ptr(o codec.Output) *codec.Output { return &o }

func TestResolveOrder(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	a := add(t, s, "text", ptr(codec.Scalar("Sa")))
	b := add(t, s, "text", ptr(codec.Scalar("Sb")))
	c := add(t, s, "text", ptr(codec.Scalar("Sc")))
	j := add(t, s, "join", nil)

	// connect in non-id order so creation order is observable
	for _, src := range []string{c, a, b} {
		_, err := s.Connect(graph.EdgeCandidate{Source: src, SourceHandle: "out", Target: j, TargetHandle: "in"})
		require.NoError(t, err)
	}

	r := New(s)
	var got []string
	for _, src := range r.ResolveHandle(j, "in") {
		v, err := r.Value(src)
		require.NoError(t, err)
		got = append(got, v.Text())
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
	assert.Len(t, r.ResolveAllInputs(j), 3)

	last, ok := r.ResolveInput(j, "in")
	require.True(t, ok)
	assert.Equal(t, b, last.NodeID, "most recent edge wins")

	_, ok = r.ResolveInput(j, "single")
	assert.False(t, ok)
}

func TestResolveKeyMaterial(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	k := add(t, s, "keys", ptr(codec.Keys(codec.KeyMaterial{PublicKey: "Spub", PrivateKey: "Spriv", Address: "Saddr"})))
	j := add(t, s, "join", nil)
	_, err := s.Connect(graph.EdgeCandidate{Source: k, SourceHandle: codec.HandleAddress, Target: j, TargetHandle: "single"})
	require.NoError(t, err)

	r := New(s)
	src, ok := r.ResolveInput(j, "single")
	require.True(t, ok)
	assert.Equal(t, codec.ShapeKeyMaterial, src.Shape)

	in := r.Read(src)
	require.True(t, in.OK())
	assert.True(t, in.Ready)
	assert.Equal(t, "addr", in.Value.Text())

	inputs := r.Inputs(j)
	require.Len(t, inputs["single"], 1)
	assert.Equal(t, "addr", inputs["single"][0].Value.Text())
}

func TestResolveMissing(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	a := add(t, s, "text", nil)
	bad := add(t, s, "text", ptr(codec.Scalar("Nxyz")))
	j := add(t, s, "join", nil)
	for _, src := range []string{a, bad} {
		_, err := s.Connect(graph.EdgeCandidate{Source: src, SourceHandle: "out", Target: j, TargetHandle: "in"})
		require.NoError(t, err)
	}

	r := New(s)
	ins := r.Inputs(j)["in"]
	require.Len(t, ins, 2)
	assert.ErrorIs(t, ins[0].Err, ErrNoValue)
	assert.False(t, ins[0].Ready)
	assert.ErrorIs(t, ins[1].Err, codec.ErrInvalidNumberFormat)

	_, err := r.Value(Source{NodeID: "404"})
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}
