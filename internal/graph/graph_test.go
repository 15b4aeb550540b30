package graph

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

//-----------------------//
// Mock Catalog          //
//-----------------------//

type mockCatalog map[types.NodeKind][]types.HandleSpec

func (m mockCatalog) Handles(kind types.NodeKind) ([]types.HandleSpec, bool) {
	h, ok := m[kind]
	return h, ok
}

func (m mockCatalog) NewData(kind types.NodeKind) (NodeData, error) {
	if kind == "seeded" {
		return NodeData{Fields: map[string]string{"value": "seed"}}, nil
	}
	return NodeData{}, nil
}

func testCatalog() mockCatalog {
	return mockCatalog{
		"text": {
			{ID: "out", Type: types.HandleSource},
		},
		"seeded": {
			{ID: "out", Type: types.HandleSource},
		},
		"sink": {
			{ID: "in", Type: types.HandleTarget, MaxConnections: 1},
			{ID: "many", Type: types.HandleTarget, MaxConnections: types.Unlimited},
			{ID: "out", Type: types.HandleSource},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(testCatalog(), WithGraphID("test"))
}

func mustAdd(t *testing.T, s *Store, kind types.NodeKind) string {
	t.Helper()
	n, err := s.AddNode(kind, types.Position{})
	require.NoError(t, err)
	return n.ID
}

func rejection(t *testing.T, err error) RejectReason {
	t.Helper()
	require.ErrorIs(t, err, ErrConnectionRejected)
	var cr *ConnectionRejected
	require.True(t, errors.As(err, &cr))
	return cr.Reason
}

//---------------------------//
// Tests for the Store Logic //
//---------------------------//

func TestStoreNodes(t *testing.T) {
	t.Parallel()

	t.Run("IdsAreMonotonic", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		a := mustAdd(t, s, "text")
		b := mustAdd(t, s, "text")
		require.NoError(t, s.RemoveNode(b))
		c := mustAdd(t, s, "text")

		assert.Equal(t, "0", a)
		assert.Equal(t, "1", b)
		assert.Equal(t, "2", c, "ids are never reused")
		assert.Equal(t, []string{"0", "2"}, s.Order())
	})

	t.Run("UnknownKind", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		_, err := s.AddNode("nope", types.Position{})
		require.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("InitialDataFromCatalog", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		id := mustAdd(t, s, "seeded")
		n, ok := s.Node(id)
		require.True(t, ok)
		assert.Equal(t, "seed", n.Data.Field("value"))
		assert.Equal(t, types.StatusUninitialized, n.Data.Status)
	})

	t.Run("SetField", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		id := mustAdd(t, s, "text")
		require.NoError(t, s.SetField(id, "value", "hello"))
		require.NoError(t, s.SetField(id, "label", "Greeting"))
		require.ErrorIs(t, s.SetField(id, "out", "x"), ErrReservedField)
		require.ErrorIs(t, s.SetField("404", "value", "x"), ErrNodeNotFound)

		n, _ := s.Node(id)
		assert.Equal(t, "hello", n.Data.Field("value"))
		assert.Equal(t, "Greeting", n.Data.Label)
	})

	t.Run("SnapshotsAreCopies", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		id := mustAdd(t, s, "text")
		require.NoError(t, s.SetField(id, "value", "a"))
		n, _ := s.Node(id)
		n.Data.Fields["value"] = "mutated"

		again, _ := s.Node(id)
		assert.Equal(t, "a", again.Data.Field("value"))
	})

	t.Run("MoveAndResize", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		id := mustAdd(t, s, "text")
		require.NoError(t, s.MoveNode(id, types.Position{X: 10, Y: 20}))
		require.NoError(t, s.ResizeNode(id, &types.Size{W: 100, H: 50}))
		n, _ := s.Node(id)
		assert.Equal(t, types.Position{X: 10, Y: 20}, n.Position)
		require.NotNil(t, n.Size)
		assert.Equal(t, 100.0, n.Size.W)
		require.ErrorIs(t, s.MoveNode("404", types.Position{}), ErrNodeNotFound)
	})
}

func TestStoreConnect(t *testing.T) {
	t.Parallel()

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		a, b := mustAdd(t, s, "text"), mustAdd(t, s, "sink")
		e, err := s.Connect(EdgeCandidate{Source: a, SourceHandle: "out", Target: b, TargetHandle: "in"})
		require.NoError(t, err)
		assert.Equal(t, "edge-0.out-1.in", e.ID)
		assert.Equal(t, []Edge{e}, s.IncomingEdges(b))
		assert.Equal(t, []Edge{e}, s.OutgoingEdges(a))
		assert.Equal(t, []string{b}, s.Downstream(a))
	})

	tests := []struct {
		name   string
		edge   func(a, b string) EdgeCandidate
		reason RejectReason
	}{
		{
			name:   "DanglingSource",
			edge:   func(_, b string) EdgeCandidate { return EdgeCandidate{Source: "99", SourceHandle: "out", Target: b, TargetHandle: "in"} },
			reason: ReasonDanglingEndpoint,
		},
		{
			name:   "UnknownHandle",
			edge:   func(a, b string) EdgeCandidate { return EdgeCandidate{Source: a, SourceHandle: "out", Target: b, TargetHandle: "nope"} },
			reason: ReasonDanglingEndpoint,
		},
		{
			name:   "SourceFromInput",
			edge:   func(a, b string) EdgeCandidate { return EdgeCandidate{Source: b, SourceHandle: "in", Target: a, TargetHandle: "out"} },
			reason: ReasonPolarity,
		},
		{
			name:   "TargetIsOutput",
			edge:   func(a, b string) EdgeCandidate { return EdgeCandidate{Source: a, SourceHandle: "out", Target: b, TargetHandle: "out"} },
			reason: ReasonPolarity,
		},
		{
			name:   "SelfLoop",
			edge:   func(_, b string) EdgeCandidate { return EdgeCandidate{Source: b, SourceHandle: "out", Target: b, TargetHandle: "in"} },
			reason: ReasonSelfLoop,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestStore(t)
			a, b := mustAdd(t, s, "text"), mustAdd(t, s, "sink")
			_, err := s.Connect(tc.edge(a, b))
			assert.Equal(t, tc.reason, rejection(t, err))
			assert.Empty(t, s.Edges())
		})
	}

	t.Run("FanInLimit", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		a, b, c := mustAdd(t, s, "text"), mustAdd(t, s, "text"), mustAdd(t, s, "sink")
		_, err := s.Connect(EdgeCandidate{Source: a, SourceHandle: "out", Target: c, TargetHandle: "in"})
		require.NoError(t, err)
		_, err = s.Connect(EdgeCandidate{Source: b, SourceHandle: "out", Target: c, TargetHandle: "in"})
		assert.Equal(t, ReasonFanInExceeded, rejection(t, err))

		// unlimited handles take any number
		for _, src := range []string{a, b} {
			_, err = s.Connect(EdgeCandidate{Source: src, SourceHandle: "out", Target: c, TargetHandle: "many"})
			require.NoError(t, err)
		}
		assert.Len(t, s.IncomingEdges(c), 3)
	})

	t.Run("Duplicate", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		a, c := mustAdd(t, s, "text"), mustAdd(t, s, "sink")
		cand := EdgeCandidate{Source: a, SourceHandle: "out", Target: c, TargetHandle: "many"}
		_, err := s.Connect(cand)
		require.NoError(t, err)
		_, err = s.Connect(cand)
		assert.Equal(t, ReasonDuplicateEdge, rejection(t, err))
	})

	t.Run("DisconnectAndCascade", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		a, b, c := mustAdd(t, s, "text"), mustAdd(t, s, "sink"), mustAdd(t, s, "sink")
		e1, err := s.Connect(EdgeCandidate{Source: a, SourceHandle: "out", Target: b, TargetHandle: "in"})
		require.NoError(t, err)
		_, err = s.Connect(EdgeCandidate{Source: b, SourceHandle: "out", Target: c, TargetHandle: "in"})
		require.NoError(t, err)

		require.NoError(t, s.Disconnect(e1.ID))
		require.ErrorIs(t, s.Disconnect(e1.ID), ErrEdgeNotFound)
		assert.Len(t, s.Edges(), 1)

		require.NoError(t, s.RemoveNode(b))
		assert.Empty(t, s.Edges(), "edges touching a removed node are removed")
		require.ErrorIs(t, s.RemoveNode(b), ErrNodeNotFound)
	})
}

func TestStoreOutputAndEvents(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var events []Event
	unsubscribe := s.Subscribe(func(ev Event) { events = append(events, ev) })

	id := mustAdd(t, s, "text")
	changed, err := s.SetNodeOutput(id, Update{Out: codec.Scalar("Shello"), Status: types.StatusReady, Wave: 7})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SetNodeOutput(id, Update{Out: codec.Scalar("Shello"), Status: types.StatusReady, Wave: 8})
	require.NoError(t, err)
	assert.False(t, changed, "same output is not a change")

	require.Len(t, events, 3)
	assert.Equal(t, EventNodeAdded, events[0].Type)
	assert.Equal(t, EventOutputChanged, events[1].Type)
	assert.Equal(t, uint64(7), events[1].Wave)
	assert.True(t, events[1].Changed)
	assert.False(t, events[2].Changed)

	unsubscribe()
	require.NoError(t, s.SetField(id, "value", "x"))
	assert.Len(t, events, 3)

	_, err = s.SetNodeOutput("404", Update{})
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestStoreSerialize(t *testing.T) {
	t.Parallel()

	build := func(t *testing.T) *Store {
		t.Helper()
		s := newTestStore(t)
		a, b := mustAdd(t, s, "text"), mustAdd(t, s, "sink")
		require.NoError(t, s.SetField(a, "value", "hello"))
		_, err := s.SetNodeOutput(a, Update{Out: codec.Scalar("Shello"), Status: types.StatusReady})
		require.NoError(t, err)
		_, err = s.Connect(EdgeCandidate{Source: a, SourceHandle: "out", Target: b, TargetHandle: "in"})
		require.NoError(t, err)
		s.SetViewport(types.Viewport{X: 1, Y: 2, Zoom: 1.5})
		return s
	}

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()
		src := build(t)
		raw, err := json.Marshal(src.Serialize())
		require.NoError(t, err)

		var g Graph
		require.NoError(t, json.Unmarshal(raw, &g))
		dst := newTestStore(t)
		require.NoError(t, dst.Deserialize(g))

		assert.Equal(t, src.Serialize(), dst.Serialize())
		// counter re-seeded past restored ids
		assert.Equal(t, "2", mustAdd(t, dst, "text"))
	})

	t.Run("CounterFromSuffix", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.Deserialize(Graph{Nodes: []Node{{ID: "node-41", Kind: "text"}}}))
		assert.Equal(t, "42", mustAdd(t, s, "text"))
	})

	t.Run("RejectsDanglingEdge", func(t *testing.T) {
		t.Parallel()
		s := build(t)
		before := s.Serialize()
		err := s.Deserialize(Graph{
			Nodes: []Node{{ID: "0", Kind: "text"}},
			Edges: []Edge{{ID: "e", Source: "0", SourceHandle: "out", Target: "9", TargetHandle: "in"}},
		})
		require.ErrorIs(t, err, ErrInvalidGraph)
		assert.Equal(t, before, s.Serialize(), "failed restore leaves the store untouched")
	})

	t.Run("RejectsDuplicateNode", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		err := s.Deserialize(Graph{Nodes: []Node{{ID: "0", Kind: "text"}, {ID: "0", Kind: "text"}}})
		require.ErrorIs(t, err, ErrDuplicateNode)
	})

	t.Run("ToleratesOversubscribedHandle", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		err := s.Deserialize(Graph{
			Nodes: []Node{{ID: "0", Kind: "text"}, {ID: "1", Kind: "text"}, {ID: "2", Kind: "sink"}},
			Edges: []Edge{
				{ID: "a", Source: "0", SourceHandle: "out", Target: "2", TargetHandle: "in"},
				{ID: "b", Source: "1", SourceHandle: "out", Target: "2", TargetHandle: "in"},
			},
		})
		require.NoError(t, err)
		assert.Len(t, s.IncomingEdges("2"), 2)
	})
}

func TestNodeDataJSON(t *testing.T) {
	t.Parallel()
	raw := `{"label":"K","value":"abc","decimals":18,"out":{"publicKey":"Sp","privateKey":"Sk","address":"Sa"},"status":"ready"}`

	var d NodeData
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.Equal(t, "K", d.Label)
	assert.Equal(t, "abc", d.Field("value"))
	assert.Equal(t, "18", d.Field("decimals"))
	assert.Equal(t, types.StatusReady, d.Status)
	require.NotNil(t, d.Out)
	assert.Equal(t, codec.ShapeKeyMaterial, d.OutputShape())
	addr, ok := d.Out.Select(codec.HandleAddress)
	require.True(t, ok)
	assert.Equal(t, "Sa", addr)
}

func TestVisualizer(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a, b := mustAdd(t, s, "text"), mustAdd(t, s, "sink")
	require.NoError(t, s.SetField(a, "label", `Say "hi"`))
	_, err := s.Connect(EdgeCandidate{Source: a, SourceHandle: "out", Target: b, TargetHandle: "in"})
	require.NoError(t, err)

	m := s.Mermaid()
	assert.Contains(t, m, "flowchart LR")
	assert.Contains(t, m, "#quot;hi#quot;")
	assert.Contains(t, m, "n0 -- \"out→in\" --> n1")

	info := s.GetGraphInfo()
	require.Len(t, info.Edges, 1)
	assert.Equal(t, EdgeInfo{From: a, FromHandle: "out", To: b, ToHandle: "in"}, info.Edges[0])
}

func TestHandleLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	sink := mustAdd(t, s, "sink")

	h, err := s.Handle(sink, "in")
	require.NoError(t, err)
	assert.Equal(t, types.HandleTarget, h.Type)
	assert.Equal(t, 1, h.MaxConnections)

	_, err = s.Handle(sink, "missing")
	assert.True(t, errors.Is(err, ErrHandleNotFound), "got %v", err)

	_, err = s.Handle("404", "in")
	assert.True(t, errors.Is(err, ErrNodeNotFound), "got %v", err)
}
