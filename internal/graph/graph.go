// Package graph holds the canonical representation of a canvas: nodes,
// edges and handles. The Store is the single place structural invariants are
// checked, and every mutation is observable through Subscribe.
package graph

import (
	"maps"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Catalog supplies per-kind metadata the store needs to enforce invariants
type Catalog interface {
	// Handles returns the declared handles of a kind
	Handles(kind types.NodeKind) ([]types.HandleSpec, bool)
	// NewData returns initial data for a freshly dropped node
	NewData(kind types.NodeKind) (NodeData, error)
}

// Graph is the unit of serialization
type Graph struct {
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Viewport types.Viewport `json:"viewport"`
}

// Update is what an evaluator run publishes through SetNodeOutput
type Update struct {
	Out     codec.Output
	Status  types.NodeStatus
	Verdict types.Verdict
	Message string
	// Fields are merged into the node's editable fields (stateful kinds)
	Fields map[string]string
	// Wave tags the resulting event with the propagation wave, 0 if external
	Wave uint64
}

// Store is the source of truth for one open graph
type Store struct {
	mu       sync.RWMutex
	graphID  string
	catalog  Catalog
	nodes    map[string]*Node
	order    []string
	edges    []Edge
	viewport types.Viewport
	next     int
	logger   hclog.Logger

	obsMu     sync.Mutex
	observers map[int]Observer
	obsOrder  []int
	obsSeq    int
}

// New creates an empty store
func New(catalog Catalog, opts ...Option) *Store {
	s := &Store{
		graphID:   uuid.New().String(),
		catalog:   catalog,
		nodes:     make(map[string]*Node),
		viewport:  types.DefaultViewport(),
		logger:    hclog.NewNullLogger(),
		observers: make(map[int]Observer),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the graph's identifier
func (s *Store) ID() string {
	return s.graphID
}

// AddNode drops a node of the given kind at a position
func (s *Store) AddNode(kind types.NodeKind, pos types.Position) (Node, error) {
	if _, ok := s.catalog.Handles(kind); !ok {
		return Node{}, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	data, err := s.catalog.NewData(kind)
	if err != nil {
		return Node{}, errors.Wrapf(err, "initialise %s node", kind)
	}
	if data.Status == "" {
		data.Status = types.StatusUninitialized
	}

	s.mu.Lock()
	id := strconv.Itoa(s.next)
	for s.nodes[id] != nil {
		s.next++
		id = strconv.Itoa(s.next)
	}
	s.next++

	n := &Node{ID: id, Kind: kind, Position: pos, Data: data.Clone()}
	s.nodes[id] = n
	s.order = append(s.order, id)
	snapshot := n.Clone()
	s.mu.Unlock()

	s.logger.Debug("node added", "id", id, "kind", kind)
	s.emit(Event{Type: EventNodeAdded, NodeID: id, Node: &snapshot})
	return snapshot, nil
}

// RemoveNode deletes a node and every edge touching it
func (s *Store) RemoveNode(id string) error {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrNodeNotFound, "%q", id)
	}

	var removed []Edge
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Touches(id) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	delete(s.nodes, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	events := make([]Event, 0, len(removed)+1)
	for i := range removed {
		events = append(events, Event{Type: EventEdgeRemoved, NodeID: removed[i].Target, Edge: &removed[i]})
	}
	events = append(events, Event{Type: EventNodeRemoved, NodeID: id})

	s.logger.Debug("node removed", "id", id, "edges", len(removed))
	s.emit(events...)
	return nil
}

// MoveNode updates a node's canvas position
func (s *Store) MoveNode(id string, pos types.Position) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrNodeNotFound, "%q", id)
	}
	n.Position = pos
	snapshot := n.Clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventNodeMoved, NodeID: id, Node: &snapshot})
	return nil
}

// ResizeNode sets a node's explicit size; nil clears it
func (s *Store) ResizeNode(id string, size *types.Size) error {
	s.mu.Lock()
	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrNodeNotFound, "%q", id)
	}
	if size == nil {
		n.Size = nil
	} else {
		sz := *size
		n.Size = &sz
	}
	snapshot := n.Clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventNodeMoved, NodeID: id, Node: &snapshot})
	return nil
}

// Connect validates an edge candidate and inserts it
func (s *Store) Connect(c EdgeCandidate) (Edge, error) {
	s.mu.Lock()
	edge, err := s.validateEdgeLocked(c, true)
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("connection rejected", "error", err)
		return Edge{}, err
	}
	s.edges = append(s.edges, edge)
	s.mu.Unlock()

	s.logger.Debug("edge added", "id", edge.ID)
	s.emit(Event{Type: EventEdgeAdded, NodeID: edge.Target, Edge: &edge})
	return edge, nil
}

// validateEdgeLocked checks endpoints, polarity, self loops, duplicates and,
// when enforceFanIn is set, target saturation
func (s *Store) validateEdgeLocked(c Edge, enforceFanIn bool) (Edge, error) {
	src, ok := s.nodes[c.Source]
	if !ok {
		return Edge{}, reject(ReasonDanglingEndpoint, c, "source node %q does not exist", c.Source)
	}
	dst, ok := s.nodes[c.Target]
	if !ok {
		return Edge{}, reject(ReasonDanglingEndpoint, c, "target node %q does not exist", c.Target)
	}
	if c.Source == c.Target {
		return Edge{}, reject(ReasonSelfLoop, c, "node %q cannot feed itself", c.Source)
	}

	srcHandle, ok := s.handleLocked(src.Kind, c.SourceHandle)
	if !ok {
		return Edge{}, reject(ReasonDanglingEndpoint, c, "handle %q does not exist on %s", c.SourceHandle, src.Kind)
	}
	if srcHandle.Type != types.HandleSource {
		return Edge{}, reject(ReasonPolarity, c, "handle %q on %s is not an output", c.SourceHandle, src.Kind)
	}
	dstHandle, ok := s.handleLocked(dst.Kind, c.TargetHandle)
	if !ok {
		return Edge{}, reject(ReasonDanglingEndpoint, c, "handle %q does not exist on %s", c.TargetHandle, dst.Kind)
	}
	if dstHandle.Type != types.HandleTarget {
		return Edge{}, reject(ReasonPolarity, c, "handle %q on %s is not an input", c.TargetHandle, dst.Kind)
	}

	if c.ID == "" {
		c.ID = defaultEdgeID(c)
	}
	incoming := 0
	for _, e := range s.edges {
		if e.key() == c.key() || e.ID == c.ID {
			return Edge{}, reject(ReasonDuplicateEdge, c, "edge already exists")
		}
		if e.Target == c.Target && e.TargetHandle == c.TargetHandle {
			incoming++
		}
	}
	if enforceFanIn && !dstHandle.Accepts(incoming) {
		return Edge{}, reject(ReasonFanInExceeded, c, "handle %q accepts %d connection(s)", c.TargetHandle, dstHandle.MaxConnections)
	}

	return c, nil
}

func (s *Store) handleLocked(kind types.NodeKind, id string) (types.HandleSpec, bool) {
	handles, ok := s.catalog.Handles(kind)
	if !ok {
		return types.HandleSpec{}, false
	}
	for _, h := range handles {
		if h.ID == id {
			return h, true
		}
	}
	return types.HandleSpec{}, false
}

// Disconnect removes an edge by id
func (s *Store) Disconnect(edgeID string) error {
	s.mu.Lock()
	idx := -1
	for i, e := range s.edges {
		if e.ID == edgeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return errors.Wrapf(ErrEdgeNotFound, "%q", edgeID)
	}
	edge := s.edges[idx]
	s.edges = append(s.edges[:idx], s.edges[idx+1:]...)
	s.mu.Unlock()

	s.logger.Debug("edge removed", "id", edgeID)
	s.emit(Event{Type: EventEdgeRemoved, NodeID: edge.Target, Edge: &edge})
	return nil
}

// SetField edits a node's local control. The "label" key sets the display name.
func (s *Store) SetField(nodeID, key, value string) error {
	if isReserved(key) {
		return errors.Wrapf(ErrReservedField, "%q", key)
	}

	s.mu.Lock()
	n, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrNodeNotFound, "%q", nodeID)
	}
	if key == keyLabel {
		n.Data.Label = value
	} else {
		if n.Data.Fields == nil {
			n.Data.Fields = map[string]string{}
		}
		n.Data.Fields[key] = value
	}
	snapshot := n.Clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventFieldChanged, NodeID: nodeID, Field: key, Node: &snapshot})
	return nil
}

// SetNodeOutput is the single mutation path evaluators use to publish
// results. It reports whether the published output changed.
func (s *Store) SetNodeOutput(nodeID string, u Update) (bool, error) {
	s.mu.Lock()
	n, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return false, errors.Wrapf(ErrNodeNotFound, "%q", nodeID)
	}

	changed := n.Data.Out == nil || !n.Data.Out.Equal(u.Out)
	out := u.Out
	n.Data.Out = &out
	n.Data.Status = u.Status
	n.Data.Verdict = u.Verdict
	n.Data.Message = u.Message
	if len(u.Fields) > 0 {
		if n.Data.Fields == nil {
			n.Data.Fields = map[string]string{}
		}
		maps.Copy(n.Data.Fields, u.Fields)
	}
	snapshot := n.Clone()
	s.mu.Unlock()

	s.emit(Event{Type: EventOutputChanged, NodeID: nodeID, Node: &snapshot, Changed: changed, Wave: u.Wave})
	return changed, nil
}

// SetViewport updates the canvas pan and zoom
func (s *Store) SetViewport(v types.Viewport) {
	s.mu.Lock()
	s.viewport = v
	s.mu.Unlock()

	s.emit(Event{Type: EventViewportChanged})
}

// Viewport returns the canvas pan and zoom
func (s *Store) Viewport() types.Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

// Node returns a copy of a node
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// Nodes returns copies of all nodes in insertion order
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

// Order returns the node ids in insertion order
func (s *Store) Order() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Edges returns all edges in creation order
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Edge(nil), s.edges...)
}

// IncomingEdges returns the edges targeting a node, in creation order
func (s *Store) IncomingEdges(nodeID string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, e := range s.edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns the edges leaving a node, in creation order
func (s *Store) OutgoingEdges(nodeID string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Edge
	for _, e := range s.edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Downstream returns the distinct immediate neighbours fed by a node,
// ordered by first edge
func (s *Store) Downstream(nodeID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.edges {
		if e.Source == nodeID && !seen[e.Target] {
			seen[e.Target] = true
			out = append(out, e.Target)
		}
	}
	return out
}

// Len returns the number of nodes
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Serialize returns a deep copy of the whole graph
func (s *Store) Serialize() Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := Graph{
		Nodes:    make([]Node, 0, len(s.order)),
		Edges:    append([]Edge{}, s.edges...),
		Viewport: s.viewport,
	}
	for _, id := range s.order {
		g.Nodes = append(g.Nodes, s.nodes[id].Clone())
	}
	return g
}

// Deserialize replaces the store contents with g. The graph is validated in
// full before anything is installed; on error the store is untouched.
func (s *Store) Deserialize(g Graph) error {
	nodes := make(map[string]*Node, len(g.Nodes))
	order := make([]string, 0, len(g.Nodes))
	maxID := -1
	for _, n := range g.Nodes {
		if n.ID == "" {
			return NewValidationError("deserialize", "", errors.Wrap(ErrInvalidGraph, "node without id"))
		}
		if _, dup := nodes[n.ID]; dup {
			return NewValidationError("deserialize", n.ID, ErrDuplicateNode)
		}
		if _, ok := s.catalog.Handles(n.Kind); !ok {
			return NewValidationError("deserialize", n.ID, errors.Wrapf(ErrUnknownKind, "%q", n.Kind))
		}
		c := n.Clone()
		if c.Data.Status == "" {
			c.Data.Status = types.StatusUninitialized
		}
		nodes[n.ID] = &c
		order = append(order, n.ID)
		if v, ok := numericSuffix(n.ID); ok && v > maxID {
			maxID = v
		}
	}

	// Validate edges against the candidate node set
	staged := &Store{catalog: s.catalog, nodes: nodes}
	for _, e := range g.Edges {
		edge, err := staged.validateEdgeLocked(e, false)
		if err != nil {
			return NewValidationError("deserialize", e.Target, errors.Wrap(ErrInvalidGraph, err.Error()))
		}
		staged.edges = append(staged.edges, edge)
	}
	s.warnOversubscribed(staged)

	next := len(nodes)
	if maxID+1 > next {
		next = maxID + 1
	}

	s.mu.Lock()
	s.nodes = nodes
	s.order = order
	s.edges = staged.edges
	s.viewport = g.Viewport
	s.next = next
	s.mu.Unlock()

	s.logger.Info("graph restored", "nodes", len(nodes), "edges", len(staged.edges), "next_id", next)
	s.emit(Event{Type: EventGraphLoaded})
	return nil
}

// warnOversubscribed logs target handles holding more edges than they accept.
// Such graphs are accepted on restore; the resolver picks the newest edge.
func (s *Store) warnOversubscribed(staged *Store) {
	counts := make(map[string]int)
	for _, e := range staged.edges {
		counts[e.Target+"\x00"+e.TargetHandle]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, e := range staged.edges {
			if e.Target+"\x00"+e.TargetHandle != k {
				continue
			}
			h, _ := staged.handleLocked(staged.nodes[e.Target].Kind, e.TargetHandle)
			if h.MaxConnections != types.Unlimited && counts[k] > h.MaxConnections {
				s.logger.Warn("restored handle exceeds fan-in", "node", e.Target, "handle", e.TargetHandle,
					"edges", counts[k], "max", h.MaxConnections)
			}
			break
		}
	}
}

// Handle returns the spec of a handle on a node
func (s *Store) Handle(nodeID, handleID string) (types.HandleSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return types.HandleSpec{}, errors.Wrapf(ErrNodeNotFound, "%q", nodeID)
	}
	h, ok := s.handleLocked(n.Kind, handleID)
	if !ok {
		return types.HandleSpec{}, errors.Wrapf(ErrHandleNotFound, "%q on %s", handleID, n.Kind)
	}
	return h, nil
}
