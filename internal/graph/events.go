package graph

// EventType names a store mutation
type EventType string

const (
	EventNodeAdded       EventType = "node_added"
	EventNodeRemoved     EventType = "node_removed"
	EventNodeMoved       EventType = "node_moved"
	EventFieldChanged    EventType = "field_changed"
	EventOutputChanged   EventType = "output_changed"
	EventEdgeAdded       EventType = "edge_added"
	EventEdgeRemoved     EventType = "edge_removed"
	EventGraphLoaded     EventType = "graph_loaded"
	EventViewportChanged EventType = "viewport_changed"
)

// Event is emitted synchronously after every successful mutation
type Event struct {
	Type   EventType `json:"type"`
	NodeID string    `json:"nodeId,omitempty"`
	Edge   *Edge     `json:"edge,omitempty"`
	Field  string    `json:"field,omitempty"`
	// Node is a snapshot of the affected node, when one survives the mutation
	Node *Node `json:"node,omitempty"`
	// Changed reports whether an output commit altered the published output
	Changed bool `json:"changed,omitempty"`
	// Wave is the propagation wave that produced the event; 0 for external mutations
	Wave uint64 `json:"wave,omitempty"`
}

// Observer receives store events. It must not block.
type Observer func(Event)

// Subscribe registers an observer and returns a function that removes it
func (s *Store) Subscribe(o Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	id := s.obsSeq
	s.obsSeq++
	s.observers[id] = o
	s.obsOrder = append(s.obsOrder, id)

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
		for i, v := range s.obsOrder {
			if v == id {
				s.obsOrder = append(s.obsOrder[:i], s.obsOrder[i+1:]...)
				break
			}
		}
	}
}

// emit notifies observers in subscription order. Called without s.mu held.
func (s *Store) emit(events ...Event) {
	s.obsMu.Lock()
	list := make([]Observer, 0, len(s.obsOrder))
	for _, id := range s.obsOrder {
		list = append(list, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, ev := range events {
		for _, o := range list {
			o(ev)
		}
	}
}
