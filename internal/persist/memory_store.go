package persist

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/flowfile"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
)

// MemoryStore keeps everything in process. Values are stored encoded so
// callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	flow      []byte
	snapshots [][]byte
	index     map[string]int
	max       int
	closed    bool
}

func NewMemoryStore(maxSnapshots int) *MemoryStore {
	if maxSnapshots <= 0 {
		maxSnapshots = DefaultMaxSnapshots
	}
	return &MemoryStore{
		index: make(map[string]int),
		max:   maxSnapshots,
	}
}

func (m *MemoryStore) Save(ctx context.Context, g graph.Graph) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	data, err := flowfile.Export(g)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.flow = data
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) (graph.Graph, error) {
	if err := checkCtx(ctx); err != nil {
		return graph.Graph{}, err
	}
	m.mu.RLock()
	data, closed := m.flow, m.closed
	m.mu.RUnlock()

	if closed {
		return graph.Graph{}, ErrClosed
	}
	if data == nil {
		return graph.Graph{}, errors.Wrapf(ErrNotFound, "key %q", FlowKey)
	}
	return flowfile.Import(data)
}

func (m *MemoryStore) SaveSnapshot(ctx context.Context, label string, g graph.Graph) (Snapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return Snapshot{}, err
	}
	s := newSnapshot(label, g)
	data, err := encodeSnapshot(s)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	m.snapshots = append(m.snapshots, data)
	if len(m.snapshots) > m.max {
		m.snapshots = m.snapshots[len(m.snapshots)-m.max:]
	}
	m.reindexLocked()
	return s, nil
}

func (m *MemoryStore) reindexLocked() {
	clear(m.index)
	for i, data := range m.snapshots {
		s, err := decodeSnapshot(data, false)
		if err == nil {
			m.index[s.ID] = i
		}
	}
}

func (m *MemoryStore) Snapshots(ctx context.Context) ([]Snapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]Snapshot, 0, len(m.snapshots))
	for _, data := range m.snapshots {
		s, err := decodeSnapshot(data, false)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}

	i, ok := m.index[id]
	if !ok {
		return Snapshot{}, errors.Wrapf(ErrNotFound, "snapshot %s", id)
	}
	return decodeSnapshot(m.snapshots[i], true)
}

func (m *MemoryStore) DeleteSnapshot(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	i, ok := m.index[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "snapshot %s", id)
	}
	m.snapshots = append(m.snapshots[:i], m.snapshots[i+1:]...)
	m.reindexLocked()
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
