// Package persist mirrors the working graph in a local key-value store and
// keeps the list of saved states.
package persist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/flowfile"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
)

// FlowKey is the key under which the last-saved graph is kept
const FlowKey = "flow"

// DefaultMaxSnapshots bounds the saved-state list
const DefaultMaxSnapshots = 50

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// Snapshot is one saved state
type Snapshot struct {
	ID        string      `json:"id"`
	Label     string      `json:"label,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	Nodes     int         `json:"nodes"`
	Edges     int         `json:"edges"`
	Graph     graph.Graph `json:"-"`
}

// Store persists the working graph and its snapshots
type Store interface {
	// Save replaces the graph under FlowKey
	Save(ctx context.Context, g graph.Graph) error
	// Load returns the graph under FlowKey, ErrNotFound if none was saved
	Load(ctx context.Context) (graph.Graph, error)
	// SaveSnapshot appends a saved state, evicting the oldest past the limit
	SaveSnapshot(ctx context.Context, label string, g graph.Graph) (Snapshot, error)
	// Snapshots lists saved states oldest first, without their graphs
	Snapshots(ctx context.Context) ([]Snapshot, error)
	// Snapshot returns one saved state with its graph
	Snapshot(ctx context.Context, id string) (Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
	Close() error
}

// record is the stored form of a snapshot
type record struct {
	Snapshot
	Graph json.RawMessage `json:"graph"`
}

func newSnapshot(label string, g graph.Graph) Snapshot {
	return Snapshot{
		ID:        uuid.NewString(),
		Label:     label,
		CreatedAt: time.Now().UTC(),
		Nodes:     len(g.Nodes),
		Edges:     len(g.Edges),
		Graph:     g,
	}
}

func encodeSnapshot(s Snapshot) ([]byte, error) {
	body, err := flowfile.Export(s.Graph)
	if err != nil {
		return nil, err
	}
	return json.Marshal(record{Snapshot: s, Graph: body})
}

func decodeSnapshot(data []byte, withGraph bool) (Snapshot, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Snapshot{}, errors.Wrap(err, "decode snapshot")
	}
	s := rec.Snapshot
	if withGraph {
		g, err := flowfile.Import(rec.Graph)
		if err != nil {
			return Snapshot{}, errors.Wrapf(err, "snapshot %s", s.ID)
		}
		s.Graph = g
	}
	return s, nil
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "persist")
	}
	return nil
}
