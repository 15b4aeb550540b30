// Package flowfile reads and writes the portable graph format: the exported
// JSON file and the compressed share URL.
package flowfile

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// MaxFileSize bounds an imported document
const MaxFileSize = 16 << 20

// document is the file form. Every key is optional on import.
type document struct {
	Nodes    []graph.Node    `json:"nodes"`
	Edges    []graph.Edge    `json:"edges"`
	Viewport *types.Viewport `json:"viewport"`
}

// Filename is the download name of an export taken at t
func Filename(t time.Time) string {
	return "flow_" + t.UTC().Format(time.RFC3339) + ".json"
}

// Export renders a graph as an indented JSON file
func Export(g graph.Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the file form of g to w
func Encode(w io.Writer, g graph.Graph) error {
	vp := g.Viewport
	doc := document{Nodes: g.Nodes, Edges: g.Edges, Viewport: &vp}
	if doc.Nodes == nil {
		doc.Nodes = []graph.Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []graph.Edge{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return failure("export", err)
	}
	return nil
}

// Import parses a file. A missing viewport defaults to {0,0,1} and missing
// node or edge lists to empty ones.
func Import(data []byte) (graph.Graph, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a file from r
func Decode(r io.Reader) (graph.Graph, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return graph.Graph{}, failure("read", err)
	}
	if len(raw) > MaxFileSize {
		return graph.Graph{}, failure("read", errors.Errorf("document exceeds %d bytes", MaxFileSize))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return graph.Graph{}, failure("import", errors.New("empty document"))
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return graph.Graph{}, failure("import", err)
	}
	g := graph.Graph{
		Nodes:    doc.Nodes,
		Edges:    doc.Edges,
		Viewport: types.DefaultViewport(),
	}
	if g.Nodes == nil {
		g.Nodes = []graph.Node{}
	}
	if g.Edges == nil {
		g.Edges = []graph.Edge{}
	}
	if doc.Viewport != nil {
		g.Viewport = *doc.Viewport
	}
	return g, nil
}
