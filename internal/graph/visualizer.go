package graph

import (
	"fmt"
	"strings"
)

// Info represents the graph structure for visualization
type Info struct {
	Nodes []NodeInfo
	Edges []EdgeInfo
}

// NodeInfo is a node as rendered in a diagram
type NodeInfo struct {
	ID     string
	Kind   string
	Label  string
	Status string
}

// EdgeInfo is an edge between two handles
type EdgeInfo struct {
	From       string
	FromHandle string
	To         string
	ToHandle   string
}

// GetGraphInfo returns a rendering-oriented view of the store
func (s *Store) GetGraphInfo() *Info {
	g := s.Serialize()
	info := &Info{
		Nodes: make([]NodeInfo, 0, len(g.Nodes)),
		Edges: make([]EdgeInfo, 0, len(g.Edges)),
	}

	for _, n := range g.Nodes {
		label := n.Data.Label
		if label == "" {
			label = string(n.Kind)
		}
		info.Nodes = append(info.Nodes, NodeInfo{
			ID:     n.ID,
			Kind:   string(n.Kind),
			Label:  label,
			Status: string(n.Data.Status),
		})
	}

	for _, e := range g.Edges {
		info.Edges = append(info.Edges, EdgeInfo{
			From:       e.Source,
			FromHandle: e.SourceHandle,
			To:         e.Target,
			ToHandle:   e.TargetHandle,
		})
	}

	return info
}

// Mermaid renders the graph as a mermaid flowchart
func (s *Store) Mermaid() string {
	info := s.GetGraphInfo()

	var b strings.Builder
	b.WriteString("flowchart LR\n")
	for _, n := range info.Nodes {
		fmt.Fprintf(&b, "  n%s[\"%s (%s)\"]\n", n.ID, escapeMermaid(n.Label), n.Status)
	}
	for _, e := range info.Edges {
		fmt.Fprintf(&b, "  n%s -- \"%s→%s\" --> n%s\n", e.From, e.FromHandle, e.ToHandle, e.To)
	}
	return b.String()
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
