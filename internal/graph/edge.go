package graph

import "fmt"

// Edge represents a directed connection from an output handle to an input handle
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

// EdgeCandidate is a proposed connection. ID may be empty.
type EdgeCandidate = Edge

type edgeKey struct {
	source, sourceHandle, target, targetHandle string
}

func (e Edge) key() edgeKey {
	return edgeKey{e.Source, e.SourceHandle, e.Target, e.TargetHandle}
}

func defaultEdgeID(e Edge) string {
	return fmt.Sprintf("edge-%s.%s-%s.%s", e.Source, e.SourceHandle, e.Target, e.TargetHandle)
}

// Touches reports whether the edge has the node as source or target
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}
