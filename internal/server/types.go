package server

import (
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status  string `json:"status"`
	GraphID string `json:"graphId"`
	Nodes   int    `json:"nodes"`
}

// AddNodeRequest drops a node from the palette
type AddNodeRequest struct {
	Kind     types.NodeKind    `json:"kind" binding:"required"`
	Position types.Position    `json:"position"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// SetFieldsRequest edits one or more local controls. Fields are applied in
// key order.
type SetFieldsRequest struct {
	Fields map[string]string `json:"fields" binding:"required,min=1"`
}

// MoveRequest repositions a node and optionally resizes it
type MoveRequest struct {
	Position types.Position `json:"position"`
	Size     *types.Size    `json:"size,omitempty"`
}

// ConnectRequest proposes an edge
type ConnectRequest struct {
	Source       string `json:"source" binding:"required"`
	SourceHandle string `json:"sourceHandle" binding:"required"`
	Target       string `json:"target" binding:"required"`
	TargetHandle string `json:"targetHandle" binding:"required"`
}

// ShareResponse carries a share link
type ShareResponse struct {
	URL string `json:"url"`
}

// ShareLoadRequest restores the graph packed in a share link
type ShareLoadRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// SaveRequest labels a saved state
type SaveRequest struct {
	Label string `json:"label" binding:"max=200"`
}

// GraphResponse is returned after every structural change so the canvas can
// redraw without a second round trip
type GraphResponse struct {
	Graph graph.Graph `json:"graph"`
}
