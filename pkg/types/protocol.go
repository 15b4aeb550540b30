package types

// NodeKind names an entry of the fixed node catalog
type NodeKind string

// Position is a node's location on the canvas
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a node's optional explicit dimensions
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Viewport is the canvas pan and zoom
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport is used when an imported graph carries none
func DefaultViewport() Viewport {
	return Viewport{X: 0, Y: 0, Zoom: 1}
}

// HandleType is the polarity of a connection point
type HandleType string

const (
	HandleSource HandleType = "source" // output
	HandleTarget HandleType = "target" // input
)

// Unlimited marks a target handle that accepts any number of edges
const Unlimited = 0

// HandleSpec declares a named connection point of a node kind
type HandleSpec struct {
	ID             string     `json:"id"`
	Type           HandleType `json:"type"`
	MaxConnections int        `json:"maxConnections"`
	Label          string     `json:"label,omitempty"`
}

// Accepts reports whether a target handle holding n edges can take one more
func (h HandleSpec) Accepts(n int) bool {
	if h.Type != HandleTarget {
		return false
	}
	return h.MaxConnections == Unlimited || n < h.MaxConnections
}
