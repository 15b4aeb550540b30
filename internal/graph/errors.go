package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionRejected is returned when a connect violates a structural invariant
	ErrConnectionRejected = errors.New("connection rejected")

	// ErrNodeNotFound is returned when referencing a non-existent node
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when referencing a non-existent edge
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrHandleNotFound is returned when a node kind has no handle with the id
	ErrHandleNotFound = errors.New("handle not found")

	// ErrUnknownKind is returned when a node kind is not in the catalog
	ErrUnknownKind = errors.New("unknown node kind")

	// ErrDuplicateNode is returned when a restored graph repeats a node id
	ErrDuplicateNode = errors.New("node with this ID already exists")

	// ErrReservedField is returned when a field edit targets a key the store manages
	ErrReservedField = errors.New("reserved node data field")

	// ErrInvalidGraph is returned when a graph fails validation on restore
	ErrInvalidGraph = errors.New("invalid graph")
)

// RejectReason classifies a refused connection
type RejectReason string

const (
	ReasonFanInExceeded    RejectReason = "fan_in_exceeded"
	ReasonDuplicateEdge    RejectReason = "duplicate_edge"
	ReasonDanglingEndpoint RejectReason = "dangling_endpoint"
	ReasonPolarity         RejectReason = "polarity"
	ReasonSelfLoop         RejectReason = "self_loop"
)

// ConnectionRejected describes why an edge candidate was refused.
// It wraps ErrConnectionRejected for errors.Is() compatibility.
type ConnectionRejected struct {
	Reason RejectReason
	Edge   Edge
	Detail string
}

func (e *ConnectionRejected) Error() string {
	msg := fmt.Sprintf("%s: %s (%s.%s -> %s.%s)", ErrConnectionRejected, e.Reason,
		e.Edge.Source, e.Edge.SourceHandle, e.Edge.Target, e.Edge.TargetHandle)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConnectionRejected) Unwrap() error {
	return ErrConnectionRejected
}

func reject(reason RejectReason, edge Edge, format string, args ...any) error {
	return &ConnectionRejected{
		Reason: reason,
		Edge:   edge,
		Detail: fmt.Sprintf(format, args...),
	}
}

// ValidationError represents an error that occurs while validating a graph
type ValidationError struct {
	// Op is the operation that failed
	Op string
	// Node is the ID of the node involved (if any)
	Node string
	// Err is the underlying error
	Err error
}

func (e *ValidationError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("validation failed: %s: node '%s': %v", e.Op, e.Node, e.Err)
	}
	return fmt.Sprintf("validation failed: %s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError
func NewValidationError(op string, node string, err error) error {
	return &ValidationError{
		Op:   op,
		Node: node,
		Err:  err,
	}
}
