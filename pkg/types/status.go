package types

// NodeStatus represents where a node is in its evaluation lifecycle
type NodeStatus string

const (
	StatusUninitialized NodeStatus = "uninitialized" // Never evaluated
	StatusPending       NodeStatus = "pending"       // Inputs incomplete or malformed
	StatusReady         NodeStatus = "ready"         // Valid output published
	StatusError         NodeStatus = "error"         // External call failed, a sub-state of pending
)

// Good reports whether the node's output reflects complete, valid inputs
func (s NodeStatus) Good() bool {
	return s == StatusReady
}

// Verdict is the ternary result of verification nodes. Invalid is a valid
// computed result, distinct from pending inputs.
type Verdict string

const (
	VerdictNone    Verdict = ""
	VerdictPending Verdict = "pending"
	VerdictValid   Verdict = "valid"
	VerdictInvalid Verdict = "invalid"
)
