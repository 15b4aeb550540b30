package graph

import (
	"encoding/json"
	"maps"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Keys of node data managed by the store rather than by field edits
const (
	keyLabel   = "label"
	keyOut     = "out"
	keyStatus  = "status"
	keyVerdict = "verdict"
	keyMessage = "message"
)

// Node is a unit of computation on the canvas
type Node struct {
	ID       string         `json:"id"`
	Kind     types.NodeKind `json:"type"`
	Position types.Position `json:"position"`
	Size     *types.Size    `json:"size,omitempty"`
	Data     NodeData       `json:"data"`
}

// Clone returns a deep copy
func (n Node) Clone() Node {
	c := n
	if n.Size != nil {
		size := *n.Size
		c.Size = &size
	}
	c.Data = n.Data.Clone()
	return c
}

// NodeData is the kind-specific payload of a node. Editable fields are
// flattened next to the managed keys when serialized.
type NodeData struct {
	Label   string
	Out     *codec.Output
	Status  types.NodeStatus
	Verdict types.Verdict
	Message string
	Fields  map[string]string
}

// Clone returns a deep copy
func (d NodeData) Clone() NodeData {
	c := d
	if d.Out != nil {
		out := *d.Out
		c.Out = &out
	}
	c.Fields = maps.Clone(d.Fields)
	if c.Fields == nil {
		c.Fields = map[string]string{}
	}
	return c
}

// Field returns an editable field value
func (d NodeData) Field(key string) string {
	return d.Fields[key]
}

// OutputShape returns the shape of the published output, scalar when absent
func (d NodeData) OutputShape() codec.Shape {
	if d.Out == nil {
		return codec.ShapeScalar
	}
	return d.Out.Shape()
}

func isReserved(key string) bool {
	switch key {
	case keyOut, keyStatus, keyVerdict, keyMessage:
		return true
	}
	return false
}

// MarshalJSON flattens fields and managed keys into one object
func (d NodeData) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Fields)+5)
	for k, v := range d.Fields {
		m[k] = v
	}
	if d.Label != "" {
		m[keyLabel] = d.Label
	}
	if d.Out != nil {
		m[keyOut] = d.Out
	}
	if d.Status != "" {
		m[keyStatus] = d.Status
	}
	if d.Verdict != "" {
		m[keyVerdict] = d.Verdict
	}
	if d.Message != "" {
		m[keyMessage] = d.Message
	}
	return json.Marshal(m)
}

// UnmarshalJSON splits managed keys from editable fields. Non-string field
// values are kept as their JSON text.
func (d *NodeData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decode node data")
	}

	out := NodeData{Fields: make(map[string]string, len(raw))}
	for k, v := range raw {
		switch k {
		case keyOut:
			if string(v) == "null" {
				continue
			}
			var o codec.Output
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			out.Out = &o
		case keyLabel, keyStatus, keyVerdict, keyMessage:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return errors.Wrapf(err, "decode node data %q", k)
			}
			switch k {
			case keyLabel:
				out.Label = s
			case keyStatus:
				out.Status = types.NodeStatus(s)
			case keyVerdict:
				out.Verdict = types.Verdict(s)
			default:
				out.Message = s
			}
		default:
			if string(v) == "null" {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				s = string(v)
			}
			out.Fields[k] = s
		}
	}

	*d = out
	return nil
}

// numericSuffix extracts the trailing decimal run of an id, used to re-seed
// the id counter after a restore
func numericSuffix(id string) (int, bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return 0, false
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return 0, false
	}
	return n, true
}
