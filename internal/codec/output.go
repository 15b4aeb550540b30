package codec

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Output handle ids exposed by key-material producers
const (
	HandlePublicKey  = "publicKey"
	HandlePrivateKey = "privateKey"
	HandleAddress    = "address"
)

// Shape distinguishes scalar outputs from composite key material
type Shape int

const (
	ShapeScalar Shape = iota
	ShapeKeyMaterial
)

func (s Shape) String() string {
	if s == ShapeKeyMaterial {
		return "key_material"
	}
	return "scalar"
}

// KeyMaterial is the composite output of a key-pair node. Each field is an
// independently encoded string.
type KeyMaterial struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	Address    string `json:"address"`
}

// Output is what a node publishes: either one encoded scalar or key material
// addressable by output handle id.
type Output struct {
	shape  Shape
	scalar string
	keys   KeyMaterial
}

// Scalar wraps an encoded value
func Scalar(encoded string) Output {
	return Output{shape: ShapeScalar, scalar: encoded}
}

// Keys wraps key material
func Keys(km KeyMaterial) Output {
	return Output{shape: ShapeKeyMaterial, keys: km}
}

// Shape returns the output shape
func (o Output) Shape() Shape {
	return o.shape
}

// Scalar returns the encoded scalar; empty for key material
func (o Output) Scalar() string {
	return o.scalar
}

// KeyMaterial returns the composite fields when the shape is key material
func (o Output) KeyMaterial() (KeyMaterial, bool) {
	return o.keys, o.shape == ShapeKeyMaterial
}

// Select returns the encoded string feeding the given source handle. Scalars
// ignore the handle; key material dispatches on it.
func (o Output) Select(handle string) (string, bool) {
	if o.shape == ShapeScalar {
		return o.scalar, true
	}
	switch handle {
	case HandlePublicKey:
		return o.keys.PublicKey, true
	case HandlePrivateKey:
		return o.keys.PrivateKey, true
	case HandleAddress:
		return o.keys.Address, true
	}
	return "", false
}

// Equal reports whether two outputs carry the same shape and payload
func (o Output) Equal(other Output) bool {
	return o.shape == other.shape && o.scalar == other.scalar && o.keys == other.keys
}

// MarshalJSON writes scalars as JSON strings and key material as an object
func (o Output) MarshalJSON() ([]byte, error) {
	if o.shape == ShapeKeyMaterial {
		return json.Marshal(o.keys)
	}
	return json.Marshal(o.scalar)
}

// UnmarshalJSON accepts either form
func (o *Output) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var km KeyMaterial
		if err := json.Unmarshal(data, &km); err != nil {
			return errors.Wrap(err, "decode key material output")
		}
		*o = Keys(km)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decode scalar output")
	}
	*o = Scalar(s)
	return nil
}
