// Package codec implements the tagged-string encoding that node outputs use
// to carry typed payloads through a single untyped edge wire.
//
// An encoded value is a one-character tag followed by the payload:
//
//	S<text>      raw UTF-8 text, no escaping
//	N<decimal>   decimal number text
//	B<base64>    raw bytes, standard base64
//
// Key-pair shaped outputs are not strings; see Output.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
)

// Kind is the one-character type tag of an encoded value
type Kind byte

const (
	KindString Kind = 'S'
	KindNumber Kind = 'N'
	KindBytes  Kind = 'B'
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

const (
	// Empty is the encoding of the empty string, the "no value yet" output.
	Empty = "S"
	// ErrorSentinel is published by I/O nodes whose external call failed.
	ErrorSentinel = "SError"
)

var (
	// ErrInvalidNumberFormat is returned when an N payload is not a finite decimal
	ErrInvalidNumberFormat = errors.New("invalid number format")
	// ErrInvalidBase64 is returned when a B payload is not valid base64
	ErrInvalidBase64 = errors.New("invalid base64 payload")
	// ErrUnknownTag is returned when the leading tag is not S, N or B
	ErrUnknownTag = errors.New("unknown value tag")
	// ErrUnsupportedValue is returned by Encode for Go values it cannot carry
	ErrUnsupportedValue = errors.New("unsupported value type")
)

// Value is a decoded payload
type Value struct {
	Kind  Kind
	text  string
	bytes []byte
}

// String builds a string value
func String(s string) Value {
	return Value{Kind: KindString, text: s}
}

// Number builds a number value from a float. Non-finite floats are not
// representable and collapse to zero.
func Number(f float64) Value {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		f = 0
	}
	return Value{Kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// BigInt builds an exact integer number value
func BigInt(i *big.Int) Value {
	if i == nil {
		i = new(big.Int)
	}
	return Value{Kind: KindNumber, text: i.String()}
}

// Decimal builds a number value from decimal text, validating it
func Decimal(text string) (Value, error) {
	if !validDecimal(text) {
		return Value{}, errors.Wrapf(ErrInvalidNumberFormat, "%q", text)
	}
	return Value{Kind: KindNumber, text: text}, nil
}

// Bytes builds a byte-array value
func Bytes(b []byte) Value {
	if len(b) == 0 {
		b = nil
	}
	return Value{Kind: KindBytes, bytes: b}
}

// Text returns the human-readable form: the text of a string, the decimal
// of a number, or 0x-prefixed hex of bytes.
func (v Value) Text() string {
	if v.Kind == KindBytes {
		return "0x" + hex.EncodeToString(v.bytes)
	}
	return v.text
}

// Raw returns the payload as bytes. Strings and numbers yield their UTF-8 text.
func (v Value) Raw() []byte {
	if v.Kind == KindBytes {
		return v.bytes
	}
	return []byte(v.text)
}

// Float returns the numeric value. Strings holding a decimal also convert.
func (v Value) Float() (float64, bool) {
	if v.Kind == KindBytes || !validDecimal(v.text) {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil {
		// huge integers overflow float parsing but are still valid decimals
		i, ok := new(big.Int).SetString(v.text, 10)
		if !ok {
			return 0, false
		}
		f, _ = new(big.Float).SetInt(i).Float64()
	}
	return f, true
}

// Int returns the value as an exact integer when its text is integral
func (v Value) Int() (*big.Int, bool) {
	if v.Kind == KindBytes {
		return nil, false
	}
	return new(big.Int).SetString(v.text, 10)
}

// IsEmpty reports whether the value carries no payload
func (v Value) IsEmpty() bool {
	if v.Kind == KindBytes {
		return len(v.bytes) == 0
	}
	return v.text == ""
}

// Encode returns the tagged-string form
func (v Value) Encode() string {
	switch v.Kind {
	case KindNumber:
		return string(KindNumber) + v.text
	case KindBytes:
		return string(KindBytes) + base64.StdEncoding.EncodeToString(v.bytes)
	default:
		return string(KindString) + v.text
	}
}

// Encode encodes a Go value under the given kind.
// Strings, numbers, big integers and byte slices are accepted.
func Encode(kind Kind, value any) (string, error) {
	switch kind {
	case KindString:
		switch s := value.(type) {
		case string:
			return EncodeString(s), nil
		case fmt.Stringer:
			return EncodeString(s.String()), nil
		}
	case KindNumber:
		switch n := value.(type) {
		case float64:
			return EncodeNumber(n), nil
		case int:
			return EncodeNumber(float64(n)), nil
		case int64:
			return BigInt(big.NewInt(n)).Encode(), nil
		case *big.Int:
			return EncodeBigInt(n), nil
		case string:
			return EncodeDecimal(n)
		}
	case KindBytes:
		if b, ok := value.([]byte); ok {
			return EncodeBytes(b), nil
		}
	default:
		return "", errors.Wrapf(ErrUnknownTag, "kind %q", byte(kind))
	}
	return "", errors.Wrapf(ErrUnsupportedValue, "%T as %s", value, kind)
}

// EncodeString encodes text under the S tag
func EncodeString(s string) string {
	return String(s).Encode()
}

// EncodeNumber encodes a float under the N tag
func EncodeNumber(f float64) string {
	return Number(f).Encode()
}

// EncodeBigInt encodes an integer under the N tag
func EncodeBigInt(i *big.Int) string {
	return BigInt(i).Encode()
}

// EncodeDecimal validates decimal text and encodes it under the N tag
func EncodeDecimal(text string) (string, error) {
	v, err := Decimal(text)
	if err != nil {
		return "", err
	}
	return v.Encode(), nil
}

// EncodeBytes encodes raw bytes under the B tag
func EncodeBytes(b []byte) string {
	return Bytes(b).Encode()
}

// Decode parses a tagged string
func Decode(s string) (Value, error) {
	if s == "" {
		return Value{}, errors.Wrap(ErrUnknownTag, "empty encoding")
	}
	payload := s[1:]
	switch Kind(s[0]) {
	case KindString:
		return String(payload), nil
	case KindNumber:
		return Decimal(payload)
	case KindBytes:
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Value{}, errors.Wrap(ErrInvalidBase64, err.Error())
		}
		return Bytes(b), nil
	default:
		return Value{}, errors.Wrapf(ErrUnknownTag, "tag %q", s[0])
	}
}

// Unpack decodes permissively for consumers that do not know the producer's
// type. It returns a string, a float64 or a []byte; any unrecognised or
// malformed encoding yields the empty string.
func Unpack(s string) any {
	v, err := Decode(s)
	if err != nil {
		return ""
	}
	switch v.Kind {
	case KindNumber:
		f, ok := v.Float()
		if !ok {
			return ""
		}
		return f
	case KindBytes:
		return v.bytes
	default:
		return v.text
	}
}

// TryDecodeString returns the readable text of any encoded value, or "" when
// the encoding is not recognised.
func TryDecodeString(s string) string {
	v, err := Decode(s)
	if err != nil {
		return ""
	}
	return v.Text()
}

func validDecimal(text string) bool {
	if text == "" {
		return false
	}
	if _, ok := new(big.Int).SetString(text, 10); ok {
		return true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return false
	}
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
