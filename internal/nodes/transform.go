package nodes

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // offered as a legacy digest
	"golang.org/x/crypto/sha3"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Field keys of transform kinds
const (
	FieldAlgorithm = "algorithm"
	FieldSeparator = "separator"
	FieldStart     = "start"
	FieldEnd       = "end"
	FieldDecimals  = "decimals"
	FieldDirection = "direction"
)

// Hash algorithms
const (
	AlgoKeccak256  = "keccak256"
	AlgoSHA256     = "sha256"
	AlgoSHA3       = "sha3-256"
	AlgoBlake2b256 = "blake2b-256"
	AlgoRIPEMD160  = "ripemd160"
)

// Normalization directions
const (
	DirectionToUnit   = "toUnit"   // human units to base units: 1.5 -> 1500000000000000000
	DirectionFromUnit = "fromUnit" // base units to human units
)

var digests = map[string]func([]byte) []byte{
	AlgoKeccak256: func(b []byte) []byte {
		return crypto.Keccak256(b)
	},
	AlgoSHA256: func(b []byte) []byte {
		sum := sha256.Sum256(b)
		return sum[:]
	},
	AlgoSHA3: func(b []byte) []byte {
		sum := sha3.Sum256(b)
		return sum[:]
	},
	AlgoBlake2b256: func(b []byte) []byte {
		sum := blake2b.Sum256(b)
		return sum[:]
	},
	AlgoRIPEMD160: func(b []byte) []byte {
		h := ripemd160.New()
		h.Write(b)
		return h.Sum(nil)
	},
}

// Digest hashes data with a named algorithm
func Digest(algorithm string, data []byte) ([]byte, bool) {
	fn, ok := digests[algorithm]
	if !ok {
		return nil, false
	}
	return fn(data), true
}

func transformEntries() []catalog.Entry {
	return []catalog.Entry{
		{
			Kind:      KindHash,
			Label:     "Hash",
			Category:  catalog.CategoryTransform,
			Handles:   []types.HandleSpec{many(HandleIn, "data"), out(HandleOut, "digest")},
			Defaults:  map[string]string{FieldAlgorithm: AlgoKeccak256},
			Evaluator: catalog.EvaluatorFunc(evalHash),
		},
		{
			Kind:      KindCompound,
			Label:     "Compound",
			Category:  catalog.CategoryTransform,
			Handles:   []types.HandleSpec{many(HandleIn, "parts"), out(HandleOut, "text")},
			Defaults:  map[string]string{FieldSeparator: ""},
			Evaluator: catalog.EvaluatorFunc(evalCompound),
		},
		{
			Kind:      KindColorMix,
			Label:     "Color Mix",
			Category:  catalog.CategoryTransform,
			Handles:   []types.HandleSpec{many(HandleIn, "colors"), out(HandleOut, "color")},
			Evaluator: catalog.EvaluatorFunc(evalColorMix),
		},
		{
			Kind:      KindStringLength,
			Label:     "String Length",
			Category:  catalog.CategoryTransform,
			Handles:   []types.HandleSpec{in(HandleIn, "text"), out(HandleOut, "length")},
			Evaluator: catalog.EvaluatorFunc(evalStringLength),
		},
		{
			Kind:     KindSubstring,
			Label:    "Substring",
			Category: catalog.CategoryTransform,
			Handles: []types.HandleSpec{
				in(HandleIn, "text"), in(FieldStart, "start"), in(FieldEnd, "end"), out(HandleOut, "text"),
			},
			Defaults:  map[string]string{FieldStart: "0", FieldEnd: ""},
			Evaluator: catalog.EvaluatorFunc(evalSubstring),
		},
		{
			Kind:      KindBigIntNormalize,
			Label:     "Big Int Normalize",
			Category:  catalog.CategoryTransform,
			Handles:   []types.HandleSpec{in(HandleIn, "amount"), out(HandleOut, "amount")},
			Defaults:  map[string]string{FieldDecimals: "18", FieldDirection: DirectionFromUnit},
			Evaluator: catalog.EvaluatorFunc(evalNormalize),
		},
		{
			Kind:     KindArithmetic,
			Label:    "Arithmetic",
			Category: catalog.CategoryTransform,
			Handles: []types.HandleSpec{
				in(HandleLeft, "left"), in(HandleRight, "right"), out(HandleOut, "result"),
			},
			Defaults:  map[string]string{FieldOperator: OpAdd},
			Evaluator: catalog.EvaluatorFunc(evalArithmetic),
		},
		{
			Kind:     KindCompare,
			Label:    "Compare",
			Category: catalog.CategoryTransform,
			Handles: []types.HandleSpec{
				in(HandleLeft, "left"), in(HandleRight, "right"), out(HandleOut, "result"),
			},
			Defaults:  map[string]string{FieldOperator: OpEq},
			Evaluator: catalog.EvaluatorFunc(evalCompare),
		},
	}
}

// evalHash digests the concatenation of every input in edge-creation order
// and publishes the 0x-hex digest
func evalHash(_ context.Context, req catalog.Request) catalog.Result {
	values, ok := req.All(HandleIn)
	if !ok || len(values) == 0 {
		return catalog.Pending()
	}
	var buf bytes.Buffer
	for _, v := range values {
		buf.Write(v.Raw())
	}
	if buf.Len() == 0 {
		return catalog.Pending()
	}
	sum, ok := Digest(req.Field(FieldAlgorithm), buf.Bytes())
	if !ok {
		return catalog.PendingMsg(fmt.Sprintf("unknown algorithm %q", req.Field(FieldAlgorithm)))
	}
	return catalog.Ready(codec.EncodeString(hexString(sum)))
}

func evalCompound(_ context.Context, req catalog.Request) catalog.Result {
	values, ok := req.All(HandleIn)
	if !ok || len(values) == 0 {
		return catalog.Pending()
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, v.Text())
	}
	return catalog.Ready(codec.EncodeString(strings.Join(parts, req.Field(FieldSeparator))))
}

func parseColor(s string) (uint32, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0, false
	}
	c, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(c), true
}

// evalColorMix XORs #rrggbb colors in edge-creation order
func evalColorMix(_ context.Context, req catalog.Request) catalog.Result {
	values, ok := req.All(HandleIn)
	if !ok || len(values) == 0 {
		return catalog.Pending()
	}
	var mix uint32
	for _, v := range values {
		c, ok := parseColor(v.Text())
		if !ok {
			return catalog.PendingMsg("expected #rrggbb")
		}
		mix ^= c
	}
	return catalog.Ready(codec.EncodeString(fmt.Sprintf("#%06x", mix)))
}

func evalStringLength(_ context.Context, req catalog.Request) catalog.Result {
	v, ok := req.Input(HandleIn)
	if !ok {
		return catalog.Pending()
	}
	n := utf8.RuneCountInString(v.Text())
	if v.Kind == codec.KindBytes {
		n = len(v.Raw())
	}
	return catalog.Ready(codec.EncodeNumber(float64(n)))
}

// bound reads an index from its handle when connected, else from its field
func bound(req catalog.Request, key string) (int, bool, bool) {
	text := req.Field(key)
	if req.Connected(key) {
		v, ok := req.Input(key)
		if !ok {
			return 0, false, false
		}
		text = v.Text()
	}
	if strings.TrimSpace(text) == "" {
		return 0, false, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0, false, false
	}
	return n, true, true
}

// evalSubstring slices by rune index; end is exclusive and clamped
func evalSubstring(_ context.Context, req catalog.Request) catalog.Result {
	v, ok := req.Input(HandleIn)
	if !ok {
		return catalog.Pending()
	}
	runes := []rune(v.Text())

	start, set, valid := bound(req, FieldStart)
	if !valid {
		return catalog.PendingMsg("invalid start")
	}
	if !set {
		start = 0
	}
	end, set, valid := bound(req, FieldEnd)
	if !valid {
		return catalog.PendingMsg("invalid end")
	}
	if !set || end > len(runes) {
		end = len(runes)
	}
	if start > end {
		return catalog.PendingMsg("start is past end")
	}
	return catalog.Ready(codec.EncodeString(string(runes[start:end])))
}

// evalNormalize shifts a decimal amount by the configured number of decimals
func evalNormalize(_ context.Context, req catalog.Request) catalog.Result {
	v, ok := req.Input(HandleIn)
	if !ok {
		return catalog.Pending()
	}
	amount, ok := ratOf(v)
	if !ok {
		return catalog.PendingMsg("not a number")
	}
	decimals, err := strconv.Atoi(req.Field(FieldDecimals))
	if err != nil || decimals < 0 || decimals > 77 {
		return catalog.PendingMsg("invalid decimals")
	}
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))

	switch req.Field(FieldDirection) {
	case DirectionToUnit:
		r := new(big.Rat).Mul(amount, scale)
		if !r.IsInt() {
			return catalog.PendingMsg("too many decimal places")
		}
		return catalog.Ready(codec.EncodeBigInt(r.Num()))
	case DirectionFromUnit, "":
		r := new(big.Rat).Quo(amount, scale)
		enc, err := codec.EncodeDecimal(formatRat(r, fracDigits(r)))
		if err != nil {
			return catalog.PendingMsg("not a number")
		}
		return catalog.Ready(enc)
	default:
		return catalog.PendingMsg(fmt.Sprintf("unknown direction %q", req.Field(FieldDirection)))
	}
}

// fracDigits is the number of fractional digits needed to render r exactly,
// capped for non-terminating expansions
func fracDigits(r *big.Rat) int {
	d := new(big.Int).Set(r.Denom())
	digits := 0
	for _, f := range []int64{2, 5} {
		n := 0
		div := big.NewInt(f)
		for {
			q, m := new(big.Int).QuoRem(d, div, new(big.Int))
			if m.Sign() != 0 {
				break
			}
			d = q
			n++
		}
		digits = max(digits, n)
	}
	if d.Cmp(big.NewInt(1)) != 0 {
		return 64
	}
	return digits
}
