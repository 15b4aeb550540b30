package nodes

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/codec"
)

// Operand handles and operator field
const (
	HandleLeft    = "left"
	HandleRight   = "right"
	FieldOperator = "operator"
)

// Arithmetic operators
const (
	OpAdd = "+"
	OpSub = "-"
	OpMul = "*"
	OpDiv = "/"
	OpMod = "%"
	OpPow = "^"
)

// Comparison operators
const (
	OpEq  = "=="
	OpNeq = "!="
	OpLt  = "<"
	OpGt  = ">"
	OpLte = "<="
	OpGte = ">="
)

// maxExponent bounds exact integer powers
const maxExponent = 1024

func operands(req catalog.Request) (codec.Value, codec.Value, bool) {
	l, ok := req.Input(HandleLeft)
	if !ok {
		return codec.Value{}, codec.Value{}, false
	}
	r, ok := req.Input(HandleRight)
	if !ok {
		return codec.Value{}, codec.Value{}, false
	}
	return l, r, true
}

// evalArithmetic computes exactly on integers and falls back to float64
// when either operand is fractional
func evalArithmetic(_ context.Context, req catalog.Request) catalog.Result {
	l, r, ok := operands(req)
	if !ok {
		return catalog.Pending()
	}
	op := req.Field(FieldOperator)

	li, lok := l.Int()
	ri, rok := r.Int()
	if lok && rok {
		if v, ok, handled := intArithmetic(op, li, ri); handled {
			if !ok {
				return catalog.PendingMsg("undefined result")
			}
			return catalog.ReadyValue(v)
		}
	}

	lf, lok := l.Float()
	rf, rok := r.Float()
	if !lok || !rok {
		return catalog.PendingMsg("operands must be numbers")
	}
	var f float64
	switch op {
	case OpAdd:
		f = lf + rf
	case OpSub:
		f = lf - rf
	case OpMul:
		f = lf * rf
	case OpDiv:
		f = lf / rf
	case OpMod:
		f = math.Mod(lf, rf)
	case OpPow:
		f = math.Pow(lf, rf)
	default:
		return catalog.PendingMsg(fmt.Sprintf("unknown operator %q", op))
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return catalog.PendingMsg("undefined result")
	}
	return catalog.Ready(codec.EncodeNumber(f))
}

// intArithmetic returns handled=false when the result is not integral and
// the float path should take over
func intArithmetic(op string, l, r *big.Int) (v codec.Value, ok, handled bool) {
	z := new(big.Int)
	switch op {
	case OpAdd:
		z.Add(l, r)
	case OpSub:
		z.Sub(l, r)
	case OpMul:
		z.Mul(l, r)
	case OpDiv:
		if r.Sign() == 0 {
			return codec.Value{}, false, true
		}
		m := new(big.Int)
		z.QuoRem(l, r, m)
		if m.Sign() != 0 {
			return codec.Value{}, false, false
		}
	case OpMod:
		if r.Sign() == 0 {
			return codec.Value{}, false, true
		}
		// truncated remainder keeps the sign of the dividend
		z.Rem(l, r)
	case OpPow:
		if r.Sign() < 0 || !r.IsInt64() || r.Int64() > maxExponent {
			return codec.Value{}, false, false
		}
		z.Exp(l, r, nil)
	default:
		return codec.Value{}, false, false
	}
	return codec.BigInt(z), true, true
}

// evalCompare compares numerically when both sides are numbers, otherwise
// by text
func evalCompare(_ context.Context, req catalog.Request) catalog.Result {
	l, r, ok := operands(req)
	if !ok {
		return catalog.Pending()
	}

	var cmp int
	lr, lok := ratOf(l)
	rr, rok := ratOf(r)
	switch {
	case lok && rok:
		cmp = lr.Cmp(rr)
	default:
		lt, rt := l.Text(), r.Text()
		switch {
		case lt < rt:
			cmp = -1
		case lt > rt:
			cmp = 1
		}
	}

	var result bool
	switch req.Field(FieldOperator) {
	case OpEq:
		result = cmp == 0
	case OpNeq:
		result = cmp != 0
	case OpLt:
		result = cmp < 0
	case OpGt:
		result = cmp > 0
	case OpLte:
		result = cmp <= 0
	case OpGte:
		result = cmp >= 0
	default:
		return catalog.PendingMsg(fmt.Sprintf("unknown operator %q", req.Field(FieldOperator)))
	}
	return catalog.Ready(codec.EncodeString(fmt.Sprintf("%t", result)))
}
