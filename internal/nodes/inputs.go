package nodes

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Field keys of input kinds
const (
	FieldText     = "text"
	FieldValue    = "value"
	FieldInterval = "interval"
	FieldCount    = "count"
)

// DefaultInterval is used when an interval node carries no usable period
const DefaultInterval = time.Second

func inputEntries() []catalog.Entry {
	return []catalog.Entry{
		{
			Kind:      KindTextInput,
			Label:     "Text",
			Category:  catalog.CategoryInput,
			Handles:   []types.HandleSpec{out(HandleOut, "text")},
			Defaults:  map[string]string{FieldText: ""},
			Evaluator: catalog.EvaluatorFunc(evalTextInput),
		},
		{
			Kind:      KindNumberInput,
			Label:     "Number",
			Category:  catalog.CategoryInput,
			Handles:   []types.HandleSpec{out(HandleOut, "number")},
			Defaults:  map[string]string{FieldValue: "0"},
			Evaluator: catalog.EvaluatorFunc(evalNumberInput),
		},
		{
			Kind:       KindInterval,
			Label:      "Interval",
			Category:   catalog.CategoryInput,
			Handles:    []types.HandleSpec{out(HandleOut, "count")},
			Defaults:   map[string]string{FieldInterval: "1000", FieldCount: "0"},
			TimeDriven: true,
			Period:     IntervalPeriod,
			Evaluator:  catalog.EvaluatorFunc(evalInterval),
		},
		{
			Kind:      KindDisplay,
			Label:     "Display",
			Category:  catalog.CategoryOutput,
			Handles:   []types.HandleSpec{in(HandleIn, "value"), out(HandleOut, "value")},
			Evaluator: catalog.EvaluatorFunc(evalDisplay),
		},
	}
}

func evalTextInput(_ context.Context, req catalog.Request) catalog.Result {
	text := req.Field(FieldText)
	if text == "" {
		return catalog.Pending()
	}
	return catalog.Ready(codec.EncodeString(text))
}

func evalNumberInput(_ context.Context, req catalog.Request) catalog.Result {
	enc, err := codec.EncodeDecimal(req.Field(FieldValue))
	if err != nil {
		return catalog.PendingMsg("not a number")
	}
	return catalog.Ready(enc)
}

// evalInterval republishes the tick count; each tick advances it by one
func evalInterval(_ context.Context, req catalog.Request) catalog.Result {
	count, err := strconv.ParseInt(req.Field(FieldCount), 10, 64)
	if err != nil || count < 0 {
		count = 0
	}
	res := catalog.Result{Ready: true}
	if req.Trigger == catalog.TriggerTick {
		count++
		res.Fields = map[string]string{FieldCount: strconv.FormatInt(count, 10)}
	}
	res.Out = codec.Scalar(codec.BigInt(big.NewInt(count)).Encode())
	return res
}

// IntervalPeriod returns the tick period configured on an interval node
func IntervalPeriod(fields map[string]string) time.Duration {
	ms, err := strconv.ParseInt(fields[FieldInterval], 10, 64)
	if err != nil || ms <= 0 {
		return DefaultInterval
	}
	return time.Duration(ms) * time.Millisecond
}

// evalDisplay passes its input through so it can be chained
func evalDisplay(_ context.Context, req catalog.Request) catalog.Result {
	v, ok := req.Input(HandleIn)
	if !ok {
		return catalog.Pending()
	}
	return catalog.ReadyValue(v)
}
