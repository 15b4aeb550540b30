package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/mq"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Simulation fields
const (
	FieldName         = "name"
	FieldBalance      = "balance"
	FieldDelay        = "delay"
	FieldLastTransfer = "lastTransfer"
	FieldEntries      = "entries"
	FieldLog          = "log"
	FieldLimit        = "limit"
)

const defaultLogLimit = 100

// LedgerEntry is one delivered transfer
type LedgerEntry struct {
	ID     string    `json:"id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Amount string    `json:"amount"`
	At     time.Time `json:"at"`
}

func simulationEntries() []catalog.Entry {
	return []catalog.Entry{
		{
			Kind:     KindActor,
			Label:    "Actor",
			Category: catalog.CategorySimulation,
			Handles: []types.HandleSpec{
				in(HandleAmount, "amount"), in(HandleTo, "recipient"), out(HandleOut, "balance"),
			},
			Defaults:  map[string]string{FieldName: "alice", FieldBalance: "100", FieldDelay: "1000"},
			Evaluator: catalog.EvaluatorFunc(evalActor),
			OnMessage: actorMessage,
		},
		{
			Kind:      KindLedger,
			Label:     "Ledger",
			Category:  catalog.CategorySimulation,
			Handles:   []types.HandleSpec{out(HandleOut, "entries")},
			Defaults:  map[string]string{FieldEntries: "[]"},
			Evaluator: catalog.EvaluatorFunc(evalLedger),
			OnMessage: ledgerMessage,
		},
		{
			Kind:      KindNetwork,
			Label:     "Network",
			Category:  catalog.CategorySimulation,
			Handles:   []types.HandleSpec{out(HandleOut, "log")},
			Defaults:  map[string]string{FieldLog: "[]", FieldLimit: strconv.Itoa(defaultLogLimit)},
			Evaluator: catalog.EvaluatorFunc(evalNetwork),
			OnMessage: networkMessage,
		},
	}
}

func balanceOf(fields map[string]string) *big.Rat {
	b, ok := new(big.Rat).SetString(strings.TrimSpace(fields[FieldBalance]))
	if !ok {
		return new(big.Rat)
	}
	return b
}

func balanceResult(balance *big.Rat, fields map[string]string) catalog.Result {
	enc, err := codec.EncodeDecimal(formatRat(balance, fracDigits(balance)))
	if err != nil {
		return catalog.PendingMsg("invalid balance")
	}
	res := catalog.Ready(enc)
	res.Fields = fields
	return res
}

// evalActor publishes its balance and sends a delayed transfer whenever its
// (amount, recipient) inputs change. A manual refresh resends.
func evalActor(_ context.Context, req catalog.Request) catalog.Result {
	balance := balanceOf(req.Fields)
	amountV, okAmount := req.Input(HandleAmount)
	toV, okTo := req.Text(HandleTo)
	if !okAmount || !okTo || req.Trigger == catalog.TriggerLoad {
		return balanceResult(balance, nil)
	}

	amount, ok := ratOf(amountV)
	if !ok || amount.Sign() <= 0 {
		res := balanceResult(balance, nil)
		res.Message = "amount must be a positive number"
		return res
	}
	transfer := formatRat(amount, fracDigits(amount)) + "->" + toV
	if transfer == req.Field(FieldLastTransfer) && req.Trigger != catalog.TriggerRefresh {
		return balanceResult(balance, nil)
	}
	if amount.Cmp(balance) > 0 {
		res := balanceResult(balance, nil)
		res.Message = "insufficient balance"
		return res
	}
	if req.Env == nil || req.Env.Queue == nil {
		res := balanceResult(balance, nil)
		res.Message = "no queue attached"
		return res
	}

	delay, err := strconv.ParseInt(req.Field(FieldDelay), 10, 64)
	if err != nil || delay < 0 {
		delay = 0
	}
	id, err := req.Env.Queue.Enqueue(mq.Message{
		From:    req.Field(FieldName),
		To:      []string{toV},
		Payload: formatRat(amount, fracDigits(amount)),
		Kind:    mq.KindTransfer,
		Delay:   time.Duration(delay) * time.Millisecond,
	})
	if err != nil {
		res := balanceResult(balance, nil)
		res.Message = err.Error()
		return res
	}
	req.Logger().Debug("transfer sent", "node", req.NodeID, "message", id, "to", toV)

	balance.Sub(balance, amount)
	return balanceResult(balance, map[string]string{
		FieldBalance:      formatRat(balance, fracDigits(balance)),
		FieldLastTransfer: transfer,
	})
}

// actorMessage credits transfers addressed to the actor's name
func actorMessage(req catalog.Request, msg mq.Message) (catalog.Result, bool) {
	if msg.Kind != mq.KindTransfer || !msg.Addressed(req.Field(FieldName)) {
		return catalog.Result{}, false
	}
	amount, ok := new(big.Rat).SetString(msg.Payload)
	if !ok {
		return catalog.Result{}, false
	}
	balance := balanceOf(req.Fields)
	balance.Add(balance, amount)
	res := balanceResult(balance, map[string]string{FieldBalance: formatRat(balance, fracDigits(balance))})
	res.Message = fmt.Sprintf("received %s from %s", msg.Payload, msg.From)
	return res, true
}

func ledgerEntries(fields map[string]string) []LedgerEntry {
	var entries []LedgerEntry
	if err := json.Unmarshal([]byte(fields[FieldEntries]), &entries); err != nil {
		return nil
	}
	return entries
}

func evalLedger(_ context.Context, req catalog.Request) catalog.Result {
	raw, _ := json.Marshal(ledgerEntries(req.Fields))
	if string(raw) == "null" {
		raw = []byte("[]")
	}
	return catalog.Ready(codec.EncodeString(string(raw)))
}

// ledgerMessage records every delivered transfer
func ledgerMessage(req catalog.Request, msg mq.Message) (catalog.Result, bool) {
	if msg.Kind != mq.KindTransfer {
		return catalog.Result{}, false
	}
	entries := ledgerEntries(req.Fields)
	for _, to := range msg.To {
		entries = append(entries, LedgerEntry{ID: msg.ID, From: msg.From, To: to, Amount: msg.Payload, At: req.Now().UTC()})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return catalog.Result{}, false
	}
	res := catalog.Ready(codec.EncodeString(string(raw)))
	res.Fields = map[string]string{FieldEntries: string(raw)}
	return res, true
}

func networkLog(fields map[string]string) []string {
	var lines []string
	if err := json.Unmarshal([]byte(fields[FieldLog]), &lines); err != nil {
		return nil
	}
	return lines
}

func evalNetwork(_ context.Context, req catalog.Request) catalog.Result {
	return catalog.Ready(codec.EncodeString(strings.Join(networkLog(req.Fields), "\n")))
}

// networkMessage logs every delivery, keeping the latest limit lines
func networkMessage(req catalog.Request, msg mq.Message) (catalog.Result, bool) {
	limit, err := strconv.Atoi(req.Field(FieldLimit))
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}
	lines := append(networkLog(req.Fields), fmt.Sprintf("%s %s -> %s [%s] %s",
		req.Now().UTC().Format(time.RFC3339), msg.From, strings.Join(msg.To, ","), msg.Kind, msg.Payload))
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return catalog.Result{}, false
	}
	res := catalog.Ready(codec.EncodeString(strings.Join(lines, "\n")))
	res.Fields = map[string]string{FieldLog: string(raw)}
	return res, true
}
