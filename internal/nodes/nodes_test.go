package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/mq"
	"github.com/Inferara/web3-canvas-sub000/internal/resolve"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

const (
	keyOne     = "0x0000000000000000000000000000000000000000000000000000000000000001"
	addressOne = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
	pointG     = "0x0479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798" +
		"483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8"
)

//----------------//
// Test Helpers   //
//----------------//

type inputs map[string][]string

func input(enc string) resolve.Input {
	v, err := codec.Decode(enc)
	return resolve.Input{Value: v, Err: err, Ready: err == nil}
}

func request(kind types.NodeKind, fields map[string]string, in inputs) catalog.Request {
	entry, ok := Catalog().Lookup(kind)
	if !ok {
		panic("unknown kind " + kind)
	}
	merged := map[string]string{}
	for k, v := range entry.Defaults {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	req := catalog.Request{
		NodeID:  "n",
		Kind:    kind,
		Trigger: catalog.TriggerWave,
		Inputs:  map[string][]resolve.Input{},
		Fields:  merged,
		Env:     &catalog.Env{},
	}
	for h, encs := range in {
		for _, e := range encs {
			req.Inputs[h] = append(req.Inputs[h], input(e))
		}
	}
	return req
}

func run(t *testing.T, req catalog.Request) catalog.Result {
	t.Helper()
	entry, ok := Catalog().Lookup(req.Kind)
	require.True(t, ok)
	return entry.Evaluator.Evaluate(context.Background(), req)
}

func scalar(t *testing.T, res catalog.Result) string {
	t.Helper()
	require.Equal(t, codec.ShapeScalar, res.Out.Shape())
	return res.Out.Scalar()
}

func requirePending(t *testing.T, res catalog.Result) {
	t.Helper()
	assert.False(t, res.Ready)
	assert.Equal(t, codec.Empty, scalar(t, res), "pending clears the output")
}

type fakeChain struct {
	balance  *big.Int
	nonce    uint64
	gasPrice *big.Int
	chainID  *big.Int
	err      error
	sent     []*ethtypes.Transaction
}

func (f *fakeChain) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, f.err
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, f.err
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, f.err }

func (f *fakeChain) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return f.chainID, f.err }

type fakeQuoter float64

func (q fakeQuoter) EthUSD(context.Context) (float64, error) { return float64(q), nil }

type fakeSender struct{ sent []mq.Message }

func (s *fakeSender) Enqueue(m mq.Message) (string, error) {
	s.sent = append(s.sent, m)
	return "id", nil
}

//----------------//
// Catalog        //
//----------------//

func TestCatalogComplete(t *testing.T) {
	t.Parallel()
	r := Catalog()
	assert.Len(t, r.Kinds(), 26)
	for _, k := range r.Kinds() {
		e, _ := r.Lookup(k)
		seen := map[string]bool{}
		for _, h := range e.Handles {
			assert.False(t, seen[h.ID], "%s repeats handle %s", k, h.ID)
			seen[h.ID] = true
		}
	}
	interval, _ := r.Lookup(KindInterval)
	assert.True(t, interval.TimeDriven)
	balance, _ := r.Lookup(KindBalance)
	assert.True(t, balance.Async)
}

//----------------//
// Inputs         //
//----------------//

func TestInputs(t *testing.T) {
	t.Parallel()

	res := run(t, request(KindTextInput, map[string]string{FieldText: "abc"}, nil))
	assert.True(t, res.Ready)
	assert.Equal(t, "Sabc", scalar(t, res))
	requirePending(t, run(t, request(KindTextInput, nil, nil)))

	res = run(t, request(KindNumberInput, map[string]string{FieldValue: "5"}, nil))
	assert.Equal(t, "N5", scalar(t, res))
	requirePending(t, run(t, request(KindNumberInput, map[string]string{FieldValue: "five"}, nil)))

	res = run(t, request(KindDisplay, nil, inputs{HandleIn: {"N42"}}))
	assert.Equal(t, "N42", scalar(t, res))
}

func TestInterval(t *testing.T) {
	t.Parallel()
	req := request(KindInterval, map[string]string{FieldCount: "4"}, nil)
	res := run(t, req)
	assert.Equal(t, "N4", scalar(t, res))
	assert.Empty(t, res.Fields)

	req.Trigger = catalog.TriggerTick
	res = run(t, req)
	assert.Equal(t, "N5", scalar(t, res))
	assert.Equal(t, "5", res.Fields[FieldCount])

	assert.Equal(t, 250*time.Millisecond, IntervalPeriod(map[string]string{FieldInterval: "250"}))
	assert.Equal(t, DefaultInterval, IntervalPeriod(map[string]string{FieldInterval: "x"}))
}

//----------------//
// Transforms     //
//----------------//

func TestHash(t *testing.T) {
	t.Parallel()
	tests := []struct {
		algo string
		want string
	}{
		{AlgoKeccak256, "0x4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45"},
		{AlgoSHA256, "0xba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{AlgoSHA3, "0x3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
		{AlgoBlake2b256, "0xbddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319"},
		{AlgoRIPEMD160, "0x8eb208f7e05d987a9b044a8e98c6b087f15a0bfc"},
	}
	for _, tc := range tests {
		t.Run(tc.algo, func(t *testing.T) {
			t.Parallel()
			res := run(t, request(KindHash, map[string]string{FieldAlgorithm: tc.algo}, inputs{HandleIn: {"Sabc"}}))
			require.True(t, res.Ready)
			assert.Equal(t, "S"+tc.want, scalar(t, res))
		})
	}

	t.Run("FanInConcatenates", func(t *testing.T) {
		t.Parallel()
		res := run(t, request(KindHash, nil, inputs{HandleIn: {"Sab", "Sc"}}))
		assert.Equal(t, "S"+tests[0].want, scalar(t, res))
	})

	t.Run("Pending", func(t *testing.T) {
		t.Parallel()
		requirePending(t, run(t, request(KindHash, nil, nil)))
		requirePending(t, run(t, request(KindHash, nil, inputs{HandleIn: {"S"}})))
		requirePending(t, run(t, request(KindHash, nil, inputs{HandleIn: {"Sabc", "Nbad"}})))
		requirePending(t, run(t, request(KindHash, map[string]string{FieldAlgorithm: "md5"}, inputs{HandleIn: {"Sabc"}})))
	})
}

func TestTextTransforms(t *testing.T) {
	t.Parallel()

	res := run(t, request(KindCompound, map[string]string{FieldSeparator: "-"}, inputs{HandleIn: {"Sa", "N1", "Sc"}}))
	assert.Equal(t, "Sa-1-c", scalar(t, res))

	res = run(t, request(KindColorMix, nil, inputs{HandleIn: {"S#ff0000", "S#00ff00", "S#0000ff"}}))
	assert.Equal(t, "S#ffffff", scalar(t, res))
	res = run(t, request(KindColorMix, nil, inputs{HandleIn: {"S#ff00ff", "Sff0000"}}))
	assert.Equal(t, "S#0000ff", scalar(t, res))
	requirePending(t, run(t, request(KindColorMix, nil, inputs{HandleIn: {"Sred"}})))

	res = run(t, request(KindStringLength, nil, inputs{HandleIn: {"Shéllo"}}))
	assert.Equal(t, "N5", scalar(t, res))
	res = run(t, request(KindStringLength, nil, inputs{HandleIn: {"S"}}))
	assert.Equal(t, "N0", scalar(t, res))
}

func TestSubstring(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fields map[string]string
		in     inputs
		want   string
	}{
		{"FromStart", map[string]string{FieldStart: "6"}, inputs{HandleIn: {"Shello world"}}, "Sworld"},
		{"Range", map[string]string{FieldStart: "2", FieldEnd: "4"}, inputs{HandleIn: {"Shello"}}, "Sll"},
		{"EndClamped", map[string]string{FieldEnd: "99"}, inputs{HandleIn: {"Shi"}}, "Shi"},
		{"HandleOverridesField", map[string]string{FieldStart: "0"}, inputs{HandleIn: {"Shello"}, FieldStart: {"N1"}}, "Sello"},
		{"StartPastEnd", map[string]string{FieldStart: "4", FieldEnd: "2"}, inputs{HandleIn: {"Shello"}}, codec.Empty},
		{"NegativeStart", map[string]string{FieldStart: "-1"}, inputs{HandleIn: {"Shello"}}, codec.Empty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := run(t, request(KindSubstring, tc.fields, tc.in))
			assert.Equal(t, tc.want, scalar(t, res))
			assert.Equal(t, tc.want != codec.Empty, res.Ready)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	from := run(t, request(KindBigIntNormalize, nil, inputs{HandleIn: {"N1500000000000000000"}}))
	assert.Equal(t, "N1.5", scalar(t, from))

	to := run(t, request(KindBigIntNormalize, map[string]string{FieldDirection: DirectionToUnit}, inputs{HandleIn: {"N1.5"}}))
	assert.Equal(t, "N1500000000000000000", scalar(t, to))

	usdc := run(t, request(KindBigIntNormalize, map[string]string{FieldDecimals: "6"}, inputs{HandleIn: {"N1234567"}}))
	assert.Equal(t, "N1.234567", scalar(t, usdc))

	requirePending(t, run(t, request(KindBigIntNormalize,
		map[string]string{FieldDirection: DirectionToUnit, FieldDecimals: "2"}, inputs{HandleIn: {"N0.1234"}})))
	requirePending(t, run(t, request(KindBigIntNormalize, map[string]string{FieldDirection: "sideways"}, inputs{HandleIn: {"N1"}})))
}

func TestArithmetic(t *testing.T) {
	t.Parallel()
	tests := []struct {
		op, left, right, want string
	}{
		{OpSub, "N5", "N3", "N2"},
		{OpAdd, "N1.5", "N1", "N2.5"},
		{OpMul, "N6", "N7", "N42"},
		{OpDiv, "N6", "N3", "N2"},
		{OpDiv, "N7", "N2", "N3.5"},
		{OpMod, "N-7", "N3", "N-1"},
		{OpPow, "N2", "N10", "N1024"},
		{OpPow, "N2", "N100", "N1267650600228229401496703205376"},
		{OpPow, "N4", "N0.5", "N2"},
		{OpAdd, "S4", "N1", "N5"},
		{OpDiv, "N1", "N0", codec.Empty},
		{OpMod, "N1", "N0", codec.Empty},
		{OpAdd, "Sabc", "N1", codec.Empty},
		{"?", "N1", "N1", codec.Empty},
	}
	for _, tc := range tests {
		t.Run(tc.left+tc.op+tc.right, func(t *testing.T) {
			t.Parallel()
			res := run(t, request(KindArithmetic, map[string]string{FieldOperator: tc.op},
				inputs{HandleLeft: {tc.left}, HandleRight: {tc.right}}))
			assert.Equal(t, tc.want, scalar(t, res))
		})
	}

	t.Run("MissingOperand", func(t *testing.T) {
		t.Parallel()
		requirePending(t, run(t, request(KindArithmetic, nil, inputs{HandleLeft: {"N1"}})))
	})
}

func TestCompare(t *testing.T) {
	t.Parallel()
	tests := []struct {
		op, left, right, want string
	}{
		{OpGt, "N10", "N9", "Strue"},
		{OpEq, "N1.0", "N1", "Strue"},
		{OpEq, "Sabc", "Sabc", "Strue"},
		{OpNeq, "Sabc", "Sabd", "Strue"},
		{OpLt, "Sb", "Sa", "Sfalse"},
		{OpGte, "N3", "N3", "Strue"},
		{OpLte, "N4", "N3", "Sfalse"},
	}
	for _, tc := range tests {
		t.Run(tc.left+tc.op+tc.right, func(t *testing.T) {
			t.Parallel()
			res := run(t, request(KindCompare, map[string]string{FieldOperator: tc.op},
				inputs{HandleLeft: {tc.left}, HandleRight: {tc.right}}))
			assert.True(t, res.Ready)
			assert.Equal(t, tc.want, scalar(t, res))
		})
	}
}

//----------------//
// Keys & Crypto  //
//----------------//

func TestKeyPair(t *testing.T) {
	t.Parallel()

	t.Run("InitGeneratesOnce", func(t *testing.T) {
		t.Parallel()
		r := Catalog(catalog.WithRand(bytes.NewReader(bytes.Repeat([]byte{1}, 64))))
		d, err := r.NewData(KindKeyPair)
		require.NoError(t, err)
		assert.Equal(t, "0x"+strings.Repeat("01", 32), d.Field(FieldPrivateKey))

		res := run(t, request(KindKeyPair, d.Fields, nil))
		require.True(t, res.Ready)
		km, ok := res.Out.KeyMaterial()
		require.True(t, ok)
		assert.NotEqual(t, codec.Empty, km.PublicKey)
		assert.NotEqual(t, codec.Empty, km.Address)

		again := run(t, request(KindKeyPair, d.Fields, nil))
		assert.True(t, res.Out.Equal(again.Out), "evaluation does not regenerate the key")
	})

	t.Run("KnownKey", func(t *testing.T) {
		t.Parallel()
		res := run(t, request(KindKeyPair, map[string]string{FieldPrivateKey: keyOne}, nil))
		km, ok := res.Out.KeyMaterial()
		require.True(t, ok)
		assert.Equal(t, "S"+addressOne, km.Address)
		assert.Equal(t, "S"+pointG, km.PublicKey)
		assert.Equal(t, "S"+keyOne, km.PrivateKey)
	})

	t.Run("InputOverridesField", func(t *testing.T) {
		t.Parallel()
		res := run(t, request(KindKeyPair, map[string]string{FieldPrivateKey: "0x" + strings.Repeat("01", 32)},
			inputs{HandleSeed: {"S" + keyOne}}))
		km, _ := res.Out.KeyMaterial()
		assert.Equal(t, "S"+addressOne, km.Address)

		requirePending(t, run(t, request(KindKeyPair, nil, inputs{HandleSeed: {"Snot-a-key"}})))
	})

	t.Run("DerivedKinds", func(t *testing.T) {
		t.Parallel()
		res := run(t, request(KindScalarMultiplication, nil, inputs{HandleScalar: {"N1"}}))
		assert.Equal(t, "S"+pointG, scalar(t, res))

		res = run(t, request(KindCalculateAddress, nil, inputs{HandlePublicKey: {"S" + pointG}}))
		assert.Equal(t, "S"+addressOne, scalar(t, res))

		requirePending(t, run(t, request(KindScalarMultiplication, nil, inputs{HandleScalar: {"N0"}})))
		requirePending(t, run(t, request(KindCalculateAddress, nil, inputs{HandlePublicKey: {"S0x1234"}})))
	})
}

func TestSignVerify(t *testing.T) {
	t.Parallel()
	sig := run(t, request(KindSign, nil, inputs{HandlePrivateKey: {"S" + keyOne}, HandleMessage: {"Shello"}}))
	require.True(t, sig.Ready)
	signature := scalar(t, sig)
	require.True(t, strings.HasPrefix(signature, "S0x"))
	assert.Len(t, signature, 1+2+130)

	verify := func(msg, address string) catalog.Result {
		return run(t, request(KindVerify, nil, inputs{
			HandleMessage: {msg}, HandleSignature: {signature}, HandleAddress: {address},
		}))
	}

	valid := verify("Shello", "S"+addressOne)
	assert.True(t, valid.Ready)
	assert.Equal(t, types.VerdictValid, valid.Verdict)
	assert.Equal(t, "Svalid", scalar(t, valid))

	lower := verify("Shello", "S"+strings.ToLower(addressOne))
	assert.Equal(t, types.VerdictValid, lower.Verdict)

	invalid := verify("Sgoodbye", "S"+addressOne)
	assert.True(t, invalid.Ready, "an invalid signature is a computed result")
	assert.Equal(t, types.VerdictInvalid, invalid.Verdict)
	assert.Equal(t, "Sinvalid", scalar(t, invalid))

	incomplete := run(t, request(KindVerify, nil, inputs{HandleMessage: {"Shello"}}))
	requirePending(t, incomplete)
	assert.Equal(t, types.VerdictPending, incomplete.Verdict)
}

func TestEncryptDecrypt(t *testing.T) {
	t.Parallel()
	enc := run(t, request(KindEncrypt, nil, inputs{HandlePublicKey: {"S" + pointG}, HandleMessage: {"Ssecret"}}))
	require.True(t, enc.Ready)
	ct := scalar(t, enc)
	require.True(t, strings.HasPrefix(ct, "B"))

	dec := run(t, request(KindDecrypt, nil, inputs{HandlePrivateKey: {"S" + keyOne}, HandleCiphertext: {ct}}))
	require.True(t, dec.Ready)
	assert.Equal(t, "Ssecret", scalar(t, dec))

	other := run(t, request(KindDecrypt, nil, inputs{
		HandlePrivateKey: {"S0x" + strings.Repeat("02", 32)}, HandleCiphertext: {ct},
	}))
	requirePending(t, other)
}

//----------------//
// Ethereum       //
//----------------//

func TestBalance(t *testing.T) {
	t.Parallel()
	req := request(KindBalance, nil, inputs{HandleAddress: {"S" + addressOne}})

	req.Env.Chain = &fakeChain{balance: big.NewInt(1000)}
	res := run(t, req)
	assert.Equal(t, "N1000", scalar(t, res))

	req.Env.Chain = &fakeChain{err: errors.New("connection refused")}
	res = run(t, req)
	assert.False(t, res.Ready)
	assert.Equal(t, codec.ErrorSentinel, scalar(t, res))
	assert.Equal(t, types.StatusError, res.Status())
	assert.Contains(t, res.Message, "connection refused")

	req.Env.Chain = nil
	res = run(t, req)
	assert.Equal(t, types.StatusError, res.Status())

	requirePending(t, run(t, request(KindBalance, nil, inputs{HandleAddress: {"Snope"}})))
}

func TestEthToUSD(t *testing.T) {
	t.Parallel()
	req := request(KindEthToUSD, nil, inputs{HandleAmount: {"N2"}})
	req.Env.Prices = fakeQuoter(2000.5)
	assert.Equal(t, "N4001.00", scalar(t, run(t, req)))
}

func TestTransactionAndBroadcast(t *testing.T) {
	t.Parallel()
	chain := &fakeChain{nonce: 3, gasPrice: big.NewInt(1_000_000_000), chainID: big.NewInt(1)}
	to := "0x000000000000000000000000000000000000dEaD"

	txReq := request(KindTransaction, nil, inputs{
		HandlePrivateKey: {"S" + keyOne}, HandleTo: {"S" + to}, HandleValue: {"N12345"},
	})
	txReq.Env.Chain = chain
	res := run(t, txReq)
	require.True(t, res.Ready, res.Message)

	v, err := codec.Decode(scalar(t, res))
	require.NoError(t, err)
	tx, ok := DecodeTransaction(v)
	require.True(t, ok)
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, common.HexToAddress(to), *tx.To())
	assert.Equal(t, big.NewInt(12345), tx.Value())
	assert.Equal(t, uint64(TransferGas), tx.Gas())
	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(1)), tx)
	require.NoError(t, err)
	assert.Equal(t, addressOne, sender.Hex())

	bReq := request(KindBroadcast, nil, inputs{HandleRawTx: {scalar(t, res)}})
	bReq.Env.Chain = chain
	sent := run(t, bReq)
	require.True(t, sent.Ready)
	assert.Equal(t, "S"+tx.Hash().Hex(), scalar(t, sent))
	require.Len(t, chain.sent, 1)

	// same transaction again is not resent
	bReq.Fields[FieldLastHash] = sent.Fields[FieldLastHash]
	run(t, bReq)
	assert.Len(t, chain.sent, 1)

	bReq.Trigger = catalog.TriggerRefresh
	run(t, bReq)
	assert.Len(t, chain.sent, 2)
}

//----------------//
// Simulation     //
//----------------//

func TestActor(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	req := request(KindActor, map[string]string{FieldName: "alice", FieldBalance: "100", FieldDelay: "50"},
		inputs{HandleAmount: {"N10"}, HandleTo: {"Sbob"}})
	req.Env.Queue = sender

	res := run(t, req)
	assert.Equal(t, "N90", scalar(t, res))
	assert.Equal(t, "90", res.Fields[FieldBalance])
	require.Len(t, sender.sent, 1)
	assert.Equal(t, mq.Message{From: "alice", To: []string{"bob"}, Payload: "10", Kind: mq.KindTransfer, Delay: 50 * time.Millisecond}, sender.sent[0])

	// the same transfer is not resent on an unrelated wave
	for k, v := range res.Fields {
		req.Fields[k] = v
	}
	res = run(t, req)
	assert.Equal(t, "N90", scalar(t, res))
	assert.Len(t, sender.sent, 1)

	req.Trigger = catalog.TriggerLoad
	req.Fields[FieldLastTransfer] = ""
	run(t, req)
	assert.Len(t, sender.sent, 1, "restoring a graph does not send")

	req.Trigger = catalog.TriggerWave
	req.Inputs[HandleAmount] = []resolve.Input{input("N1000")}
	res = run(t, req)
	assert.Equal(t, "insufficient balance", res.Message)
	assert.Len(t, sender.sent, 1)

	credit, ok := actorMessage(req, mq.Message{Kind: mq.KindTransfer, From: "bob", To: []string{"alice"}, Payload: "2.5"})
	require.True(t, ok)
	assert.Equal(t, "N92.5", scalar(t, credit))
	_, ok = actorMessage(req, mq.Message{Kind: mq.KindTransfer, To: []string{"carol"}, Payload: "1"})
	assert.False(t, ok)
}

func TestLedgerAndNetwork(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := mq.Message{ID: "m1", Kind: mq.KindTransfer, From: "alice", To: []string{"bob"}, Payload: "10"}

	ledger := request(KindLedger, nil, nil)
	ledger.Env.Now = func() time.Time { return at }
	assert.Equal(t, "S[]", scalar(t, run(t, ledger)))

	res, ok := ledgerMessage(ledger, msg)
	require.True(t, ok)
	var entries []LedgerEntry
	require.NoError(t, json.Unmarshal([]byte(res.Fields[FieldEntries]), &entries))
	assert.Equal(t, []LedgerEntry{{ID: "m1", From: "alice", To: "bob", Amount: "10", At: at}}, entries)

	network := request(KindNetwork, map[string]string{FieldLimit: "1"}, nil)
	network.Env.Now = func() time.Time { return at }
	res, ok = networkMessage(network, msg)
	require.True(t, ok)
	network.Fields[FieldLog] = res.Fields[FieldLog]
	res, ok = networkMessage(network, mq.Message{Kind: "ping", From: "bob", To: []string{"alice"}, Payload: "hi"})
	require.True(t, ok)
	assert.Equal(t, "S2024-01-02T03:04:05Z bob -> alice [ping] hi", scalar(t, res), "log keeps the latest lines")
}
