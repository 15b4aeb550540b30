package nodes

import (
	"context"
	"math/big"
	"strconv"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Ethereum handles and fields
const (
	HandleAmount = "amount"
	HandleTo     = "to"
	HandleValue  = "value"
	HandleRawTx  = "rawTx"

	FieldGasLimit = "gasLimit"
	FieldLastHash = "lastHash"
)

// TransferGas is the gas limit of a plain value transfer
const TransferGas = 21000

func ethereumEntries() []catalog.Entry {
	return []catalog.Entry{
		{
			Kind:      KindBalance,
			Label:     "Balance",
			Category:  catalog.CategoryEthereum,
			Handles:   []types.HandleSpec{in(HandleAddress, "address"), out(HandleOut, "wei")},
			Required:  []string{HandleAddress},
			Async:     true,
			Evaluator: catalog.EvaluatorFunc(evalBalance),
		},
		{
			Kind:      KindEthToUSD,
			Label:     "ETH to USD",
			Category:  catalog.CategoryEthereum,
			Handles:   []types.HandleSpec{in(HandleAmount, "eth"), out(HandleOut, "usd")},
			Required:  []string{HandleAmount},
			Async:     true,
			Evaluator: catalog.EvaluatorFunc(evalEthToUSD),
		},
		{
			Kind:     KindTransaction,
			Label:    "Transaction",
			Category: catalog.CategoryEthereum,
			Handles: []types.HandleSpec{
				in(HandlePrivateKey, "private key"), in(HandleTo, "to"), in(HandleValue, "wei"),
				out(HandleOut, "signed tx"),
			},
			Defaults:  map[string]string{FieldGasLimit: strconv.Itoa(TransferGas)},
			Required:  []string{HandlePrivateKey, HandleTo, HandleValue},
			Async:     true,
			Evaluator: catalog.EvaluatorFunc(evalTransaction),
		},
		{
			Kind:      KindBroadcast,
			Label:     "Broadcast",
			Category:  catalog.CategoryEthereum,
			Handles:   []types.HandleSpec{in(HandleRawTx, "signed tx"), out(HandleOut, "tx hash")},
			Required:  []string{HandleRawTx},
			Async:     true,
			Evaluator: catalog.EvaluatorFunc(evalBroadcast),
		},
	}
}

func failed(req catalog.Request, op string, err error) catalog.Result {
	err = errors.Wrapf(ErrExternalCall, "%s: %v", op, err)
	req.Logger().Warn("external call failed", "node", req.NodeID, "kind", req.Kind, "error", err)
	return catalog.Failed(err)
}

func chainOf(req catalog.Request) (catalog.ChainClient, bool) {
	if req.Env == nil || req.Env.Chain == nil {
		return nil, false
	}
	return req.Env.Chain, true
}

func evalBalance(ctx context.Context, req catalog.Request) catalog.Result {
	av, ok := req.Input(HandleAddress)
	if !ok {
		return catalog.Pending()
	}
	addr, ok := addressOf(av)
	if !ok {
		return catalog.PendingMsg("invalid address")
	}
	client, ok := chainOf(req)
	if !ok {
		return failed(req, "balance", ErrNoProvider)
	}
	wei, err := client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return failed(req, "balance", err)
	}
	return catalog.Ready(codec.EncodeBigInt(wei))
}

func evalEthToUSD(ctx context.Context, req catalog.Request) catalog.Result {
	v, ok := req.Input(HandleAmount)
	if !ok {
		return catalog.Pending()
	}
	amount, ok := ratOf(v)
	if !ok {
		return catalog.PendingMsg("not a number")
	}
	if req.Env == nil || req.Env.Prices == nil {
		return failed(req, "price", ErrNoProvider)
	}
	price, err := req.Env.Prices.EthUSD(ctx)
	if err != nil {
		return failed(req, "price", err)
	}
	rate := new(big.Rat)
	if rate.SetFloat64(price) == nil {
		return failed(req, "price", errors.Errorf("unusable rate %v", price))
	}
	usd := new(big.Rat).Mul(amount, rate)
	enc, err := codec.EncodeDecimal(usd.FloatString(2))
	if err != nil {
		return failed(req, "price", err)
	}
	return catalog.Ready(enc)
}

// evalTransaction builds and signs a legacy value transfer using the
// provider's pending nonce and suggested gas price
func evalTransaction(ctx context.Context, req catalog.Request) catalog.Result {
	kv, ok := req.Input(HandlePrivateKey)
	if !ok {
		return catalog.Pending()
	}
	tv, ok := req.Input(HandleTo)
	if !ok {
		return catalog.Pending()
	}
	vv, ok := req.Input(HandleValue)
	if !ok {
		return catalog.Pending()
	}
	key, ok := privateKeyOf(kv)
	if !ok {
		return catalog.PendingMsg("invalid private key")
	}
	to, ok := addressOf(tv)
	if !ok {
		return catalog.PendingMsg("invalid recipient")
	}
	value, ok := vv.Int()
	if !ok || value.Sign() < 0 {
		return catalog.PendingMsg("value must be a non-negative integer of wei")
	}
	gas, err := strconv.ParseUint(req.Field(FieldGasLimit), 10, 64)
	if err != nil || gas == 0 {
		gas = TransferGas
	}

	client, ok := chainOf(req)
	if !ok {
		return failed(req, "transaction", ErrNoProvider)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return failed(req, "nonce", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return failed(req, "gas price", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return failed(req, "chain id", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), key)
	if err != nil {
		return catalog.PendingMsg("signing failed")
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return catalog.PendingMsg("encoding failed")
	}
	res := catalog.Ready(codec.EncodeString(hexString(raw)))
	res.Message = "nonce " + strconv.FormatUint(nonce, 10)
	return res
}

// DecodeTransaction parses a signed raw transaction
func DecodeTransaction(v codec.Value) (*ethtypes.Transaction, bool) {
	raw, ok := bytesOf(v)
	if !ok {
		return nil, false
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, false
	}
	return tx, true
}

// evalBroadcast sends the signed transaction once per distinct hash; a
// manual refresh sends again
func evalBroadcast(ctx context.Context, req catalog.Request) catalog.Result {
	v, ok := req.Input(HandleRawTx)
	if !ok {
		return catalog.Pending()
	}
	tx, ok := DecodeTransaction(v)
	if !ok {
		return catalog.PendingMsg("invalid signed transaction")
	}
	hash := tx.Hash().Hex()
	if hash == req.Field(FieldLastHash) && req.Trigger != catalog.TriggerRefresh {
		return catalog.Ready(codec.EncodeString(hash))
	}

	client, ok := chainOf(req)
	if !ok {
		return failed(req, "broadcast", ErrNoProvider)
	}
	if err := client.SendTransaction(ctx, tx); err != nil {
		return failed(req, "broadcast", err)
	}
	req.Logger().Info("transaction broadcast", "node", req.NodeID, "hash", hash)
	res := catalog.Ready(codec.EncodeString(hash))
	res.Fields = map[string]string{FieldLastHash: hash}
	return res
}
