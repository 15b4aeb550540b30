package nodes

import (
	"context"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/graph"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Key material handles and fields
const (
	HandlePublicKey  = codec.HandlePublicKey
	HandlePrivateKey = codec.HandlePrivateKey
	HandleAddress    = codec.HandleAddress
	HandleScalar     = "scalar"
	// HandleSeed is the key-pair input; ids are unique per kind across polarity
	HandleSeed = "seed"

	FieldPrivateKey = "privateKey"
)

func keyEntries() []catalog.Entry {
	return []catalog.Entry{
		{
			Kind:     KindKeyPair,
			Label:    "Key Pair",
			Category: catalog.CategoryKeys,
			Handles: []types.HandleSpec{
				in(HandleSeed, "private key"),
				out(HandlePublicKey, "public key"),
				out(HandlePrivateKey, "private key"),
				out(HandleAddress, "address"),
			},
			Init:      initKeyPair,
			Evaluator: catalog.EvaluatorFunc(evalKeyPair),
		},
		{
			Kind:      KindCalculateAddress,
			Label:     "Calculate Address",
			Category:  catalog.CategoryKeys,
			Handles:   []types.HandleSpec{in(HandlePublicKey, "public key"), out(HandleOut, "address")},
			Evaluator: catalog.EvaluatorFunc(evalCalculateAddress),
		},
		{
			Kind:      KindScalarMultiplication,
			Label:     "Scalar Multiplication",
			Category:  catalog.CategoryKeys,
			Handles:   []types.HandleSpec{in(HandleScalar, "scalar"), out(HandleOut, "point")},
			Evaluator: catalog.EvaluatorFunc(evalScalarMultiplication),
		},
	}
}

// GenerateKey draws a secp256k1 private key from r
func GenerateKey(r io.Reader) ([]byte, error) {
	b := make([]byte, 32)
	for range 16 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, errors.Wrap(err, "read entropy")
		}
		if _, err := crypto.ToECDSA(b); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("no valid key after 16 draws")
}

// initKeyPair generates the private key once, when the node is created
func initKeyPair(r io.Reader, data *graph.NodeData) error {
	if data.Field(FieldPrivateKey) != "" {
		return nil
	}
	b, err := GenerateKey(r)
	if err != nil {
		return err
	}
	data.Fields[FieldPrivateKey] = hexString(b)
	return nil
}

// evalKeyPair derives the outputs from the connected private key, or from
// the generated one when the input is unconnected
func evalKeyPair(_ context.Context, req catalog.Request) catalog.Result {
	v := codec.String(req.Field(FieldPrivateKey))
	if req.Connected(HandleSeed) {
		var ok bool
		if v, ok = req.Input(HandleSeed); !ok {
			return catalog.Pending()
		}
	}
	key, ok := privateKeyOf(v)
	if !ok {
		return catalog.PendingMsg("invalid private key")
	}
	return catalog.Result{Out: codec.Keys(keyMaterial(key)), Ready: true}
}

func evalCalculateAddress(_ context.Context, req catalog.Request) catalog.Result {
	v, ok := req.Input(HandlePublicKey)
	if !ok {
		return catalog.Pending()
	}
	pub, ok := publicKeyOf(v)
	if !ok {
		return catalog.PendingMsg("invalid public key")
	}
	return catalog.Ready(codec.EncodeString(crypto.PubkeyToAddress(*pub).Hex()))
}

// evalScalarMultiplication publishes scalar·G as an uncompressed point
func evalScalarMultiplication(_ context.Context, req catalog.Request) catalog.Result {
	v, ok := req.Input(HandleScalar)
	if !ok {
		return catalog.Pending()
	}
	key, ok := privateKeyOf(v)
	if !ok {
		return catalog.PendingMsg("scalar out of range")
	}
	return catalog.Ready(codec.EncodeString(hexString(crypto.FromECDSAPub(&key.PublicKey))))
}
