// Package nodes implements the evaluators of every node kind and assembles
// them into the catalog registry.
package nodes

import (
	"github.com/pkg/errors"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

var (
	// ErrMalformedInput marks a decode or parse failure on a resolved input
	ErrMalformedInput = errors.New("malformed input")

	// ErrExternalCall marks a provider or network failure
	ErrExternalCall = errors.New("external call failed")

	// ErrNoProvider is returned when an I/O node runs without its service
	ErrNoProvider = errors.New("no provider configured")
)

// Node kinds
const (
	KindTextInput            types.NodeKind = "text-input"
	KindNumberInput          types.NodeKind = "number-input"
	KindInterval             types.NodeKind = "interval"
	KindHash                 types.NodeKind = "hash"
	KindCompound             types.NodeKind = "compound"
	KindColorMix             types.NodeKind = "color-mix"
	KindStringLength         types.NodeKind = "string-length"
	KindSubstring            types.NodeKind = "substring"
	KindArithmetic           types.NodeKind = "arithmetic"
	KindCompare              types.NodeKind = "compare"
	KindBigIntNormalize      types.NodeKind = "big-int-normalize"
	KindCalculateAddress     types.NodeKind = "calculate-address"
	KindScalarMultiplication types.NodeKind = "scalar-multiplication"
	KindDisplay              types.NodeKind = "display"
	KindKeyPair              types.NodeKind = "key-pair"
	KindEncrypt              types.NodeKind = "encrypt"
	KindDecrypt              types.NodeKind = "decrypt"
	KindSign                 types.NodeKind = "sign"
	KindVerify               types.NodeKind = "verify"
	KindBalance              types.NodeKind = "balance"
	KindEthToUSD             types.NodeKind = "eth-to-usd"
	KindTransaction          types.NodeKind = "transaction"
	KindBroadcast            types.NodeKind = "broadcast"
	KindActor                types.NodeKind = "actor"
	KindLedger               types.NodeKind = "ledger"
	KindNetwork              types.NodeKind = "network"
)

// Common handle ids
const (
	HandleOut = "out"
	HandleIn  = "in"
)

func out(id, label string) types.HandleSpec {
	return types.HandleSpec{ID: id, Type: types.HandleSource, Label: label}
}

func in(id, label string) types.HandleSpec {
	return types.HandleSpec{ID: id, Type: types.HandleTarget, MaxConnections: 1, Label: label}
}

func many(id, label string) types.HandleSpec {
	return types.HandleSpec{ID: id, Type: types.HandleTarget, MaxConnections: types.Unlimited, Label: label}
}

// Catalog returns the registry of every node kind
func Catalog(opts ...catalog.Option) *catalog.Registry {
	r := catalog.NewRegistry(opts...)
	r.MustRegister(inputEntries()...)
	r.MustRegister(transformEntries()...)
	r.MustRegister(keyEntries()...)
	r.MustRegister(cryptoEntries()...)
	r.MustRegister(ethereumEntries()...)
	r.MustRegister(simulationEntries()...)
	return r
}
