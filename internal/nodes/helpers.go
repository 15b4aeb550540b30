package nodes

import (
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
)

func hexString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// decodeHex parses hex text with an optional 0x prefix
func decodeHex(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, false
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

// bytesOf reads binary data: raw bytes for B values, hex text otherwise
func bytesOf(v codec.Value) ([]byte, bool) {
	if v.Kind == codec.KindBytes {
		return v.Raw(), !v.IsEmpty()
	}
	return decodeHex(v.Text())
}

// privateKeyOf accepts 32 bytes of hex or raw bytes, or a decimal scalar
func privateKeyOf(v codec.Value) (*ecdsa.PrivateKey, bool) {
	var b []byte
	if v.Kind == codec.KindNumber {
		i, ok := v.Int()
		if !ok || i.Sign() <= 0 || i.BitLen() > 256 {
			return nil, false
		}
		b = i.FillBytes(make([]byte, 32))
	} else {
		var ok bool
		if b, ok = bytesOf(v); !ok {
			return nil, false
		}
	}
	if len(b) != 32 {
		return nil, false
	}
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, false
	}
	return key, true
}

// publicKeyOf accepts uncompressed (65 or 64 bytes) or compressed (33 bytes) keys
func publicKeyOf(v codec.Value) (*ecdsa.PublicKey, bool) {
	b, ok := bytesOf(v)
	if !ok {
		return nil, false
	}
	switch len(b) {
	case 64:
		b = append([]byte{4}, b...)
		fallthrough
	case 65:
		pub, err := crypto.UnmarshalPubkey(b)
		return pub, err == nil
	case 33:
		pub, err := crypto.DecompressPubkey(b)
		return pub, err == nil
	}
	return nil, false
}

func addressOf(v codec.Value) (common.Address, bool) {
	s := strings.TrimSpace(v.Text())
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// keyMaterial derives the three outputs of a private key
func keyMaterial(key *ecdsa.PrivateKey) codec.KeyMaterial {
	return codec.KeyMaterial{
		PublicKey:  codec.EncodeString(hexString(crypto.FromECDSAPub(&key.PublicKey))),
		PrivateKey: codec.EncodeString(hexString(crypto.FromECDSA(key))),
		Address:    codec.EncodeString(crypto.PubkeyToAddress(key.PublicKey).Hex()),
	}
}

// ratOf parses a value's text as an exact rational
func ratOf(v codec.Value) (*big.Rat, bool) {
	if v.Kind == codec.KindBytes {
		return nil, false
	}
	if _, ok := v.Float(); !ok {
		return nil, false
	}
	return new(big.Rat).SetString(v.Text())
}

// formatRat renders r as a decimal without trailing zeros
func formatRat(r *big.Rat, prec int) string {
	if r.IsInt() {
		return r.Num().String()
	}
	s := r.FloatString(prec)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}
