package nodes

import (
	"context"
	"crypto/rand"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"

	"github.com/Inferara/web3-canvas-sub000/internal/catalog"
	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

// Asymmetric crypto handles
const (
	HandleMessage    = "message"
	HandleCiphertext = "ciphertext"
	HandleSignature  = "signature"
)

func cryptoEntries() []catalog.Entry {
	return []catalog.Entry{
		{
			Kind:     KindEncrypt,
			Label:    "Encrypt",
			Category: catalog.CategoryCrypto,
			Handles: []types.HandleSpec{
				in(HandlePublicKey, "public key"), in(HandleMessage, "message"), out(HandleOut, "ciphertext"),
			},
			Evaluator: catalog.EvaluatorFunc(evalEncrypt),
		},
		{
			Kind:     KindDecrypt,
			Label:    "Decrypt",
			Category: catalog.CategoryCrypto,
			Handles: []types.HandleSpec{
				in(HandlePrivateKey, "private key"), in(HandleCiphertext, "ciphertext"), out(HandleOut, "message"),
			},
			Evaluator: catalog.EvaluatorFunc(evalDecrypt),
		},
		{
			Kind:     KindSign,
			Label:    "Sign",
			Category: catalog.CategoryCrypto,
			Handles: []types.HandleSpec{
				in(HandlePrivateKey, "private key"), in(HandleMessage, "message"), out(HandleOut, "signature"),
			},
			Evaluator: catalog.EvaluatorFunc(evalSign),
		},
		{
			Kind:     KindVerify,
			Label:    "Verify",
			Category: catalog.CategoryCrypto,
			Handles: []types.HandleSpec{
				in(HandleMessage, "message"), in(HandleSignature, "signature"), in(HandleAddress, "address"),
				out(HandleOut, "verdict"),
			},
			Evaluator: catalog.EvaluatorFunc(evalVerify),
		},
	}
}

func entropy(req catalog.Request) io.Reader {
	if req.Env != nil && req.Env.Rand != nil {
		return req.Env.Rand
	}
	return rand.Reader
}

// evalEncrypt seals the message to the public key with ECIES
func evalEncrypt(_ context.Context, req catalog.Request) catalog.Result {
	pv, ok := req.Input(HandlePublicKey)
	if !ok {
		return catalog.Pending()
	}
	msg, ok := req.Input(HandleMessage)
	if !ok || msg.IsEmpty() {
		return catalog.Pending()
	}
	pub, ok := publicKeyOf(pv)
	if !ok {
		return catalog.PendingMsg("invalid public key")
	}
	ct, err := ecies.Encrypt(entropy(req), ecies.ImportECDSAPublic(pub), msg.Raw(), nil, nil)
	if err != nil {
		return catalog.PendingMsg("encryption failed")
	}
	return catalog.Ready(codec.EncodeBytes(ct))
}

func evalDecrypt(_ context.Context, req catalog.Request) catalog.Result {
	kv, ok := req.Input(HandlePrivateKey)
	if !ok {
		return catalog.Pending()
	}
	cv, ok := req.Input(HandleCiphertext)
	if !ok {
		return catalog.Pending()
	}
	key, ok := privateKeyOf(kv)
	if !ok {
		return catalog.PendingMsg("invalid private key")
	}
	ct, ok := bytesOf(cv)
	if !ok {
		return catalog.PendingMsg("invalid ciphertext")
	}
	pt, err := ecies.ImportECDSA(key).Decrypt(ct, nil, nil)
	if err != nil {
		return catalog.PendingMsg("decryption failed")
	}
	return catalog.Ready(codec.EncodeString(string(pt)))
}

// evalSign produces an EIP-191 personal_sign signature with V in {27, 28}
func evalSign(_ context.Context, req catalog.Request) catalog.Result {
	kv, ok := req.Input(HandlePrivateKey)
	if !ok {
		return catalog.Pending()
	}
	msg, ok := req.Input(HandleMessage)
	if !ok || msg.IsEmpty() {
		return catalog.Pending()
	}
	key, ok := privateKeyOf(kv)
	if !ok {
		return catalog.PendingMsg("invalid private key")
	}
	sig, err := crypto.Sign(accounts.TextHash(msg.Raw()), key)
	if err != nil {
		return catalog.PendingMsg("signing failed")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return catalog.Ready(codec.EncodeString(hexString(sig)))
}

// RecoverSigner returns the address that signed msg under EIP-191
func RecoverSigner(msg, sig []byte) (string, bool) {
	if len(sig) != crypto.SignatureLength {
		return "", false
	}
	s := append([]byte(nil), sig...)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), s)
	if err != nil {
		return "", false
	}
	return crypto.PubkeyToAddress(*pub).Hex(), true
}

// evalVerify distinguishes incomplete inputs (pending) from a signature
// that does not match the address (invalid)
func evalVerify(_ context.Context, req catalog.Request) catalog.Result {
	pending := catalog.Pending()
	pending.Verdict = types.VerdictPending

	msg, ok := req.Input(HandleMessage)
	if !ok || msg.IsEmpty() {
		return pending
	}
	sv, ok := req.Input(HandleSignature)
	if !ok {
		return pending
	}
	av, ok := req.Input(HandleAddress)
	if !ok {
		return pending
	}
	sig, ok := bytesOf(sv)
	if !ok || len(sig) != crypto.SignatureLength {
		pending.Message = "malformed signature"
		return pending
	}
	addr, ok := addressOf(av)
	if !ok {
		pending.Message = "malformed address"
		return pending
	}

	verdict := types.VerdictInvalid
	if signer, ok := RecoverSigner(msg.Raw(), sig); ok && strings.EqualFold(signer, addr.Hex()) {
		verdict = types.VerdictValid
	}
	res := catalog.Ready(codec.EncodeString(string(verdict)))
	res.Verdict = verdict
	return res
}
