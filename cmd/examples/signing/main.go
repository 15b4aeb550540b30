package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Inferara/web3-canvas-sub000/internal/codec"
	"github.com/Inferara/web3-canvas-sub000/internal/nodes"
	"github.com/Inferara/web3-canvas-sub000/pkg/canvas"
)

func main() {
	ctx := context.Background()
	s := canvas.NewSession()
	defer s.Close()

	b := canvas.NewBuilder(ctx, s)
	keys := b.Add(nodes.KindKeyPair)
	message := b.Text("transfer 1 ETH to bob")
	claimed := b.Text("transfer 1 ETH to bob")
	sign := b.Add(nodes.KindSign)
	verify := b.Add(nodes.KindVerify)

	keys.ThenFrom(nodes.HandlePrivateKey, sign, nodes.HandlePrivateKey)
	message.Then(sign, nodes.HandleMessage)
	claimed.Then(verify, nodes.HandleMessage)
	sign.Then(verify, nodes.HandleSignature)
	keys.ThenFrom(nodes.HandleAddress, verify, nodes.HandleAddress)
	if err := b.Err(); err != nil {
		log.Fatal(err)
	}

	fmt.Println("address:  ", codec.TryDecodeString(keys.Output(nodes.HandleAddress)))
	fmt.Println("signature:", codec.TryDecodeString(sign.Output(nodes.HandleOut)))
	printVerdict(verify)

	// the verifier sees a different message than the one signed
	claimed.Set(nodes.FieldText, "transfer 100 ETH to mallory")
	if err := b.Err(); err != nil {
		log.Fatal(err)
	}
	printVerdict(verify)
}

func printVerdict(n *canvas.FlowNode) {
	node, ok := n.Node()
	if !ok {
		log.Fatal("verify node missing")
	}
	fmt.Println("verdict:  ", node.Data.Verdict)
}
