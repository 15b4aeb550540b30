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
	s := canvas.NewSession(canvas.WithManualQueue())
	defer s.Close()

	b := canvas.NewBuilder(ctx, s)
	amount := b.Number("25")
	recipient := b.Text("bob")
	alice := b.Add(nodes.KindActor)
	bob := b.Add(nodes.KindActor).Set(nodes.FieldName, "bob").Set(nodes.FieldBalance, "10")
	ledger := b.Add(nodes.KindLedger)
	network := b.Add(nodes.KindNetwork)

	amount.Then(alice, nodes.HandleAmount)
	recipient.Then(alice, nodes.HandleTo)
	if err := b.Err(); err != nil {
		log.Fatal(err)
	}

	report := func(stage string) {
		fmt.Printf("%s: alice=%s bob=%s pending=%d\n", stage,
			codec.TryDecodeString(alice.Output(nodes.HandleOut)),
			codec.TryDecodeString(bob.Output(nodes.HandleOut)),
			len(s.Queue().Pending()))
	}
	report("sent")

	delivered := s.ProcessMessages()
	report(fmt.Sprintf("delivered %d", delivered))

	fmt.Println("ledger: ", codec.TryDecodeString(ledger.Output(nodes.HandleOut)))
	fmt.Println("network:", codec.TryDecodeString(network.Output(nodes.HandleOut)))
}
