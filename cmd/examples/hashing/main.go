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
	s := canvas.NewSession(canvas.WithShareBase("http://localhost:8080/"))
	defer s.Close()

	b := canvas.NewBuilder(ctx, s)
	text := b.Text("abc")
	keccak := b.Add(nodes.KindHash).Set(nodes.FieldAlgorithm, nodes.AlgoKeccak256)
	sha := b.Add(nodes.KindHash).Set(nodes.FieldAlgorithm, "sha256")
	display := b.Add(nodes.KindDisplay)

	text.Then(keccak, nodes.HandleIn).Then(display, nodes.HandleIn)
	text.Then(sha, nodes.HandleIn)
	if err := b.Err(); err != nil {
		log.Fatal(err)
	}

	fmt.Println("keccak256(abc) =", codec.TryDecodeString(display.Output(nodes.HandleOut)))
	fmt.Println("sha256(abc)    =", codec.TryDecodeString(sha.Output(nodes.HandleOut)))

	// editing the source propagates through both branches
	text.Set(nodes.FieldText, "hello")
	if err := text.Err(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("keccak256(hello) =", codec.TryDecodeString(display.Output(nodes.HandleOut)))

	link, err := s.ShareURL()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("share:", link)
}
