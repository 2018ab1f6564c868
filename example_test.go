package skald_test

import (
	"fmt"
	"log"

	"github.com/skald-lang/skald"
	"github.com/skald-lang/skald/pkg/dsl"
	"github.com/skald-lang/skald/pkg/engine"
)

// ExampleNew demonstrates building a program in process with the dsl
// package and playing it to the end. The same loop works for bundles
// loaded from disk with skald.Open.
func ExampleNew() {
	b := dsl.New()
	main := b.Script("main")
	main.Text("A fork in the road.")
	main.Choice("Which way?",
		dsl.Option("Left", func(body *dsl.Body) {
			body.Text("You bear left.")
		}),
		dsl.Option("Right", func(body *dsl.Body) {
			body.Text("You bear right.")
		}),
	)
	main.Text("You keep walking.")

	program, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	eng, err := skald.New(program, skald.WithRandomSeed(42))
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.Start("", nil); err != nil {
		log.Fatal(err)
	}

	for {
		out, err := eng.NextOutput()
		if err != nil {
			log.Fatal(err)
		}
		switch o := out.(type) {
		case engine.TextOutput:
			fmt.Println(o.Text)
		case engine.ChoicesOutput:
			fmt.Println(o.PromptText)
			for _, item := range o.Items {
				fmt.Printf("[%d] %s\n", item.Index, item.Text)
			}
			if err := eng.Choose(0); err != nil {
				log.Fatal(err)
			}
		case engine.EndOutput:
			return
		}
	}

	// Output:
	// A fork in the road.
	// Which way?
	// [0] Left
	// [1] Right
	// You bear left.
	// You keep walking.
}
