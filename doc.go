/*
Package skald is a deterministic runtime for host-driven interactive fiction.

It executes compiled story bundles one observable event at a time: the host pulls
text, presents choices, collects input, and may snapshot the session at any
boundary and resume it later, byte for byte.

# Concept

Skald treats a story as a set of scripts compiled into flat node groups. The
engine manages scopes, the call stack, once-state and a seeded random stream,
while your application ("Host") manages the I/O. This hexagonal architecture
allows Skald to be embedded in any interface: CLI, HTTP server, or game engine
glue code.

# Key Features

  - Deterministic execution: a fixed seed and the same inputs always produce
    the same event stream.
  - Boundary snapshots: sessions serialize to a stable JSON document at choice
    and input boundaries; resuming re-echoes the pending boundary.
  - Hexagonal architecture: core logic is decoupled from adapters (storage,
    UI, host functions).
  - Strict contracts: bundle references and value types are validated to
    prevent runtime surprises.

# Usage

Open a bundle and drive the event loop:

	package main

	import (
		"log"

		"github.com/skald-lang/skald"
		"github.com/skald-lang/skald/pkg/engine"
	)

	func main() {
		eng, err := skald.Open("./story.yaml")
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
				log.Println(o.Text)
			case engine.ChoicesOutput:
				// Present o.Items, then eng.Choose(index).
				if err := eng.Choose(0); err != nil {
					log.Fatal(err)
				}
			case engine.InputOutput:
				if err := eng.SubmitInput("Ada"); err != nil {
					log.Fatal(err)
				}
			case engine.EndOutput:
				return
			}
		}
	}
*/
package skald
