/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically constructing story programs.

It allows hosts to define scripts using a type-safe, fluent builder pattern instead of relying on
external bundle documents. This is particularly useful for dynamic content generation, unit testing,
and leveraging IDE autocompletion/type-checking.

Example usage:

	b := dsl.New()

	main := b.Script("main")
	main.Text("You stand at a crossroads.")
	main.Choice("Which way?",
		dsl.Option("North", func(body *dsl.Body) {
			body.Text("Snow crunches underfoot.")
		}),
		dsl.Option("South", func(body *dsl.Body) {
			body.Text("The road warms as you walk.")
		}),
	)

	program, err := b.Build()
	// ... pass program to engine.New(engine.Options{Program: program})
*/
package dsl
