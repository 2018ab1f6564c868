package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skald-lang/skald/pkg/dsl"
	"github.com/skald-lang/skald/pkg/engine"
	"github.com/skald-lang/skald/pkg/script"
)

// drain runs the engine until it needs the host, collecting text.
func drain(t *testing.T, e *engine.Engine) ([]string, engine.Output) {
	t.Helper()
	var texts []string
	for {
		out, err := e.NextOutput()
		require.NoError(t, err)
		switch o := out.(type) {
		case engine.TextOutput:
			texts = append(texts, o.Text)
		default:
			return texts, out
		}
	}
}

func TestBuilder_SimpleFlow(t *testing.T) {
	b := dsl.New()
	b.DefsGlobal("stats.steps", script.NumberType(), "0")

	main := b.Script("main")
	main.Text("You stand at a crossroads.")
	main.Choice("Which way?",
		dsl.Option("North", func(body *dsl.Body) {
			body.Code("stats.steps = stats.steps + 1")
			body.Text("Snow crunches underfoot.")
		}),
		dsl.Option("South", func(body *dsl.Body) {
			body.Text("The road warms as you walk.")
		}),
	)
	main.Text("You walked ${stats.steps} leg(s).")

	program, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "main", program.EntryScript)

	e, err := engine.New(engine.Options{Program: program})
	require.NoError(t, err)
	require.NoError(t, e.Start("", nil))

	texts, out := drain(t, e)
	assert.Equal(t, []string{"You stand at a crossroads."}, texts)
	choices, ok := out.(engine.ChoicesOutput)
	require.True(t, ok)
	assert.Equal(t, "Which way?", choices.PromptText)
	require.Len(t, choices.Items, 2)

	require.NoError(t, e.Choose(0))

	texts, out = drain(t, e)
	assert.Equal(t, []string{
		"Snow crunches underfoot.",
		"You walked 1 leg(s).",
	}, texts)
	assert.IsType(t, engine.EndOutput{}, out)
}

func TestBuilder_ControlFlowAndCalls(t *testing.T) {
	b := dsl.New()

	greet := b.Script("greet")
	greet.RefParam("count", script.NumberType())
	greet.Text("Hello number ${count}.")
	greet.Code("count = count + 1")

	main := b.Script("main")
	main.Var("i", script.NumberType(), "1")
	main.While("i <= 3", func(body *dsl.Body) {
		body.If("i == 2", func(then *dsl.Body) {
			then.Code("i = i + 1")
			then.ContinueWhile()
		})
		body.Call("greet", dsl.RefArg("count", "i"))
	})
	main.Text("done at ${i}")
	b.Entry("main")

	program, err := b.Build()
	require.NoError(t, err)

	e, err := engine.New(engine.Options{Program: program})
	require.NoError(t, err)
	require.NoError(t, e.Start("", nil))

	texts, out := drain(t, e)
	assert.Equal(t, []string{
		"Hello number 1.",
		"Hello number 3.",
		"done at 4",
	}, texts)
	assert.IsType(t, engine.EndOutput{}, out)
}

func TestBuilder_InputAndFunctions(t *testing.T) {
	b := dsl.New()

	main := b.Script("main")
	main.Function("shared.double",
		script.VarDecl{Name: "result", Type: script.NumberType()},
		"result = n * 2",
		script.Param{Name: "n", Type: script.NumberType()})
	main.Var("name", script.StringType(), `"stranger"`)
	main.Input("name", "Who goes there?")
	main.Text("Welcome, ${name}. Twice two is ${shared.double(2)}.")

	program, err := b.Build()
	require.NoError(t, err)

	e, err := engine.New(engine.Options{Program: program})
	require.NoError(t, err)
	require.NoError(t, e.Start("", nil))

	_, out := drain(t, e)
	input, ok := out.(engine.InputOutput)
	require.True(t, ok)
	assert.Equal(t, "Who goes there?", input.PromptText)

	require.NoError(t, e.SubmitInput("Ada"))
	texts, out := drain(t, e)
	assert.Equal(t, []string{"Welcome, Ada. Twice two is 4."}, texts)
	assert.IsType(t, engine.EndOutput{}, out)
}

func TestBuilder_RejectsInvalidDefinitions(t *testing.T) {
	b := dsl.New()
	b.DefsGlobal("power", script.NumberType(), "1") // missing namespace
	b.Script("main").Text("hi")

	_, err := b.Build()
	assert.Error(t, err)

	b = dsl.New()
	b.DefsGlobal("stats.hp", script.NumberType(), "10")
	b.DefsGlobal("stats.hp", script.NumberType(), "20")
	b.Script("main").Text("hi")

	_, err = b.Build()
	assert.Error(t, err)
}
