package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skald-lang/skald/pkg/script"
)

func testScript(name string, root []script.Node, groups map[string][]script.Node, params ...script.Param) *script.Script {
	rootID := name + "/root"
	built := map[string]*script.Group{
		rootID: {ID: rootID, Nodes: root},
	}
	for id, nodes := range groups {
		built[id] = &script.Group{ID: id, Nodes: nodes}
	}
	return &script.Script{
		Name:        name,
		Params:      params,
		RootGroupID: rootID,
		Groups:      built,
	}
}

func testProgram(scripts ...*script.Script) *script.Program {
	p := &script.Program{EntryScript: scripts[0].Name, Scripts: map[string]*script.Script{}}
	for _, sc := range scripts {
		p.Scripts[sc.Name] = sc
	}
	return p
}

func startEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, e.Start("", nil))
	return e
}

// collectTexts drains outputs until End or a boundary, returning the
// text lines seen on the way.
func collectTexts(t *testing.T, e *Engine) []string {
	t.Helper()
	var texts []string
	for {
		out, err := e.NextOutput()
		require.NoError(t, err)
		switch o := out.(type) {
		case TextOutput:
			texts = append(texts, o.Text)
		case EndOutput, ChoicesOutput, InputOutput:
			return texts
		}
	}
}

func requireText(t *testing.T, e *Engine, want string) {
	t.Helper()
	out, err := e.NextOutput()
	require.NoError(t, err)
	require.Equal(t, TextOutput{Text: want}, out)
}

func requireEnd(t *testing.T, e *Engine) {
	t.Helper()
	out, err := e.NextOutput()
	require.NoError(t, err)
	require.Equal(t, EndOutput{}, out)
	require.True(t, e.Ended())
}

func TestPlaythroughTextChoiceEnd(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.TextNode{ID: "t1", Value: "Hi"},
			&script.ChoiceNode{ID: "c1", Options: []script.ChoiceOption{
				{ID: "o1", Text: "A", GroupID: "main/a"},
			}},
		},
		map[string][]script.Node{
			"main/a": {&script.TextNode{ID: "t2", Value: "A!"}},
		},
	))
	e := startEngine(t, Options{Program: prog})

	requireText(t, e, "Hi")

	out, err := e.NextOutput()
	require.NoError(t, err)
	choices, ok := out.(ChoicesOutput)
	require.True(t, ok)
	require.Len(t, choices.Items, 1)
	require.Equal(t, "A", choices.Items[0].Text)
	require.True(t, e.WaitingChoice())

	require.NoError(t, e.Choose(0))
	requireText(t, e, "A!")
	requireEnd(t, e)
}

func TestWhileBreakContinue(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.VarNode{ID: "v1", Decl: script.VarDecl{Name: "i", Type: script.NumberType(), InitExpr: "0"}},
			&script.WhileNode{ID: "w1", WhenExpr: "true", BodyGroupID: "main/body"},
			&script.TextNode{ID: "t2", Value: "done ${i}"},
		},
		map[string][]script.Node{
			"main/body": {
				&script.CodeNode{ID: "c1", Code: "i = i + 1"},
				&script.IfNode{ID: "if1", WhenExpr: "i == 2", ThenGroupID: "main/skip", ElseGroupID: "main/empty1"},
				&script.IfNode{ID: "if2", WhenExpr: "i >= 4", ThenGroupID: "main/stop", ElseGroupID: "main/empty2"},
				&script.TextNode{ID: "t1", Value: "tick ${i}"},
			},
			"main/skip":   {&script.ContinueNode{ID: "cn1", Target: script.ContinueWhile}},
			"main/stop":   {&script.BreakNode{ID: "b1"}},
			"main/empty1": {},
			"main/empty2": {},
		},
	))
	e := startEngine(t, Options{Program: prog})
	require.Equal(t, []string{"tick 1", "tick 3", "done 4"}, collectTexts(t, e))
	require.True(t, e.Ended())
}

func TestOnceTextSkippedOnSecondVisit(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.VarNode{ID: "v1", Decl: script.VarDecl{Name: "i", Type: script.NumberType(), InitExpr: "0"}},
			&script.WhileNode{ID: "w1", WhenExpr: "i < 2", BodyGroupID: "main/body"},
		},
		map[string][]script.Node{
			"main/body": {
				&script.CodeNode{ID: "c1", Code: "i = i + 1"},
				&script.TextNode{ID: "t1", Value: "hello once", Once: true},
				&script.TextNode{ID: "t2", Value: "pass ${i}"},
			},
		},
	))
	e := startEngine(t, Options{Program: prog})
	require.Equal(t, []string{"hello once", "pass 1", "pass 2"}, collectTexts(t, e))
}

func TestChoiceOnceAndContinue(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.ChoiceNode{ID: "c1", PromptText: "Pick", Options: []script.ChoiceOption{
				{ID: "o1", Text: "Fight", Once: true, GroupID: "main/fight"},
				{ID: "o2", Text: "Leave", GroupID: "main/leave"},
			}},
		},
		map[string][]script.Node{
			"main/fight": {
				&script.TextNode{ID: "t1", Value: "You fight"},
				&script.ContinueNode{ID: "cn1", Target: script.ContinueChoice},
			},
			"main/leave": {&script.TextNode{ID: "t2", Value: "You leave"}},
		},
	))
	e := startEngine(t, Options{Program: prog})

	out, err := e.NextOutput()
	require.NoError(t, err)
	choices := out.(ChoicesOutput)
	require.Equal(t, "Pick", choices.PromptText)
	require.Len(t, choices.Items, 2)

	require.NoError(t, e.Choose(0))
	requireText(t, e, "You fight")

	out, err = e.NextOutput()
	require.NoError(t, err)
	choices = out.(ChoicesOutput)
	require.Len(t, choices.Items, 1)
	require.Equal(t, "Leave", choices.Items[0].Text)

	require.NoError(t, e.Choose(0))
	requireText(t, e, "You leave")
	requireEnd(t, e)
}

func TestFallOverShownWhenNoRegularOptionVisible(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.ChoiceNode{ID: "c1", Options: []script.ChoiceOption{
				{ID: "o1", Text: "Secret", WhenExpr: "false", GroupID: "main/secret"},
				{ID: "o2", Text: "Move on", FallOver: true, GroupID: "main/on"},
			}},
		},
		map[string][]script.Node{
			"main/secret": {&script.TextNode{ID: "t1", Value: "secret"}},
			"main/on":     {&script.TextNode{ID: "t2", Value: "onward"}},
		},
	))
	e := startEngine(t, Options{Program: prog})

	out, err := e.NextOutput()
	require.NoError(t, err)
	choices := out.(ChoicesOutput)
	require.Len(t, choices.Items, 1)
	require.Equal(t, "Move on", choices.Items[0].Text)

	require.NoError(t, e.Choose(0))
	requireText(t, e, "onward")
	requireEnd(t, e)
}

func TestChoiceSkippedWhenNothingVisibleAtAll(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.ChoiceNode{ID: "c1", Options: []script.ChoiceOption{
				{ID: "o1", Text: "Secret", WhenExpr: "false", GroupID: "main/secret"},
			}},
			&script.TextNode{ID: "t1", Value: "after"},
		},
		map[string][]script.Node{
			"main/secret": {},
		},
	))
	e := startEngine(t, Options{Program: prog})
	requireText(t, e, "after")
	requireEnd(t, e)
}

func TestDefsGlobalShadowing(t *testing.T) {
	prog := testProgram(
		testScript("main",
			[]script.Node{
				&script.VarNode{ID: "v1", Decl: script.VarDecl{Name: "power", Type: script.NumberType(), InitExpr: "10"}},
				&script.TextNode{ID: "t1", Value: "main.local.before=${power}"},
				&script.TextNode{ID: "t2", Value: "main.global.before=${stats.power}"},
				&script.CallNode{ID: "call1", Target: "battle"},
				&script.TextNode{ID: "t3", Value: "main.local.after=${power}"},
				&script.TextNode{ID: "t4", Value: "main.global.after=${stats.power}"},
			},
			nil,
		),
		testScript("battle",
			[]script.Node{
				&script.VarNode{ID: "v2", Decl: script.VarDecl{Name: "power", Type: script.NumberType(), InitExpr: "35"}},
				&script.CodeNode{ID: "c1", Code: "stats.power = 60"},
				&script.TextNode{ID: "t5", Value: "battle.local=${power}"},
				&script.TextNode{ID: "t6", Value: "battle.global=${stats.power}"},
			},
			nil,
		),
	)
	prog.DefsGlobals = map[string]script.DefsGlobalDecl{
		"stats.power": {
			QualifiedName: "stats.power",
			Namespace:     "stats",
			Name:          "power",
			Type:          script.NumberType(),
			InitExpr:      "100",
		},
	}
	prog.DefsInitOrder = []string{"stats.power"}
	prog.Scripts["main"].VisibleDefsGlobals = []string{"stats.power"}
	prog.Scripts["battle"].VisibleDefsGlobals = []string{"stats.power"}

	e := startEngine(t, Options{Program: prog})
	require.Equal(t, []string{
		"main.local.before=10",
		"main.global.before=100",
		"battle.local=35",
		"battle.global=60",
		"main.local.after=10",
		"main.global.after=60",
	}, collectTexts(t, e))
}

func TestRefParameterWriteBack(t *testing.T) {
	prog := testProgram(
		testScript("main",
			[]script.Node{
				&script.VarNode{ID: "v1", Decl: script.VarDecl{Name: "n", Type: script.NumberType(), InitExpr: "5"}},
				&script.CallNode{ID: "call1", Target: "inc", Args: []script.CallArg{
					{Name: "x", ValueExpr: "n", IsRef: true},
				}},
				&script.TextNode{ID: "t1", Value: "n=${n}"},
			},
			nil,
		),
		testScript("inc",
			[]script.Node{
				&script.CodeNode{ID: "c1", Code: "x = x + 1"},
			},
			nil,
			script.Param{Name: "x", Type: script.NumberType(), IsRef: true},
		),
	)
	e := startEngine(t, Options{Program: prog})
	require.Equal(t, []string{"n=6"}, collectTexts(t, e))
}

func TestRefModeMismatchRejected(t *testing.T) {
	prog := testProgram(
		testScript("main",
			[]script.Node{
				&script.VarNode{ID: "v1", Decl: script.VarDecl{Name: "n", Type: script.NumberType(), InitExpr: "5"}},
				&script.CallNode{ID: "call1", Target: "inc", Args: []script.CallArg{
					{Name: "x", ValueExpr: "n"},
				}},
			},
			nil,
		),
		testScript("inc", []script.Node{}, nil,
			script.Param{Name: "x", Type: script.NumberType(), IsRef: true},
		),
	)
	e := startEngine(t, Options{Program: prog})
	_, err := e.NextOutput()
	require.Equal(t, script.CodeCallRefMismatch, script.ErrorCode(err))
}

func TestSceneTransferForwardsContinuation(t *testing.T) {
	prog := testProgram(
		testScript("main",
			[]script.Node{
				&script.TextNode{ID: "t1", Value: "start"},
				&script.CallNode{ID: "call1", Target: "scene1"},
				&script.TextNode{ID: "t2", Value: "back"},
			},
			nil,
		),
		testScript("scene1",
			[]script.Node{
				&script.TextNode{ID: "t3", Value: "one"},
				&script.ReturnNode{ID: "r1", Target: "scene2"},
			},
			nil,
		),
		testScript("scene2",
			[]script.Node{
				&script.TextNode{ID: "t4", Value: "two"},
			},
			nil,
		),
	)
	e := startEngine(t, Options{Program: prog})
	require.Equal(t, []string{"start", "one", "two", "back"}, collectTexts(t, e))
	require.True(t, e.Ended())
}

func TestTailCallResumesOriginalCaller(t *testing.T) {
	prog := testProgram(
		testScript("main",
			[]script.Node{
				&script.TextNode{ID: "t1", Value: "m"},
				&script.CallNode{ID: "call1", Target: "a"},
				&script.TextNode{ID: "t2", Value: "back"},
			},
			nil,
		),
		testScript("a",
			[]script.Node{
				&script.TextNode{ID: "t3", Value: "a"},
				&script.CallNode{ID: "call2", Target: "b"},
			},
			nil,
		),
		testScript("b",
			[]script.Node{
				&script.TextNode{ID: "t4", Value: "b"},
			},
			nil,
		),
	)
	e := startEngine(t, Options{Program: prog})
	require.Equal(t, []string{"m", "a", "b", "back"}, collectTexts(t, e))
}

func TestInputBoundary(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.VarNode{ID: "v1", Decl: script.VarDecl{Name: "who", Type: script.StringType(), InitExpr: `"stranger"`}},
			&script.InputNode{ID: "in1", TargetVar: "who", PromptText: "Who goes there?"},
			&script.TextNode{ID: "t1", Value: "Hello ${who}"},
		},
		nil,
	))

	t.Run("blank falls back to default", func(t *testing.T) {
		e := startEngine(t, Options{Program: prog})
		out, err := e.NextOutput()
		require.NoError(t, err)
		require.Equal(t, InputOutput{PromptText: "Who goes there?", DefaultText: "stranger"}, out)
		require.NoError(t, e.SubmitInput("   "))
		requireText(t, e, "Hello stranger")
	})

	t.Run("typed text is written", func(t *testing.T) {
		e := startEngine(t, Options{Program: prog})
		_, err := e.NextOutput()
		require.NoError(t, err)
		require.NoError(t, e.SubmitInput("Ada"))
		requireText(t, e, "Hello Ada")
	})
}

func TestBoundaryProtocol(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.ChoiceNode{ID: "c1", Options: []script.ChoiceOption{
				{ID: "o1", Text: "Go", GroupID: "main/go"},
			}},
		},
		map[string][]script.Node{
			"main/go": {&script.TextNode{ID: "t1", Value: "went"}},
		},
	))

	t.Run("choose without pending choice", func(t *testing.T) {
		e := startEngine(t, Options{Program: prog})
		err := e.Choose(0)
		require.Equal(t, script.CodeNoPendingChoice, script.ErrorCode(err))
	})

	t.Run("bad index leaves the boundary pending", func(t *testing.T) {
		e := startEngine(t, Options{Program: prog})
		first, err := e.NextOutput()
		require.NoError(t, err)

		err = e.Choose(5)
		require.Equal(t, script.CodeChoiceIndex, script.ErrorCode(err))

		again, err := e.NextOutput()
		require.NoError(t, err)
		require.Equal(t, first, again)

		require.NoError(t, e.Choose(0))
		requireText(t, e, "went")
	})

	t.Run("submit input at a choice boundary", func(t *testing.T) {
		e := startEngine(t, Options{Program: prog})
		_, err := e.NextOutput()
		require.NoError(t, err)
		err = e.SubmitInput("hello")
		require.Equal(t, script.CodeNoPendingInput, script.ErrorCode(err))
	})
}

func TestStepLimitGuard(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.WhileNode{ID: "w1", WhenExpr: "true", BodyGroupID: "main/body"},
		},
		map[string][]script.Node{
			"main/body": {},
		},
	))
	e, err := New(Options{Program: prog, StepLimit: 50})
	require.NoError(t, err)
	require.NoError(t, e.Start("", nil))

	_, err = e.NextOutput()
	require.Equal(t, script.CodeGuardExceeded, script.ErrorCode(err))
}

func TestStartUnknownScript(t *testing.T) {
	prog := testProgram(testScript("main", []script.Node{}, nil))
	e, err := New(Options{Program: prog})
	require.NoError(t, err)
	err = e.Start("nope", nil)
	require.Equal(t, script.CodeScriptNotFound, script.ErrorCode(err))
}

func TestStartResetsOnceState(t *testing.T) {
	prog := testProgram(testScript("main",
		[]script.Node{
			&script.TextNode{ID: "t1", Value: "only once", Once: true},
		},
		nil,
	))
	e := startEngine(t, Options{Program: prog})
	require.Equal(t, []string{"only once"}, collectTexts(t, e))

	require.NoError(t, e.Start("", nil))
	require.Equal(t, []string{"only once"}, collectTexts(t, e))
}

func TestHostFunctionNameRules(t *testing.T) {
	prog := testProgram(testScript("main", []script.Node{}, nil))

	_, err := New(Options{Program: prog, HostFunctions: HostFuncMap{
		"random": func([]script.Value) (script.Value, error) { return script.Bool(true), nil },
	}})
	require.Equal(t, script.CodeHostFuncReserved, script.ErrorCode(err))

	_, err = New(Options{Program: prog, HostFunctions: HostFuncMap{
		"ns.fn": func([]script.Value) (script.Value, error) { return script.Bool(true), nil },
	}})
	require.Equal(t, script.CodeHostFuncReserved, script.ErrorCode(err))
}
