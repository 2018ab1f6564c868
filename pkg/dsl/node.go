package dsl

import "github.com/skald-lang/skald/pkg/script"

// Body appends nodes to one group. Control-flow methods take closures
// that build the child groups.
type Body struct {
	script *ScriptBuilder
	group  *script.Group
}

func (b *Body) append(node script.Node) {
	b.group.Nodes = append(b.group.Nodes, node)
}

func (b *Body) child(fill func(*Body)) *script.Group {
	g := b.script.newGroup()
	if fill != nil {
		fill(&Body{script: b.script, group: g})
	}
	return g
}

// Text emits a line of story text. Interpolate with ${expr}.
func (b *Body) Text(value string) *Body {
	b.append(&script.TextNode{ID: b.script.nextNodeID(), Value: value})
	return b
}

// TextOnce emits a line of story text at most once per session.
func (b *Body) TextOnce(value string) *Body {
	b.append(&script.TextNode{ID: b.script.nextNodeID(), Value: value, Once: true})
	return b
}

// Code runs an embedded code block for its side effects.
func (b *Body) Code(code string) *Body {
	b.append(&script.CodeNode{ID: b.script.nextNodeID(), Code: code})
	return b
}

// Var declares a variable in the enclosing frame. An empty initializer
// selects the type default.
func (b *Body) Var(name string, typ script.Type, initExpr string) *Body {
	b.append(&script.VarNode{
		ID:   b.script.nextNodeID(),
		Decl: script.VarDecl{Name: name, Type: typ, InitExpr: initExpr},
	})
	return b
}

// If branches on a condition.
func (b *Body) If(whenExpr string, then func(*Body)) *Body {
	return b.IfElse(whenExpr, then, nil)
}

// IfElse branches on a condition with an else arm.
func (b *Body) IfElse(whenExpr string, then, els func(*Body)) *Body {
	b.append(&script.IfNode{
		ID:          b.script.nextNodeID(),
		WhenExpr:    whenExpr,
		ThenGroupID: b.child(then).ID,
		ElseGroupID: b.child(els).ID,
	})
	return b
}

// While repeats its body while the condition holds.
func (b *Body) While(whenExpr string, body func(*Body)) *Body {
	b.append(&script.WhileNode{
		ID:          b.script.nextNodeID(),
		WhenExpr:    whenExpr,
		BodyGroupID: b.child(body).ID,
	})
	return b
}

// ChoiceOption configures one selectable branch of a Choice.
type ChoiceOption struct {
	text     string
	whenExpr string
	once     bool
	fallOver bool
	body     func(*Body)
}

// Option creates a choice option with the given display text and body.
func Option(text string, body func(*Body)) ChoiceOption {
	return ChoiceOption{text: text, body: body}
}

// FallOverOption creates an option presented alone when no regular
// option is visible.
func FallOverOption(text string, body func(*Body)) ChoiceOption {
	return ChoiceOption{text: text, fallOver: true, body: body}
}

// When gates the option behind a condition.
func (o ChoiceOption) When(expr string) ChoiceOption {
	o.whenExpr = expr
	return o
}

// Once hides the option after it has been picked.
func (o ChoiceOption) Once() ChoiceOption {
	o.once = true
	return o
}

// Choice suspends execution and presents options to the player.
func (b *Body) Choice(prompt string, options ...ChoiceOption) *Body {
	node := &script.ChoiceNode{
		ID:         b.script.nextNodeID(),
		PromptText: prompt,
	}
	for _, opt := range options {
		node.Options = append(node.Options, script.ChoiceOption{
			ID:       b.script.nextNodeID(),
			Text:     opt.text,
			WhenExpr: opt.whenExpr,
			Once:     opt.once,
			FallOver: opt.fallOver,
			GroupID:  b.child(opt.body).ID,
		})
	}
	b.append(node)
	return b
}

// Input suspends execution and binds the player's line of text to a
// previously declared string variable.
func (b *Body) Input(targetVar, prompt string) *Body {
	b.append(&script.InputNode{
		ID:         b.script.nextNodeID(),
		TargetVar:  targetVar,
		PromptText: prompt,
	})
	return b
}

// Arg passes an expression by value to a called script.
func Arg(name, valueExpr string) script.CallArg {
	return script.CallArg{Name: name, ValueExpr: valueExpr}
}

// RefArg passes a caller-side path by reference.
func RefArg(name, path string) script.CallArg {
	return script.CallArg{Name: name, ValueExpr: path, IsRef: true}
}

// Call invokes another script and resumes here when it returns.
func (b *Body) Call(target string, args ...script.CallArg) *Body {
	b.append(&script.CallNode{ID: b.script.nextNodeID(), Target: target, Args: args})
	return b
}

// Return ends the current script.
func (b *Body) Return() *Body {
	b.append(&script.ReturnNode{ID: b.script.nextNodeID()})
	return b
}

// Transfer ends the current script and starts the target in its place.
// The caller of the current script, if any, resumes when the target
// returns.
func (b *Body) Transfer(target string, args ...script.CallArg) *Body {
	b.append(&script.ReturnNode{ID: b.script.nextNodeID(), Target: target, Args: args})
	return b
}

// Break exits the nearest enclosing while loop.
func (b *Body) Break() *Body {
	b.append(&script.BreakNode{ID: b.script.nextNodeID()})
	return b
}

// ContinueWhile restarts the nearest enclosing while loop.
func (b *Body) ContinueWhile() *Body {
	b.append(&script.ContinueNode{ID: b.script.nextNodeID(), Target: script.ContinueWhile})
	return b
}

// ContinueChoice re-presents the nearest enclosing choice.
func (b *Body) ContinueChoice() *Body {
	b.append(&script.ContinueNode{ID: b.script.nextNodeID(), Target: script.ContinueChoice})
	return b
}
