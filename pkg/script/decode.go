package script

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Wire shapes for the compiled bundle format. Nodes are kind-tagged
// mappings so the document stays hand-editable; JSON works too since
// it is a subset of YAML.

type programWire struct {
	EntryScript string                `mapstructure:"entryScript"`
	JSONGlobals map[string]any        `mapstructure:"jsonGlobals"`
	DefsGlobals []defsGlobalWire      `mapstructure:"defsGlobals"`
	Scripts     map[string]scriptWire `mapstructure:"scripts"`
}

type scriptWire struct {
	Params             []paramWire                 `mapstructure:"params"`
	RootGroup          string                      `mapstructure:"rootGroup"`
	Groups             map[string][]map[string]any `mapstructure:"groups"`
	VisibleJSONGlobals []string                    `mapstructure:"visibleJsonGlobals"`
	VisibleDefsGlobals []string                    `mapstructure:"visibleDefsGlobals"`
	Functions          []functionWire              `mapstructure:"functions"`
}

type typeWire struct {
	Kind   string              `mapstructure:"kind"`
	Name   string              `mapstructure:"name"`
	Elem   *typeWire           `mapstructure:"elem"`
	Fields map[string]typeWire `mapstructure:"fields"`
}

type paramWire struct {
	Name string   `mapstructure:"name"`
	Type typeWire `mapstructure:"type"`
	Ref  bool     `mapstructure:"ref"`
}

type defsGlobalWire struct {
	Namespace string   `mapstructure:"namespace"`
	Name      string   `mapstructure:"name"`
	Type      typeWire `mapstructure:"type"`
	Init      string   `mapstructure:"init"`
	Span      spanWire `mapstructure:"span"`
}

type functionWire struct {
	Name   string      `mapstructure:"name"`
	Params []paramWire `mapstructure:"params"`
	Result varWire     `mapstructure:"result"`
	Code   string      `mapstructure:"code"`
}

type varWire struct {
	Name string   `mapstructure:"name"`
	Type typeWire `mapstructure:"type"`
	Init string   `mapstructure:"init"`
}

type spanWire struct {
	Start locWire `mapstructure:"start"`
	End   locWire `mapstructure:"end"`
}

type locWire struct {
	Line   int `mapstructure:"line"`
	Column int `mapstructure:"column"`
}

func (s spanWire) span() SourceSpan {
	return SourceSpan{
		Start: SourceLocation{Line: s.Start.Line, Column: s.Start.Column},
		End:   SourceLocation{Line: s.End.Line, Column: s.End.Column},
	}
}

type argWire struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
	Ref   bool   `mapstructure:"ref"`
}

type optionWire struct {
	ID       string   `mapstructure:"id"`
	Text     string   `mapstructure:"text"`
	When     string   `mapstructure:"when"`
	Once     bool     `mapstructure:"once"`
	FallOver bool     `mapstructure:"fallOver"`
	Group    string   `mapstructure:"group"`
	Span     spanWire `mapstructure:"span"`
}

// DecodeProgram parses a compiled story bundle from YAML or JSON and
// validates its structure.
func DecodeProgram(data []byte) (*Program, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, Errorf(CodeProgramInvalid, "parse bundle: %v", err)
	}
	var wire programWire
	if err := decodeStrict(raw, &wire); err != nil {
		return nil, Errorf(CodeProgramInvalid, "decode bundle: %v", err)
	}

	program := &Program{
		EntryScript: wire.EntryScript,
		Scripts:     make(map[string]*Script, len(wire.Scripts)),
		JSONGlobals: make(map[string]Value, len(wire.JSONGlobals)),
		DefsGlobals: make(map[string]DefsGlobalDecl, len(wire.DefsGlobals)),
	}

	for name, raw := range wire.JSONGlobals {
		v, err := FromJSON(raw)
		if err != nil {
			return nil, Errorf(CodeProgramInvalid, "json global %q: %v", name, err)
		}
		program.JSONGlobals[name] = v
	}

	for _, dg := range wire.DefsGlobals {
		t, err := decodeType(dg.Type)
		if err != nil {
			return nil, Errorf(CodeProgramInvalid, "defs global %s.%s: %v", dg.Namespace, dg.Name, err)
		}
		qualified := dg.Namespace + "." + dg.Name
		if _, dup := program.DefsGlobals[qualified]; dup {
			return nil, Errorf(CodeProgramInvalid, "defs global %q declared twice", qualified)
		}
		program.DefsGlobals[qualified] = DefsGlobalDecl{
			QualifiedName: qualified,
			Namespace:     dg.Namespace,
			Name:          dg.Name,
			Type:          t,
			InitExpr:      dg.Init,
			Span:          dg.Span.span(),
		}
		program.DefsInitOrder = append(program.DefsInitOrder, qualified)
	}

	for name, sw := range wire.Scripts {
		sc, err := decodeScript(name, sw)
		if err != nil {
			return nil, err
		}
		program.Scripts[name] = sc
	}

	if err := program.Validate(); err != nil {
		return nil, err
	}
	return program, nil
}

func decodeScript(name string, sw scriptWire) (*Script, error) {
	sc := &Script{
		Name:               name,
		RootGroupID:        sw.RootGroup,
		Groups:             make(map[string]*Group, len(sw.Groups)),
		VisibleJSONGlobals: sw.VisibleJSONGlobals,
		VisibleDefsGlobals: sw.VisibleDefsGlobals,
		Functions:          make(map[string]FunctionDecl, len(sw.Functions)),
	}
	for _, pw := range sw.Params {
		t, err := decodeType(pw.Type)
		if err != nil {
			return nil, Errorf(CodeProgramInvalid, "script %q param %q: %v", name, pw.Name, err)
		}
		sc.Params = append(sc.Params, Param{Name: pw.Name, Type: t, IsRef: pw.Ref})
	}
	for _, fw := range sw.Functions {
		fn, err := decodeFunction(fw)
		if err != nil {
			return nil, Errorf(CodeProgramInvalid, "script %q function %q: %v", name, fw.Name, err)
		}
		sc.Functions[fn.Name] = fn
	}
	for gid, rawNodes := range sw.Groups {
		group := &Group{ID: gid, Nodes: make([]Node, 0, len(rawNodes))}
		for i, rawNode := range rawNodes {
			node, err := decodeNode(rawNode)
			if err != nil {
				return nil, Errorf(CodeProgramInvalid, "script %q group %q node %d: %v", name, gid, i, err)
			}
			group.Nodes = append(group.Nodes, node)
		}
		sc.Groups[gid] = group
	}
	return sc, nil
}

func decodeFunction(fw functionWire) (FunctionDecl, error) {
	fn := FunctionDecl{Name: fw.Name, Code: fw.Code}
	for _, pw := range fw.Params {
		t, err := decodeType(pw.Type)
		if err != nil {
			return FunctionDecl{}, err
		}
		fn.Params = append(fn.Params, Param{Name: pw.Name, Type: t, IsRef: pw.Ref})
	}
	rt, err := decodeType(fw.Result.Type)
	if err != nil {
		return FunctionDecl{}, err
	}
	fn.Result = VarDecl{Name: fw.Result.Name, Type: rt, InitExpr: fw.Result.Init}
	return fn, nil
}

func decodeNode(raw map[string]any) (Node, error) {
	kind, _ := raw["kind"].(string)
	switch kind {
	case "text":
		var w struct {
			Kind  string   `mapstructure:"kind"`
			ID    string   `mapstructure:"id"`
			Value string   `mapstructure:"value"`
			Once  bool     `mapstructure:"once"`
			Span  spanWire `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return &TextNode{ID: w.ID, Value: w.Value, Once: w.Once, Span: w.Span.span()}, nil
	case "code":
		var w struct {
			Kind string   `mapstructure:"kind"`
			ID   string   `mapstructure:"id"`
			Code string   `mapstructure:"code"`
			Span spanWire `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return &CodeNode{ID: w.ID, Code: w.Code, Span: w.Span.span()}, nil
	case "var":
		var w struct {
			Kind string   `mapstructure:"kind"`
			ID   string   `mapstructure:"id"`
			Name string   `mapstructure:"name"`
			Type typeWire `mapstructure:"type"`
			Init string   `mapstructure:"init"`
			Span spanWire `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		t, err := decodeType(w.Type)
		if err != nil {
			return nil, err
		}
		return &VarNode{ID: w.ID, Decl: VarDecl{Name: w.Name, Type: t, InitExpr: w.Init}, Span: w.Span.span()}, nil
	case "if":
		var w struct {
			Kind string   `mapstructure:"kind"`
			ID   string   `mapstructure:"id"`
			When string   `mapstructure:"when"`
			Then string   `mapstructure:"then"`
			Else string   `mapstructure:"else"`
			Span spanWire `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return &IfNode{ID: w.ID, WhenExpr: w.When, ThenGroupID: w.Then, ElseGroupID: w.Else, Span: w.Span.span()}, nil
	case "while":
		var w struct {
			Kind string   `mapstructure:"kind"`
			ID   string   `mapstructure:"id"`
			When string   `mapstructure:"when"`
			Body string   `mapstructure:"body"`
			Span spanWire `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return &WhileNode{ID: w.ID, WhenExpr: w.When, BodyGroupID: w.Body, Span: w.Span.span()}, nil
	case "choice":
		var w struct {
			Kind    string       `mapstructure:"kind"`
			ID      string       `mapstructure:"id"`
			Prompt  string       `mapstructure:"prompt"`
			Options []optionWire `mapstructure:"options"`
			Span    spanWire     `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		node := &ChoiceNode{ID: w.ID, PromptText: w.Prompt, Span: w.Span.span()}
		for _, ow := range w.Options {
			node.Options = append(node.Options, ChoiceOption{
				ID: ow.ID, Text: ow.Text, WhenExpr: ow.When,
				Once: ow.Once, FallOver: ow.FallOver, GroupID: ow.Group,
				Span: ow.Span.span(),
			})
		}
		return node, nil
	case "input":
		var w struct {
			Kind   string   `mapstructure:"kind"`
			ID     string   `mapstructure:"id"`
			Target string   `mapstructure:"target"`
			Prompt string   `mapstructure:"prompt"`
			Span   spanWire `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return &InputNode{ID: w.ID, TargetVar: w.Target, PromptText: w.Prompt, Span: w.Span.span()}, nil
	case "break":
		var w struct {
			Kind string   `mapstructure:"kind"`
			ID   string   `mapstructure:"id"`
			Span spanWire `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return &BreakNode{ID: w.ID, Span: w.Span.span()}, nil
	case "continue":
		var w struct {
			Kind   string   `mapstructure:"kind"`
			ID     string   `mapstructure:"id"`
			Target string   `mapstructure:"target"`
			Span   spanWire `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		target := ContinueTarget(w.Target)
		if target != ContinueWhile && target != ContinueChoice {
			return nil, fmt.Errorf("continue target must be %q or %q, got %q", ContinueWhile, ContinueChoice, w.Target)
		}
		return &ContinueNode{ID: w.ID, Target: target, Span: w.Span.span()}, nil
	case "call", "return":
		var w struct {
			Kind   string    `mapstructure:"kind"`
			ID     string    `mapstructure:"id"`
			Target string    `mapstructure:"target"`
			Args   []argWire `mapstructure:"args"`
			Span   spanWire  `mapstructure:"span"`
		}
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		args := make([]CallArg, 0, len(w.Args))
		for _, aw := range w.Args {
			args = append(args, CallArg{Name: aw.Name, ValueExpr: aw.Value, IsRef: aw.Ref})
		}
		if kind == "call" {
			return &CallNode{ID: w.ID, Target: w.Target, Args: args, Span: w.Span.span()}, nil
		}
		return &ReturnNode{ID: w.ID, Target: w.Target, Args: args, Span: w.Span.span()}, nil
	default:
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
}

func decodeType(tw typeWire) (Type, error) {
	switch TypeKind(tw.Kind) {
	case TypeNumber:
		return NumberType(), nil
	case TypeString:
		return StringType(), nil
	case TypeBool:
		return BoolType(), nil
	case TypeArray:
		if tw.Elem == nil {
			return Type{}, fmt.Errorf("array type needs an elem")
		}
		elem, err := decodeType(*tw.Elem)
		if err != nil {
			return Type{}, err
		}
		return ArrayType(elem), nil
	case TypeMap:
		if tw.Elem == nil {
			return Type{}, fmt.Errorf("map type needs an elem")
		}
		elem, err := decodeType(*tw.Elem)
		if err != nil {
			return Type{}, err
		}
		return MapType(elem), nil
	case TypeObject:
		fields := make(map[string]Type, len(tw.Fields))
		for name, fw := range tw.Fields {
			ft, err := decodeType(fw)
			if err != nil {
				return Type{}, err
			}
			fields[name] = ft
		}
		return ObjectType(tw.Name, fields), nil
	default:
		return Type{}, fmt.Errorf("unknown type kind %q", tw.Kind)
	}
}

func decodeStrict(input any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      target,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
