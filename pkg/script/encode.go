package script

import "gopkg.in/yaml.v3"

// EncodeProgram renders a program back into the bundle format
// DecodeProgram reads. Tooling uses it to rewrite bundles; decoding
// the output yields an equivalent program.
func EncodeProgram(p *Program) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	doc := map[string]any{}
	if p.EntryScript != "" {
		doc["entryScript"] = p.EntryScript
	}
	if len(p.JSONGlobals) > 0 {
		globals := make(map[string]any, len(p.JSONGlobals))
		for name, value := range p.JSONGlobals {
			globals[name] = value.ToJSON()
		}
		doc["jsonGlobals"] = globals
	}
	if len(p.DefsInitOrder) > 0 {
		defs := make([]map[string]any, 0, len(p.DefsInitOrder))
		for _, qualified := range p.DefsInitOrder {
			decl := p.DefsGlobals[qualified]
			entry := map[string]any{
				"namespace": decl.Namespace,
				"name":      decl.Name,
				"type":      encodeType(decl.Type),
			}
			if decl.InitExpr != "" {
				entry["init"] = decl.InitExpr
			}
			defs = append(defs, entry)
		}
		doc["defsGlobals"] = defs
	}

	scripts := make(map[string]any, len(p.Scripts))
	for name, sc := range p.Scripts {
		scripts[name] = encodeScript(sc)
	}
	doc["scripts"] = scripts

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, Errorf(CodeProgramInvalid, "encode bundle: %v", err)
	}
	return data, nil
}

func encodeScript(sc *Script) map[string]any {
	out := map[string]any{"rootGroup": sc.RootGroupID}
	if len(sc.Params) > 0 {
		params := make([]map[string]any, len(sc.Params))
		for i, p := range sc.Params {
			params[i] = encodeParam(p)
		}
		out["params"] = params
	}
	if len(sc.VisibleJSONGlobals) > 0 {
		out["visibleJsonGlobals"] = sc.VisibleJSONGlobals
	}
	if len(sc.VisibleDefsGlobals) > 0 {
		out["visibleDefsGlobals"] = sc.VisibleDefsGlobals
	}
	if len(sc.Functions) > 0 {
		fns := make([]map[string]any, 0, len(sc.Functions))
		for _, fn := range sc.Functions {
			fns = append(fns, encodeFunction(fn))
		}
		out["functions"] = fns
	}
	groups := make(map[string]any, len(sc.Groups))
	for gid, group := range sc.Groups {
		nodes := make([]map[string]any, len(group.Nodes))
		for i, node := range group.Nodes {
			nodes[i] = encodeNode(node)
		}
		groups[gid] = nodes
	}
	out["groups"] = groups
	return out
}

func encodeParam(p Param) map[string]any {
	out := map[string]any{"name": p.Name, "type": encodeType(p.Type)}
	if p.IsRef {
		out["ref"] = true
	}
	return out
}

func encodeFunction(fn FunctionDecl) map[string]any {
	out := map[string]any{
		"name": fn.Name,
		"result": map[string]any{
			"name": fn.Result.Name,
			"type": encodeType(fn.Result.Type),
		},
		"code": fn.Code,
	}
	if len(fn.Params) > 0 {
		params := make([]map[string]any, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = encodeParam(p)
		}
		out["params"] = params
	}
	return out
}

func encodeNode(node Node) map[string]any {
	switch n := node.(type) {
	case *TextNode:
		out := map[string]any{"kind": "text", "id": n.ID, "value": n.Value}
		if n.Once {
			out["once"] = true
		}
		encodeSpan(out, n.Span)
		return out
	case *CodeNode:
		out := map[string]any{"kind": "code", "id": n.ID, "code": n.Code}
		encodeSpan(out, n.Span)
		return out
	case *VarNode:
		out := map[string]any{
			"kind": "var", "id": n.ID,
			"name": n.Decl.Name, "type": encodeType(n.Decl.Type),
		}
		if n.Decl.InitExpr != "" {
			out["init"] = n.Decl.InitExpr
		}
		encodeSpan(out, n.Span)
		return out
	case *IfNode:
		out := map[string]any{
			"kind": "if", "id": n.ID, "when": n.WhenExpr,
			"then": n.ThenGroupID, "else": n.ElseGroupID,
		}
		encodeSpan(out, n.Span)
		return out
	case *WhileNode:
		out := map[string]any{
			"kind": "while", "id": n.ID, "when": n.WhenExpr, "body": n.BodyGroupID,
		}
		encodeSpan(out, n.Span)
		return out
	case *ChoiceNode:
		options := make([]map[string]any, len(n.Options))
		for i, opt := range n.Options {
			ow := map[string]any{"id": opt.ID, "text": opt.Text, "group": opt.GroupID}
			if opt.WhenExpr != "" {
				ow["when"] = opt.WhenExpr
			}
			if opt.Once {
				ow["once"] = true
			}
			if opt.FallOver {
				ow["fallOver"] = true
			}
			encodeSpan(ow, opt.Span)
			options[i] = ow
		}
		out := map[string]any{"kind": "choice", "id": n.ID, "options": options}
		if n.PromptText != "" {
			out["prompt"] = n.PromptText
		}
		encodeSpan(out, n.Span)
		return out
	case *InputNode:
		out := map[string]any{
			"kind": "input", "id": n.ID, "target": n.TargetVar,
		}
		if n.PromptText != "" {
			out["prompt"] = n.PromptText
		}
		encodeSpan(out, n.Span)
		return out
	case *BreakNode:
		out := map[string]any{"kind": "break", "id": n.ID}
		encodeSpan(out, n.Span)
		return out
	case *ContinueNode:
		out := map[string]any{"kind": "continue", "id": n.ID, "target": string(n.Target)}
		encodeSpan(out, n.Span)
		return out
	case *CallNode:
		out := map[string]any{"kind": "call", "id": n.ID, "target": n.Target}
		if len(n.Args) > 0 {
			out["args"] = encodeArgs(n.Args)
		}
		encodeSpan(out, n.Span)
		return out
	case *ReturnNode:
		out := map[string]any{"kind": "return", "id": n.ID}
		if n.Target != "" {
			out["target"] = n.Target
		}
		if len(n.Args) > 0 {
			out["args"] = encodeArgs(n.Args)
		}
		encodeSpan(out, n.Span)
		return out
	default:
		return map[string]any{}
	}
}

func encodeArgs(args []CallArg) []map[string]any {
	out := make([]map[string]any, len(args))
	for i, arg := range args {
		aw := map[string]any{"value": arg.ValueExpr}
		if arg.Name != "" {
			aw["name"] = arg.Name
		}
		if arg.IsRef {
			aw["ref"] = true
		}
		out[i] = aw
	}
	return out
}

func encodeSpan(out map[string]any, span SourceSpan) {
	if span.IsSynthetic() {
		return
	}
	out["span"] = map[string]any{
		"start": map[string]any{"line": span.Start.Line, "column": span.Start.Column},
		"end":   map[string]any{"line": span.End.Line, "column": span.End.Column},
	}
}

func encodeType(t Type) map[string]any {
	out := map[string]any{"kind": string(t.Kind)}
	if t.Name != "" {
		out["name"] = t.Name
	}
	if t.Elem != nil {
		out["elem"] = encodeType(*t.Elem)
	}
	if len(t.Fields) > 0 {
		fields := make(map[string]any, len(t.Fields))
		for name, ft := range t.Fields {
			fields[name] = encodeType(ft)
		}
		out["fields"] = fields
	}
	return out
}
