package engine

import "github.com/skald-lang/skald/pkg/script"

// NextOutput advances execution until the next observable event: a
// text line, a choice or input boundary, or the end of the story. A
// pending boundary is re-reported without advancing, so the call is
// idempotent while the host is deciding.
func (e *Engine) NextOutput() (Output, error) {
	if e.pending != nil {
		return e.boundaryOutput(e.pending), nil
	}
	if e.ended {
		return EndOutput{}, nil
	}

	for steps := 0; e.stepLimit == 0 || steps < e.stepLimit; steps++ {
		if len(e.frames) == 0 {
			e.ended = true
			return EndOutput{}, nil
		}
		top := e.frames[len(e.frames)-1]
		scriptName, group, err := e.lookupGroup(top.groupID)
		if err != nil {
			return nil, err
		}

		if top.nodeIndex >= len(group.Nodes) {
			if err := e.finishFrame(top.id); err != nil {
				return nil, err
			}
			continue
		}

		switch node := group.Nodes[top.nodeIndex].(type) {
		case *script.TextNode:
			if node.Once && e.hasOnceState(scriptName, "text:"+node.ID) {
				top.nodeIndex++
				continue
			}
			rendered, err := e.renderText(node.Value)
			if err != nil {
				return nil, err
			}
			top.nodeIndex++
			if node.Once {
				e.markOnceState(scriptName, "text:"+node.ID)
			}
			return TextOutput{Text: rendered}, nil

		case *script.CodeNode:
			if err := e.runCode(node.Code); err != nil {
				return nil, err
			}
			top.nodeIndex++

		case *script.VarNode:
			if err := e.executeVarDeclaration(node.Decl); err != nil {
				return nil, err
			}
			top.nodeIndex++

		case *script.IfNode:
			condition, err := e.evalBoolean(node.WhenExpr)
			if err != nil {
				return nil, err
			}
			top.nodeIndex++
			branch := node.ThenGroupID
			if !condition {
				branch = node.ElseGroupID
			}
			if err := e.pushGroupFrame(branch, completionResumeAfterChild); err != nil {
				return nil, err
			}

		case *script.WhileNode:
			condition, err := e.evalBoolean(node.WhenExpr)
			if err != nil {
				return nil, err
			}
			if condition {
				if err := e.pushGroupFrame(node.BodyGroupID, completionWhileBody); err != nil {
					return nil, err
				}
			} else {
				top.nodeIndex++
			}

		case *script.ChoiceNode:
			items, err := e.visibleChoiceItems(scriptName, node)
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				top.nodeIndex++
				continue
			}
			prompt, err := e.renderText(node.PromptText)
			if err != nil {
				return nil, err
			}
			e.pending = &pendingBoundary{
				kind:       boundaryChoice,
				frameID:    top.id,
				nodeID:     node.ID,
				items:      items,
				promptText: prompt,
			}
			e.waitingChoice = true
			return ChoicesOutput{PromptText: prompt, Items: items}, nil

		case *script.InputNode:
			current, err := e.readPath(node.TargetVar)
			if err != nil {
				return nil, err
			}
			defaultText, ok := current.AsString()
			if !ok {
				return nil, script.Errorf(script.CodeInputVarType,
					"input target var %q must be string", node.TargetVar)
			}
			e.pending = &pendingBoundary{
				kind:        boundaryInput,
				frameID:     top.id,
				nodeID:      node.ID,
				targetVar:   node.TargetVar,
				promptText:  node.PromptText,
				defaultText: defaultText,
			}
			e.waitingChoice = false
			return InputOutput{PromptText: node.PromptText, DefaultText: defaultText}, nil

		case *script.CallNode:
			if err := e.executeCall(node.Target, node.Args); err != nil {
				return nil, err
			}

		case *script.ReturnNode:
			if err := e.executeReturn(node.Target, node.Args); err != nil {
				return nil, err
			}

		case *script.BreakNode:
			if err := e.executeBreak(); err != nil {
				return nil, err
			}

		case *script.ContinueNode:
			var err error
			if node.Target == script.ContinueChoice {
				err = e.executeContinueChoice()
			} else {
				err = e.executeContinueWhile()
			}
			if err != nil {
				return nil, err
			}

		default:
			return nil, script.Errorf(script.CodeProgramInvalid,
				"unknown node type at group %q index %d", top.groupID, top.nodeIndex)
		}
	}

	return nil, script.Errorf(script.CodeGuardExceeded,
		"execution exceeded the step limit of %d", e.stepLimit)
}

// visibleChoiceItems applies when and once gating to the regular
// options. When none survive, the fall-over option (if any) is
// presented unconditionally so the choice cannot dead-end.
func (e *Engine) visibleChoiceItems(scriptName string, node *script.ChoiceNode) ([]ChoiceItem, error) {
	var visible []script.ChoiceOption
	for _, opt := range node.Options {
		if opt.FallOver {
			continue
		}
		ok, err := e.isChoiceOptionVisible(scriptName, opt)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, opt)
		}
	}

	if len(visible) == 0 {
		for _, opt := range node.Options {
			if opt.FallOver {
				visible = append(visible, opt)
				break
			}
		}
	}

	items := make([]ChoiceItem, 0, len(visible))
	for index, opt := range visible {
		text, err := e.renderText(opt.Text)
		if err != nil {
			return nil, err
		}
		items = append(items, ChoiceItem{Index: index, ID: opt.ID, Text: text})
	}
	return items, nil
}

func (e *Engine) isChoiceOptionVisible(scriptName string, opt script.ChoiceOption) (bool, error) {
	if opt.WhenExpr != "" {
		ok, err := e.evalBoolean(opt.WhenExpr)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if !opt.Once {
		return true, nil
	}
	return !e.hasOnceState(scriptName, "option:"+opt.ID), nil
}

func (e *Engine) boundaryOutput(b *pendingBoundary) Output {
	if b.kind == boundaryChoice {
		items := make([]ChoiceItem, len(b.items))
		copy(items, b.items)
		return ChoicesOutput{PromptText: b.promptText, Items: items}
	}
	return InputOutput{PromptText: b.promptText, DefaultText: b.defaultText}
}

func (e *Engine) hasOnceState(scriptName, key string) bool {
	return e.onceState[scriptName][key]
}

func (e *Engine) markOnceState(scriptName, key string) {
	set, ok := e.onceState[scriptName]
	if !ok {
		set = make(map[string]bool)
		e.onceState[scriptName] = set
	}
	set[key] = true
}
