package engine

import "github.com/skald-lang/skald/pkg/script"

func (e *Engine) executeVarDeclaration(decl script.VarDecl) error {
	top, err := e.topFrame()
	if err != nil {
		return err
	}
	if _, exists := top.scope[decl.Name]; exists {
		return script.Errorf(script.CodeVarDuplicate,
			"variable %q is already declared in current scope", decl.Name)
	}

	value := decl.Type.Default()
	if decl.InitExpr != "" {
		value, err = e.evalExpression(decl.InitExpr)
		if err != nil {
			return err
		}
	}
	value = coerceToType(value, decl.Type)
	if !decl.Type.Compatible(value) {
		return script.Errorf(script.CodeTypeMismatch,
			"variable %q does not match declared type", decl.Name)
	}

	top.scope[decl.Name] = value
	top.varTypes[decl.Name] = decl.Type
	return nil
}

// executeCall pushes a fresh root frame for the target script. A call
// sitting on the last node of a root frame that itself has a return
// continuation is treated as a tail call: the caller frame is replaced
// and the target inherits the continuation.
func (e *Engine) executeCall(targetScript string, args []script.CallArg) error {
	caller, err := e.topFrame()
	if err != nil {
		return err
	}
	_, callerGroup, err := e.lookupGroup(caller.groupID)
	if err != nil {
		return err
	}
	target := e.program.Script(targetScript)
	if target == nil {
		return script.Errorf(script.CodeCallTarget,
			"call target script %q not found", targetScript)
	}

	argValues := make(map[string]script.Value)
	refBindings := make(map[string]string)
	for i, arg := range args {
		if i >= len(target.Params) {
			return script.Errorf(script.CodeCallArgUnknown,
				"call argument at position %d has no matching parameter", i+1)
		}
		param := target.Params[i]
		if param.IsRef && !arg.IsRef {
			return script.Errorf(script.CodeCallRefMismatch,
				"call argument %d must use ref mode", i+1)
		}
		if !param.IsRef && arg.IsRef {
			return script.Errorf(script.CodeCallRefMismatch,
				"call argument %d cannot use ref mode", i+1)
		}

		if arg.IsRef {
			value, err := e.readPath(arg.ValueExpr)
			if err != nil {
				return err
			}
			argValues[param.Name] = value
			refBindings[param.Name] = arg.ValueExpr
		} else {
			value, err := e.evalExpression(arg.ValueExpr)
			if err != nil {
				return err
			}
			argValues[param.Name] = value
		}
	}

	isTailAtRoot := caller.scriptRoot &&
		caller.nodeIndex == len(callerGroup.Nodes)-1 &&
		caller.cont != nil

	if isTailAtRoot && len(refBindings) > 0 {
		return script.NewError(script.CodeTailRefUnsupported,
			"tail call with ref args is not supported")
	}

	if isTailAtRoot {
		inherited := caller.cont
		e.frames = e.frames[:len(e.frames)-1]
		scope, varTypes, err := e.createScriptRootScope(targetScript, argValues)
		if err != nil {
			return err
		}
		e.pushRootFrame(target.RootGroupID, scope, inherited, varTypes)
		return nil
	}

	cont := &continuation{
		resumeFrameID: caller.id,
		nextNodeIndex: caller.nodeIndex + 1,
		refBindings:   refBindings,
	}
	scope, varTypes, err := e.createScriptRootScope(targetScript, argValues)
	if err != nil {
		return err
	}
	e.pushRootFrame(target.RootGroupID, scope, cont, varTypes)
	return nil
}

// executeReturn ends the current script. With a target it is a scene
// transfer: the current script's frames are torn down, ref parameters
// are flushed to the caller, and the target starts fresh while
// inheriting the (ref-free) continuation.
func (e *Engine) executeReturn(targetScript string, args []script.CallArg) error {
	rootIndex, err := e.findCurrentRootFrameIndex()
	if err != nil {
		return err
	}
	root := e.frames[rootIndex]
	inherited := root.cont

	var transferArgs map[string]script.Value
	var target *script.Script
	if targetScript != "" {
		target = e.program.Script(targetScript)
		if target == nil {
			return script.Errorf(script.CodeReturnTarget,
				"return target script %q not found", targetScript)
		}
		transferArgs = make(map[string]script.Value)
		for i, arg := range args {
			if i >= len(target.Params) {
				return script.Errorf(script.CodeCallArgUnknown,
					"return argument at position %d has no target parameter", i+1)
			}
			value, err := e.evalExpression(arg.ValueExpr)
			if err != nil {
				return err
			}
			transferArgs[target.Params[i].Name] = value
		}
	}

	e.frames = e.frames[:rootIndex]

	if target != nil {
		var forwarded *continuation
		if inherited != nil {
			if _, ok := e.findFrameIndex(inherited.resumeFrameID); ok {
				for calleeVar, callerPath := range inherited.refBindings {
					value, present := root.scope[calleeVar]
					if !present {
						continue
					}
					if err := e.writePath(callerPath, value); err != nil {
						return err
					}
				}
			}
			forwarded = &continuation{
				resumeFrameID: inherited.resumeFrameID,
				nextNodeIndex: inherited.nextNodeIndex,
				refBindings:   map[string]string{},
			}
		}

		scope, varTypes, err := e.createScriptRootScope(targetScript, transferArgs)
		if err != nil {
			return err
		}
		e.pushRootFrame(target.RootGroupID, scope, forwarded, varTypes)
		return nil
	}

	if inherited == nil {
		e.endExecution()
		return nil
	}
	resumeIndex, ok := e.findFrameIndex(inherited.resumeFrameID)
	if !ok {
		if len(inherited.refBindings) > 0 {
			return script.NewError(script.CodeRefFrameMissing,
				"ref parameter caller frame is no longer on the stack")
		}
		e.endExecution()
		return nil
	}

	for calleeVar, callerPath := range inherited.refBindings {
		if value, present := root.scope[calleeVar]; present {
			if err := e.writePath(callerPath, value); err != nil {
				return err
			}
		}
	}
	e.frames[resumeIndex].nodeIndex = inherited.nextNodeIndex
	return nil
}

func (e *Engine) findCurrentRootFrameIndex() (int, error) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if e.frames[i].scriptRoot {
			return i, nil
		}
	}
	return 0, script.NewError(script.CodeRootFrame, "no script root frame found")
}
