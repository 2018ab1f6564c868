package engine

import "github.com/skald-lang/skald/pkg/script"

func (e *Engine) topFrame() (*frame, error) {
	if len(e.frames) == 0 {
		return nil, script.NewError(script.CodeNoFrame, "no runtime frame available")
	}
	return e.frames[len(e.frames)-1], nil
}

func (e *Engine) bumpTopNodeIndex(amount int) error {
	top, err := e.topFrame()
	if err != nil {
		return err
	}
	top.nodeIndex += amount
	return nil
}

func (e *Engine) findFrameIndex(frameID uint64) (int, bool) {
	for i, f := range e.frames {
		if f.id == frameID {
			return i, true
		}
	}
	return 0, false
}

// lookupGroup resolves a group ID to its owning script name and group.
func (e *Engine) lookupGroup(groupID string) (string, *script.Group, error) {
	scriptName, ok := e.groupScript[groupID]
	if !ok {
		return "", nil, script.Errorf(script.CodeGroupNotFound, "group %q not found", groupID)
	}
	sc := e.program.Script(scriptName)
	if sc == nil {
		return "", nil, script.Errorf(script.CodeScriptNotFound, "script %q not found", scriptName)
	}
	group := sc.Group(groupID)
	if group == nil {
		return "", nil, script.Errorf(script.CodeGroupNotFound, "group %q missing", groupID)
	}
	return scriptName, group, nil
}

func (e *Engine) pushRootFrame(groupID string, scope map[string]script.Value, cont *continuation, varTypes map[string]script.Type) {
	e.frames = append(e.frames, &frame{
		id:         e.frameCounter,
		groupID:    groupID,
		nodeIndex:  0,
		scope:      scope,
		varTypes:   varTypes,
		completion: completionNone,
		scriptRoot: true,
		cont:       cont,
	})
	e.frameCounter++
}

func (e *Engine) pushGroupFrame(groupID string, completion completionKind) error {
	if _, ok := e.groupScript[groupID]; !ok {
		return script.Errorf(script.CodeGroupNotFound, "group %q not found", groupID)
	}
	e.frames = append(e.frames, &frame{
		id:         e.frameCounter,
		groupID:    groupID,
		nodeIndex:  0,
		scope:      make(map[string]script.Value),
		varTypes:   make(map[string]script.Type),
		completion: completion,
		scriptRoot: false,
	})
	e.frameCounter++
	return nil
}

// finishFrame pops an exhausted frame. Popping a script root either
// ends the playthrough or resumes the caller recorded in the return
// continuation, flushing ref parameter values back through the
// caller-side paths first.
func (e *Engine) finishFrame(frameID uint64) error {
	index, ok := e.findFrameIndex(frameID)
	if !ok {
		return nil
	}
	finished := e.frames[index]
	e.frames = append(e.frames[:index], e.frames[index+1:]...)
	if !finished.scriptRoot {
		return nil
	}

	if finished.cont == nil {
		e.endExecution()
		return nil
	}

	resumeIndex, ok := e.findFrameIndex(finished.cont.resumeFrameID)
	if !ok {
		if len(finished.cont.refBindings) > 0 {
			return script.NewError(script.CodeRefFrameMissing,
				"ref parameter caller frame is no longer on the stack")
		}
		e.endExecution()
		return nil
	}

	for calleeVar, callerPath := range finished.cont.refBindings {
		value, present := finished.scope[calleeVar]
		if !present {
			return script.Errorf(script.CodeRefValueMissing,
				"missing ref value %q in callee scope", calleeVar)
		}
		if err := e.writePath(callerPath, value); err != nil {
			return err
		}
	}

	e.frames[resumeIndex].nodeIndex = finished.cont.nextNodeIndex
	return nil
}

func (e *Engine) endExecution() {
	e.ended = true
	e.frames = nil
}
