package engine

import (
	"strings"

	"github.com/skald-lang/skald/pkg/script"
)

// Choose resolves a pending choice boundary by the index the host was
// shown. On failure the boundary stays pending and the engine state is
// unchanged, so the host may retry with a valid index.
func (e *Engine) Choose(index int) error {
	if e.pending == nil || e.pending.kind != boundaryChoice {
		return script.NewError(script.CodeNoPendingChoice, "no choice is pending")
	}
	boundary := e.pending

	if index < 0 || index >= len(boundary.items) {
		return script.Errorf(script.CodeChoiceIndex,
			"choice index %d out of range 0..%d", index, len(boundary.items)-1)
	}

	frameIndex, ok := e.findFrameIndex(boundary.frameID)
	if !ok {
		return script.NewError(script.CodeChoiceFrameMissing,
			"the frame owning the pending choice is gone")
	}
	owner := e.frames[frameIndex]

	_, group, err := e.lookupGroup(owner.groupID)
	if err != nil {
		return err
	}
	if owner.nodeIndex >= len(group.Nodes) {
		return script.NewError(script.CodeChoiceNodeMissing,
			"the pending choice node is out of range")
	}
	node, ok := group.Nodes[owner.nodeIndex].(*script.ChoiceNode)
	if !ok || node.ID != boundary.nodeID {
		return script.NewError(script.CodeChoiceNodeMissing,
			"the node at the pending choice cursor is not the recorded choice")
	}

	optionID := boundary.items[index].ID
	var option *script.ChoiceOption
	for i := range node.Options {
		if node.Options[i].ID == optionID {
			option = &node.Options[i]
			break
		}
	}
	if option == nil {
		return script.Errorf(script.CodeChoiceNotFound,
			"option %q is no longer part of the choice", optionID)
	}

	scriptName := e.groupScript[owner.groupID]
	if option.Once {
		e.markOnceState(scriptName, "option:"+option.ID)
	}
	owner.nodeIndex++
	if err := e.pushGroupFrame(option.GroupID, completionResumeAfterChild); err != nil {
		return err
	}

	e.pending = nil
	e.waitingChoice = false
	return nil
}

// SubmitInput resolves a pending input boundary. Blank text (after
// trimming) falls back to the boundary's default so the target keeps
// its previous value.
func (e *Engine) SubmitInput(text string) error {
	if e.pending == nil || e.pending.kind != boundaryInput {
		return script.NewError(script.CodeNoPendingInput, "no input is pending")
	}
	boundary := e.pending

	frameIndex, ok := e.findFrameIndex(boundary.frameID)
	if !ok {
		return script.NewError(script.CodeInputFrameMissing,
			"the frame owning the pending input is gone")
	}

	value := text
	if strings.TrimSpace(value) == "" {
		value = boundary.defaultText
	}
	if err := e.writePath(boundary.targetVar, script.String(value)); err != nil {
		return err
	}

	e.frames[frameIndex].nodeIndex++
	e.pending = nil
	return nil
}
