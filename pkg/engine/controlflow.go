package engine

import "github.com/skald-lang/skald/pkg/script"

func (e *Engine) executeBreak() error {
	bodyIndex, ok := e.findNearestWhileBodyFrameIndex()
	if !ok || bodyIndex == 0 {
		return script.NewError(script.CodeWhileControlTarget,
			"no enclosing while loop for break")
	}

	ownerIndex := bodyIndex - 1
	owner := e.frames[ownerIndex]
	_, group, err := e.lookupGroup(owner.groupID)
	if err != nil {
		return err
	}
	if owner.nodeIndex >= len(group.Nodes) {
		return script.NewError(script.CodeWhileControlTarget, "owning while node is missing")
	}
	if _, isWhile := group.Nodes[owner.nodeIndex].(*script.WhileNode); !isWhile {
		return script.NewError(script.CodeWhileControlTarget, "owning while node is missing")
	}

	e.frames = e.frames[:bodyIndex]
	e.frames[ownerIndex].nodeIndex++
	return nil
}

// executeContinueWhile drops back to the owning while node, which
// stays pointed at by the owner frame's cursor and re-tests its
// condition on the next step.
func (e *Engine) executeContinueWhile() error {
	bodyIndex, ok := e.findNearestWhileBodyFrameIndex()
	if !ok || bodyIndex == 0 {
		return script.NewError(script.CodeWhileControlTarget,
			"no enclosing while loop for continue")
	}
	e.frames = e.frames[:bodyIndex]
	return nil
}

// executeContinueChoice unwinds to the nearest frame whose cursor sits
// just past a choice node with a live option frame below, and points
// it back at the choice so it is presented again.
func (e *Engine) executeContinueChoice() error {
	frameIndex, nodeIndex, found, err := e.findChoiceContinueContext()
	if err != nil {
		return err
	}
	if !found {
		return script.NewError(script.CodeChoiceContinueTarget,
			"no enclosing choice for continue")
	}
	e.frames = e.frames[:frameIndex+1]
	e.frames[frameIndex].nodeIndex = nodeIndex
	return nil
}

func (e *Engine) findChoiceContinueContext() (int, int, bool, error) {
	for frameIndex := len(e.frames) - 1; frameIndex >= 0; frameIndex-- {
		f := e.frames[frameIndex]
		if f.nodeIndex == 0 {
			continue
		}
		_, group, err := e.lookupGroup(f.groupID)
		if err != nil {
			return 0, 0, false, err
		}
		choiceNodeIndex := f.nodeIndex - 1
		if choiceNodeIndex >= len(group.Nodes) {
			continue
		}
		choice, ok := group.Nodes[choiceNodeIndex].(*script.ChoiceNode)
		if !ok {
			continue
		}

		optionGroups := make(map[string]bool, len(choice.Options))
		for _, opt := range choice.Options {
			optionGroups[opt.GroupID] = true
		}
		for deep := frameIndex + 1; deep < len(e.frames); deep++ {
			if optionGroups[e.frames[deep].groupID] {
				return frameIndex, choiceNodeIndex, true, nil
			}
		}
	}
	return 0, 0, false, nil
}

func (e *Engine) findNearestWhileBodyFrameIndex() (int, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if e.frames[i].completion == completionWhileBody {
			return i, true
		}
	}
	return 0, false
}
