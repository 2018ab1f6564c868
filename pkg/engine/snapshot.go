package engine

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/skald-lang/skald/pkg/script"
)

// SchemaVersion identifies the snapshot wire schema. Snapshots written
// under a different schema are rejected on resume.
const SchemaVersion = "snapshot.v3"

// TaggedValue is the snapshot encoding of a story value. The explicit
// type tag keeps empty arrays and maps distinguishable and makes the
// JSON diffable by hand.
type TaggedValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

func taggedFromValue(v script.Value) TaggedValue {
	switch v.Kind() {
	case script.KindBool:
		b, _ := v.AsBool()
		raw, _ := json.Marshal(b)
		return TaggedValue{T: "bool", V: raw}
	case script.KindNumber:
		f, _ := v.AsNumber()
		var raw []byte
		switch {
		case math.IsNaN(f):
			raw, _ = json.Marshal("NaN")
		case math.IsInf(f, 1):
			raw, _ = json.Marshal("+Inf")
		case math.IsInf(f, -1):
			raw, _ = json.Marshal("-Inf")
		default:
			raw, _ = json.Marshal(f)
		}
		return TaggedValue{T: "num", V: raw}
	case script.KindString:
		s, _ := v.AsString()
		raw, _ := json.Marshal(s)
		return TaggedValue{T: "str", V: raw}
	case script.KindArray:
		arr, _ := v.AsArray()
		items := make([]TaggedValue, len(arr))
		for i, item := range arr {
			items[i] = taggedFromValue(item)
		}
		raw, _ := json.Marshal(items)
		return TaggedValue{T: "arr", V: raw}
	case script.KindMap:
		obj, _ := v.AsMap()
		entries := make(map[string]TaggedValue, len(obj))
		for k, item := range obj {
			entries[k] = taggedFromValue(item)
		}
		raw, _ := json.Marshal(entries)
		return TaggedValue{T: "map", V: raw}
	default:
		return TaggedValue{T: "map", V: json.RawMessage("{}")}
	}
}

func (t TaggedValue) value() (script.Value, error) {
	switch t.T {
	case "bool":
		var b bool
		if err := json.Unmarshal(t.V, &b); err != nil {
			return script.Value{}, script.Errorf(script.CodeSnapshotDecode, "bad bool value: %v", err)
		}
		return script.Bool(b), nil
	case "num":
		var f float64
		if err := json.Unmarshal(t.V, &f); err == nil {
			return script.Number(f), nil
		}
		var special string
		if err := json.Unmarshal(t.V, &special); err == nil {
			switch special {
			case "NaN":
				return script.Number(math.NaN()), nil
			case "+Inf":
				return script.Number(math.Inf(1)), nil
			case "-Inf":
				return script.Number(math.Inf(-1)), nil
			}
		}
		return script.Value{}, script.Errorf(script.CodeSnapshotDecode,
			"bad num value %s", string(t.V))
	case "str":
		var s string
		if err := json.Unmarshal(t.V, &s); err != nil {
			return script.Value{}, script.Errorf(script.CodeSnapshotDecode, "bad str value: %v", err)
		}
		return script.String(s), nil
	case "arr":
		var items []TaggedValue
		if err := json.Unmarshal(t.V, &items); err != nil {
			return script.Value{}, script.Errorf(script.CodeSnapshotDecode, "bad arr value: %v", err)
		}
		values := make([]script.Value, len(items))
		for i, item := range items {
			v, err := item.value()
			if err != nil {
				return script.Value{}, err
			}
			values[i] = v
		}
		return script.Array(values...), nil
	case "map":
		var entries map[string]TaggedValue
		if err := json.Unmarshal(t.V, &entries); err != nil {
			return script.Value{}, script.Errorf(script.CodeSnapshotDecode, "bad map value: %v", err)
		}
		values := make(map[string]script.Value, len(entries))
		for k, item := range entries {
			v, err := item.value()
			if err != nil {
				return script.Value{}, err
			}
			values[k] = v
		}
		return script.MapValue(values), nil
	default:
		return script.Value{}, script.Errorf(script.CodeSnapshotDecode,
			"unknown value tag %q", t.T)
	}
}

// SnapshotContinuation records where a finished script root resumes
// its caller and which ref parameters flush back through which paths.
type SnapshotContinuation struct {
	ResumeFrame   uint64            `json:"resumeFrame"`
	NextNodeIndex int               `json:"nextNodeIndex"`
	RefBindings   map[string]string `json:"refBindings,omitempty"`
}

// SnapshotFrame is one stack frame.
type SnapshotFrame struct {
	ID           uint64                 `json:"id"`
	Group        string                 `json:"group"`
	NodeIndex    int                    `json:"nodeIndex"`
	Scope        map[string]TaggedValue `json:"scope"`
	VarTypes     map[string]script.Type `json:"varTypes,omitempty"`
	Completion   string                 `json:"completion,omitempty"`
	ScriptRoot   bool                   `json:"scriptRoot,omitempty"`
	Continuation *SnapshotContinuation  `json:"continuation,omitempty"`
}

// SnapshotBoundary re-identifies the pending choice or input so resume
// can verify the program still matches.
type SnapshotBoundary struct {
	Kind        string       `json:"kind"`
	Frame       uint64       `json:"frame"`
	Node        string       `json:"node"`
	Items       []ChoiceItem `json:"items,omitempty"`
	Prompt      string       `json:"prompt,omitempty"`
	TargetVar   string       `json:"targetVar,omitempty"`
	DefaultText string       `json:"defaultText,omitempty"`
}

// Snapshot is the complete serialized execution state, taken at a
// choice or input boundary.
type Snapshot struct {
	Schema          string                 `json:"schema"`
	CompilerVersion string                 `json:"compilerVersion"`
	RNGState        uint32                 `json:"rngState"`
	OnceState       map[string][]string    `json:"onceState,omitempty"`
	DefsGlobals     map[string]TaggedValue `json:"defsGlobals,omitempty"`
	Frames          []SnapshotFrame        `json:"frames"`
	Boundary        *SnapshotBoundary      `json:"boundary"`
}

const (
	completionNameWhileBody        = "whileBody"
	completionNameResumeAfterChild = "resumeAfterChild"
	boundaryNameChoice             = "choice"
	boundaryNameInput              = "input"
)

// Snapshot captures the current execution state. It is only valid at a
// boundary: mid-step state holds interpreter internals that do not
// serialize.
func (e *Engine) Snapshot() (*Snapshot, error) {
	if e.pending == nil {
		return nil, script.NewError(script.CodeSnapshotNotAllowed,
			"snapshots are taken at choice or input boundaries")
	}

	snap := &Snapshot{
		Schema:          SchemaVersion,
		CompilerVersion: e.compilerVersion,
		RNGState:        e.rngState,
		OnceState:       make(map[string][]string, len(e.onceState)),
		DefsGlobals:     make(map[string]TaggedValue, len(e.defsValues)),
		Frames:          make([]SnapshotFrame, 0, len(e.frames)),
	}

	for scriptName, keys := range e.onceState {
		if len(keys) == 0 {
			continue
		}
		sorted := make([]string, 0, len(keys))
		for key := range keys {
			sorted = append(sorted, key)
		}
		sort.Strings(sorted)
		snap.OnceState[scriptName] = sorted
	}

	for qualified, value := range e.defsValues {
		snap.DefsGlobals[qualified] = taggedFromValue(value)
	}

	for _, f := range e.frames {
		sf := SnapshotFrame{
			ID:         f.id,
			Group:      f.groupID,
			NodeIndex:  f.nodeIndex,
			Scope:      make(map[string]TaggedValue, len(f.scope)),
			ScriptRoot: f.scriptRoot,
		}
		for name, value := range f.scope {
			sf.Scope[name] = taggedFromValue(value)
		}
		if len(f.varTypes) > 0 {
			sf.VarTypes = make(map[string]script.Type, len(f.varTypes))
			for name, t := range f.varTypes {
				sf.VarTypes[name] = t
			}
		}
		switch f.completion {
		case completionWhileBody:
			sf.Completion = completionNameWhileBody
		case completionResumeAfterChild:
			sf.Completion = completionNameResumeAfterChild
		}
		if f.cont != nil {
			cont := &SnapshotContinuation{
				ResumeFrame:   f.cont.resumeFrameID,
				NextNodeIndex: f.cont.nextNodeIndex,
			}
			if len(f.cont.refBindings) > 0 {
				cont.RefBindings = make(map[string]string, len(f.cont.refBindings))
				for k, v := range f.cont.refBindings {
					cont.RefBindings[k] = v
				}
			}
			sf.Continuation = cont
		}
		snap.Frames = append(snap.Frames, sf)
	}

	boundary := &SnapshotBoundary{
		Frame: e.pending.frameID,
		Node:  e.pending.nodeID,
	}
	if e.pending.kind == boundaryChoice {
		boundary.Kind = boundaryNameChoice
		boundary.Items = append([]ChoiceItem(nil), e.pending.items...)
		boundary.Prompt = e.pending.promptText
	} else {
		boundary.Kind = boundaryNameInput
		boundary.Prompt = e.pending.promptText
		boundary.TargetVar = e.pending.targetVar
		boundary.DefaultText = e.pending.defaultText
	}
	snap.Boundary = boundary
	return snap, nil
}

// Resume reconstructs a live engine from a snapshot. The program and
// host functions come from opts and must be the same compilation the
// snapshot was taken from; the compiler version check guards against
// silent drift.
func Resume(opts Options, snap *Snapshot) (*Engine, error) {
	if snap == nil || len(snap.Frames) == 0 {
		return nil, script.NewError(script.CodeSnapshotEmpty,
			"snapshot holds no execution state")
	}
	if snap.Schema != SchemaVersion {
		return nil, script.Errorf(script.CodeSnapshotSchema,
			"snapshot schema %q is not %q", snap.Schema, SchemaVersion)
	}

	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	if snap.CompilerVersion != e.compilerVersion {
		return nil, script.Errorf(script.CodeSnapshotCompilerVersion,
			"snapshot was written by compiler %q, engine expects %q",
			snap.CompilerVersion, e.compilerVersion)
	}

	e.rngState = snap.RNGState
	e.onceState = make(map[string]map[string]bool, len(snap.OnceState))
	for scriptName, keys := range snap.OnceState {
		set := make(map[string]bool, len(keys))
		for _, key := range keys {
			set[key] = true
		}
		e.onceState[scriptName] = set
	}

	if snap.DefsGlobals == nil {
		if err := e.initDefsGlobals(); err != nil {
			return nil, err
		}
	} else {
		e.defsValues = make(map[string]script.Value, len(snap.DefsGlobals))
		for qualified, tagged := range snap.DefsGlobals {
			if _, declared := e.program.DefsGlobals[qualified]; !declared {
				return nil, script.Errorf(script.CodeDefsDeclMissing,
					"snapshot defs global %q has no declaration", qualified)
			}
			value, err := tagged.value()
			if err != nil {
				return nil, err
			}
			e.defsValues[qualified] = value
		}
	}

	maxID := uint64(0)
	for _, sf := range snap.Frames {
		if _, ok := e.groupScript[sf.Group]; !ok {
			return nil, script.Errorf(script.CodeGroupNotFound,
				"snapshot frame references unknown group %q", sf.Group)
		}
		f := &frame{
			id:         sf.ID,
			groupID:    sf.Group,
			nodeIndex:  sf.NodeIndex,
			scope:      make(map[string]script.Value, len(sf.Scope)),
			varTypes:   make(map[string]script.Type, len(sf.VarTypes)),
			scriptRoot: sf.ScriptRoot,
		}
		for name, tagged := range sf.Scope {
			value, err := tagged.value()
			if err != nil {
				return nil, err
			}
			f.scope[name] = value
		}
		for name, t := range sf.VarTypes {
			f.varTypes[name] = t
		}
		switch sf.Completion {
		case "":
			f.completion = completionNone
		case completionNameWhileBody:
			f.completion = completionWhileBody
		case completionNameResumeAfterChild:
			f.completion = completionResumeAfterChild
		default:
			return nil, script.Errorf(script.CodeSnapshotDecode,
				"unknown completion kind %q", sf.Completion)
		}
		if sf.Continuation != nil {
			f.cont = &continuation{
				resumeFrameID: sf.Continuation.ResumeFrame,
				nextNodeIndex: sf.Continuation.NextNodeIndex,
			}
			if len(sf.Continuation.RefBindings) > 0 {
				f.cont.refBindings = make(map[string]string, len(sf.Continuation.RefBindings))
				for k, v := range sf.Continuation.RefBindings {
					f.cont.refBindings[k] = v
				}
			}
		}
		if sf.ID > maxID {
			maxID = sf.ID
		}
		e.frames = append(e.frames, f)
	}
	e.frameCounter = maxID + 1

	if snap.Boundary != nil {
		if err := e.restoreBoundary(snap.Boundary); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// restoreBoundary re-resolves the pending boundary against the current
// program and rejects the snapshot when the node no longer lines up.
func (e *Engine) restoreBoundary(b *SnapshotBoundary) error {
	index, ok := e.findFrameIndex(b.Frame)
	if !ok {
		return script.Errorf(script.CodeSnapshotPendingBoundary,
			"boundary frame %d is not on the restored stack", b.Frame)
	}
	owner := e.frames[index]
	_, group, err := e.lookupGroup(owner.groupID)
	if err != nil {
		return err
	}
	if owner.nodeIndex >= len(group.Nodes) {
		return script.NewError(script.CodeSnapshotPendingBoundary,
			"boundary cursor is past the end of its group")
	}
	node := group.Nodes[owner.nodeIndex]

	switch b.Kind {
	case boundaryNameChoice:
		choice, ok := node.(*script.ChoiceNode)
		if !ok || choice.ID != b.Node {
			return script.NewError(script.CodeSnapshotPendingBoundary,
				"the node at the boundary cursor is not the recorded choice")
		}
		e.pending = &pendingBoundary{
			kind:       boundaryChoice,
			frameID:    b.Frame,
			nodeID:     b.Node,
			items:      append([]ChoiceItem(nil), b.Items...),
			promptText: b.Prompt,
		}
		e.waitingChoice = true
	case boundaryNameInput:
		input, ok := node.(*script.InputNode)
		if !ok || input.ID != b.Node {
			return script.NewError(script.CodeSnapshotPendingBoundary,
				"the node at the boundary cursor is not the recorded input")
		}
		e.pending = &pendingBoundary{
			kind:        boundaryInput,
			frameID:     b.Frame,
			nodeID:      b.Node,
			promptText:  b.Prompt,
			targetVar:   b.TargetVar,
			defaultText: b.DefaultText,
		}
		e.waitingChoice = false
	default:
		return script.Errorf(script.CodeSnapshotDecode,
			"unknown boundary kind %q", b.Kind)
	}
	return nil
}

// EncodeSnapshot renders a snapshot as indented JSON, stable enough to
// diff between saves.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, script.Errorf(script.CodeSnapshotDecode, "encode snapshot: %v", err)
	}
	return data, nil
}

// DecodeSnapshot parses snapshot JSON.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, script.Errorf(script.CodeSnapshotDecode, "decode snapshot: %v", err)
	}
	return &snap, nil
}
