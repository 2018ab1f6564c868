// Package engine executes compiled story programs as a resumable,
// host-driven state machine. The host pulls outputs one at a time and
// resolves choice and input boundaries; the full continuation can be
// captured at any boundary and restored later.
package engine

import (
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/skald-lang/skald/pkg/script"
)

const (
	// DefaultCompilerVersion tags snapshots when the host does not
	// supply a version of its own.
	DefaultCompilerVersion = "player.v1"

	defaultRandomSeed = 1
)

// HostFunc is a single host-provided function callable from embedded
// code blocks and expressions.
type HostFunc func(args []script.Value) (script.Value, error)

// HostFunctionRegistry resolves host function calls by name. Call must
// fail for unregistered names; Names drives symbol registration in the
// embedded evaluator.
type HostFunctionRegistry interface {
	Call(name string, args []script.Value) (script.Value, error)
	Names() []string
}

// HostFuncMap is the map-backed registry most hosts want.
type HostFuncMap map[string]HostFunc

func (m HostFuncMap) Call(name string, args []script.Value) (script.Value, error) {
	fn, ok := m[name]
	if !ok {
		return script.Value{}, script.Errorf(script.CodeHostFuncMissing,
			"host function %q is not registered", name)
	}
	return fn(args)
}

func (m HostFuncMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type emptyRegistry struct{}

func (emptyRegistry) Call(name string, _ []script.Value) (script.Value, error) {
	return script.Value{}, script.Errorf(script.CodeHostFuncMissing,
		"host function %q is not registered", name)
}

func (emptyRegistry) Names() []string { return nil }

// Options configures a new Engine.
type Options struct {
	Program *script.Program

	// HostFunctions is optional; calls into unregistered names fail.
	HostFunctions HostFunctionRegistry

	// RandomSeed seeds the deterministic generator. Zero selects the
	// default seed so the zero Options value is usable.
	RandomSeed uint32

	// CompilerVersion is stamped into snapshots and validated on
	// resume. Empty selects DefaultCompilerVersion.
	CompilerVersion string

	// StepLimit bounds the silent work between two outputs. Zero
	// means unbounded; the host is then responsible for aborting
	// runaway loops.
	StepLimit int
}

type completionKind uint8

const (
	completionNone completionKind = iota
	completionWhileBody
	completionResumeAfterChild
)

type continuation struct {
	resumeFrameID uint64
	nextNodeIndex int
	// refBindings maps callee parameter name to the caller-side path
	// the value is written back through.
	refBindings map[string]string
}

type frame struct {
	id         uint64
	groupID    string
	nodeIndex  int
	scope      map[string]script.Value
	varTypes   map[string]script.Type
	completion completionKind
	scriptRoot bool
	cont       *continuation
}

type boundaryKind uint8

const (
	boundaryChoice boundaryKind = iota
	boundaryInput
)

type pendingBoundary struct {
	kind        boundaryKind
	frameID     uint64
	nodeID      string
	items       []ChoiceItem
	promptText  string
	targetVar   string
	defaultText string
}

// Engine runs one playthrough of a compiled program. It is not safe
// for concurrent use; hosts sharing an instance across goroutines must
// serialize access themselves.
type Engine struct {
	program         *script.Program
	hostFuncs       HostFunctionRegistry
	compilerVersion string
	stepLimit       int
	initialSeed     uint32

	groupScript map[string]string
	visibleJSON map[string]map[string]bool
	visibleDefs map[string]map[string]bool
	defsAliases map[string]map[string]string

	ls        *lua.LState
	arrayMeta *lua.LTable
	mapMeta   *lua.LTable
	preludes  map[string]*lua.FunctionProto
	hostErr   *script.Error

	frames        []*frame
	pending       *pendingBoundary
	waitingChoice bool
	ended         bool
	frameCounter  uint64
	rngState      uint32
	onceState     map[string]map[string]bool
	defsValues    map[string]script.Value
}

// New builds an engine for the given program. The program is shared,
// not copied; callers must not mutate it while the engine is live.
func New(opts Options) (*Engine, error) {
	if err := opts.Program.Validate(); err != nil {
		return nil, err
	}

	registry := opts.HostFunctions
	if registry == nil {
		registry = emptyRegistry{}
	}
	for _, name := range registry.Names() {
		if name == "random" {
			return nil, script.NewError(script.CodeHostFuncReserved,
				`host functions cannot register the reserved builtin name "random"`)
		}
		if strings.Contains(name, ".") {
			return nil, script.Errorf(script.CodeHostFuncReserved,
				"host function name %q cannot be namespaced", name)
		}
	}

	compilerVersion := opts.CompilerVersion
	if compilerVersion == "" {
		compilerVersion = DefaultCompilerVersion
	}
	seed := opts.RandomSeed
	if seed == 0 {
		seed = defaultRandomSeed
	}

	e := &Engine{
		program:         opts.Program,
		hostFuncs:       registry,
		compilerVersion: compilerVersion,
		stepLimit:       opts.StepLimit,
		initialSeed:     seed,
		groupScript:     make(map[string]string),
		visibleJSON:     make(map[string]map[string]bool),
		visibleDefs:     make(map[string]map[string]bool),
		defsAliases:     make(map[string]map[string]string),
		preludes:        make(map[string]*lua.FunctionProto),
		frameCounter:    1,
		rngState:        seed,
		onceState:       make(map[string]map[string]bool),
		defsValues:      make(map[string]script.Value),
	}

	for name, sc := range opts.Program.Scripts {
		for groupID := range sc.Groups {
			e.groupScript[groupID] = name
		}

		jsonSet := make(map[string]bool, len(sc.VisibleJSONGlobals))
		for _, global := range sc.VisibleJSONGlobals {
			jsonSet[global] = true
		}
		e.visibleJSON[name] = jsonSet

		defsSet := make(map[string]bool, len(sc.VisibleDefsGlobals))
		for _, qualified := range sc.VisibleDefsGlobals {
			defsSet[qualified] = true
		}
		e.visibleDefs[name] = defsSet
		e.defsAliases[name] = shortAliases(sc.VisibleDefsGlobals)

		for fnName := range sc.Functions {
			for _, hostName := range registry.Names() {
				if hostName == fnName {
					return nil, script.Errorf(script.CodeHostFuncConflict,
						"host function %q conflicts with a defs function of the same name", fnName)
				}
			}
		}
	}

	if err := e.initLuaState(); err != nil {
		return nil, err
	}
	return e, nil
}

// shortAliases maps bare defs names to their qualified form when the
// bare name is unambiguous within the visible set.
func shortAliases(visible []string) map[string]string {
	counts := make(map[string][]string)
	for _, qualified := range visible {
		_, name, ok := strings.Cut(qualified, ".")
		if !ok {
			continue
		}
		counts[name] = append(counts[name], qualified)
	}
	aliases := make(map[string]string)
	for name, qualifieds := range counts {
		if len(qualifieds) == 1 {
			aliases[name] = qualifieds[0]
		}
	}
	return aliases
}

// CompilerVersion reports the version stamped into snapshots.
func (e *Engine) CompilerVersion() string { return e.compilerVersion }

// WaitingChoice reports whether a choice boundary is pending.
func (e *Engine) WaitingChoice() bool { return e.waitingChoice }

// Ended reports whether the playthrough has finished.
func (e *Engine) Ended() bool { return e.ended }

// Start begins a fresh playthrough of the named entry script. An empty
// name selects the program's declared entry, falling back to "main".
// Args are bound to the entry script's declared parameters. Once-state,
// the RNG and defs globals are all reset.
func (e *Engine) Start(entryScript string, args map[string]script.Value) error {
	if entryScript == "" {
		entryScript = e.program.EntryScript
		if entryScript == "" {
			entryScript = "main"
		}
	}
	sc := e.program.Script(entryScript)
	if sc == nil {
		return script.Errorf(script.CodeScriptNotFound,
			"entry script %q is not registered", entryScript)
	}

	e.reset()
	e.onceState = make(map[string]map[string]bool)
	if err := e.initDefsGlobals(); err != nil {
		return err
	}

	scope, varTypes, err := e.createScriptRootScope(entryScript, args)
	if err != nil {
		return err
	}
	e.pushRootFrame(sc.RootGroupID, scope, nil, varTypes)
	return nil
}

func (e *Engine) reset() {
	e.frames = nil
	e.pending = nil
	e.waitingChoice = false
	e.ended = false
	e.frameCounter = 1
	e.rngState = e.initialSeed
}

// initDefsGlobals evaluates defs-global initializers in declaration
// order. Each initializer may reference globals declared before it.
func (e *Engine) initDefsGlobals() error {
	e.defsValues = make(map[string]script.Value, len(e.program.DefsGlobals))
	for _, qualified := range e.program.DefsInitOrder {
		decl := e.program.DefsGlobals[qualified]
		value := decl.Type.Default()
		if decl.InitExpr != "" {
			evaluated, err := e.evalDefsInitializer(decl.InitExpr)
			if err != nil {
				return err
			}
			value = coerceToType(evaluated, decl.Type)
			if !decl.Type.Compatible(value) {
				return script.Errorf(script.CodeTypeMismatch,
					"defs global %q does not match declared type", qualified)
			}
		}
		e.defsValues[qualified] = value
	}
	return nil
}

func (e *Engine) createScriptRootScope(scriptName string, args map[string]script.Value) (map[string]script.Value, map[string]script.Type, error) {
	sc := e.program.Script(scriptName)
	if sc == nil {
		return nil, nil, script.Errorf(script.CodeScriptNotFound, "script %q not found", scriptName)
	}

	scope := make(map[string]script.Value, len(sc.Params))
	varTypes := make(map[string]script.Type, len(sc.Params))
	for _, param := range sc.Params {
		scope[param.Name] = param.Type.Default()
		varTypes[param.Name] = param.Type
	}

	for name, value := range args {
		expected, declared := varTypes[name]
		if !declared {
			return nil, nil, script.Errorf(script.CodeCallArgUnknown,
				"argument %q is not declared by script %q", name, scriptName)
		}
		value = coerceToType(value, expected)
		if !expected.Compatible(value) {
			return nil, nil, script.Errorf(script.CodeTypeMismatch,
				"argument %q does not match declared type", name)
		}
		scope[name] = value.Clone()
	}
	return scope, varTypes, nil
}

// coerceToType resolves the empty-collection ambiguity of the embedded
// language: an empty table decodes as a map, so it is reshaped when
// the declared type wants an array, recursively.
func coerceToType(v script.Value, t script.Type) script.Value {
	switch t.Kind {
	case script.TypeArray:
		if m, ok := v.AsMap(); ok && len(m) == 0 {
			return script.Array()
		}
		if arr, ok := v.AsArray(); ok && t.Elem != nil {
			items := make([]script.Value, len(arr))
			for i, item := range arr {
				items[i] = coerceToType(item, *t.Elem)
			}
			return script.Array(items...)
		}
	case script.TypeMap:
		if m, ok := v.AsMap(); ok && t.Elem != nil {
			out := make(map[string]script.Value, len(m))
			for k, item := range m {
				out[k] = coerceToType(item, *t.Elem)
			}
			return script.MapValue(out)
		}
	case script.TypeObject:
		if m, ok := v.AsMap(); ok {
			out := make(map[string]script.Value, len(m))
			for k, item := range m {
				if ft, declared := t.Fields[k]; declared {
					out[k] = coerceToType(item, ft)
				} else {
					out[k] = item
				}
			}
			return script.MapValue(out)
		}
	}
	return v
}
