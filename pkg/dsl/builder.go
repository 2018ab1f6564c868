package dsl

import (
	"fmt"
	"sort"

	"github.com/skald-lang/skald/pkg/script"
)

// Builder manages program construction.
type Builder struct {
	entry       string
	scripts     map[string]*ScriptBuilder
	scriptOrder []string
	jsonGlobals map[string]script.Value
	defsGlobals map[string]script.DefsGlobalDecl
	defsOrder   []string
	err         error
}

// New creates a new program builder.
func New() *Builder {
	return &Builder{
		scripts:     make(map[string]*ScriptBuilder),
		jsonGlobals: make(map[string]script.Value),
		defsGlobals: make(map[string]script.DefsGlobalDecl),
	}
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// JSONGlobal registers a read-only data global visible to every script.
func (b *Builder) JSONGlobal(name string, value script.Value) *Builder {
	if _, ok := b.jsonGlobals[name]; ok {
		b.fail("json global %q already defined", name)
		return b
	}
	b.jsonGlobals[name] = value
	return b
}

// DefsGlobal registers a mutable global under a dotted qualified name,
// e.g. "stats.power". Initializers run in registration order at start,
// so later globals may reference earlier ones.
func (b *Builder) DefsGlobal(qualified string, typ script.Type, initExpr string) *Builder {
	namespace, name, ok := splitQualified(qualified)
	if !ok {
		b.fail("defs global %q must be namespace.name", qualified)
		return b
	}
	if _, exists := b.defsGlobals[qualified]; exists {
		b.fail("defs global %q already defined", qualified)
		return b
	}
	b.defsGlobals[qualified] = script.DefsGlobalDecl{
		QualifiedName: qualified,
		Namespace:     namespace,
		Name:          name,
		Type:          typ,
		InitExpr:      initExpr,
	}
	b.defsOrder = append(b.defsOrder, qualified)
	return b
}

// Entry selects the script that starts the story. Defaults to the
// first script added.
func (b *Builder) Entry(name string) *Builder {
	b.entry = name
	return b
}

// Script adds a script and returns its builder. Calling Script with an
// existing name returns the existing builder.
func (b *Builder) Script(name string) *ScriptBuilder {
	if sb, ok := b.scripts[name]; ok {
		return sb
	}
	if name == "" {
		b.fail("script name cannot be empty")
	}

	rootID := name + "/root"
	sb := &ScriptBuilder{
		builder: b,
		sc: &script.Script{
			Name:        name,
			RootGroupID: rootID,
			Groups:      map[string]*script.Group{rootID: {ID: rootID}},
			Functions:   make(map[string]script.FunctionDecl),
		},
	}
	sb.Body = &Body{script: sb, group: sb.sc.Groups[rootID]}
	b.scripts[name] = sb
	b.scriptOrder = append(b.scriptOrder, name)
	if b.entry == "" {
		b.entry = name
	}
	return sb
}

// Build compiles the accumulated definitions into a validated program.
func (b *Builder) Build() (*script.Program, error) {
	if b.err != nil {
		return nil, b.err
	}

	jsonNames := make([]string, 0, len(b.jsonGlobals))
	for name := range b.jsonGlobals {
		jsonNames = append(jsonNames, name)
	}
	sort.Strings(jsonNames)

	defsNames := append([]string(nil), b.defsOrder...)
	sort.Strings(defsNames)

	program := &script.Program{
		EntryScript:   b.entry,
		Scripts:       make(map[string]*script.Script, len(b.scripts)),
		JSONGlobals:   b.jsonGlobals,
		DefsGlobals:   b.defsGlobals,
		DefsInitOrder: append([]string(nil), b.defsOrder...),
	}

	for name, sb := range b.scripts {
		// Every global is visible everywhere unless the script
		// narrowed its view.
		if sb.sc.VisibleJSONGlobals == nil {
			sb.sc.VisibleJSONGlobals = jsonNames
		}
		if sb.sc.VisibleDefsGlobals == nil {
			sb.sc.VisibleDefsGlobals = defsNames
		}
		program.Scripts[name] = sb.sc
	}

	if err := program.Validate(); err != nil {
		return nil, err
	}
	return program, nil
}

// ScriptBuilder provides a fluent API for configuring one script. Its
// embedded Body appends nodes to the script's root group.
type ScriptBuilder struct {
	*Body
	builder  *Builder
	sc       *script.Script
	nodeSeq  int
	groupSeq int
}

// Param declares a by-value script parameter.
func (s *ScriptBuilder) Param(name string, typ script.Type) *ScriptBuilder {
	s.sc.Params = append(s.sc.Params, script.Param{Name: name, Type: typ})
	return s
}

// RefParam declares a reference parameter. Writes through it land in
// the caller's binding.
func (s *ScriptBuilder) RefParam(name string, typ script.Type) *ScriptBuilder {
	s.sc.Params = append(s.sc.Params, script.Param{Name: name, Type: typ, IsRef: true})
	return s
}

// Function declares a shared function visible to this script's code
// blocks, e.g. Function("shared.heal", ...). The result declaration
// names the binding the function body assigns and returns.
func (s *ScriptBuilder) Function(qualified string, result script.VarDecl, code string, params ...script.Param) *ScriptBuilder {
	if _, exists := s.sc.Functions[qualified]; exists {
		s.builder.fail("script %q: function %q already defined", s.sc.Name, qualified)
		return s
	}
	s.sc.Functions[qualified] = script.FunctionDecl{
		Name:   qualified,
		Params: params,
		Result: result,
		Code:   code,
	}
	return s
}

// VisibleJSONGlobals narrows which data globals this script sees.
func (s *ScriptBuilder) VisibleJSONGlobals(names ...string) *ScriptBuilder {
	s.sc.VisibleJSONGlobals = append([]string{}, names...)
	return s
}

// VisibleDefsGlobals narrows which mutable globals this script sees,
// by qualified name.
func (s *ScriptBuilder) VisibleDefsGlobals(qualified ...string) *ScriptBuilder {
	s.sc.VisibleDefsGlobals = append([]string{}, qualified...)
	return s
}

func (s *ScriptBuilder) nextNodeID() string {
	s.nodeSeq++
	return fmt.Sprintf("%s/n%d", s.sc.Name, s.nodeSeq)
}

func (s *ScriptBuilder) newGroup() *script.Group {
	s.groupSeq++
	g := &script.Group{ID: fmt.Sprintf("%s/g%d", s.sc.Name, s.groupSeq)}
	s.sc.Groups[g.ID] = g
	return g
}

func splitQualified(qualified string) (namespace, name string, ok bool) {
	for i := 0; i < len(qualified); i++ {
		if qualified[i] == '.' {
			namespace, name = qualified[:i], qualified[i+1:]
			return namespace, name, namespace != "" && name != ""
		}
	}
	return "", "", false
}
