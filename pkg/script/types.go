// Package script defines the compiled story model consumed by the
// runtime: the value system, declared types, the node union and the
// program bundle, plus the structured error type shared across the
// module.
package script

import (
	"encoding/json"
	"fmt"
)

// SourceLocation is a 1-based position in the original story source.
type SourceLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SourceSpan marks the region of story source a node or error refers
// to. The zero value means "synthesized, no source".
type SourceSpan struct {
	Start SourceLocation `json:"start"`
	End   SourceLocation `json:"end"`
}

// IsSynthetic reports whether the span carries no source position.
func (s SourceSpan) IsSynthetic() bool {
	return s.Start.Line == 0 && s.Start.Column == 0
}

// TypeKind discriminates declared variable types.
type TypeKind string

const (
	TypeNumber TypeKind = "number"
	TypeString TypeKind = "string"
	TypeBool   TypeKind = "bool"
	TypeArray  TypeKind = "array"
	TypeMap    TypeKind = "map"
	TypeObject TypeKind = "object"
)

// Type is the declared type of a variable, parameter or defs global.
type Type struct {
	Kind   TypeKind
	Name   string          // object type name, empty otherwise
	Elem   *Type           // array element or map value type
	Fields map[string]Type // object fields
}

func NumberType() Type { return Type{Kind: TypeNumber} }
func StringType() Type { return Type{Kind: TypeString} }
func BoolType() Type   { return Type{Kind: TypeBool} }

func ArrayType(elem Type) Type { return Type{Kind: TypeArray, Elem: &elem} }
func MapType(value Type) Type  { return Type{Kind: TypeMap, Elem: &value} }

func ObjectType(name string, fields map[string]Type) Type {
	copied := make(map[string]Type, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Type{Kind: TypeObject, Name: name, Fields: copied}
}

func (t Type) String() string {
	switch t.Kind {
	case TypeArray:
		return fmt.Sprintf("array<%s>", t.Elem)
	case TypeMap:
		return fmt.Sprintf("map<%s>", t.Elem)
	case TypeObject:
		return fmt.Sprintf("object %s", t.Name)
	default:
		return string(t.Kind)
	}
}

// Default returns the zero value for the type: 0, "", false, an empty
// collection, or an object with every field defaulted.
func (t Type) Default() Value {
	switch t.Kind {
	case TypeNumber:
		return Number(0)
	case TypeString:
		return String("")
	case TypeBool:
		return Bool(false)
	case TypeArray:
		return Value{kind: KindArray, arr: []Value{}}
	case TypeMap:
		return Value{kind: KindMap, obj: map[string]Value{}}
	case TypeObject:
		obj := make(map[string]Value, len(t.Fields))
		for name, ft := range t.Fields {
			obj[name] = ft.Default()
		}
		return Value{kind: KindMap, obj: obj}
	default:
		return String("")
	}
}

// Compatible reports whether v may be stored in a slot declared as t.
func (t Type) Compatible(v Value) bool {
	switch t.Kind {
	case TypeNumber:
		return v.kind == KindNumber
	case TypeString:
		return v.kind == KindString
	case TypeBool:
		return v.kind == KindBool
	case TypeArray:
		if v.kind != KindArray {
			return false
		}
		for _, item := range v.arr {
			if !t.Elem.Compatible(item) {
				return false
			}
		}
		return true
	case TypeMap:
		if v.kind != KindMap {
			return false
		}
		for _, item := range v.obj {
			if !t.Elem.Compatible(item) {
				return false
			}
		}
		return true
	case TypeObject:
		if v.kind != KindMap {
			return false
		}
		if len(v.obj) != len(t.Fields) {
			return false
		}
		for name, ft := range t.Fields {
			item, ok := v.obj[name]
			if !ok || !ft.Compatible(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

type typeJSON struct {
	Kind   TypeKind            `json:"kind"`
	Name   string              `json:"name,omitempty"`
	Elem   *Type               `json:"elem,omitempty"`
	Fields map[string]Type     `json:"fields,omitempty"`
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(typeJSON{Kind: t.Kind, Name: t.Name, Elem: t.Elem, Fields: t.Fields})
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var raw typeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case TypeNumber, TypeString, TypeBool, TypeArray, TypeMap, TypeObject:
	default:
		return fmt.Errorf("unknown type kind %q", raw.Kind)
	}
	*t = Type{Kind: raw.Kind, Name: raw.Name, Elem: raw.Elem, Fields: raw.Fields}
	return nil
}

// Node is one executable step inside a group. The concrete types below
// form a closed union; the runtime switches exhaustively over them.
type Node interface {
	NodeID() string
	NodeSpan() SourceSpan
}

// TextNode emits a line of story text after interpolation.
type TextNode struct {
	ID    string
	Value string
	Once  bool
	Span  SourceSpan
}

// CodeNode runs a block of embedded code for its side effects.
type CodeNode struct {
	ID   string
	Code string
	Span SourceSpan
}

// VarNode declares a variable in the enclosing frame's scope.
type VarNode struct {
	ID   string
	Decl VarDecl
	Span SourceSpan
}

// VarDecl is a variable declaration: name, declared type and an
// optional initializer expression (empty means the type default).
type VarDecl struct {
	Name     string
	Type     Type
	InitExpr string
}

// IfNode branches on a condition. Compilation always supplies both
// groups; an authored if without an else gets an empty else group.
type IfNode struct {
	ID          string
	WhenExpr    string
	ThenGroupID string
	ElseGroupID string
	Span        SourceSpan
}

// WhileNode repeats its body group while the condition holds.
type WhileNode struct {
	ID          string
	WhenExpr    string
	BodyGroupID string
	Span        SourceSpan
}

// ChoiceNode suspends execution and presents options to the player.
type ChoiceNode struct {
	ID         string
	PromptText string
	Options    []ChoiceOption
	Span       SourceSpan
}

// ChoiceOption is one selectable branch of a choice. A fall-over
// option is presented alone when no regular option is visible.
type ChoiceOption struct {
	ID       string
	Text     string
	WhenExpr string // empty means always visible
	Once     bool
	FallOver bool
	GroupID  string
	Span     SourceSpan
}

// InputNode suspends execution and asks the player for a line of text
// bound to a previously declared string variable.
type InputNode struct {
	ID         string
	TargetVar  string
	PromptText string
	Span       SourceSpan
}

// BreakNode exits the nearest enclosing while loop.
type BreakNode struct {
	ID   string
	Span SourceSpan
}

// ContinueTarget selects what a continue statement re-enters.
type ContinueTarget string

const (
	ContinueWhile  ContinueTarget = "while"
	ContinueChoice ContinueTarget = "choice"
)

// ContinueNode restarts the nearest enclosing while loop or re-presents
// the nearest enclosing choice.
type ContinueNode struct {
	ID     string
	Target ContinueTarget
	Span   SourceSpan
}

// CallArg is one argument of a call or scene transfer.
type CallArg struct {
	Name      string
	ValueExpr string // for ref args this is the caller-side path
	IsRef     bool
}

// CallNode invokes another script and resumes after it returns.
type CallNode struct {
	ID     string
	Target string
	Args   []CallArg
	Span   SourceSpan
}

// ReturnNode ends the current script. When Target is set it is a scene
// transfer: the current script's stack is torn down and the target
// script starts in its place.
type ReturnNode struct {
	ID     string
	Target string
	Args   []CallArg
	Span   SourceSpan
}

func (n *TextNode) NodeID() string     { return n.ID }
func (n *CodeNode) NodeID() string     { return n.ID }
func (n *VarNode) NodeID() string      { return n.ID }
func (n *IfNode) NodeID() string       { return n.ID }
func (n *WhileNode) NodeID() string    { return n.ID }
func (n *ChoiceNode) NodeID() string   { return n.ID }
func (n *InputNode) NodeID() string    { return n.ID }
func (n *BreakNode) NodeID() string    { return n.ID }
func (n *ContinueNode) NodeID() string { return n.ID }
func (n *CallNode) NodeID() string     { return n.ID }
func (n *ReturnNode) NodeID() string   { return n.ID }

func (n *TextNode) NodeSpan() SourceSpan     { return n.Span }
func (n *CodeNode) NodeSpan() SourceSpan     { return n.Span }
func (n *VarNode) NodeSpan() SourceSpan      { return n.Span }
func (n *IfNode) NodeSpan() SourceSpan       { return n.Span }
func (n *WhileNode) NodeSpan() SourceSpan    { return n.Span }
func (n *ChoiceNode) NodeSpan() SourceSpan   { return n.Span }
func (n *InputNode) NodeSpan() SourceSpan    { return n.Span }
func (n *BreakNode) NodeSpan() SourceSpan    { return n.Span }
func (n *ContinueNode) NodeSpan() SourceSpan { return n.Span }
func (n *CallNode) NodeSpan() SourceSpan     { return n.Span }
func (n *ReturnNode) NodeSpan() SourceSpan   { return n.Span }

// Group is a flat sequence of nodes addressed by ID. Control-flow
// nodes reference child groups instead of nesting them.
type Group struct {
	ID    string
	Nodes []Node
}

// Param is a script parameter. Ref params bind to a caller-side path
// instead of receiving a copy that is discarded on return.
type Param struct {
	Name  string
	Type  Type
	IsRef bool
}

// FunctionDecl is a shared function made visible to a script's code
// blocks. The body is embedded code; Result names the binding the
// function returns.
type FunctionDecl struct {
	Name   string // qualified, e.g. "shared.heal"
	Params []Param
	Result VarDecl
	Code   string
}

// DefsGlobalDecl declares a mutable global in a defs namespace.
type DefsGlobalDecl struct {
	QualifiedName string // "namespace.name"
	Namespace     string
	Name          string
	Type          Type
	InitExpr      string // empty means the type default
	Span          SourceSpan
}

// Script is one compiled story script.
type Script struct {
	Name        string
	Params      []Param
	RootGroupID string
	Groups      map[string]*Group

	// Visibility sets resolved by the compiler from the script's
	// include closure.
	VisibleJSONGlobals []string
	VisibleDefsGlobals []string // qualified names
	Functions          map[string]FunctionDecl
}

// Group returns the named group or nil.
func (s *Script) Group(id string) *Group {
	if s == nil {
		return nil
	}
	return s.Groups[id]
}

// Program is a fully compiled story bundle ready to run.
type Program struct {
	EntryScript string
	Scripts     map[string]*Script

	// JSONGlobals are read-only data globals loaded from sidecar
	// documents. DefsGlobals are mutable engine-scoped globals
	// initialized in DefsInitOrder at start.
	JSONGlobals   map[string]Value
	DefsGlobals   map[string]DefsGlobalDecl
	DefsInitOrder []string
}

// Script returns the named script or nil.
func (p *Program) Script(name string) *Script {
	if p == nil {
		return nil
	}
	return p.Scripts[name]
}

// Validate checks the structural integrity of the bundle: the entry
// script exists and every group reference resolves within its script.
func (p *Program) Validate() error {
	if p == nil || len(p.Scripts) == 0 {
		return NewError(CodeProgramInvalid, "program has no scripts")
	}
	entry := p.EntryScript
	if entry == "" {
		entry = "main"
	}
	if p.Scripts[entry] == nil {
		return Errorf(CodeProgramInvalid, "entry script %q not found", entry)
	}
	for name, sc := range p.Scripts {
		if sc.Group(sc.RootGroupID) == nil {
			return Errorf(CodeProgramInvalid, "script %q: root group %q not found", name, sc.RootGroupID)
		}
		for gid, group := range sc.Groups {
			for _, node := range group.Nodes {
				if err := validateNodeRefs(sc, gid, node); err != nil {
					return err
				}
			}
		}
		for _, qualified := range sc.VisibleDefsGlobals {
			if _, ok := p.DefsGlobals[qualified]; !ok {
				return Errorf(CodeProgramInvalid, "script %q: defs global %q not declared", name, qualified)
			}
		}
	}
	for _, qualified := range p.DefsInitOrder {
		if _, ok := p.DefsGlobals[qualified]; !ok {
			return Errorf(CodeProgramInvalid, "defs init order names unknown global %q", qualified)
		}
	}
	return nil
}

func validateNodeRefs(sc *Script, groupID string, node Node) error {
	missing := func(ref string) error {
		return Errorf(CodeProgramInvalid, "script %q group %q: node %q references missing group %q",
			sc.Name, groupID, node.NodeID(), ref)
	}
	switch n := node.(type) {
	case *IfNode:
		if sc.Group(n.ThenGroupID) == nil {
			return missing(n.ThenGroupID)
		}
		if sc.Group(n.ElseGroupID) == nil {
			return missing(n.ElseGroupID)
		}
	case *WhileNode:
		if sc.Group(n.BodyGroupID) == nil {
			return missing(n.BodyGroupID)
		}
	case *ChoiceNode:
		for _, opt := range n.Options {
			if sc.Group(opt.GroupID) == nil {
				return missing(opt.GroupID)
			}
		}
	}
	return nil
}
