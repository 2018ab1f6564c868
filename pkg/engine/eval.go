package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/skald-lang/skald/pkg/script"
)

// initLuaState builds the embedded interpreter shared by every eval in
// this engine. Only the deterministic libraries are opened; os and io
// stay out so story code cannot observe the host environment.
func (e *Engine) initLuaState() error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	e.ls = L
	e.arrayMeta = L.NewTable()
	e.mapMeta = L.NewTable()

	L.SetGlobal("random", L.NewFunction(e.luaRandom))
	for _, name := range e.hostFuncs.Names() {
		L.SetGlobal(name, L.NewFunction(e.luaHostFunc(name)))
	}
	return nil
}

// luaRandom is the builtin random(n): a deterministic draw in 0..n-1
// from the engine-owned generator, so replays and resumed snapshots
// see the same sequence.
func (e *Engine) luaRandom(L *lua.LState) int {
	bound := L.CheckInt(1)
	if bound <= 0 {
		e.hostErr = script.Errorf(script.CodeEvalError,
			"random: bound must be positive, got %d", bound)
		L.RaiseError("random: bound must be positive")
		return 0
	}
	draw := nextRandomBounded(&e.rngState, uint32(bound))
	L.Push(lua.LNumber(draw))
	return 1
}

func (e *Engine) luaHostFunc(name string) lua.LGFunction {
	return func(L *lua.LState) int {
		argc := L.GetTop()
		args := make([]script.Value, argc)
		for i := 1; i <= argc; i++ {
			v, err := e.luaToValue(L.Get(i))
			if err != nil {
				e.hostErr = script.Errorf(script.CodeHostFuncFailed,
					"host function %q: unsupported argument %d: %v", name, i, err)
				L.RaiseError("host function %s: bad argument", name)
				return 0
			}
			args[i-1] = v
		}
		result, err := e.hostFuncs.Call(name, args)
		if err != nil {
			if typed, ok := err.(*script.Error); ok {
				e.hostErr = typed
			} else {
				e.hostErr = script.Errorf(script.CodeHostFuncFailed,
					"host function %q failed: %v", name, err)
			}
			L.RaiseError("host function %s failed", name)
			return 0
		}
		L.Push(e.valueToLua(result))
		return 1
	}
}

func (e *Engine) valueToLua(v script.Value) lua.LValue {
	switch v.Kind() {
	case script.KindBool:
		b, _ := v.AsBool()
		return lua.LBool(b)
	case script.KindNumber:
		f, _ := v.AsNumber()
		return lua.LNumber(f)
	case script.KindString:
		s, _ := v.AsString()
		return lua.LString(s)
	case script.KindArray:
		arr, _ := v.AsArray()
		tbl := e.ls.NewTable()
		for _, item := range arr {
			tbl.Append(e.valueToLua(item))
		}
		e.ls.SetMetatable(tbl, e.arrayMeta)
		return tbl
	case script.KindMap:
		obj, _ := v.AsMap()
		tbl := e.ls.NewTable()
		for k, item := range obj {
			tbl.RawSetString(k, e.valueToLua(item))
		}
		e.ls.SetMetatable(tbl, e.mapMeta)
		return tbl
	default:
		return lua.LNil
	}
}

// luaToValue maps an interpreter value back into the story value
// model. Engine-created tables carry a marker metatable; tables built
// by story code are classified by shape, with the empty unmarked table
// reading as a map (typed write sites reshape it when an array is
// declared).
func (e *Engine) luaToValue(lv lua.LValue) (script.Value, error) {
	switch x := lv.(type) {
	case lua.LBool:
		return script.Bool(bool(x)), nil
	case lua.LNumber:
		return script.Number(float64(x)), nil
	case lua.LString:
		return script.String(string(x)), nil
	case *lua.LTable:
		return e.tableToValue(x)
	default:
		return script.Value{}, script.Errorf(script.CodeValueUnsupported,
			"value of type %s cannot leave the evaluator", lv.Type().String())
	}
}

func (e *Engine) tableToValue(tbl *lua.LTable) (script.Value, error) {
	meta := e.ls.GetMetatable(tbl)
	isArray := meta == e.arrayMeta
	isMap := meta == e.mapMeta

	if !isArray && !isMap {
		length := tbl.MaxN()
		total := 0
		stringKeys := true
		tbl.ForEach(func(k, _ lua.LValue) {
			total++
			if _, ok := k.(lua.LString); !ok {
				stringKeys = false
			}
		})
		switch {
		case total == 0:
			isMap = true
		case length == total:
			isArray = true
		case stringKeys:
			isMap = true
		default:
			return script.Value{}, script.NewError(script.CodeValueUnsupported,
				"table with mixed keys cannot leave the evaluator")
		}
	}

	if isArray {
		length := tbl.MaxN()
		items := make([]script.Value, 0, length)
		for i := 1; i <= length; i++ {
			item, err := e.luaToValue(tbl.RawGetInt(i))
			if err != nil {
				return script.Value{}, err
			}
			items = append(items, item)
		}
		return script.Array(items...), nil
	}

	entries := make(map[string]script.Value)
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		key, ok := k.(lua.LString)
		if !ok {
			convErr = script.NewError(script.CodeValueUnsupported,
				"map table has a non-string key")
			return
		}
		item, err := e.luaToValue(v)
		if err != nil {
			convErr = err
			return
		}
		entries[string(key)] = item
	})
	if convErr != nil {
		return script.Value{}, convErr
	}
	return script.MapValue(entries), nil
}

// evalContext captures the globals staged for one evaluation so they
// can be read back and removed afterwards.
type evalContext struct {
	mutableVars  map[string]bool
	jsonBefore   map[string]script.Value
	namespaces   map[string]bool
	fnNamespaces map[string]bool
	aliasBefore  map[string]script.Value
	aliases      map[string]string
	scriptName   string
}

func (e *Engine) stageContext() (*evalContext, error) {
	scriptName := e.currentScriptName()
	ctx := &evalContext{
		mutableVars:  make(map[string]bool),
		jsonBefore:   make(map[string]script.Value),
		namespaces:   make(map[string]bool),
		fnNamespaces: make(map[string]bool),
		aliasBefore:  make(map[string]script.Value),
		aliases:      e.defsAliases[scriptName],
		scriptName:   scriptName,
	}
	L := e.ls

	for name, value := range e.program.JSONGlobals {
		if !e.isVisibleJSONGlobal(scriptName, name) {
			continue
		}
		L.SetGlobal(name, e.valueToLua(value))
		ctx.jsonBefore[name] = value
	}

	for qualified := range e.visibleDefs[scriptName] {
		namespace, name, ok := strings.Cut(qualified, ".")
		if !ok {
			continue
		}
		tbl := e.namespaceTable(namespace)
		ctx.namespaces[namespace] = true
		value, present := e.defsValues[qualified]
		if !present {
			return ctx, script.Errorf(script.CodeDefsGlobalMissing,
				"defs global %q has no value", qualified)
		}
		tbl.RawSetString(name, e.valueToLua(value))
	}

	if err := e.runPrelude(scriptName); err != nil {
		return ctx, err
	}
	if sc := e.program.Script(scriptName); sc != nil {
		for fnName := range sc.Functions {
			if namespace, _, ok := strings.Cut(fnName, "."); ok {
				ctx.fnNamespaces[namespace] = true
			} else {
				ctx.fnNamespaces[fnName] = true
			}
		}
	}

	for alias, qualified := range ctx.aliases {
		value := e.defsValues[qualified]
		L.SetGlobal(alias, e.valueToLua(value))
		ctx.aliasBefore[alias] = value
	}

	// Innermost frames stage last so shadowing reads naturally.
	for _, f := range e.frames {
		for name, value := range f.scope {
			L.SetGlobal(name, e.valueToLua(value))
			ctx.mutableVars[name] = true
		}
	}
	return ctx, nil
}

func (e *Engine) namespaceTable(namespace string) *lua.LTable {
	existing := e.ls.GetGlobal(namespace)
	if tbl, ok := existing.(*lua.LTable); ok {
		return tbl
	}
	tbl := e.ls.NewTable()
	e.ls.SetGlobal(namespace, tbl)
	return tbl
}

func (e *Engine) clearContext(ctx *evalContext) {
	L := e.ls
	for name := range ctx.mutableVars {
		L.SetGlobal(name, lua.LNil)
	}
	for name := range ctx.jsonBefore {
		L.SetGlobal(name, lua.LNil)
	}
	for namespace := range ctx.namespaces {
		L.SetGlobal(namespace, lua.LNil)
	}
	for namespace := range ctx.fnNamespaces {
		L.SetGlobal(namespace, lua.LNil)
	}
	for alias := range ctx.aliases {
		L.SetGlobal(alias, lua.LNil)
	}
}

// readBackContext flushes evaluation effects into engine state:
// mutable frame variables, defs namespace fields and short aliases.
// Read-only data globals are verified untouched.
func (e *Engine) readBackContext(ctx *evalContext) error {
	L := e.ls

	for namespace := range ctx.namespaces {
		global := L.GetGlobal(namespace)
		tbl, ok := global.(*lua.LTable)
		if !ok {
			return script.Errorf(script.CodeDefsNamespaceType,
				"defs namespace %q was replaced with a non-table value", namespace)
		}
		var walkErr error
		tbl.ForEach(func(k, v lua.LValue) {
			if walkErr != nil {
				return
			}
			key, ok := k.(lua.LString)
			if !ok {
				return
			}
			if _, isFn := v.(*lua.LFunction); isFn {
				return
			}
			qualified := namespace + "." + string(key)
			if !e.visibleDefs[ctx.scriptName][qualified] {
				return
			}
			walkErr = e.storeDefsValue(qualified, v)
		})
		if walkErr != nil {
			return walkErr
		}
	}

	for alias, qualified := range ctx.aliases {
		if ctx.mutableVars[alias] {
			// A frame variable shadows the bare alias for this eval.
			continue
		}
		global := L.GetGlobal(alias)
		if global == lua.LNil {
			continue
		}
		if _, isFn := global.(*lua.LFunction); isFn {
			continue
		}
		after, err := e.luaToValue(global)
		if err != nil {
			return err
		}
		if after.Equal(ctx.aliasBefore[alias]) {
			continue
		}
		if err := e.storeDefsValue(qualified, global); err != nil {
			return err
		}
	}

	for name := range ctx.mutableVars {
		global := L.GetGlobal(name)
		if global == lua.LNil {
			continue
		}
		after, err := e.luaToValue(global)
		if err != nil {
			return err
		}
		if err := e.writeVariable(name, after); err != nil {
			return err
		}
	}

	for name, before := range ctx.jsonBefore {
		if ctx.mutableVars[name] {
			continue
		}
		global := L.GetGlobal(name)
		after, err := e.luaToValue(global)
		if err != nil || !after.Equal(before) {
			return script.Errorf(script.CodeGlobalReadonly,
				"data global %q is read-only", name)
		}
	}
	return nil
}

func (e *Engine) storeDefsValue(qualified string, lv lua.LValue) error {
	decl, ok := e.program.DefsGlobals[qualified]
	if !ok {
		return script.Errorf(script.CodeDefsDeclMissing,
			"defs global %q has no declaration", qualified)
	}
	value, err := e.luaToValue(lv)
	if err != nil {
		return err
	}
	value = coerceToType(value, decl.Type)
	if !decl.Type.Compatible(value) {
		return script.Errorf(script.CodeTypeMismatch,
			"defs global %q does not match declared type", qualified)
	}
	e.defsValues[qualified] = value
	return nil
}

// runPrelude installs the shared functions visible to scriptName into
// their namespace tables. The compiled chunk is cached per script.
func (e *Engine) runPrelude(scriptName string) error {
	sc := e.program.Script(scriptName)
	if sc == nil || len(sc.Functions) == 0 {
		return nil
	}
	proto, ok := e.preludes[scriptName]
	if !ok {
		source := buildPrelude(sc)
		compiled, err := compileLua(source, "prelude:"+scriptName)
		if err != nil {
			return err
		}
		proto = compiled
		e.preludes[scriptName] = proto
	}
	L := e.ls
	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 0, nil); err != nil {
		return e.wrapLuaError(err)
	}
	return nil
}

// buildPrelude renders every shared function as an assignment into its
// namespace table. The result binding starts at the declared type's
// default and is what the function returns.
func buildPrelude(sc *script.Script) string {
	names := make([]string, 0, len(sc.Functions))
	for name := range sc.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	seen := make(map[string]bool)
	for _, name := range names {
		namespace, _, ok := strings.Cut(name, ".")
		if ok && !seen[namespace] {
			fmt.Fprintf(&sb, "%s = %s or {}\n", namespace, namespace)
			seen[namespace] = true
		}
	}
	for _, name := range names {
		fn := sc.Functions[name]
		params := make([]string, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = p.Name
		}
		fmt.Fprintf(&sb, "%s = function(%s)\n", name, strings.Join(params, ", "))
		fmt.Fprintf(&sb, "local %s = %s\n", fn.Result.Name, luaLiteral(fn.Result.Type.Default()))
		sb.WriteString(fn.Code)
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "return %s\nend\n", fn.Result.Name)
	}
	return sb.String()
}

// luaLiteral renders a value as interpreter source text.
func luaLiteral(v script.Value) string {
	switch v.Kind() {
	case script.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case script.KindNumber:
		f, _ := v.AsNumber()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case script.KindString:
		s, _ := v.AsString()
		return luaQuote(s)
	case script.KindArray:
		arr, _ := v.AsArray()
		parts := make([]string, len(arr))
		for i, item := range arr {
			parts[i] = luaLiteral(item)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case script.KindMap:
		obj, _ := v.AsMap()
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "[" + luaQuote(k) + "] = " + luaLiteral(obj[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "nil"
	}
}

func luaQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func compileLua(source, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, script.Errorf(script.CodeEvalError, "parse error: %v", err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, script.Errorf(script.CodeEvalError, "compile error: %v", err)
	}
	return proto, nil
}

func (e *Engine) wrapLuaError(err error) error {
	if e.hostErr != nil {
		typed := e.hostErr
		e.hostErr = nil
		return typed
	}
	return script.Errorf(script.CodeEvalError, "eval error: %v", err)
}

// executeChunk runs embedded code against the staged story context.
// When isExpr is set, code is a single expression whose value is
// returned; otherwise it is a statement block evaluated for effect.
func (e *Engine) executeChunk(code string, isExpr bool) (script.Value, error) {
	source := code
	chunkName := "code"
	if isExpr {
		source = "return (" + code + ")"
		chunkName = "expr"
	}
	proto, err := compileLua(source, chunkName)
	if err != nil {
		return script.Value{}, err
	}

	ctx, err := e.stageContext()
	if err != nil {
		if ctx != nil {
			e.clearContext(ctx)
		}
		return script.Value{}, err
	}
	defer e.clearContext(ctx)

	L := e.ls
	e.hostErr = nil
	L.Push(L.NewFunctionFromProto(proto))
	nret := 0
	if isExpr {
		nret = 1
	}
	if err := L.PCall(0, nret, nil); err != nil {
		return script.Value{}, e.wrapLuaError(err)
	}

	var result script.Value
	if isExpr {
		raw := L.Get(-1)
		L.Pop(1)
		result, err = e.luaToValue(raw)
		if err != nil {
			return script.Value{}, err
		}
	}

	if err := e.readBackContext(ctx); err != nil {
		return script.Value{}, err
	}
	return result, nil
}

func (e *Engine) evalExpression(expr string) (script.Value, error) {
	return e.executeChunk(expr, true)
}

func (e *Engine) runCode(code string) error {
	_, err := e.executeChunk(code, false)
	return err
}

func (e *Engine) evalBoolean(expr string) (bool, error) {
	value, err := e.evalExpression(expr)
	if err != nil {
		return false, err
	}
	b, ok := value.AsBool()
	if !ok {
		return false, script.Errorf(script.CodeBooleanExpected,
			"condition %q did not produce a boolean", expr)
	}
	return b, nil
}

var interpolationPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

// renderText substitutes ${expr} segments with their evaluated display
// text.
func (e *Engine) renderText(text string) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}
	var firstErr error
	rendered := interpolationPattern.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		expr := match[2 : len(match)-1]
		value, err := e.evalExpression(expr)
		if err != nil {
			firstErr = err
			return match
		}
		return value.Text()
	})
	if firstErr != nil {
		return "", firstErr
	}
	return rendered, nil
}

// evalDefsInitializer evaluates a defs-global initializer. It runs in
// the bundle context: every data global and every already-initialized
// defs global is readable, but no script frames exist and nothing is
// written back.
func (e *Engine) evalDefsInitializer(expr string) (script.Value, error) {
	proto, err := compileLua("return ("+expr+")", "defs")
	if err != nil {
		return script.Value{}, err
	}

	L := e.ls
	var setNames []string
	namespaces := make(map[string]bool)

	for name, value := range e.program.JSONGlobals {
		L.SetGlobal(name, e.valueToLua(value))
		setNames = append(setNames, name)
	}
	for qualified, value := range e.defsValues {
		namespace, name, ok := strings.Cut(qualified, ".")
		if !ok {
			continue
		}
		if !namespaces[namespace] {
			namespaces[namespace] = true
			setNames = append(setNames, namespace)
		}
		e.namespaceTable(namespace).RawSetString(name, e.valueToLua(value))
	}
	aliases := shortAliases(e.program.DefsInitOrder)
	for alias, qualified := range aliases {
		if value, ok := e.defsValues[qualified]; ok {
			L.SetGlobal(alias, e.valueToLua(value))
			setNames = append(setNames, alias)
		}
	}
	defer func() {
		for _, name := range setNames {
			L.SetGlobal(name, lua.LNil)
		}
	}()

	e.hostErr = nil
	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return script.Value{}, e.wrapLuaError(err)
	}
	raw := L.Get(-1)
	L.Pop(1)
	return e.luaToValue(raw)
}
