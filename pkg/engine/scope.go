package engine

import (
	"strings"

	"github.com/skald-lang/skald/pkg/script"
)

func (e *Engine) currentScriptName() string {
	if len(e.frames) == 0 {
		return ""
	}
	return e.groupScript[e.frames[len(e.frames)-1].groupID]
}

func (e *Engine) isVisibleJSONGlobal(scriptName, name string) bool {
	if scriptName == "" {
		return false
	}
	if !e.visibleJSON[scriptName][name] {
		return false
	}
	_, ok := e.program.JSONGlobals[name]
	return ok
}

// readVariable walks the frame stack innermost-first, then falls back
// to the visible read-only JSON globals.
func (e *Engine) readVariable(name string) (script.Value, error) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if value, ok := e.frames[i].scope[name]; ok {
			return value.Clone(), nil
		}
	}
	if e.isVisibleJSONGlobal(e.currentScriptName(), name) {
		return e.program.JSONGlobals[name].Clone(), nil
	}
	return script.Value{}, script.Errorf(script.CodeVarRead, "variable %q is not defined", name)
}

func (e *Engine) writeVariable(name string, value script.Value) error {
	for i := len(e.frames) - 1; i >= 0; i-- {
		f := e.frames[i]
		if _, ok := f.scope[name]; !ok {
			continue
		}
		if declared, ok := f.varTypes[name]; ok {
			value = coerceToType(value, declared)
			if !declared.Compatible(value) {
				return script.Errorf(script.CodeTypeMismatch,
					"variable %q does not match declared type", name)
			}
		}
		f.scope[name] = value.Clone()
		return nil
	}

	if e.isVisibleJSONGlobal(e.currentScriptName(), name) {
		return script.Errorf(script.CodeGlobalReadonly,
			"global JSON %q is readonly and cannot be mutated", name)
	}
	return script.Errorf(script.CodeVarWrite, "variable %q is not defined", name)
}

func parseRefPath(path string) []string {
	raw := strings.Split(path, ".")
	parts := make([]string, 0, len(raw))
	for _, segment := range raw {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		parts = append(parts, segment)
	}
	return parts
}

func (e *Engine) readPath(path string) (script.Value, error) {
	parts := parseRefPath(path)
	if len(parts) == 0 {
		return script.Value{}, script.Errorf(script.CodeRefPath, "invalid ref path %q", path)
	}

	current, err := e.readVariable(parts[0])
	if err != nil {
		return script.Value{}, err
	}
	for _, part := range parts[1:] {
		entries, ok := current.AsMap()
		if !ok {
			return script.Value{}, script.Errorf(script.CodeRefPathRead, "cannot resolve path %q", path)
		}
		current, ok = entries[part]
		if !ok {
			return script.Value{}, script.Errorf(script.CodeRefPathRead, "cannot resolve path %q", path)
		}
	}
	return current, nil
}

func (e *Engine) writePath(path string, value script.Value) error {
	parts := parseRefPath(path)
	if len(parts) == 0 {
		return script.Errorf(script.CodeRefPath, "invalid ref path %q", path)
	}
	if len(parts) == 1 {
		return e.writeVariable(parts[0], value)
	}

	root, err := e.readVariable(parts[0])
	if err != nil {
		return err
	}
	if err := assignNestedPath(&root, parts[1:], value); err != nil {
		return script.Errorf(script.CodeRefPathWrite,
			"cannot resolve write path %q: %v", path, err)
	}
	return e.writeVariable(parts[0], root)
}

func assignNestedPath(target *script.Value, path []string, value script.Value) error {
	if len(path) == 0 {
		*target = value
		return nil
	}
	entries, ok := target.AsMap()
	if !ok {
		return errNotMap
	}

	head := path[0]
	if len(path) == 1 {
		entries[head] = value
		return nil
	}
	next, ok := entries[head]
	if !ok {
		return &missingKeyError{key: head}
	}
	if err := assignNestedPath(&next, path[1:], value); err != nil {
		return err
	}
	entries[head] = next
	return nil
}

var errNotMap = &pathError{msg: "target is not an object/map"}

type pathError struct{ msg string }

func (e *pathError) Error() string { return e.msg }

type missingKeyError struct{ key string }

func (e *missingKeyError) Error() string { return "missing key \"" + e.key + "\"" }
