package script

import (
	"errors"
	"fmt"
)

// Error codes reported by the runtime. Hosts are expected to branch on
// the code, never on the message text.
const (
	CodeScriptNotFound      = "ENGINE_SCRIPT_NOT_FOUND"
	CodeGroupNotFound       = "ENGINE_GROUP_NOT_FOUND"
	CodeNoFrame             = "ENGINE_NO_FRAME"
	CodeRootFrame           = "ENGINE_ROOT_FRAME"
	CodeVarDuplicate        = "ENGINE_VAR_DUPLICATE"
	CodeVarRead             = "ENGINE_VAR_READ"
	CodeVarWrite            = "ENGINE_VAR_WRITE"
	CodeTypeMismatch        = "ENGINE_TYPE_MISMATCH"
	CodeGlobalReadonly      = "ENGINE_GLOBAL_READONLY"
	CodeRefPath             = "ENGINE_REF_PATH"
	CodeRefPathRead         = "ENGINE_REF_PATH_READ"
	CodeRefPathWrite        = "ENGINE_REF_PATH_WRITE"
	CodeRefFrameMissing     = "ENGINE_REF_FRAME_MISSING"
	CodeRefValueMissing     = "ENGINE_REF_VALUE_MISSING"
	CodeCallTarget          = "ENGINE_CALL_TARGET"
	CodeCallArgUnknown      = "ENGINE_CALL_ARG_UNKNOWN"
	CodeCallArgMissing      = "ENGINE_CALL_ARG_MISSING"
	CodeCallRefMismatch     = "ENGINE_CALL_REF_MISMATCH"
	CodeTailRefUnsupported  = "ENGINE_TAIL_REF_UNSUPPORTED"
	CodeReturnTarget        = "ENGINE_RETURN_TARGET"
	CodeWhileControlTarget  = "ENGINE_WHILE_CONTROL_TARGET_MISSING"
	CodeChoiceContinueTarget = "ENGINE_CHOICE_CONTINUE_TARGET_MISSING"
	CodeNoPendingChoice     = "ENGINE_NO_PENDING_CHOICE"
	CodeNoPendingInput      = "ENGINE_NO_PENDING_INPUT"
	CodeChoiceIndex         = "ENGINE_CHOICE_INDEX"
	CodeChoiceFrameMissing  = "ENGINE_CHOICE_FRAME_MISSING"
	CodeChoiceNodeMissing   = "ENGINE_CHOICE_NODE_MISSING"
	CodeChoiceNotFound      = "ENGINE_CHOICE_NOT_FOUND"
	CodeInputFrameMissing   = "ENGINE_INPUT_FRAME_MISSING"
	CodeInputVarType        = "ENGINE_INPUT_VAR_TYPE"
	CodeBooleanExpected     = "ENGINE_BOOLEAN_EXPECTED"
	CodeEvalError           = "ENGINE_EVAL_ERROR"
	CodeValueUnsupported    = "ENGINE_VALUE_UNSUPPORTED"
	CodeGuardExceeded       = "ENGINE_GUARD_EXCEEDED"
	CodeHostFuncMissing     = "ENGINE_HOST_FUNCTION_MISSING"
	CodeHostFuncFailed      = "ENGINE_HOST_FUNCTION_FAILED"
	CodeHostFuncReserved    = "ENGINE_HOST_FUNCTION_RESERVED"
	CodeHostFuncConflict    = "ENGINE_HOST_FUNCTION_CONFLICT"
	CodeDefsGlobalMissing   = "ENGINE_DEFS_GLOBAL_MISSING"
	CodeDefsDeclMissing     = "ENGINE_DEFS_GLOBAL_DECL_MISSING"
	CodeDefsNamespaceType   = "ENGINE_DEFS_GLOBAL_NAMESPACE_TYPE"
	CodeProgramInvalid      = "ENGINE_PROGRAM_INVALID"

	CodeSnapshotNotAllowed       = "SNAPSHOT_NOT_ALLOWED"
	CodeSnapshotSchema           = "SNAPSHOT_SCHEMA"
	CodeSnapshotCompilerVersion  = "SNAPSHOT_COMPILER_VERSION"
	CodeSnapshotEmpty            = "SNAPSHOT_EMPTY"
	CodeSnapshotDecode           = "SNAPSHOT_DECODE"
	CodeSnapshotPendingBoundary  = "SNAPSHOT_PENDING_BOUNDARY"
)

// Error is the structured error surfaced by every runtime operation.
type Error struct {
	Code    string
	Message string
	Span    *SourceSpan
}

func (e *Error) Error() string {
	if e.Span != nil {
		return fmt.Sprintf("%s: %s (line %d, col %d)", e.Code, e.Message, e.Span.Start.Line, e.Span.Start.Column)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an Error with no source span attached.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds an Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithSpan returns a copy of the error carrying the given span.
func (e *Error) WithSpan(span SourceSpan) *Error {
	clone := *e
	clone.Span = &span
	return &clone
}

// ErrorCode extracts the machine-checkable code from err, or "" when
// err is not a runtime Error.
func ErrorCode(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
