package core

import "fmt"

// ErrKind enumerates the error kinds of spec.md §7.
type ErrKind string

const (
	KindDecodeError                ErrKind = "DecodeError"
	KindInterfaceNotFound          ErrKind = "InterfaceNotFound"
	KindCaptureOpenFailed          ErrKind = "CaptureOpenFailed"
	KindResolverUnavailable        ErrKind = "ResolverUnavailable"
	KindControlInvocationFailed    ErrKind = "ControlInvocationFailed"
	KindControlPrerequisiteMissing ErrKind = "ControlPrerequisiteMissing"
	KindInternal                   ErrKind = "Internal"
)

// CommandError is the Err{kind, message} response shape of spec.md §6.
type CommandError struct {
	Kind    ErrKind
	Message string
}

func (e *CommandError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func errKind(kind ErrKind, format string, args ...interface{}) *CommandError {
	return &CommandError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// errKindOf extracts the ErrKind of err if it is a *CommandError,
// defaulting to KindInternal otherwise (used for metrics labeling).
func errKindOf(err error) ErrKind {
	if cmdErr, ok := err.(*CommandError); ok {
		return cmdErr.Kind
	}
	return KindInternal
}
