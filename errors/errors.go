package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in a call the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // caller or receiver writing a buffer
	PhaseDecode    Phase = "decode"    // reading a buffer
	PhaseEstimate  Phase = "estimate"  // buffer size estimation
	PhasePlan      Phase = "plan"      // marshalling plan construction
	PhaseResolve   Phase = "resolve"   // handle resolution
	PhaseSession   Phase = "session"   // enter/leave lifecycle
	PhaseTransport Phase = "transport" // moving bytes between isolates
	PhaseDispatch  Phase = "dispatch"  // receiver-side method lookup and invocation
	PhaseEnvelope  Phase = "envelope"  // error wrapping/unwrapping
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseLoad      Phase = "load"      // isolate image loading
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch   Kind = "type_mismatch"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindInvalidData    Kind = "invalid_data"
	KindUnsupported    Kind = "unsupported"
	KindInvalidHandle  Kind = "invalid_handle"
	KindForeignHandle  Kind = "foreign_handle"
	KindUnknownMethod  Kind = "unknown_method"
	KindIsolateDeath   Kind = "isolate_death"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindOverflow       Kind = "overflow"
	KindNilPointer     Kind = "nil_pointer"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindRegistration   Kind = "registration"
	KindClosed         Kind = "closed"
	KindCanceled       Kind = "canceled"
	KindInstantiation  Kind = "instantiation"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured error type used throughout the bridge.
// Errors raised by the protocol itself (as opposed to user methods) are
// always of this type.
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	PlanType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.PlanType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.PlanType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", plan type ")
			b.WriteString(e.PlanType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("plan type ")
			b.WriteString(e.PlanType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.PlanType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the value path (method, parameter, element)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// PlanType sets the logical plan type name
func (b *Builder) PlanType(t string) *Builder {
	b.err.PlanType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, planType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		PlanType: planType,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		PlanType: target,
		Detail:   fmt.Sprintf("value %v overflows %s", value, target),
		Value:    value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidHandle creates an error for a handle with no live registry entry
func InvalidHandle(handle uint64) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("handle 0x%x is not registered", handle),
		Value:  handle,
	}
}

// ForeignHandle creates an error for a handle minted by another isolate
func ForeignHandle(handle uint64, tag, want uint16) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindForeignHandle,
		Detail: fmt.Sprintf("handle 0x%x belongs to isolate %d, not %d", handle, tag, want),
		Value:  handle,
	}
}

// UnknownMethod creates an unknown method id error
func UnknownMethod(service string, id uint32) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindUnknownMethod,
		Detail: fmt.Sprintf("service %q has no method with id %d", service, id),
		Value:  id,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Closed creates an error for an operation on a closed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// Instantiation creates an isolate instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate isolate",
		Cause:  cause,
	}
}

// IsProtocol reports whether err carries a protocol error: a failure of
// the bridge itself rather than of the invoked method or the peer's life.
func IsProtocol(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Phase {
	case PhaseEncode, PhaseDecode, PhasePlan, PhaseResolve, PhaseDispatch, PhaseSession, PhaseEnvelope:
		return true
	}
	return false
}

// IsolateDeathError reports that the peer isolate can no longer serve
// calls: it crashed, exited or was torn down. It is never retried.
type IsolateDeathError struct {
	Cause   error
	Isolate string
	ID      uint16
}

func (e *IsolateDeathError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("isolate %s (%d) died: %v", e.Isolate, e.ID, e.Cause)
	}
	return fmt.Sprintf("isolate %s (%d) died", e.Isolate, e.ID)
}

func (e *IsolateDeathError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an IsolateDeathError
func (e *IsolateDeathError) Is(target error) bool {
	_, ok := target.(*IsolateDeathError)
	return ok
}

// ErrIsolateDeath matches any IsolateDeathError with errors.Is.
var ErrIsolateDeath error = &IsolateDeathError{}

// IsIsolateDeath reports whether err is or wraps an IsolateDeathError.
func IsIsolateDeath(err error) bool {
	var d *IsolateDeathError
	return errors.As(err, &d)
}
