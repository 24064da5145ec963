package dccl

import "fmt"

// Kind classifies a DCCL error by which stage of loading, encoding, or
// decoding produced it.
type Kind int

const (
	// KindSchemaError covers missing/contradictory options, bounds
	// inversion, unknown codec names, and similar Load-time problems.
	KindSchemaError Kind = iota
	// KindCapacityError is raised when a descriptor's computed maximum
	// size exceeds its declared max_bytes.
	KindCapacityError
	// KindIDCollision is raised when two distinct descriptors claim the
	// same message ID.
	KindIDCollision
	// KindOutOfRange is raised in strict mode when an encoded value lies
	// outside its field's declared bounds.
	KindOutOfRange
	// KindUninitialized is raised by Decode when a required field decodes
	// as absent.
	KindUninitialized
	// KindUnderflow is raised when decode needs more bits than the input
	// can supply.
	KindUnderflow
	// KindUnknownID is raised when a decoded message ID has no registered
	// descriptor.
	KindUnknownID
	// KindHashMismatch is raised when the hash codec detects schema
	// divergence between encoder and decoder.
	KindHashMismatch
	// KindCryptoUnavailable is raised when a crypto operation is
	// requested but no provider is compiled in.
	KindCryptoUnavailable
	// KindPluginError covers dynamic-library load failures and missing
	// entry points.
	KindPluginError
)

func (k Kind) String() string {
	switch k {
	case KindSchemaError:
		return "SchemaError"
	case KindCapacityError:
		return "CapacityError"
	case KindIDCollision:
		return "IdCollision"
	case KindOutOfRange:
		return "OutOfRange"
	case KindUninitialized:
		return "Uninitialized"
	case KindUnderflow:
		return "Underflow"
	case KindUnknownID:
		return "UnknownId"
	case KindHashMismatch:
		return "HashMismatch"
	case KindCryptoUnavailable:
		return "CryptoUnavailable"
	case KindPluginError:
		return "PluginError"
	default:
		return "UnknownKind"
	}
}

// Error is the concrete error type every engine façade operation returns.
type Error struct {
	Kind Kind
	// Message is the human-readable detail.
	Message string
	// MissingPaths carries the dotted paths of unset required fields for
	// KindUninitialized errors.
	MissingPaths []string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if len(e.MissingPaths) > 0 {
		return fmt.Sprintf("dccl: %s: %s %v", e.Kind, e.Message, e.MissingPaths)
	}
	if e.Err != nil {
		return fmt.Sprintf("dccl: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("dccl: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds an *Error, optionally wrapping cause.
func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if err == nil {
		return false
	}
	if de, ok := err.(*Error); ok {
		e = de
	} else {
		return false
	}
	return e.Kind == kind
}
