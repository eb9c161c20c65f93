package dms

import "errors"

// Error kinds. Every error returned by Service that is not an internal failure
// matches exactly one of these with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")
	ErrInvalidState     = errors.New("invalid state")
	ErrGatewayFailure   = errors.New("storage gateway failure")
)

// Error carries an error kind together with the operation and the field or
// identifier that caused it.
type Error struct {
	Kind  error
	Op    string
	Field string
	ID    string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Kind.Error()
	if e.Field != "" {
		s += " (" + e.Field
		if e.ID != "" {
			s += "=" + e.ID
		}
		s += ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func notFound(op, field, id string) error {
	return &Error{Kind: ErrNotFound, Op: op, Field: field, ID: id}
}

func denied(op, id, msg string) error {
	return &Error{Kind: ErrPermissionDenied, Op: op, Field: "actor", ID: id, Msg: msg}
}

func conflict(op, field, msg string) error {
	return &Error{Kind: ErrConflict, Op: op, Field: field, Msg: msg}
}

func invalidState(op, field, msg string) error {
	return &Error{Kind: ErrInvalidState, Op: op, Field: field, Msg: msg}
}

func gatewayFailure(op string, ref StorageRef, err error) error {
	return &Error{Kind: ErrGatewayFailure, Op: op, Field: "key", ID: ref.Key, Err: err}
}

// ErrorKind returns a short label for err's kind, suitable for metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrGatewayFailure):
		return "gateway_failure"
	default:
		return "internal"
	}
}

// ErrDuplicate is returned by Store implementations when a write would break
// a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate record")
