package docql

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error taxonomy. Every typed error below reports
// true for errors.Is against its sentinel.
var (
	// ErrValidation is returned when operator arguments are malformed,
	// e.g. a $text query without $term.
	ErrValidation = errors.New("docql: validation failed")

	// ErrUnsupportedShape is returned when a query or update value cannot
	// be translated to SQL.
	ErrUnsupportedShape = errors.New("docql: unsupported shape")

	// ErrNestedKey is returned when a key contains '$' or '.' after
	// dotted paths were flattened.
	ErrNestedKey = errors.New("docql: invalid nested key")

	// ErrBackend is returned for errors reported by the database.
	ErrBackend = errors.New("docql: backend error")
)

// ValidationError represents malformed operator arguments.
type ValidationError struct {
	Field string // Field the operator was applied to
	Op    string // Operator, e.g. "$text"
	Msg   string
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Op != "":
		return fmt.Sprintf("docql: bad %s on field %q: %s", e.Op, e.Field, e.Msg)
	case e.Op != "":
		return fmt.Sprintf("docql: bad %s: %s", e.Op, e.Msg)
	case e.Field != "":
		return fmt.Sprintf("docql: invalid value for field %q: %s", e.Field, e.Msg)
	}
	return "docql: " + e.Msg
}

// Is reports whether the target error matches ErrValidation.
func (e *ValidationError) Is(err error) bool {
	return err == ErrValidation
}

// NewValidationError returns a new ValidationError.
func NewValidationError(field, op, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// UnsupportedShapeError is returned when a document value has no SQL
// translation.
type UnsupportedShapeError struct {
	Field string
	Value any
	// Update is true when the value came from an update document.
	Update bool
}

// Error returns the error string.
func (e *UnsupportedShapeError) Error() string {
	kind := "query"
	if e.Update {
		kind = "update"
	}
	return fmt.Sprintf("docql: unsupported %s on field %q: %s", kind, e.Field, Shape(e.Value))
}

// Is reports whether the target error matches ErrUnsupportedShape.
func (e *UnsupportedShapeError) Is(err error) bool {
	return err == ErrUnsupportedShape
}

// NewUnsupportedQueryError returns an UnsupportedShapeError for a query value.
func NewUnsupportedQueryError(field string, value any) *UnsupportedShapeError {
	return &UnsupportedShapeError{Field: field, Value: value}
}

// NewUnsupportedUpdateError returns an UnsupportedShapeError for an update value.
func NewUnsupportedUpdateError(field string, value any) *UnsupportedShapeError {
	return &UnsupportedShapeError{Field: field, Value: value, Update: true}
}

// IsUnsupportedShape returns true if the error is an UnsupportedShapeError.
func IsUnsupportedShape(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedShapeError
	return errors.As(err, &e)
}

// NestedKeyError is returned for keys containing '$' or '.'.
type NestedKeyError struct {
	Key string
}

// Error returns the error string.
func (e *NestedKeyError) Error() string {
	return fmt.Sprintf("docql: nested key %q should not contain the '$' or '.' characters", e.Key)
}

// Is reports whether the target error matches ErrNestedKey.
func (e *NestedKeyError) Is(err error) bool {
	return err == ErrNestedKey
}

// NewNestedKeyError returns a new NestedKeyError.
func NewNestedKeyError(key string) *NestedKeyError {
	return &NestedKeyError{Key: key}
}

// IsNestedKey returns true if the error is a NestedKeyError.
func IsNestedKey(err error) bool {
	if err == nil {
		return false
	}
	var e *NestedKeyError
	return errors.As(err, &e)
}

// Kind is the normalized class of a backend error.
type Kind uint8

// Backend error kinds.
const (
	Unknown Kind = iota
	AlreadyExists
	DuplicateValue
	NotFound
	TransientAbort
)

var kindNames = [...]string{
	Unknown:        "unknown",
	AlreadyExists:  "already exists",
	DuplicateValue: "duplicate value",
	NotFound:       "not found",
	TransientAbort: "transient abort",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// BackendError wraps a driver error with its normalized kind.
type BackendError struct {
	Kind Kind
	Code string // Driver specific code, e.g. "23505" or "1062"
	Err  error
}

// Error returns the error string.
func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("docql: %s (code %s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("docql: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrBackend.
func (e *BackendError) Is(err error) bool {
	return err == ErrBackend
}

// NewBackendError returns a new BackendError.
func NewBackendError(kind Kind, code string, err error) *BackendError {
	return &BackendError{Kind: kind, Code: code, Err: err}
}

// KindOf returns the kind of a BackendError in the chain, or Unknown.
func KindOf(err error) Kind {
	var e *BackendError
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsNotFound returns true if the error is a BackendError of kind NotFound.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == NotFound
}

// IsDuplicateValue returns true if the error is a BackendError of kind DuplicateValue.
func IsDuplicateValue(err error) bool {
	return err != nil && KindOf(err) == DuplicateValue
}

// IsAlreadyExists returns true if the error is a BackendError of kind AlreadyExists.
func IsAlreadyExists(err error) bool {
	return err != nil && KindOf(err) == AlreadyExists
}

// IsTransientAbort returns true if the error is a BackendError of kind TransientAbort.
func IsTransientAbort(err error) bool {
	return err != nil && KindOf(err) == TransientAbort
}

// Shape describes the run-time shape of a document value for error
// messages, e.g. "object{$unknownOp}" or "string".
func Shape(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	case []any:
		return fmt.Sprintf("array[%d]", len(v))
	case map[string]any:
		if t, ok := v["__type"].(string); ok {
			return "tagged " + t
		}
		if op, ok := v["__op"].(string); ok {
			return "op " + op
		}
		keys := sortedKeys(v)
		if len(keys) > 4 {
			keys = append(keys[:4], "...")
		}
		return fmt.Sprintf("object%v", keys)
	default:
		return fmt.Sprintf("%T", v)
	}
}
