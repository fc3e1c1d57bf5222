package engine

import (
	"errors"
	"fmt"

	"github.com/weftdb/weft/schema"
)

// ConstraintKind categorizes constraint violations.
type ConstraintKind string

const (
	// ConstraintUnique: a value collided with an existing row on a unique
	// field.
	ConstraintUnique ConstraintKind = "unique"
	// ConstraintRequired: a create omitted, or a write nulled, a field
	// that must hold a value.
	ConstraintRequired ConstraintKind = "required"
	// ConstraintForeignKey: the store rejected a dangling reference.
	ConstraintForeignKey ConstraintKind = "foreign key"
)

// ConstraintViolationError reports a write rejected by a data constraint,
// whether the engine caught it before dispatch or the store reported it.
type ConstraintViolationError struct {
	Model string
	Field string
	Kind  ConstraintKind
	// Value is the offending value, when one exists. Nil for omissions.
	Value schema.Value
}

// Error implements the error interface.
func (e *ConstraintViolationError) Error() string {
	site := e.Model
	if e.Field != "" {
		site = e.Model + "." + e.Field
	}
	if e.Value != nil {
		return fmt.Sprintf("%s constraint violated on %s (value %s)", e.Kind, site, schema.Format(e.Value))
	}
	return fmt.Sprintf("%s constraint violated on %s", e.Kind, site)
}

// IsConstraintViolation reports whether err is (or wraps) a
// ConstraintViolationError.
func IsConstraintViolation(err error) bool {
	var cv *ConstraintViolationError
	return errors.As(err, &cv)
}

// UnsupportedOperationError reports a descriptor that asks a store for
// something outside its declared capabilities. Raised before dispatch; the
// store never sees the request.
type UnsupportedOperationError struct {
	Store string
	Op    string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("store %s does not support %s", e.Store, e.Op)
}

// IsUnsupported reports whether err is (or wraps) an
// UnsupportedOperationError.
func IsUnsupported(err error) bool {
	var uo *UnsupportedOperationError
	return errors.As(err, &uo)
}

// ValidationError reports a descriptor that does not fit the schema: an
// unknown field, an unknown relation, a write to an id. Raised during
// descriptor validation, before any store access.
type ValidationError struct {
	Model   string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	site := e.Model
	if e.Field != "" {
		site = e.Model + "." + e.Field
	}
	return fmt.Sprintf("invalid query: %s: %s", site, e.Message)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrNestedTransaction is returned when Transaction is called on an engine
// already executing inside one.
var ErrNestedTransaction = errors.New("engine: transactions do not nest")
