package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Violation codes (S100-S119)
const (
	// field errors (S100-S104)
	ErrUnknownType     = "S100" // missing or unknown scalar type
	ErrDuplicateName   = "S101" // duplicate field name
	ErrNoIdentifier    = "S102" // model has no id field
	ErrManyIdentifiers = "S103" // model has more than one id field
	ErrBadIdentifier   = "S104" // id field nullable or of unsupported type

	// relation errors (S105-S114)
	ErrDuplicateRelation = "S105" // duplicate relation name or clash with a field
	ErrUnknownTarget     = "S106" // relation target model does not exist
	ErrUnknownRelKind    = "S107" // missing or unknown relation kind
	ErrNoOwner           = "S108" // no side, or both sides, carry the foreign key
	ErrUnknownFK         = "S109" // foreign key field does not exist
	ErrFKTypeMismatch    = "S110" // foreign key type differs from referenced field
	ErrFKNotUnique       = "S111" // one-to-one foreign key must be unique
	ErrBadToMany         = "S112" // one-to-many side shape errors
	ErrBadInverse        = "S113" // inverse missing, mispointed, or kind mismatch
	ErrBadJoin           = "S114" // many-to-many through errors

	// default errors (S115-S117)
	ErrBadGenerator  = "S115" // generator not applicable to the field
	ErrBadDefault    = "S116" // literal default type mismatch
	ErrDefaultAndGen = "S117" // both literal default and generator set

	// reference errors (S118-S119)
	ErrUnknownReference = "S118" // references names an unknown or non-unique field
	ErrDuplicateTable   = "S119" // two models or a join table share a table name
)

// Violation is one schema rule broken at one site. Load collects every
// violation before failing, so Field paths must locate the site on their
// own: "User.email", "Post.author".
type Violation struct {
	Model   string `json:"model"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (v Violation) Error() string {
	site := v.Model
	if v.Field != "" {
		site = v.Model + "." + v.Field
	}
	return fmt.Sprintf("[%s] %s: %s", v.Code, site, v.Message)
}

// Error aggregates every violation found in one schema definition.
type Error struct {
	Violations []Violation
}

// Error implements the error interface, listing each violation on its own
// line.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema has %d violation", len(e.Violations))
	if len(e.Violations) != 1 {
		b.WriteByte('s')
	}
	for _, v := range e.Violations {
		b.WriteString("\n  ")
		b.WriteString(v.Error())
	}
	return b.String()
}

// IsSchemaError reports whether err is (or wraps) a schema validation
// Error.
func IsSchemaError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// NotFoundError reports a lookup that named a model, or a record within a
// model, that does not exist. Key is nil for model-level lookups.
type NotFoundError struct {
	Model string
	Key   Value
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("%s with key %s not found", e.Model, Format(e.Key))
	}
	return fmt.Sprintf("model %q not found", e.Model)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TypeMismatchError reports a value that does not fit the declared type of
// a field. Values are never silently coerced; a string in an int column is
// an error, not a zero.
type TypeMismatchError struct {
	Model string
	Field string
	Want  Kind
	Got   string
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s.%s: want %s, got %s", e.Model, e.Field, e.Want, e.Got)
}

// IsTypeMismatch reports whether err is (or wraps) a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var tm *TypeMismatchError
	return errors.As(err, &tm)
}
