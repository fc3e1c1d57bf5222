package query

import (
	"errors"
	"fmt"
)

// TooDeepError reports an include tree nested past the engine's depth
// limit. The engine raises it during descriptor validation, before any
// store access.
type TooDeepError struct {
	Depth int
	Max   int
}

// Error implements the error interface.
func (e *TooDeepError) Error() string {
	return fmt.Sprintf("include depth %d exceeds limit %d", e.Depth, e.Max)
}

// IsTooDeep reports whether err is (or wraps) a TooDeepError.
func IsTooDeep(err error) bool {
	var td *TooDeepError
	return errors.As(err, &td)
}
