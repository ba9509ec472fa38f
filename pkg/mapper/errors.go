package mapper

import (
	"errors"
	"fmt"
)

// ErrMapping is the root of every error raised by the mapper itself. Errors
// of the repository are passed through.
var ErrMapping = errors.New("mapper: mapping error")

var (
	ErrMissingNameField = fmt.Errorf("%w: type has no name field", ErrMapping)
	ErrEmptyName        = fmt.Errorf("%w: entity name is empty", ErrMapping)
	ErrUnmappedType     = fmt.Errorf("%w: type is not registered", ErrMapping)
	ErrTypeMismatch     = fmt.Errorf("%w: type mismatch", ErrMapping)
	ErrInvalidTag       = fmt.Errorf("%w: invalid struct tag", ErrMapping)
	ErrUnsupportedType  = fmt.Errorf("%w: unsupported type", ErrMapping)
)
