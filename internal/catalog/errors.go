package catalog

import "errors"

var (
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("missing column")

	// ErrValidation marks a failed opt-in consistency check. Callers must not
	// persist a table whose construction returned this error.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedFormat is returned for a file extension with no reader or writer.
	ErrUnsupportedFormat = errors.New("unsupported catalog format")
)
