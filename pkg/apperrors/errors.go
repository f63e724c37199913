package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrProbeTargetNotAllowed = errors.New("probe target not allowed")
	ErrQueryRejected         = errors.New("query rejected")
	ErrGeneratorUnavailable  = errors.New("generator unavailable")
	ErrUnsupportedDialect    = errors.New("unsupported database type")
)
