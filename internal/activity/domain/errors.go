package domain

import "errors"

var (
	ErrNothingToExport   = errors.New("no log entries to export with the current filters")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrTooManyEvents     = errors.New("too many events in one request")
	ErrInvalidEvent      = errors.New("event action and category are required")
	ErrCategoryForbidden = errors.New("category not allowed for anonymous callers")
	ErrLoggerStopped     = errors.New("activity logger is stopped")
)
