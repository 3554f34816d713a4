package domain

import "errors"

var (
	ErrNotInitialized   = errors.New("permissions not initialized")
	ErrPermissionDenied = errors.New("permission denied")
	ErrApprovalRequired = errors.New("deletion requires approval")
	ErrInvalidConfig    = errors.New("invalid system configuration")
	ErrConfigNotFound   = errors.New("system configuration not found")
)
