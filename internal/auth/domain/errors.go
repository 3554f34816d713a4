package domain

import "errors"

var (
	ErrMissingToken            = errors.New("no authorization token provided")
	ErrInvalidToken            = errors.New("invalid authorization token")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrUserNotFound            = errors.New("user document not found")
	ErrNoAuthenticatedUser     = errors.New("no authenticated user")
	ErrMissingDeleteFields     = errors.New("userId and userEmail are required")
)
