package application

import "errors"

// MinPasswordLength is the shortest plaintext password accepted at account creation.
const MinPasswordLength = 5

var (
	ErrAccountConflict    = errors.New("account name or email already in use")
	ErrInvalidCredential  = errors.New("password must be at least 5 characters long")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)
