package storage

import "errors"

var (
	ErrEmailExists           = errors.New("email already exists")
	ErrAccountNotFound       = errors.New("account not found")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired verification token")
)
