package repository

import "errors"

var (
	// ErrRepository tags every failure talking to the record store, whether
	// transport, permission or a malformed document.
	ErrRepository     = errors.New("record repository error")
	ErrRecordNotFound = errors.New("record not found")
	ErrUserExists     = errors.New("user already exists")
)
