package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound   = errors.New("session not found")
	ErrStorage    = errors.New("session storage failure")
	ErrClosed     = errors.New("session store closed")
	ErrInvalidDSN = errors.New("unsupported database url")
	ErrCorrupt    = errors.New("malformed store file")
)
