package service

import (
	"errors"

	"github.com/okian/shopstudy/internal/adapters/repository"
)

var (
	// ErrNotFound is returned for an unknown participant.
	ErrNotFound = repository.ErrNotFound

	ErrNoStore        = errors.New("service has no store")
	ErrNotStarted     = errors.New("service not started")
	ErrUnknownProduct = errors.New("unknown product")
	ErrInvalidInput   = errors.New("invalid input")
)
