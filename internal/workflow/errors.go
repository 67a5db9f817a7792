package workflow

import "errors"

var (
	ErrInvalidTransition = errors.New("action not allowed in current step")
	ErrUnknownOption     = errors.New("unknown option")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrEmptyAnswer       = errors.New("answer selects nothing")
	ErrNotStarted        = errors.New("workflow not started")
	ErrStopped           = errors.New("scheduler stopped")
	ErrFinished          = errors.New("workflow finished")
)
