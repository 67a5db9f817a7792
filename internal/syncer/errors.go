package syncer

import "errors"

var (
	ErrNotStarted = errors.New("syncer not started")
	ErrNoCall     = errors.New("task has no call")
)
