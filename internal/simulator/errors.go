package simulator

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid simulator config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrInconsistent  = errors.New("stored data inconsistent with participant runs")
)
