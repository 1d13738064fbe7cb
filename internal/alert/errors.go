package alert

import "errors"

var (
	ErrNotFound              = errors.New("alert not found")
	ErrAlertExists           = errors.New("alert already exists for item, location and type")
	ErrAlertConflict         = errors.New("alert was modified concurrently")
	ErrAlertClosed           = errors.New("alert is resolved or cancelled")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrRepositoryUnavailable = errors.New("alert repository unavailable")
)
