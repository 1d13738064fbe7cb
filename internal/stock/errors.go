package stock

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrLevelExists           = errors.New("stock level already exists")
	ErrVersionConflict       = errors.New("stock level version conflict")
	ErrReservationNotActive  = errors.New("reservation is not active")
	ErrDuplicateMovement     = errors.New("movement already recorded")
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyTerminal   = errors.New("reservation already terminal")
	ErrContention        = errors.New("stock level contention, retry later")
	ErrInvalidAdjustment = errors.New("adjustment would leave on-hand below reserved")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDuplicateRequest  = errors.New("duplicate request in progress")
)
