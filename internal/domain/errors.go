package domain

import "errors"

// Sentinel errors returned by stores. Logical conflicts are first-class
// outcomes for callers to interpret with errors.Is; transient driver
// failures wrap ErrStorageUnavailable and are retried or requeued.
var (
	ErrValidation         = errors.New("invalid input")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrApprovalNotFound   = errors.New("approval request not found")
	ErrAlreadyExists      = errors.New("ticket already exists")
	ErrVersionConflict    = errors.New("ticket version conflict")
	ErrAlreadyDecided     = errors.New("approval already decided")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBrokerUnavailable  = errors.New("broker unavailable")
)
