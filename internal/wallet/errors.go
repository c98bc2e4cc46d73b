package wallet

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrPolicyViolation  = errors.New("policy violation")
	ErrNotFound         = errors.New("not found")
	ErrKeyAccess        = errors.New("key access error")
	ErrBroadcast        = errors.New("signing or broadcast failed")
	ErrExpired          = errors.New("pending transaction expired")
	ErrAlreadyProcessed = errors.New("transaction already processed")
)
