package models

import (
	"errors"
)

var (
	ErrGeneral          = errors.New("an error occurred on the server during your request")
	ErrResourceNotFound = errors.New("there is no")
	ErrValidation       = errors.New("the data you sent is not valid")
)

// Ledger errors
var (
	ErrNoAllocation               = errors.New("there is no allocation for this entity in this fiscal year")
	ErrInsufficientBalance        = errors.New("the amount exceeds the available balance")
	ErrInvalidAmount              = errors.New("the amount must be greater than zero")
	ErrDuplicateActiveTransaction = errors.New("the beneficiary already has an active transaction in this fiscal year")
	ErrInvalidState               = errors.New("the transaction is not in a state that allows this operation")
	ErrConcurrencyConflict        = errors.New("the balance sheet was modified concurrently, please retry")
	ErrVoucherNotUnique           = errors.New("the voucher number is already in use")
)
