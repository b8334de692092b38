package domain

import "errors"

// Common errors returned by the verification service.
var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidCode         = errors.New("invalid request code")
	ErrInvalidTransfer     = errors.New("invalid transfer id")
	ErrInvalidClaimant     = errors.New("claimant id is required")
	ErrInvalidOrigin       = errors.New("origin context is required")
	ErrAlreadyClaimed      = errors.New("address already claimed")
	ErrNotEligible         = errors.New("address is not eligible")
	ErrRequestInProgress   = errors.New("another verification is in progress for this address")
	ErrRequestNotFound     = errors.New("verification request not found")
	ErrForbidden           = errors.New("request belongs to another claimant")
	ErrNotClaimed          = errors.New("address has not been claimed")
	ErrScanningUnavailable = errors.New("payment verification is unavailable")
	ErrUpstreamUnavailable = errors.New("ledger unavailable")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrWrongDestination    = errors.New("transfer was not sent to the receiving address")
	ErrCodeSpaceExhausted  = errors.New("could not allocate a unique request code")
)
