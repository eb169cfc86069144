package entities

import "errors"

// Sentinel errors for the metering core. Callers classify failures with
// errors.Is; everything else is treated as an internal error.
var (
	// ErrInvalidAmount indicates a non-positive mutation amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSessionNotFound indicates an unknown or already closed session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidEvent indicates a malformed payment confirmation event.
	ErrInvalidEvent = errors.New("invalid payment event")

	// ErrStorageUnavailable indicates the durable store is unreachable.
	// Session operations fail over to the local cache on this error;
	// payment confirmations are returned to the caller for retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
