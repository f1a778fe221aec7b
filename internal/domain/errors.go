package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrBusy         = errors.New("another operation is in flight")
	ErrNotVerified  = errors.New("payment not verified")
	ErrWalletState  = errors.New("wallet not ready")
	ErrPayment      = errors.New("payment failed")
	ErrVerification = errors.New("payment verification failed")
	ErrDelivery     = errors.New("delivery failed")
)

// ServerError carries a non-2xx upstream status and its body text so the
// caller sees the remote error verbatim rather than a reinterpretation.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// NetworkError wraps a transport-level failure (the request never produced
// an HTTP response).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
