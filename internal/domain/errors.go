package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrMissingTaxInfo    = errors.New("missing tax information")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("concurrent modification")
)

// GatewayError reports a failure of the upstream payment provider. It is
// never converted into a success.
type GatewayError struct {
	Op       string
	Err      error
	Declined bool
}

func (e *GatewayError) Error() string {
	if e.Declined {
		return fmt.Sprintf("gateway %s declined: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call was abandoned after the deadline.
func (e *GatewayError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// NewGatewayError wraps err unless it already is a gateway error.
func NewGatewayError(op string, err error) error {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

// PublicMessage is the text shown to non-admin users for err.
func PublicMessage(err error) string {
	var gwErr *GatewayError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record could not be found."
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to perform this action."
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidState):
		return "This action is not available in the record's current state."
	case errors.Is(err, ErrInvalidAmount):
		return "The amount is not valid for this payment."
	case errors.Is(err, ErrMissingTaxInfo):
		return "A PAN is required to issue a tax exemption certificate."
	case errors.Is(err, ErrValidation):
		return "Some of the submitted details are invalid."
	case errors.Is(err, ErrConflict):
		return "The record was changed by another request. Please try again."
	case errors.As(err, &gwErr):
		if gwErr.Timeout() {
			return "The payment provider did not respond in time. The payment is still pending."
		}
		return "The payment provider could not process the request."
	default:
		return "Something went wrong. Please try again later."
	}
}
