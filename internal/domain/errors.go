package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRegistered = errors.New("connection already registered in group")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrHubStopped        = errors.New("hub stopped")

	ErrStopNotFound   = errors.New("stop not found")
	ErrBusNotFound    = errors.New("bus not found")
	ErrRouteNotFound  = errors.New("route not found")
	ErrDriverNotFound = errors.New("driver not found")
	ErrTripNotFound   = errors.New("trip not found")

	ErrPositionNotFound = errors.New("position not found")
)

// DecodeError reports an inbound payload that is not structured data.
// It is only ever reported back to the connection that sent it.
type DecodeError struct {
	Size  int
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode %d byte payload: %v", e.Size, e.Cause)
	}
	return fmt.Sprintf("decode %d byte payload: not valid JSON", e.Size)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}
