package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidCoordinates   = errors.New("invalid coordinates")
	ErrUnknownOffenseType   = errors.New("unknown offense type")
	ErrRateLimited          = errors.New("rate limited")
	ErrLocationTooImprecise = errors.New("location too imprecise")
	ErrNotFound             = errors.New("report not found")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrTransport            = errors.New("transport error")

	// ErrConnectionLost never reaches callers; the push client reconnects.
	ErrConnectionLost = errors.New("connection lost")
)

type RateLimitedError struct {
	MinutesRemaining int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("please wait %d minute(s) before sending another report", e.MinutesRemaining)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

type LocationTooImpreciseError struct {
	AccuracyMeters float64
}

func (e *LocationTooImpreciseError) Error() string {
	return fmt.Sprintf("location accuracy %.0fm is not enough, move somewhere with better GPS signal", e.AccuracyMeters)
}

func (e *LocationTooImpreciseError) Is(target error) bool { return target == ErrLocationTooImprecise }

type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("report %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransportError is a failed request. StatusCode is 0 when no response arrived.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: status %d: %v", e.StatusCode, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }
