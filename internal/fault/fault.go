// Package fault defines the sentinel error kinds shared by every component of
// the broker, so the dispatcher can classify a failure with errors.Is instead
// of matching against an error string.
package fault

import "errors"

var (
	// ErrDuplicateSimulator is returned when a HELLO arrives from an identity
	// already present in the registry.
	ErrDuplicateSimulator = errors.New("duplicate simulator")

	// ErrRegistrationClosed is returned when a HELLO arrives after the
	// registry has already admitted expected_sims peers.
	ErrRegistrationClosed = errors.New("registration closed")

	// ErrUnknownSimulator is returned when a non-HELLO message arrives from
	// an identity that never sent HELLO.
	ErrUnknownSimulator = errors.New("unknown simulator")

	// ErrConfig is returned when a HELLO payload cannot be parsed into a
	// valid configuration.
	ErrConfig = errors.New("invalid configuration")

	// ErrUnknownMessageType is returned when the type tag frame does not
	// match any known message type.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrMalformedMessage is returned when a message is missing a frame its
	// type requires, or carries a frame whose value is invalid (an
	// unparseable time, a non-positive TIME_DELTA).
	ErrMalformedMessage = errors.New("malformed message")

	// ErrTransport is returned by the transport adapter on bind, send or
	// receive failure.
	ErrTransport = errors.New("transport error")
)
