package types

import "errors"

var (
	// ErrMalformedEvent marks a log line that is not a valid event.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownEvent marks a log line whose type is not one of the nine kinds.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrInvalidArgument is returned by write operations given bad input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStop may be returned from an EventFunc to end a scan early without
	// reporting an error.
	ErrStop = errors.New("stop scan")
)
