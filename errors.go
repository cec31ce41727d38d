package tracewire

import "errors"

var (
	// ErrMalformedCarrier reports a binary carrier that is truncated
	// or whose declared lengths overrun the buffer. Recoverable: the
	// caller starts a new root span instead.
	ErrMalformedCarrier = errors.New("tracewire: malformed binary carrier")

	// ErrUnsupportedFormat reports a format token the tracer does not
	// recognize. A programming error, surfaced immediately.
	ErrUnsupportedFormat = errors.New("tracewire: unsupported propagation format")

	// ErrInvalidCarrier reports a carrier whose type does not match
	// the requested format.
	ErrInvalidCarrier = errors.New("tracewire: carrier type does not match format")

	// ErrInvalidBaggageKey reports a baggage key that does not match
	// [a-z0-9][-a-z0-9]* after lowercasing. Existing baggage is left
	// untouched.
	ErrInvalidBaggageKey = errors.New("tracewire: invalid baggage key")

	// ErrUseAfterFinish reports a mutating operation on a span that
	// has already finished.
	ErrUseAfterFinish = errors.New("tracewire: span already finished")

	// ErrEmptyOperation reports a StartSpan call without an operation
	// name.
	ErrEmptyOperation = errors.New("tracewire: operation name is empty")

	// ErrUnsupportedTagValue reports a tag value outside the closed
	// set of strings, numbers, and booleans.
	ErrUnsupportedTagValue = errors.New("tracewire: tag value is not a string, number, or boolean")
)
