package realtime

import "errors"

var (
	// ErrCapacityExceeded is returned by Subscribe and On when the client
	// already holds the maximum number of subscriptions.
	ErrCapacityExceeded = errors.New("realtime subscription capacity exceeded")

	// ErrConnectTimeout is returned by EnsureConnected when the context ends
	// before the connection opens.
	ErrConnectTimeout = errors.New("realtime connect timed out")

	ErrNoDecoder  = errors.New("no decoder registered for tr_id")
	ErrFieldCount = errors.New("field count mismatch")
	ErrMissingKey = errors.New("no cipher key for tr_id")
	ErrDecrypt    = errors.New("decrypt failed")
	ErrMalformed  = errors.New("malformed frame")

	// ErrAmbiguousKey means several subscriptions of one tr_id hold
	// different keys and a pushed frame cannot say which one applies.
	ErrAmbiguousKey = errors.New("ambiguous cipher key for tr_id")
)
