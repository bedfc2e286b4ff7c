package partitions

import "errors"

var (
	// ErrKeyNotFound reports a key that is not a member of a partitions definition.
	ErrKeyNotFound = errors.New("partition key not found")
	// ErrInvalidRange reports range endpoints that are not members of, or are out of order within, a definition.
	ErrInvalidRange = errors.New("invalid partition key range")
	// ErrUnsupportedOperation reports a time-window-only operation invoked on a definition without time windows.
	ErrUnsupportedOperation = errors.New("unsupported partitions operation")
	// ErrInvalidDefinition reports construction parameters or asset declarations that can never be valid.
	ErrInvalidDefinition = errors.New("invalid definition")
)
