package iomanager

import "errors"

var (
	// ErrPartitionMissing is returned when a partition has not been written.
	ErrPartitionMissing = errors.New("partition missing")
	// ErrUnboundedSubset is returned by LoadInput for an all-partitions subset
	// of a partitioned asset; use LoadAll with an as-of bound instead.
	ErrUnboundedSubset = errors.New("subset covers all partitions")
	// ErrInvalidPartitionKey is returned for keys that cannot name an object.
	ErrInvalidPartitionKey = errors.New("invalid partition key")
	// ErrTooManyPartitions is returned when a load exceeds MaxPartitions.
	ErrTooManyPartitions = errors.New("too many partitions")
)
