package runplan

import "errors"

var (
	ErrJobPartitionsMismatch = errors.New("job partitions mismatch")
	ErrInvalidSelection      = errors.New("invalid partition selection")
	ErrMissingSelection      = errors.New("partitioned job requires a partition selection")
	ErrInvalidJob            = errors.New("invalid job")
)
