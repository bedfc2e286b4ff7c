package mapping

import "errors"

// ErrIncompatiblePartitioning reports two time-window definitions whose windows cannot be aligned.
var ErrIncompatiblePartitioning = errors.New("incompatible partitioning")
