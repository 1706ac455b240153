package shelter

import (
	"errors"
	"fmt"
)

// ErrUpstreamFailure marks runs that stopped because the source could not be read.
var ErrUpstreamFailure = errors.New("upstream failure")

// BatchError reports the program batch that failed to persist. Batches
// before Index were committed.
type BatchError struct {
	Index int
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("failed to persist program batch %d (%d rows): %v", e.Index, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
