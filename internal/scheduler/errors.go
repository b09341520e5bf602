package scheduler

import (
	"errors"
	"fmt"
)

var ErrNoImage = errors.New("decoder returned no image")

// DecodeError reports a frame the decoder could not produce. It is local to
// the one request and is never retried.
type DecodeError struct {
	Index int
	Frame int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode slot %d frame %d: %v", e.Index, e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
