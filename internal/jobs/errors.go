package jobs

import "errors"

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrJobActive         = errors.New("job is still active")
)

// StoppedByUser is the error recorded on a job that ended through a stop request
const StoppedByUser = "Stopped by user"
