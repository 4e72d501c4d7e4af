package queue

import "errors"

var (
	// ErrPermanent marks a failure that retrying cannot fix. Jobs failing with
	// it go straight to the failed list.
	ErrPermanent = errors.New("queue: permanent failure")

	// ErrInvalidPayload is returned when a job payload does not decode into
	// the task's payload type.
	ErrInvalidPayload = errors.New("queue: invalid payload")

	// ErrUnknownTask is returned when no task is registered for a job.
	ErrUnknownTask = errors.New("queue: unknown task")
)

// Permanent wraps err so that the job is not retried.
func Permanent(err error) error {
	return errors.Join(ErrPermanent, err)
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrUnknownTask)
}
