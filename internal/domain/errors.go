package domain

import "errors"

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrSequenceNotFound   = errors.New("sequence not found")
	ErrSequenceInactive   = errors.New("sequence is inactive")
	ErrSequenceNoSteps    = errors.New("sequence has no steps")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("customer already has an active enrollment in this sequence")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrUnknownJobType     = errors.New("unknown job type")
)
