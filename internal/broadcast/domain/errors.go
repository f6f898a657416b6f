package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's no longer queued
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in QUEUED status")

	// ErrInvalidFilter is returned when a job's stored filter cannot be interpreted
	ErrInvalidFilter = errors.New("invalid members filter")

	// ErrInvalidPhoneNumber is returned for numbers the gateway cannot deliver to
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
)
