package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrResultsNotAvailable is returned when an asynchronous action has not finished yet.
	ErrResultsNotAvailable = errors.New("results not available")
	// ErrEvaluationFailed is returned when the evaluation tool could not produce a result.
	ErrEvaluationFailed = errors.New("evaluation failed")
)
