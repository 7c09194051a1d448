package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	// Precondition violations. These are fatal and never retried.
	ErrNoSession          = errors.New("operation requires a worker session")
	ErrLabelMismatch      = errors.New("train and validation datasets use different label sources")
	ErrUnsupportedBackend = errors.New("only the ddp backend is supported")
	ErrInvalidInput       = errors.New("invalid input data")
	ErrNotInitialized     = errors.New("estimator is not initialized")

	// ErrInterrupted ends a fit loop early. PartialFit swallows it.
	ErrInterrupted = errors.New("fit loop interrupted")

	ErrWorkerFailed   = errors.New("worker failed")
	ErrNotStarted     = errors.New("trainer is not started")
	ErrAlreadyStarted = errors.New("trainer is already started")

	ErrBundleFormat = errors.New("malformed state bundle")

	ErrModelNotFitted = errors.New("model is not fitted")
	ErrNotRunning     = errors.New("model is not being fitted")
	ErrModelBusy      = errors.New("model is being fitted")
)
