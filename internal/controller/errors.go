package controller

import "errors"

// modelNotFoundError reports an id missing from the descriptor table.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error for an unknown model id.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether err indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// busyError signals that a load or generation is already in flight.
type busyError struct{ op string }

func (e busyError) Error() string {
	if e.op == "" {
		return "controller busy"
	}
	return "controller busy: cannot " + e.op + " while another request is in flight"
}

// ErrBusy returns the rejection for a concurrent op.
func ErrBusy(op string) error { return busyError{op: op} }

// IsBusy reports whether err is a concurrency rejection.
func IsBusy(err error) bool {
	var e busyError
	return errors.As(err, &e)
}

type notLoadedError struct{ id string }

func (e notLoadedError) Error() string {
	if e.id == "" {
		return "model not loaded"
	}
	return "model not loaded: " + e.id
}

// ErrNotLoaded returns the error for a generate issued before a successful load.
func ErrNotLoaded(id string) error { return notLoadedError{id: id} }

// IsNotLoaded reports whether err indicates missing model handles.
func IsNotLoaded(err error) bool {
	var e notLoadedError
	return errors.As(err, &e)
}

// acquisitionError wraps failures while loading or warming up a model.
type acquisitionError struct {
	id  string
	err error
}

func (e acquisitionError) Error() string { return "load " + e.id + ": " + e.err.Error() }
func (e acquisitionError) Unwrap() error { return e.err }

// IsAcquisition reports whether err came from model acquisition.
func IsAcquisition(err error) bool {
	var e acquisitionError
	return errors.As(err, &e)
}

// generationError wraps failures inside template rendering, the generation
// call or decoding.
type generationError struct {
	stage string
	err   error
}

func (e generationError) Error() string { return e.stage + ": " + e.err.Error() }
func (e generationError) Unwrap() error { return e.err }

// IsGeneration reports whether err came from a generation call.
func IsGeneration(err error) bool {
	var e generationError
	return errors.As(err, &e)
}

// errConfigChanged is returned when setConfig lands while a load is still
// acquiring handles for the previous configuration.
var errConfigChanged = errors.New("configuration changed during load")
