// Package mlerrors defines the sentinel error taxonomy shared across the
// media library, so callers can use errors.Is against a small fixed set
// instead of string-matching driver errors.
package mlerrors

import "errors"

var (
	// ErrNotFound is returned by a repository Fetch when no row matches.
	ErrNotFound = errors.New("medialib: entity not found")

	// ErrAlreadyExists is returned on a unique-constraint collision the
	// caller is expected to recover from (e.g. re-inserting a known mrl).
	ErrAlreadyExists = errors.New("medialib: entity already exists")

	// ErrDiscarded marks a parser Task that a service opted to drop
	// permanently rather than retry (status.Discarded).
	ErrDiscarded = errors.New("medialib: task discarded")

	// ErrFatal marks a parser Task failure that must not be retried
	// (status.Fatal).
	ErrFatal = errors.New("medialib: task failed fatally")

	// ErrTemporaryUnavailable marks a recoverable failure, e.g. a network
	// share that was unreachable when the task ran.
	ErrTemporaryUnavailable = errors.New("medialib: resource temporarily unavailable")

	// ErrSchemaTooNew is returned on open when the stored schema version
	// is newer than the version this build knows how to read.
	ErrSchemaTooNew = errors.New("medialib: database schema is newer than this build supports")

	// ErrInvalidMrl is returned by vfs.ParseMrl on a malformed resource
	// locator.
	ErrInvalidMrl = errors.New("medialib: invalid mrl")

	// ErrDeviceNotPresent is returned when an operation requires a Device
	// that is currently unmounted.
	ErrDeviceNotPresent = errors.New("medialib: device not present")

	// ErrNoFilesystemFactory is returned when no registered
	// FilesystemFactory claims an mrl's scheme.
	ErrNoFilesystemFactory = errors.New("medialib: no filesystem factory for scheme")

	// ErrStopped is returned by long-running worker operations invoked
	// after Stop has been called.
	ErrStopped = errors.New("medialib: worker stopped")
)
