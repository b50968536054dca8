package engram

import "errors"

var (
	// ErrInvalidArgument rejects a request before any mutation. The wrapped
	// message names the offending field.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStorageUnavailable means the store could not be opened or migrated.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrEmbeddingFailure means encoder inference failed; the write was not attempted.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrConsolidationInternal aborts a sleep cycle before the last-run
	// timestamp is advanced, so the next run integrates from the same base.
	ErrConsolidationInternal = errors.New("consolidation failed")
)
