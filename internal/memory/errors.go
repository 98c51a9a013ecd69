package memory

import "errors"

var (
	// ErrNotFound reports an unknown thread or message id. Surfaced to
	// the caller before any write happens.
	ErrNotFound = errors.New("memory: not found")

	// ErrThreadBusy reports a concurrent turn on the same thread. Turns
	// on one thread are single-writer; callers should retry later.
	ErrThreadBusy = errors.New("memory: thread busy")
)
