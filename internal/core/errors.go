package core

import "errors"

// Error classes. Wrap with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrTransientFetch marks an unreachable source or oracle. The item is skipped.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrParse marks malformed oracle output or feed content.
	ErrParse = errors.New("parse error")
	// ErrConfiguration marks a missing credential. Fatal before any stage runs.
	ErrConfiguration = errors.New("configuration error")
	// ErrDelivery marks a per-user delivery failure.
	ErrDelivery = errors.New("delivery failure")
)
