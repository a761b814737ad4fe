package broker

import "errors"

// Error taxonomy, kept stable per §7 so callers can match on sentinel
// values with errors.Is rather than parsing strings. Wrapped with
// fmt.Errorf("...: %w", ErrX) at call sites, in the teacher's style of
// package-level `var Err... = errors.New(...)` sentinels.
var (
	ErrNoSuchKey    = errors.New("broker: no such key")
	ErrNoSuchMaster = errors.New("broker: no such master")
	ErrNoSuchClone  = errors.New("broker: no such clone")
	ErrBackendFailure = errors.New("broker: backend failure")
	ErrStaleData    = errors.New("broker: stale data")

	ErrPeerInvalid      = errors.New("broker: invalid peer")
	ErrPeerUnavailable  = errors.New("broker: peer unavailable")
	ErrPeerTimeout      = errors.New("broker: peer request timed out")
	ErrPeerIncompatible = errors.New("broker: incompatible peer")

	ErrCannotOpenFile    = errors.New("broker: cannot open file")
	ErrCannotWriteFile   = errors.New("broker: cannot write file")
	ErrBadMagic          = errors.New("broker: bad magic number")
	ErrUnsupportedVersion = errors.New("broker: unsupported format version")
	ErrFormatTruncated   = errors.New("broker: truncated entry")

	ErrRequestTimeout = errors.New("broker: request timed out")
	ErrShuttingDown   = errors.New("broker: endpoint is shutting down")
	ErrUnspecified    = errors.New("broker: unspecified error")
)

// Note: ErrTypeClash lives in data_ops.go alongside the Combine semantics
// it guards.
