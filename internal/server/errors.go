package server

import "errors"

var (
	// ErrUnsupportedBackend is returned when no backend matches the requested kind.
	ErrUnsupportedBackend = errors.New("unsupported server backend")
	// ErrReloadRequested is returned by a reloading backend after it stopped
	// because a watched file changed.
	ErrReloadRequested = errors.New("reload requested")
	// ErrTLSMaterial wraps failures to read or decode certificates and keys.
	ErrTLSMaterial = errors.New("invalid TLS material")
)
