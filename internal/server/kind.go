package server

import (
	"fmt"
	"strings"
)

// Kind selects which server backend serves the API.
type Kind int

const (
	// Hypercorn is served by net/http and is the default backend.
	Hypercorn Kind = iota
	// Uvicorn is served by fasthttp.
	Uvicorn
)

// String returns the name used for the backend's CLI flag, config section and logger namespace.
func (k Kind) String() string {
	switch k {
	case Hypercorn:
		return "hypercorn"
	case Uvicorn:
		return "uvicorn"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a backend name onto its Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hypercorn":
		return Hypercorn, nil
	case "uvicorn":
		return Uvicorn, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
	}
}
