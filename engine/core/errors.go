package core

import (
	"errors"
)

var (
	// ErrUnsupportedInput marks import data outside the supported subset, such as a cluster
	// link mode other than normalize. Not recoverable by retrying.
	ErrUnsupportedInput = errors.New("unsupported input")
	// ErrLookupFailure marks a mesh name or bone handle that cannot be resolved.
	ErrLookupFailure = errors.New("lookup failure")
	ErrInvalidMesh   = errors.New("invalid mesh")
	ErrMeshExists    = errors.New("mesh already registered")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknown       = errors.New("unknown")
)
