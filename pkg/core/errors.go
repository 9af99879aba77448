package core

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the simulation core. Every one of them is terminal
// for the simulation instance that produced it.
var (
	ErrInvalidDimension         = errors.New("invalid dimension")
	ErrDimensionMismatch        = errors.New("dimension mismatch")
	ErrDeviceUnavailable        = errors.New("device unavailable")
	ErrResourceAllocationFailed = errors.New("resource allocation failed")
	ErrBufferAliased            = errors.New("source and destination alias the same buffer")
	ErrHalted                   = errors.New("simulation halted after a fatal error")
)

// AllocationError records a buffer the device could not provide.
type AllocationError struct {
	Label string
	Size  uint64
	Err   error
}

func (e *AllocationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %q (%d bytes)", ErrResourceAllocationFailed, e.Label, e.Size)
	}
	return fmt.Sprintf("%v: %q (%d bytes): %v", ErrResourceAllocationFailed, e.Label, e.Size, e.Err)
}

// Is matches ErrResourceAllocationFailed.
func (e *AllocationError) Is(target error) bool { return target == ErrResourceAllocationFailed }

func (e *AllocationError) Unwrap() error { return e.Err }
