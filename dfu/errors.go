package dfu

import (
	"errors"
	"fmt"
)

// Sentinel outcomes of the USB flash path.
var (
	// ErrNoDevice means no bootloader device was found or selected.
	// Callers should treat it as a benign outcome, not a failure.
	ErrNoDevice = errors.New("no bootloader device selected")

	// ErrStillConnected means the device did not disconnect within the
	// completion window
	ErrStillConnected = errors.New("device still connected")
)

// CompletionError indicates the post-write disconnect never arrived.
// DFU has no application-level final acknowledgment, so the flash may
// in fact have succeeded; the protocol offers no way to tell.
type CompletionError struct {
	Cause error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("flash completion not confirmed: %v", e.Cause)
}

func (e *CompletionError) Unwrap() error {
	return e.Cause
}

// WriteError indicates the erase or download stream failed partway.
type WriteError struct {
	// Offset is the image offset reached when the stream failed
	Offset int

	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("dfu write failed at offset %d: %v", e.Offset, e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

// StatusError indicates the device reported a DFU error status.
type StatusError struct {
	// Status is the bStatus code from DFU_GETSTATUS
	Status byte

	// State is the bState code from DFU_GETSTATUS
	State byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dfu device error: status 0x%02X, state 0x%02X", e.Status, e.State)
}
