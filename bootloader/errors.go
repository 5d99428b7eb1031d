package bootloader

import (
	"errors"
	"fmt"

	"github.com/hubflash/go-hubflash/protocol"
)

// Sentinel errors for race outcomes inside the protocol engine.
var (
	// ErrTimeout indicates no matching response arrived in time
	ErrTimeout = errors.New("request timed out")

	// ErrDisconnected indicates the hub dropped the connection while a
	// response was pending
	ErrDisconnected = errors.New("hub disconnected")
)

// FailedToConnectError indicates the transport could not establish a
// connection to the hub.
type FailedToConnectError struct {
	Cause error
}

func (e *FailedToConnectError) Error() string {
	return fmt.Sprintf("failed to connect: %v", e.Cause)
}

func (e *FailedToConnectError) Unwrap() error {
	return e.Cause
}

// TransportRejectedError indicates the transport refused to queue or
// deliver a request.
type TransportRejectedError struct {
	Cause error
}

func (e *TransportRejectedError) Error() string {
	return fmt.Sprintf("transport rejected request: %v", e.Cause)
}

func (e *TransportRejectedError) Unwrap() error {
	return e.Cause
}

// DeviceMismatchError indicates the connected hub is not the hub type
// the firmware image was built for.
type DeviceMismatchError struct {
	Expected protocol.HubType
	Actual   protocol.HubType
}

func (e *DeviceMismatchError) Error() string {
	return fmt.Sprintf("device mismatch: firmware is for %s, connected hub is %s", e.Expected, e.Actual)
}

// HubErrorReason classifies a rejection reported by the hub.
type HubErrorReason int

// Hub error reasons.
const (
	// ReasonEraseFailed means the erase command returned a failure result
	ReasonEraseFailed HubErrorReason = iota + 1

	// ReasonInitFailed means the loader rejected the transfer size
	ReasonInitFailed

	// ReasonChecksumMismatch means the hub's running checksum diverged
	// from the host's
	ReasonChecksumMismatch

	// ReasonCountMismatch means the hub received a different number of
	// bytes than the host sent
	ReasonCountMismatch

	// ReasonUnknownCommand means the hub answered with its generic
	// error frame
	ReasonUnknownCommand
)

func (r HubErrorReason) String() string {
	switch r {
	case ReasonEraseFailed:
		return "erase failed"
	case ReasonInitFailed:
		return "init failed"
	case ReasonChecksumMismatch:
		return "checksum mismatch"
	case ReasonCountMismatch:
		return "byte count mismatch"
	case ReasonUnknownCommand:
		return "unknown command"
	default:
		return "unknown reason"
	}
}

// HubError indicates the hub reported a failure during flashing.
type HubError struct {
	// Reason classifies the failure
	Reason HubErrorReason

	// Detail carries reason-specific context for display
	Detail string

	// Cause is the underlying error, if any
	Cause error
}

func (e *HubError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("hub error: %s: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("hub error: %s", e.Reason)
}

func (e *HubError) Unwrap() error {
	return e.Cause
}

// NoFirmwareError indicates no packaged firmware archive is available
// for the detected hub type.
type NoFirmwareError struct {
	Hub protocol.HubType
}

func (e *NoFirmwareError) Error() string {
	return fmt.Sprintf("no firmware available for %s", e.Hub)
}

// UnknownError wraps an unexpected failure that does not fit the rest
// of the taxonomy. The flash attempt still ends with a best-effort
// disconnect.
type UnknownError struct {
	Cause error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unexpected flash failure: %v", e.Cause)
}

func (e *UnknownError) Unwrap() error {
	return e.Cause
}
