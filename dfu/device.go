package dfu

import (
	"context"
	"time"

	"github.com/hubflash/go-hubflash/protocol"
)

// ProgressFunc receives a completion fraction in [0, 1]. Erase and
// write report through separate callbacks because DFU has no discrete
// per-chunk acknowledgments, only bulk progress.
type ProgressFunc func(fraction float64)

// Device is an opened USB bootloader device. Implementations own the
// underlying handle; Close releases it and is safe to call more than
// once.
type Device interface {
	// HubType identifies the hub, derived from the USB product id
	HubType() protocol.HubType

	// Write erases the target flash region and streams the image into
	// it. onErase and onWrite report the two phases independently;
	// either may be nil.
	Write(ctx context.Context, image []byte, onErase, onWrite ProgressFunc) error

	// WaitDisconnect blocks until the device drops off the bus or the
	// timeout elapses. Returns ErrStillConnected on timeout.
	WaitDisconnect(ctx context.Context, timeout time.Duration) error

	// Close releases the device handle
	Close() error
}

// Opener finds and opens a bootloader device. A declined device picker
// or an empty bus is the non-error outcome ErrNoDevice.
type Opener interface {
	Open(ctx context.Context) (Device, error)
}
