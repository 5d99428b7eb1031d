package dfu

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/hubflash/go-hubflash/protocol"
)

// USB identifiers of the hubs' DfuSe bootloader.
const (
	// VendorID is the hub manufacturer's USB vendor id
	VendorID = 0x0694

	// Bootloader product ids per hub
	ProductIDPrimeHub     = 0x0008
	ProductIDEssentialHub = 0x000D
	ProductIDInventorHub  = 0x0011
)

// productHubTypes maps bootloader product ids to hub types.
var productHubTypes = map[gousb.ID]protocol.HubType{
	ProductIDPrimeHub:     protocol.HubTypePrimeHub,
	ProductIDEssentialHub: protocol.HubTypeEssentialHub,
	ProductIDInventorHub:  protocol.HubTypeInventorHub,
}

// DFU class requests.
const (
	reqDnload    = 0x01
	reqGetStatus = 0x03
	reqClrStatus = 0x04

	// control transfer directions for the DFU interface
	rtOut = gousb.ControlOut | gousb.ControlClass | gousb.ControlInterface
	rtIn  = gousb.ControlIn | gousb.ControlClass | gousb.ControlInterface
)

// DFU device states from DFU_GETSTATUS.
const (
	stateDnloadBusy = 0x04
	stateDnloadIdle = 0x05
	stateError      = 0x0A
)

// DfuSe vendor commands, sent as block 0 downloads.
const (
	dfuseSetAddress = 0x21
	dfuseErasePage  = 0x41
)

// erasePageSize is the granularity of the DfuSe page erase command on
// these hubs.
const erasePageSize = 0x800

// GousbOpener opens hub bootloader devices through libusb.
type GousbOpener struct{}

// Open scans the bus for a hub in DFU mode and claims its interface.
// Returns ErrNoDevice when no hub bootloader is present.
func (GousbOpener) Open(_ context.Context) (Device, error) {
	usbctx := gousb.NewContext()

	devices, err := usbctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != gousb.ID(VendorID) {
			return false
		}
		_, known := productHubTypes[desc.Product]
		return known
	})
	if err != nil {
		for _, d := range devices {
			_ = d.Close()
		}
		_ = usbctx.Close()
		return nil, fmt.Errorf("scan usb bus: %w", err)
	}
	if len(devices) == 0 {
		_ = usbctx.Close()
		return nil, ErrNoDevice
	}

	// One hub at a time; extras are released immediately.
	dev := devices[0]
	for _, d := range devices[1:] {
		_ = d.Close()
	}

	if err := dev.SetAutoDetach(true); err != nil {
		_ = dev.Close()
		_ = usbctx.Close()
		return nil, fmt.Errorf("detach kernel driver: %w", err)
	}

	return &gousbDevice{
		usbctx:  usbctx,
		dev:     dev,
		hubType: productHubTypes[dev.Desc.Product],
	}, nil
}

// gousbDevice drives the DfuSe protocol over libusb control transfers.
type gousbDevice struct {
	usbctx  *gousb.Context
	dev     *gousb.Device
	hubType protocol.HubType
	closed  bool
}

func (d *gousbDevice) HubType() protocol.HubType {
	return d.hubType
}

// Write erases the target pages, downloads the image in ChunkSize
// blocks starting at StartAddress, then requests manifestation with a
// zero-length download. The device resets itself afterwards.
func (d *gousbDevice) Write(ctx context.Context, image []byte, onErase, onWrite ProgressFunc) error {
	if err := d.clearStatus(); err != nil {
		return &WriteError{Cause: err}
	}

	pages := (len(image) + erasePageSize - 1) / erasePageSize
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		addr := uint32(StartAddress + i*erasePageSize)
		if err := d.dfuseCommand(dfuseErasePage, addr); err != nil {
			return &WriteError{Offset: i * erasePageSize, Cause: err}
		}
		report(onErase, float64(i+1)/float64(pages))
	}

	if err := d.dfuseCommand(dfuseSetAddress, StartAddress); err != nil {
		return &WriteError{Cause: err}
	}

	// Data blocks are numbered from 2; 0 is reserved for DfuSe commands
	// and 1 is unused.
	block := uint16(2)
	for offset := 0; offset < len(image); offset += ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + ChunkSize
		if end > len(image) {
			end = len(image)
		}
		if err := d.download(block, image[offset:end]); err != nil {
			return &WriteError{Offset: offset, Cause: err}
		}
		block++
		report(onWrite, float64(end)/float64(len(image)))
	}

	// Zero-length download enters manifestation; the device leaves DFU
	// mode and reboots into the new firmware.
	if err := d.download(block, nil); err != nil {
		return &WriteError{Offset: len(image), Cause: err}
	}
	// The final status poll usually fails midway as the device resets;
	// that is the expected outcome, not an error.
	_, _, _ = d.getStatus()

	return nil
}

// WaitDisconnect polls the device until it falls off the bus.
func (d *gousbDevice) WaitDisconnect(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if _, _, err := d.getStatus(); err != nil {
				return nil
			}
		case <-deadline.C:
			return ErrStillConnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *gousbDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	err := d.dev.Close()
	if cerr := d.usbctx.Close(); err == nil {
		err = cerr
	}
	return err
}

// dfuseCommand issues a DfuSe vendor command with a u32 LE address
// argument and polls it to completion.
func (d *gousbDevice) dfuseCommand(cmd byte, addr uint32) error {
	buf := make([]byte, 5)
	buf[0] = cmd
	binary.LittleEndian.PutUint32(buf[1:], addr)
	return d.download(0, buf)
}

// download performs one DFU_DNLOAD transfer and polls DFU_GETSTATUS
// until the device settles.
func (d *gousbDevice) download(block uint16, data []byte) error {
	if _, err := d.dev.Control(rtOut, reqDnload, block, 0, data); err != nil {
		return err
	}

	for {
		status, state, err := d.getStatus()
		if err != nil {
			return err
		}
		switch state {
		case stateDnloadBusy:
			continue
		case stateError:
			return &StatusError{Status: status, State: state}
		default:
			return nil
		}
	}
}

// getStatus performs DFU_GETSTATUS, honoring the device's requested
// poll delay.
func (d *gousbDevice) getStatus() (status, state byte, err error) {
	buf := make([]byte, 6)
	if _, err := d.dev.Control(rtIn, reqGetStatus, 0, 0, buf); err != nil {
		return 0, 0, err
	}

	pollMillis := uint32(buf[1]) | uint32(buf[2])<<8 | uint32(buf[3])<<16
	if pollMillis > 0 {
		time.Sleep(time.Duration(pollMillis) * time.Millisecond)
	}
	return buf[0], buf[4], nil
}

// clearStatus resets a device stuck in the error state from a previous
// aborted attempt.
func (d *gousbDevice) clearStatus() error {
	_, state, err := d.getStatus()
	if err != nil {
		return err
	}
	if state != stateError {
		return nil
	}
	_, err = d.dev.Control(rtOut, reqClrStatus, 0, 0, nil)
	return err
}

func report(fn ProgressFunc, fraction float64) {
	if fn != nil {
		fn(fraction)
	}
}
