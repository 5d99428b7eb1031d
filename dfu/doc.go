// Package dfu flashes firmware to a hub over USB Device Firmware
// Update. It is the alternate delivery path for hubs whose BLE
// bootloader is unreachable; image building is shared with the
// bootloader package.
//
// # Basic Usage
//
//	builder := firmware.NewBuilder(&firmware.CommandCompiler{Path: "mpy-cross"})
//	flasher := dfu.New(dfu.GousbOpener{}, builder)
//
//	err := flasher.Flash(ctx, dfu.Request{Archive: archiveData})
//	if errors.Is(err, dfu.ErrNoDevice) {
//	    fmt.Println("no hub in DFU mode found")
//	}
//
// # Completion Signal
//
// DFU provides no application-level final acknowledgment. Completion
// is inferred from the device disconnecting after the write, which
// happens as a side effect of the hub resetting into the new firmware.
// When the disconnect does not arrive within the timeout, Flash
// returns a CompletionError even though the flash may have succeeded.
// The protocol offers nothing stronger.
package dfu
