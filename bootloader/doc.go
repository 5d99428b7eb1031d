// Package bootloader flashes firmware to a hub over its BLE recovery
// bootloader.
//
// The entry point is the Flasher, which drives a complete flash attempt
// against any Transport implementation: connect, identify the hub,
// erase flash, initialize the loader, stream the image in chunks with
// periodic checksum verification, verify the final byte count and
// checksum, and reboot into the new firmware.
//
// # Basic Usage
//
//	builder := firmware.NewBuilder(&firmware.CommandCompiler{Path: "mpy-cross"})
//	flasher := bootloader.New(transport, builder)
//
//	err := flasher.Flash(ctx, bootloader.Request{Archive: archiveData})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// When no archive is supplied, the Flasher identifies the connected hub
// first and fetches the matching archive through the configured
// firmware.Fetcher.
//
// # Error Handling
//
// Failures surface as typed errors: FailedToConnectError,
// DeviceMismatchError, HubError (with a HubErrorReason),
// NoFirmwareError, TransportRejectedError, or the sentinels ErrTimeout
// and ErrDisconnected. Anything the taxonomy does not cover is wrapped
// in UnknownError. Every failure path disconnects the transport before
// returning, so a failed attempt never leaks a connection.
//
// # Progress Reporting
//
// An optional ProgressCallback receives a Progress snapshot at each
// phase transition and after every programmed chunk:
//
//	flasher := bootloader.New(transport, builder,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("%s %.0f%%\n", p.Phase, p.Fraction*100)
//	    }),
//	)
package bootloader
