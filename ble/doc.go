// Package ble provides a Bluetooth Low Energy bootloader.Transport
// backed by tinygo.org/x/bluetooth.
//
// A hub held in bootloader mode advertises a dedicated GATT service
// with a single characteristic: requests are written without response
// and the bootloader answers via notifications.
//
//	transport := ble.NewTransport()
//	flasher := bootloader.New(transport, builder)
//	err := flasher.Flash(ctx, bootloader.Request{Archive: archiveData})
package ble
