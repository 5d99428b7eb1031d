// Package protocol implements the wire format of the hub recovery
// bootloader: request frame builders, response parsers, hub type
// identifiers and the running XOR transfer checksum.
//
// # Protocol Overview
//
// The bootloader speaks a half-duplex request/response protocol. The
// host sends single-command frames and the hub answers with a frame
// echoing the command code, or with a distinguished generic error frame
// (CmdError) when a command cannot be handled. Two commands never
// produce a response: Start App and Disconnect both drop the connection
// as a side effect.
//
// # Frame Format
//
// Requests start with a one-byte command code followed by a
// command-specific payload. Multi-byte fields are little-endian.
// For example, a program request looks like:
//
//	[0x22][SIZE][ADDRESS(4, LE)][PAYLOAD...]
//
// # Transfer Integrity
//
// The bootloader maintains a running XOR checksum over every firmware
// byte it receives, seeded with XorSeed. The host mirrors the
// accumulator with UpdateXorChecksum and compares it against the hub's
// value mid-stream (Get Checksum) and in the terminal program response.
//
// This package is transport-agnostic: the same frames travel over a
// BLE GATT characteristic or any other byte-oriented link.
package protocol
