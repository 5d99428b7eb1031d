package protocol

import (
	"encoding/binary"
	"fmt"
)

// BuildEraseCmd constructs an Erase Flash request. The variant flag
// must be set for hubs for which HubType.NeedsEraseWorkaround reports
// true; their bootloaders erase in a mode that may never produce the
// acknowledgment even on success.
//
// Frame structure:
//
//	[CMD][VARIANT]
//
// Erasing takes several seconds on most hubs.
func BuildEraseCmd(variant bool) []byte {
	v := byte(0)
	if variant {
		v = 1
	}
	return []byte{CmdEraseFlash, v}
}

// BuildProgramCmd constructs a Program Flash request for one chunk.
// The address is the absolute flash address the chunk is written to.
//
// Frame structure:
//
//	[CMD][SIZE][ADDRESS(4, LE)][PAYLOAD...]
//
// SIZE counts the address and payload bytes together. The payload must
// not be empty and must not exceed MaxProgramPayload; the per-hub limit
// from HubType.MaxChunkSize is stricter and enforced by callers.
func BuildProgramCmd(address uint32, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("payload cannot be empty")
	}
	if len(payload) > MaxProgramPayload {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d bytes", len(payload), MaxProgramPayload)
	}

	frame := make([]byte, 0, ProgramHeaderSize+len(payload))
	frame = append(frame, CmdProgramFlash)
	frame = append(frame, byte(4+len(payload)))

	addr := make([]byte, 4)
	binary.LittleEndian.PutUint32(addr, address)
	frame = append(frame, addr...)

	frame = append(frame, payload...)

	return frame, nil
}

// BuildStartAppCmd constructs a Start App request.
// The bootloader validates the written firmware and reboots into it;
// the connection drops as a side effect, so no response follows.
//
// Frame structure:
//
//	[CMD]
func BuildStartAppCmd() []byte {
	return []byte{CmdStartApp}
}

// BuildInitCmd constructs an Init Loader request announcing the total
// number of firmware bytes that will follow.
//
// Frame structure:
//
//	[CMD][LENGTH(4, LE)]
func BuildInitCmd(firmwareSize uint32) []byte {
	frame := make([]byte, 0, 5)
	frame = append(frame, CmdInitLoader)

	size := make([]byte, 4)
	binary.LittleEndian.PutUint32(size, firmwareSize)
	frame = append(frame, size...)

	return frame
}

// BuildGetInfoCmd constructs a Get Info request.
//
// Frame structure:
//
//	[CMD]
func BuildGetInfoCmd() []byte {
	return []byte{CmdGetInfo}
}

// BuildGetChecksumCmd constructs a Get Checksum request.
// The hub replies with the current value of its running XOR checksum.
//
// Frame structure:
//
//	[CMD]
func BuildGetChecksumCmd() []byte {
	return []byte{CmdGetChecksum}
}

// BuildGetFlashStateCmd constructs a Get Flash State request.
//
// Frame structure:
//
//	[CMD]
func BuildGetFlashStateCmd() []byte {
	return []byte{CmdGetFlashState}
}

// BuildDisconnectCmd constructs a Disconnect request.
// The bootloader drops the connection without a response.
//
// Frame structure:
//
//	[CMD]
func BuildDisconnectCmd() []byte {
	return []byte{CmdDisconnect}
}
