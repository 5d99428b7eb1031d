package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command returns the command byte a response frame belongs to.
// Returns an error for empty frames.
func Command(frame []byte) (byte, error) {
	if len(frame) < 1 {
		return 0, fmt.Errorf("empty frame")
	}
	return frame[0], nil
}

// IsErrorFrame reports whether frame is the bootloader's generic error
// frame. Error frames take precedence over whatever response a caller
// is waiting for.
func IsErrorFrame(frame []byte) bool {
	return len(frame) >= 1 && frame[0] == CmdError
}

// IsResponseTo reports whether frame is a response to the given command.
func IsResponseTo(frame []byte, cmd byte) bool {
	return len(frame) >= 1 && frame[0] == cmd
}

// ParseErrorResponse parses a generic error frame.
// Returns the command the hub rejected.
//
// Frame structure:
//
//	[0x05][COMMAND][CODE]
func ParseErrorResponse(frame []byte) (byte, error) {
	if !IsErrorFrame(frame) {
		return 0, fmt.Errorf("not an error frame")
	}
	if len(frame) != 1+ErrorResponseSize {
		return 0, fmt.Errorf("invalid error frame length: got %d bytes, expected %d", len(frame), 1+ErrorResponseSize)
	}
	return frame[1], nil
}

// ParseResultResponse parses an erase or init response and returns the
// result code.
//
// Frame structure:
//
//	[CMD][RESULT]
func ParseResultResponse(frame []byte, cmd byte) (byte, error) {
	if !IsResponseTo(frame, cmd) {
		return 0, fmt.Errorf("unexpected command: got 0x%02X, expected 0x%02X", frame[0], cmd)
	}
	if len(frame) != 1+ResultResponseSize {
		return 0, fmt.Errorf("invalid result frame length: got %d bytes, expected %d", len(frame), 1+ResultResponseSize)
	}
	return frame[1], nil
}

// ParseGetInfoResponse parses a Get Info response.
//
// Frame structure:
//
//	[CMD][VERSION(4, LE)][START(4, LE)][END(4, LE)][TYPE(1)]
func ParseGetInfoResponse(frame []byte) (*HubInfo, error) {
	if !IsResponseTo(frame, CmdGetInfo) {
		return nil, fmt.Errorf("not a get info response")
	}
	if len(frame) != 1+GetInfoResponseSize {
		return nil, fmt.Errorf("invalid get info frame length: got %d bytes, expected %d", len(frame), 1+GetInfoResponseSize)
	}

	info := &HubInfo{
		Version:      int32(binary.LittleEndian.Uint32(frame[1:5])),
		StartAddress: binary.LittleEndian.Uint32(frame[5:9]),
		EndAddress:   binary.LittleEndian.Uint32(frame[9:13]),
		HubType:      HubType(frame[13]),
	}

	return info, nil
}

// ParseChecksumResponse parses a Get Checksum response.
// Returns the hub's current running XOR checksum.
//
// Frame structure:
//
//	[CMD][CHECKSUM(1)]
func ParseChecksumResponse(frame []byte) (byte, error) {
	if !IsResponseTo(frame, CmdGetChecksum) {
		return 0, fmt.Errorf("not a checksum response")
	}
	if len(frame) != 1+ChecksumResponseSize {
		return 0, fmt.Errorf("invalid checksum frame length: got %d bytes, expected %d", len(frame), 1+ChecksumResponseSize)
	}
	return frame[1], nil
}

// ParseProgramResponse parses the terminal response the hub sends after
// the final program chunk.
//
// Frame structure:
//
//	[CMD][COUNT(4, LE)][CHECKSUM(1)]
func ParseProgramResponse(frame []byte) (*ProgramResult, error) {
	if !IsResponseTo(frame, CmdProgramFlash) {
		return nil, fmt.Errorf("not a program response")
	}
	if len(frame) != 1+ProgramResponseSize {
		return nil, fmt.Errorf("invalid program frame length: got %d bytes, expected %d", len(frame), 1+ProgramResponseSize)
	}

	result := &ProgramResult{
		Count:    binary.LittleEndian.Uint32(frame[1:5]),
		Checksum: frame[5],
	}

	return result, nil
}

// ParseFlashStateResponse parses a Get Flash State response.
//
// Frame structure:
//
//	[CMD][LEVEL(1)]
func ParseFlashStateResponse(frame []byte) (FlashState, error) {
	if !IsResponseTo(frame, CmdGetFlashState) {
		return 0, fmt.Errorf("not a flash state response")
	}
	if len(frame) != 1+ResultResponseSize {
		return 0, fmt.Errorf("invalid flash state frame length: got %d bytes, expected %d", len(frame), 1+ResultResponseSize)
	}
	return FlashState(frame[1]), nil
}
