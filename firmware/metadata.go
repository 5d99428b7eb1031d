package firmware

import (
	"fmt"

	"github.com/hubflash/go-hubflash/protocol"
)

// ChecksumType selects the integrity algorithm the hub firmware expects
// in its image footer.
type ChecksumType string

// Supported checksum types.
const (
	// ChecksumSum is a 32-bit two's-complement sum over the padded image
	ChecksumSum ChecksumType = "sum"

	// ChecksumCrc32 is the STM32 hardware CRC-32 over the padded image
	ChecksumCrc32 ChecksumType = "crc32"
)

// Supported MicroPython ABI versions for embedded user programs.
const (
	minMpyAbiVersion = 5
	maxMpyAbiVersion = 6
)

// Metadata describes how to patch a base firmware binary into a
// flashable image. It is read from the archive's metadata file and is
// immutable after loading.
type Metadata struct {
	// FirmwareVersion is the human-readable firmware version string
	FirmwareVersion string `json:"firmware-version"`

	// DeviceID identifies the hub this firmware runs on
	DeviceID protocol.HubType `json:"device-id"`

	// ChecksumType selects the footer checksum algorithm
	ChecksumType ChecksumType `json:"checksum-type"`

	// MpyAbiVersion is the MicroPython bytecode ABI the firmware expects.
	// Must be 5 or 6.
	MpyAbiVersion int `json:"mpy-abi-version"`

	// MpyCrossOptions are extra compiler flags for the cross compiler
	MpyCrossOptions []string `json:"mpy-cross-options"`

	// UserProgramOffset is the byte offset of the embedded user program
	// within the base binary
	UserProgramOffset int `json:"user-mpy-offset"`

	// MaxFirmwareSize is the byte capacity of the hub's firmware flash
	// region; the checksum is computed over the image padded to this size
	MaxFirmwareSize int `json:"max-firmware-size"`

	// MaxHubNameSize is the capacity of the custom hub name field
	// including its zero terminator; 0 means the firmware has no such field
	MaxHubNameSize int `json:"max-hub-name-size"`

	// HubNameOffset is the byte offset of the hub name field
	HubNameOffset int `json:"hub-name-offset"`
}

// Validate checks that the metadata fields this package depends on are
// usable. The checksum type is validated separately when the checksum is
// computed, so an unknown type surfaces as UnsupportedMetadataError with
// field "checksum-type" at that point.
func (m *Metadata) Validate() error {
	if m.MpyAbiVersion < minMpyAbiVersion || m.MpyAbiVersion > maxMpyAbiVersion {
		return &UnsupportedMetadataError{
			Field: "mpy-abi-version",
			Value: fmt.Sprintf("%d", m.MpyAbiVersion),
		}
	}
	if m.UserProgramOffset < 0 || m.MaxFirmwareSize <= 0 {
		return &UnsupportedMetadataError{
			Field: "user-mpy-offset",
			Value: fmt.Sprintf("%d/%d", m.UserProgramOffset, m.MaxFirmwareSize),
		}
	}
	// The checksum walks the image as 32-bit words; an unaligned program
	// offset would leave a byte tail the word source cannot represent.
	if m.UserProgramOffset%4 != 0 {
		return &UnsupportedMetadataError{
			Field: "user-mpy-offset",
			Value: fmt.Sprintf("%d", m.UserProgramOffset),
		}
	}
	return nil
}
