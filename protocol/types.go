package protocol

import "fmt"

// HubType identifies the kind of hub a bootloader is running on.
// The same identifiers appear in firmware archive metadata as "device-id".
type HubType byte

// Known hub types.
const (
	// HubTypeMoveHub is the BOOST Move hub
	HubTypeMoveHub HubType = 0x40

	// HubTypeCityHub is the City (Powered Up) hub
	HubTypeCityHub HubType = 0x41

	// HubTypeTechnicHub is the Technic (Control+) hub
	HubTypeTechnicHub HubType = 0x80

	// HubTypePrimeHub is the SPIKE Prime hub
	HubTypePrimeHub HubType = 0x81

	// HubTypeInventorHub is the MINDSTORMS Robot Inventor hub
	HubTypeInventorHub HubType = 0x82

	// HubTypeEssentialHub is the SPIKE Essential hub
	HubTypeEssentialHub HubType = 0x83
)

// String returns a human-readable hub name.
func (t HubType) String() string {
	switch t {
	case HubTypeMoveHub:
		return "movehub"
	case HubTypeCityHub:
		return "cityhub"
	case HubTypeTechnicHub:
		return "technichub"
	case HubTypePrimeHub:
		return "primehub"
	case HubTypeInventorHub:
		return "inventorhub"
	case HubTypeEssentialHub:
		return "essentialhub"
	default:
		return fmt.Sprintf("unknown hub type 0x%02X", byte(t))
	}
}

// MaxChunkSize returns the largest program payload the hub's BLE
// bootloader accepts in a single request.
func (t HubType) MaxChunkSize() int {
	switch t {
	case HubTypeMoveHub:
		return 14
	default:
		return 32
	}
}

// NeedsEraseWorkaround reports whether the hub's bootloader is known
// not to acknowledge the erase command even though the erase succeeds.
// Callers should treat an erase response timeout as success on these hubs.
func (t HubType) NeedsEraseWorkaround() bool {
	return t == HubTypeCityHub || t == HubTypeEssentialHub
}

// HubInfo contains bootloader identification information.
// Returned by the Get Info command.
type HubInfo struct {
	// Version is the bootloader firmware version
	Version int32

	// StartAddress is the first writable flash address
	StartAddress uint32

	// EndAddress is the last writable flash address (inclusive)
	EndAddress uint32

	// HubType identifies the connected hub
	HubType HubType
}

// ProgramResult is the terminal response to the last program request.
// The bootloader reports how many bytes it received in total and the
// final value of its running XOR checksum.
type ProgramResult struct {
	// Count is the total number of firmware bytes received
	Count uint32

	// Checksum is the bootloader's final running XOR checksum
	Checksum byte
}

// FlashState describes the flash protection level reported by the hub.
type FlashState byte

// Flash protection levels.
const (
	// FlashStateNone means flash is unprotected
	FlashStateNone FlashState = 0x00

	// FlashStateLevel1 means readout protection is active
	FlashStateLevel1 FlashState = 0x01

	// FlashStateLevel2 means the debug port is permanently disabled
	FlashStateLevel2 FlashState = 0x02
)
