package protocol

// Command codes understood by the hub's recovery bootloader.
const (
	// CmdEraseFlash erases the firmware region of flash
	CmdEraseFlash = 0x11

	// CmdProgramFlash writes a chunk of firmware at an absolute address
	CmdProgramFlash = 0x22

	// CmdStartApp reboots the hub into the freshly written firmware
	CmdStartApp = 0x33

	// CmdInitLoader prepares the loader for a transfer of the given size
	CmdInitLoader = 0x44

	// CmdGetInfo queries bootloader version, flash range and hub type
	CmdGetInfo = 0x55

	// CmdGetChecksum reads the bootloader's running transfer checksum
	CmdGetChecksum = 0x66

	// CmdGetFlashState queries the flash protection level
	CmdGetFlashState = 0x77

	// CmdDisconnect asks the bootloader to drop the connection
	CmdDisconnect = 0x88
)

// CmdError is the distinguished generic error frame sent by the hub when
// a command could not be handled. The frame echoes the offending command.
const CmdError = 0x05

// Result codes carried by erase and init responses.
const (
	// ResultOK indicates the command was executed successfully
	ResultOK = 0x00

	// ResultError indicates the command failed on the hub
	ResultError = 0xFF
)

// Frame layout sizes in bytes.
const (
	// ProgramHeaderSize is the program request overhead:
	// CMD(1) + SIZE(1) + ADDRESS(4)
	ProgramHeaderSize = 6

	// GetInfoResponseSize is the payload size of a Get Info response:
	// VERSION(4) + START(4) + END(4) + TYPE(1)
	GetInfoResponseSize = 13

	// ChecksumResponseSize is the payload size of a Get Checksum response
	ChecksumResponseSize = 1

	// ProgramResponseSize is the payload size of the terminal program
	// response: COUNT(4) + CHECKSUM(1)
	ProgramResponseSize = 5

	// ResultResponseSize is the payload size of erase/init/state responses
	ResultResponseSize = 1

	// ErrorResponseSize is the payload size of a generic error frame:
	// COMMAND(1) + CODE(1)
	ErrorResponseSize = 2
)

// MaxProgramPayload is the hard upper bound on program chunk payloads.
// The SIZE field counts the address and payload together in one byte.
const MaxProgramPayload = 255 - 4

// XorSeed is the initial value of the running XOR transfer checksum.
// Both sides seed their accumulator with it before the first chunk.
const XorSeed = 0xFF

// ConservativeChunkSize is the largest chunk that every known BLE stack
// queues reliably. Some mobile stacks drop larger write-without-response
// payloads, so cautious callers cap chunks at this size.
const ConservativeChunkSize = 14
