package protocol

import "fmt"

// HubRejectedError represents a generic error frame from the hub.
// It carries the command the bootloader could not handle.
type HubRejectedError struct {
	// Command is the command code the hub rejected
	Command byte
}

func (e *HubRejectedError) Error() string {
	return fmt.Sprintf("hub rejected command %s (0x%02X)", commandName(e.Command), e.Command)
}

// IsHubRejectedError returns true if the error is a HubRejectedError.
func IsHubRejectedError(err error) bool {
	_, ok := err.(*HubRejectedError)
	return ok
}

// commandName returns a human-readable name for a command code.
func commandName(cmd byte) string {
	switch cmd {
	case CmdEraseFlash:
		return "erase flash"
	case CmdProgramFlash:
		return "program flash"
	case CmdStartApp:
		return "start app"
	case CmdInitLoader:
		return "init loader"
	case CmdGetInfo:
		return "get info"
	case CmdGetChecksum:
		return "get checksum"
	case CmdGetFlashState:
		return "get flash state"
	case CmdDisconnect:
		return "disconnect"
	default:
		return "unknown command"
	}
}
