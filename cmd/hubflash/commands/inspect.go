package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hubflash/go-hubflash/firmware"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive.zip>",
	Short: "Print the contents of a firmware archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	archive, err := firmware.OpenArchive(data)
	if err != nil {
		return err
	}

	meta := &archive.Metadata
	fmt.Printf("Firmware version:  %s\n", meta.FirmwareVersion)
	fmt.Printf("Device:            %s (0x%02X)\n", meta.DeviceID, byte(meta.DeviceID))
	fmt.Printf("Checksum type:     %s\n", meta.ChecksumType)
	fmt.Printf("MPY ABI version:   %d\n", meta.MpyAbiVersion)
	fmt.Printf("MPY cross options: %v\n", meta.MpyCrossOptions)
	fmt.Printf("Base binary:       %d bytes\n", len(archive.BaseBinary))
	fmt.Printf("Program offset:    %d\n", meta.UserProgramOffset)
	fmt.Printf("Max firmware size: %d bytes\n", meta.MaxFirmwareSize)
	if meta.MaxHubNameSize > 0 {
		fmt.Printf("Hub name field:    %d bytes at offset %d\n", meta.MaxHubNameSize, meta.HubNameOffset)
	}
	if archive.DefaultProgram != "" {
		fmt.Printf("Default program:   %d bytes of source\n", len(archive.DefaultProgram))
	}
	return nil
}
