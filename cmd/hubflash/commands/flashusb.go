package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hubflash/go-hubflash/dfu"
)

var flashUsbCmd = &cobra.Command{
	Use:   "flash-usb [archive.zip]",
	Short: "Flash firmware to a hub over USB DFU",
	Long: `Flashes a firmware archive to a hub connected over USB in DFU mode.

DFU has no final acknowledgment; completion is inferred from the hub
disconnecting as it reboots into the new firmware.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFlashUsb,
}

func init() {
	flashUsbCmd.Flags().String("program", "", "Custom user program source file to embed")
	flashUsbCmd.Flags().String("name", "", "Custom hub name to embed in the firmware")
	rootCmd.AddCommand(flashUsbCmd)
}

func runFlashUsb(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	archive, err := readOptionalArchive(args)
	if err != nil {
		return err
	}

	programPath, _ := cmd.Flags().GetString("program")
	hubName, _ := cmd.Flags().GetString("name")

	opts := []dfu.Option{
		dfu.WithLogger(newLogger(cfg)),
		dfu.WithEraseProgress(newDfuBar("Erasing")),
		dfu.WithWriteProgress(newDfuBar("Writing")),
	}
	if fetcher := newFetcher(cfg); fetcher != nil {
		opts = append(opts, dfu.WithFetcher(fetcher))
	}

	flasher := dfu.New(dfu.GousbOpener{}, newBuilder(cfg), opts...)

	err = flasher.Flash(cmd.Context(), dfu.Request{
		Archive:     archive,
		ProgramPath: programPath,
		HubName:     hubName,
	})
	if errors.Is(err, dfu.ErrNoDevice) {
		fmt.Println("No hub in DFU mode found. Connect a hub over USB and hold its button while plugging in.")
		return nil
	}
	return err
}
