package commands

import (
	"github.com/spf13/cobra"

	"github.com/hubflash/go-hubflash/ble"
	"github.com/hubflash/go-hubflash/bootloader"
	"github.com/hubflash/go-hubflash/protocol"
)

var flashCmd = &cobra.Command{
	Use:   "flash [archive.zip]",
	Short: "Flash firmware to a hub over BLE",
	Long: `Flashes a firmware archive to a hub held in bootloader mode.

With an archive file argument the image is built from it up front.
Without one, the hub is identified first and the matching archive is
downloaded from the configured firmware URL.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().String("program", "", "Custom user program source file to embed")
	flashCmd.Flags().String("name", "", "Custom hub name to embed in the firmware")
	flashCmd.Flags().Bool("conservative", false, "Cap program chunks at 14 bytes for fragile BLE stacks")
	rootCmd.AddCommand(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) error {
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
	conservative, _ := cmd.Flags().GetBool("conservative")

	transport := ble.NewTransport(ble.WithScanTimeout(cfg.ScanTimeout))

	opts := []bootloader.Option{
		bootloader.WithLogger(newLogger(cfg)),
		bootloader.WithProgressCallback(newProgressRenderer()),
	}
	if fetcher := newFetcher(cfg); fetcher != nil {
		opts = append(opts, bootloader.WithFetcher(fetcher))
	}
	if conservative {
		opts = append(opts, bootloader.WithChunkLimit(protocol.ConservativeChunkSize))
	}

	flasher := bootloader.New(transport, newBuilder(cfg), opts...)

	return flasher.Flash(cmd.Context(), bootloader.Request{
		Archive:     archive,
		ProgramPath: programPath,
		HubName:     hubName,
	})
}
