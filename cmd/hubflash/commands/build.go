package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build <archive.zip>",
	Short: "Build a flashable firmware image without flashing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().String("program", "", "Custom user program source file to embed")
	buildCmd.Flags().String("name", "", "Custom hub name to embed in the firmware")
	buildCmd.Flags().StringP("output", "o", "firmware.bin", "Output image file")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	archive, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	programPath, _ := cmd.Flags().GetString("program")
	hubName, _ := cmd.Flags().GetString("name")
	output, _ := cmd.Flags().GetString("output")

	var source string
	if programPath != "" {
		data, err := os.ReadFile(programPath)
		if err != nil {
			return fmt.Errorf("read program: %w", err)
		}
		source = string(data)
	}

	img, err := newBuilder(cfg).Build(cmd.Context(), archive, source, hubName)
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, img.Data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	fmt.Printf("Built %d byte image for %s -> %s\n", len(img.Data), img.DeviceID, output)
	return nil
}
