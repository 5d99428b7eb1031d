package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "hubflash",
	Short: "Firmware flashing tool for LEGO-style hubs",
	Long: `Builds flashable firmware images from packaged archives and delivers
them to a hub over its BLE recovery bootloader or USB DFU.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("mpy-cross", "mpy-cross", "Cross-compiler executable for user programs")
	rootCmd.PersistentFlags().String("firmware-url", "", "Release directory URL for firmware archive downloads")
	rootCmd.PersistentFlags().Duration("scan-timeout", 30*time.Second, "BLE scan timeout")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	viper.BindPFlag("mpy-cross", rootCmd.PersistentFlags().Lookup("mpy-cross"))
	viper.BindPFlag("firmware-url", rootCmd.PersistentFlags().Lookup("firmware-url"))
	viper.BindPFlag("scan-timeout", rootCmd.PersistentFlags().Lookup("scan-timeout"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}
