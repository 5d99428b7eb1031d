package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/hubflash/go-hubflash/bootloader"
	"github.com/hubflash/go-hubflash/firmware"
	"github.com/hubflash/go-hubflash/internal/config"
)

// timeRounding trims elapsed-time display noise.
const timeRounding = 100 * time.Millisecond

// loadConfig loads and validates the CLI configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the bootloader.Logger the library packages expect,
// backed by slog.
func newLogger(cfg *config.Config) bootloader.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return &slogLogger{
		l: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.l.Debug(msg, keysAndValues...)
}

func (s *slogLogger) Info(msg string, keysAndValues ...interface{}) {
	s.l.Info(msg, keysAndValues...)
}

func (s *slogLogger) Error(msg string, keysAndValues ...interface{}) {
	s.l.Error(msg, keysAndValues...)
}

// newBuilder wires the external cross-compiler into an image builder.
func newBuilder(cfg *config.Config) *firmware.Builder {
	return firmware.NewBuilder(&firmware.CommandCompiler{Path: cfg.MpyCross})
}

// newFetcher returns an archive fetcher, or nil when no release URL is
// configured.
func newFetcher(cfg *config.Config) firmware.Fetcher {
	if cfg.FirmwareURL == "" {
		return nil
	}
	return &firmware.HTTPFetcher{BaseURL: cfg.FirmwareURL}
}

// newProgressRenderer returns a bootloader.ProgressCallback that draws
// a terminal progress bar during the programming phase and prints
// phase transitions otherwise.
func newProgressRenderer() bootloader.ProgressCallback {
	var bar *progressbar.ProgressBar
	var lastPhase bootloader.Phase

	return func(p bootloader.Progress) {
		switch p.Phase {
		case bootloader.PhaseProgramming:
			if bar == nil {
				bar = progressbar.NewOptions(p.TotalBytes,
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("Flashing"),
					progressbar.OptionShowBytes(true),
				)
			}
			_ = bar.Set(p.BytesSent)
		case bootloader.PhaseComplete:
			if bar != nil {
				_ = bar.Finish()
			}
			fmt.Printf("\nDone in %s\n", p.ElapsedTime.Round(timeRounding))
		default:
			if p.Phase != lastPhase {
				fmt.Printf("%s...\n", p.Phase)
			}
		}
		lastPhase = p.Phase
	}
}

// newDfuBar returns a progress callback drawing a bar over a DFU
// erase or write stream.
func newDfuBar(description string) func(fraction float64) {
	var bar *progressbar.ProgressBar
	return func(fraction float64) {
		if bar == nil {
			bar = progressbar.NewOptions(100,
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(description),
			)
		}
		_ = bar.Set(int(fraction * 100))
	}
}

// readOptionalArchive reads the archive file argument if one was given.
func readOptionalArchive(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return data, nil
}
