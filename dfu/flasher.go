package dfu

import (
	"context"
	"time"

	"github.com/hubflash/go-hubflash/bootloader"
	"github.com/hubflash/go-hubflash/firmware"
)

// Transfer geometry of the hubs' STM32 DfuSe bootloader.
const (
	// ChunkSize is the DFU transfer block size
	ChunkSize = 1024

	// StartAddress is where application firmware begins in flash
	StartAddress = 0x08008000

	// DefaultDisconnectTimeout bounds the wait for the post-write
	// disconnect that signals completion
	DefaultDisconnectTimeout = 30 * time.Second
)

// Request describes one USB flash attempt.
type Request struct {
	// Archive is a pre-supplied packaged firmware archive; nil means
	// fetch by detected hub type
	Archive []byte

	// ProgramPath is an optional custom user program source file
	ProgramPath string

	// HubName is an optional custom hub name to embed in the firmware
	HubName string
}

// Config holds the USB flasher configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger bootloader.Logger

	// Fetcher retrieves packaged archives when no archive was
	// pre-supplied
	Fetcher firmware.Fetcher

	// FileReader reads custom program sources
	FileReader bootloader.FileReader

	// EraseProgress and WriteProgress receive the two DFU progress
	// streams (optional)
	EraseProgress ProgressFunc
	WriteProgress ProgressFunc

	// DisconnectTimeout bounds the completion wait
	DisconnectTimeout time.Duration
}

// Option is a functional option for configuring the Flasher.
type Option func(*Config)

// WithLogger sets a logger for flash operations.
func WithLogger(logger bootloader.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithFetcher sets the archive fetcher used when no archive was
// pre-supplied.
func WithFetcher(fetcher firmware.Fetcher) Option {
	return func(c *Config) { c.Fetcher = fetcher }
}

// WithFileReader sets the reader for custom program source files.
func WithFileReader(reader bootloader.FileReader) Option {
	return func(c *Config) {
		if reader != nil {
			c.FileReader = reader
		}
	}
}

// WithEraseProgress sets the erase progress callback.
func WithEraseProgress(fn ProgressFunc) Option {
	return func(c *Config) { c.EraseProgress = fn }
}

// WithWriteProgress sets the write progress callback.
func WithWriteProgress(fn ProgressFunc) Option {
	return func(c *Config) { c.WriteProgress = fn }
}

// WithDisconnectTimeout sets the completion wait bound. Default is 30s.
func WithDisconnectTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.DisconnectTimeout = timeout
		}
	}
}

// Flasher flashes firmware over USB DFU. It is the alternate delivery
// path for hubs whose BLE bootloader is unreachable; image building is
// shared with the BLE path.
type Flasher struct {
	opener  Opener
	builder *firmware.Builder
	config  Config
}

// New creates a USB DFU Flasher.
func New(opener Opener, builder *firmware.Builder, opts ...Option) *Flasher {
	if opener == nil {
		panic("opener cannot be nil")
	}
	if builder == nil {
		panic("builder cannot be nil")
	}

	cfg := Config{
		FileReader:        bootloader.OSFileReader(),
		DisconnectTimeout: DefaultDisconnectTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Flasher{opener: opener, builder: builder, config: cfg}
}

// Flash runs one complete USB flash attempt. Returns ErrNoDevice when
// no bootloader device is available; that outcome is benign.
//
// The device handle is released on every exit path. Completion is
// inferred from the device disconnecting after the write, because DFU
// offers no application-level acknowledgment; a CompletionError
// therefore does not prove the flash failed.
func (f *Flasher) Flash(ctx context.Context, req Request) error {
	var source string
	if req.ProgramPath != "" {
		data, err := f.config.FileReader.ReadFile(ctx, req.ProgramPath)
		if err != nil {
			return err
		}
		source = string(data)
	}

	device, err := f.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = device.Close() }()

	hub := device.HubType()
	f.logInfo("dfu device opened", "hub", hub.String())

	archive := req.Archive
	if archive == nil {
		if f.config.Fetcher == nil {
			return &bootloader.NoFirmwareError{Hub: hub}
		}
		archive, err = f.config.Fetcher.Fetch(ctx, hub)
		if err != nil {
			return err
		}
	}

	img, err := f.builder.Build(ctx, archive, source, req.HubName)
	if err != nil {
		return err
	}
	if img.DeviceID != hub {
		return &bootloader.DeviceMismatchError{Expected: img.DeviceID, Actual: hub}
	}

	f.logInfo("writing firmware", "hub", hub.String(), "bytes", len(img.Data))
	if err := device.Write(ctx, img.Data, f.config.EraseProgress, f.config.WriteProgress); err != nil {
		return err
	}

	f.logDebug("write complete, waiting for device reset")
	if err := device.WaitDisconnect(ctx, f.config.DisconnectTimeout); err != nil {
		return &CompletionError{Cause: err}
	}

	f.logInfo("flash complete", "hub", hub.String())
	return nil
}

func (f *Flasher) logDebug(msg string, keysAndValues ...interface{}) {
	if f.config.Logger != nil {
		f.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (f *Flasher) logInfo(msg string, keysAndValues ...interface{}) {
	if f.config.Logger != nil {
		f.config.Logger.Info(msg, keysAndValues...)
	}
}
