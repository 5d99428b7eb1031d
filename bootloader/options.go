package bootloader

import (
	"context"
	"os"
	"time"

	"github.com/hubflash/go-hubflash/firmware"
	"github.com/hubflash/go-hubflash/protocol"
)

// FileReader reads a user program source file. Used only when a custom
// program path is supplied with a flash request.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// osFileReader reads from the local filesystem.
type osFileReader struct{}

func (osFileReader) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// OSFileReader returns a FileReader backed by the local filesystem.
func OSFileReader() FileReader {
	return osFileReader{}
}

// Config holds the flasher configuration.
type Config struct {
	// ProgressCallback is called as the attempt advances (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Fetcher retrieves packaged archives for the standard install flow;
	// nil means flashing without a pre-supplied archive fails with
	// NoFirmwareError
	Fetcher firmware.Fetcher

	// FileReader reads custom program sources; defaults to the local
	// filesystem
	FileReader FileReader

	// RequestTimeout bounds ordinary request/response exchanges
	RequestTimeout time.Duration

	// EraseTimeout bounds the erase acknowledgment; erasing a full
	// flash bank takes seconds
	EraseTimeout time.Duration

	// ProgramTimeout bounds checksum requests and the terminal program
	// response
	ProgramTimeout time.Duration

	// ChunkLimit caps the program chunk size below the hub's advertised
	// maximum; 0 means use the hub's maximum
	ChunkLimit int
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		FileReader:     osFileReader{},
		RequestTimeout: 500 * time.Millisecond,
		EraseTimeout:   5 * time.Second,
		ProgramTimeout: 5 * time.Second,
	}
}

// Option is a functional option for configuring the Flasher.
type Option func(*Config)

// WithProgressCallback sets a callback to track flash progress.
//
// Example:
//
//	flasher := bootloader.New(transport, builder,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("%.0f%%\n", p.Fraction*100)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for flash operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithFetcher sets the archive fetcher used by the standard install
// flow when no archive was pre-supplied.
func WithFetcher(fetcher firmware.Fetcher) Option {
	return func(c *Config) {
		c.Fetcher = fetcher
	}
}

// WithFileReader sets the reader for custom program source files.
func WithFileReader(reader FileReader) Option {
	return func(c *Config) {
		if reader != nil {
			c.FileReader = reader
		}
	}
}

// WithRequestTimeout sets the timeout for ordinary request/response
// exchanges. Default is 500ms.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.RequestTimeout = timeout
		}
	}
}

// WithEraseTimeout sets the timeout for the erase acknowledgment.
// Default is 5s.
func WithEraseTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.EraseTimeout = timeout
		}
	}
}

// WithProgramTimeout sets the timeout for checksum requests and the
// terminal program response. Default is 5s.
func WithProgramTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ProgramTimeout = timeout
		}
	}
}

// WithChunkLimit caps program chunks below the hub's advertised
// maximum. Some mobile BLE stacks cannot reliably queue writes larger
// than protocol.ConservativeChunkSize; callers on such platforms should
// set that value.
//
// Example:
//
//	flasher := bootloader.New(transport, builder,
//	    bootloader.WithChunkLimit(protocol.ConservativeChunkSize),
//	)
func WithChunkLimit(limit int) Option {
	return func(c *Config) {
		if limit > 0 && limit <= protocol.MaxProgramPayload {
			c.ChunkLimit = limit
		}
	}
}
