package bootloader

import (
	"time"

	"github.com/google/uuid"
)

// Phase identifies the current step of a flash attempt.
type Phase string

// Flash phases in order of occurrence.
const (
	PhaseBuilding     Phase = "building"
	PhaseConnecting   Phase = "connecting"
	PhaseIdentifying  Phase = "identifying"
	PhaseErasing      Phase = "erasing"
	PhaseInitializing Phase = "initializing"
	PhaseProgramming  Phase = "programming"
	PhaseFinalizing   Phase = "finalizing"
	PhaseRebooting    Phase = "rebooting"
	PhaseComplete     Phase = "complete"
)

// Progress contains information about a flash attempt's progress.
// Passed to ProgressCallback as the attempt advances.
type Progress struct {
	// SessionID identifies the flash attempt
	SessionID uuid.UUID

	// Phase is the current step
	Phase Phase

	// BytesSent is the number of firmware bytes streamed so far
	BytesSent int

	// TotalBytes is the firmware image size, or 0 before it is known
	TotalBytes int

	// Fraction is the completion fraction in [0, 1]
	Fraction float64

	// ElapsedTime is the time since the attempt started
	ElapsedTime time.Duration
}

// ProgressCallback is called as a flash attempt advances.
// Implementations should return quickly to avoid stalling the transfer.
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the
// flasher. This allows integration with any logging framework.
//
// Example with log/slog:
//
//	type SlogLogger struct{ l *slog.Logger }
//	func (s *SlogLogger) Debug(msg string, kv ...interface{}) { s.l.Debug(msg, kv...) }
//	func (s *SlogLogger) Info(msg string, kv ...interface{})  { s.l.Info(msg, kv...) }
//	func (s *SlogLogger) Error(msg string, kv ...interface{}) { s.l.Error(msg, kv...) }
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
