package firmware

import "fmt"

// ArchiveError indicates a corrupt or incomplete firmware archive.
type ArchiveError struct {
	Cause error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("bad firmware archive: %v", e.Cause)
}

func (e *ArchiveError) Unwrap() error {
	return e.Cause
}

// UnsupportedMetadataError indicates a metadata field this library
// cannot work with, such as an unknown checksum type or an out-of-range
// bytecode ABI version.
type UnsupportedMetadataError struct {
	// Field is the metadata key that failed validation
	Field string

	// Value is the offending value, formatted for display
	Value string
}

func (e *UnsupportedMetadataError) Error() string {
	return fmt.Sprintf("unsupported firmware metadata: %s=%q", e.Field, e.Value)
}

// FirmwareTooLargeError indicates the patched image would exceed the
// hub's flash capacity. Detected before any image bytes are written.
type FirmwareTooLargeError struct {
	Size    int
	MaxSize int
}

func (e *FirmwareTooLargeError) Error() string {
	return fmt.Sprintf("firmware too large: %d bytes exceeds capacity of %d", e.Size, e.MaxSize)
}

// CompileError indicates the user program could not be compiled.
type CompileError struct {
	Cause error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile user program: %v", e.Cause)
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}

// NameTooLongError indicates a custom hub name that does not fit the
// firmware's name field, including its zero terminator.
type NameTooLongError struct {
	Name    string
	MaxSize int
}

func (e *NameTooLongError) Error() string {
	return fmt.Sprintf("hub name %q does not fit in %d bytes", e.Name, e.MaxSize)
}

// FetchError indicates a failed firmware archive download.
type FetchError struct {
	// URL is the request URL
	URL string

	// StatusCode is the HTTP status, or 0 when the request itself failed
	StatusCode int

	// Cause is the underlying error, if any
	Cause error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}
