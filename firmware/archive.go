package firmware

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// File names inside a firmware archive.
const (
	// BaseBinaryName is the base firmware binary
	BaseBinaryName = "firmware-base.bin"

	// MetadataName is the JSON metadata record
	MetadataName = "firmware.metadata.json"

	// DefaultProgramName is the optional default user program source
	DefaultProgramName = "main.py"
)

// Archive is a loaded firmware archive: the base binary, its metadata
// and an optional default user program. Immutable once loaded.
type Archive struct {
	// BaseBinary is the unpatched firmware binary
	BaseBinary []byte

	// Metadata describes how to patch the base binary
	Metadata Metadata

	// DefaultProgram is the bundled user program source, or "" if the
	// archive ships none
	DefaultProgram string
}

// OpenArchive parses a firmware archive from its raw ZIP bytes.
// A corrupt container or a missing base binary or metadata file is
// reported as an ArchiveError.
//
// Example:
//
//	data, _ := os.ReadFile("technichub-firmware.zip")
//	archive, err := firmware.OpenArchive(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(archive.Metadata.FirmwareVersion)
func OpenArchive(data []byte) (*Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ArchiveError{Cause: err}
	}

	archive := &Archive{}
	var haveBinary, haveMetadata bool

	for _, f := range r.File {
		switch f.Name {
		case BaseBinaryName:
			archive.BaseBinary, err = readArchiveFile(f)
			if err != nil {
				return nil, &ArchiveError{Cause: err}
			}
			haveBinary = true
		case MetadataName:
			raw, err := readArchiveFile(f)
			if err != nil {
				return nil, &ArchiveError{Cause: err}
			}
			if err := json.Unmarshal(raw, &archive.Metadata); err != nil {
				return nil, &ArchiveError{Cause: fmt.Errorf("parse %s: %w", MetadataName, err)}
			}
			haveMetadata = true
		case DefaultProgramName:
			raw, err := readArchiveFile(f)
			if err != nil {
				return nil, &ArchiveError{Cause: err}
			}
			archive.DefaultProgram = string(raw)
		}
	}

	if !haveBinary {
		return nil, &ArchiveError{Cause: fmt.Errorf("missing %s", BaseBinaryName)}
	}
	if !haveMetadata {
		return nil, &ArchiveError{Cause: fmt.Errorf("missing %s", MetadataName)}
	}

	return archive, nil
}

// readArchiveFile reads one file entry from the archive.
func readArchiveFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}
