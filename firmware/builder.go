package firmware

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hubflash/go-hubflash/protocol"
)

// Image is a flashable firmware image: the base binary with the user
// program, optional custom hub name and footer checksum patched in.
// The byte layout is:
//
//	[base binary][program length u32 LE][program][pad to 4][checksum u32 LE]
type Image struct {
	// Data is the complete image, ready to stream to a bootloader
	Data []byte

	// DeviceID is the hub type the image was built for, taken from the
	// archive metadata
	DeviceID protocol.HubType
}

// Builder assembles flashable firmware images from packaged archives.
type Builder struct {
	compiler Compiler
}

// NewBuilder creates a Builder using the given compiler for user
// programs.
func NewBuilder(compiler Compiler) *Builder {
	if compiler == nil {
		panic("compiler cannot be nil")
	}
	return &Builder{compiler: compiler}
}

// Build produces a flashable image from raw archive bytes.
//
// programSource overrides the archive's bundled default program; pass ""
// to use the default. When the archive bundles no default either, an
// empty program is embedded so the hub always has a valid (if trivial)
// user program slot. hubName, when non-empty, is written into the
// firmware's custom name field; an empty name leaves the firmware's
// built-in name untouched.
//
// Build never returns a partial image: every failure branch aborts
// before the image is handed back.
func (b *Builder) Build(ctx context.Context, archiveData []byte, programSource, hubName string) (*Image, error) {
	archive, err := OpenArchive(archiveData)
	if err != nil {
		return nil, err
	}
	return b.BuildFromArchive(ctx, archive, programSource, hubName)
}

// BuildFromArchive is Build for an already opened archive.
func (b *Builder) BuildFromArchive(ctx context.Context, archive *Archive, programSource, hubName string) (*Image, error) {
	meta := &archive.Metadata

	if err := meta.Validate(); err != nil {
		return nil, err
	}

	// Empty string is a deliberate fallback, never nil: hubs expect the
	// program slot to hold a valid (possibly empty) module.
	source := programSource
	if source == "" {
		source = archive.DefaultProgram
	}

	program, err := b.compiler.Compile(ctx, source, meta.MpyAbiVersion, meta.MpyCrossOptions)
	if err != nil {
		return nil, &CompileError{Cause: err}
	}

	checksumOffset := meta.UserProgramOffset + 4 + len(program) + pad4(len(program))
	imageSize := checksumOffset + 4
	if imageSize > meta.MaxFirmwareSize {
		return nil, &FirmwareTooLargeError{Size: imageSize, MaxSize: meta.MaxFirmwareSize}
	}

	image := make([]byte, imageSize)
	copy(image, archive.BaseBinary)
	binary.LittleEndian.PutUint32(image[meta.UserProgramOffset:], uint32(len(program)))
	copy(image[meta.UserProgramOffset+4:], program)

	if meta.MaxHubNameSize > 0 && hubName != "" {
		if err := writeHubName(image, meta, hubName); err != nil {
			return nil, err
		}
	}

	// The checksum covers the image up to (not including) the footer,
	// logically padded with erased-flash words to the flash capacity.
	words := NewPaddedWords(image[:checksumOffset], meta.MaxFirmwareSize-4)
	cs := checksum(meta.ChecksumType, words)
	if cs == 0 {
		// 0 doubles as the unsupported-type sentinel; a genuine zero
		// checksum is rejected too. Inherited conflation, kept as is.
		return nil, &UnsupportedMetadataError{
			Field: "checksum-type",
			Value: string(meta.ChecksumType),
		}
	}
	binary.LittleEndian.PutUint32(image[checksumOffset:], cs)

	return &Image{Data: image, DeviceID: meta.DeviceID}, nil
}

// writeHubName encodes the custom hub name into the image.
// The name plus its zero terminator must fit the firmware's name field.
func writeHubName(image []byte, meta *Metadata, name string) error {
	encoded := []byte(name)
	if len(encoded)+1 > meta.MaxHubNameSize {
		return &NameTooLongError{Name: name, MaxSize: meta.MaxHubNameSize}
	}
	if meta.HubNameOffset+meta.MaxHubNameSize > len(image) {
		return &UnsupportedMetadataError{
			Field: "hub-name-offset",
			Value: fmt.Sprintf("%d", meta.HubNameOffset),
		}
	}

	field := image[meta.HubNameOffset : meta.HubNameOffset+meta.MaxHubNameSize]
	for i := range field {
		field[i] = 0
	}
	copy(field, encoded)
	return nil
}

// pad4 returns the number of fill bytes (0-3) needed to round n up to a
// multiple of 4.
func pad4(n int) int {
	return (4 - n%4) % 4
}
