package firmware

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hubflash/go-hubflash/protocol"
)

// fixedCompiler returns canned bytecode regardless of source.
type fixedCompiler struct {
	program []byte
	calls   int
	source  string
	abi     int
	options []string
}

func (c *fixedCompiler) Compile(_ context.Context, source string, abiVersion int, options []string) ([]byte, error) {
	c.calls++
	c.source = source
	c.abi = abiVersion
	c.options = options
	return c.program, nil
}

func TestBuildImageLayout(t *testing.T) {
	// metadata {abi: 5, crc32, max 65536, offset 100}, program of 10
	// bytes: checksumOffset = 100+4+10+2 = 116, image length 120.
	meta := testMetadata()
	meta.MpyAbiVersion = 5
	base := bytes.Repeat([]byte{0x5A}, 100)
	program := bytes.Repeat([]byte{0xC3}, 10)
	compiler := &fixedCompiler{program: program}

	img, err := NewBuilder(compiler).Build(context.Background(), makeArchive(t, meta, base, ""), "print(1)", "")
	assert.NoError(t, err)
	assert.Len(t, img.Data, 120)
	assert.Equal(t, protocol.HubTypeTechnicHub, img.DeviceID)

	// Base binary survives untouched.
	assert.Equal(t, base, img.Data[:100])

	// Program length and bytes at the user program offset.
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(img.Data[100:104]))
	assert.Equal(t, program, img.Data[104:114])

	// Alignment padding is zero.
	assert.Equal(t, []byte{0x00, 0x00}, img.Data[114:116])

	// Footer checksum is excluded from its own word range: recomputing
	// over everything before it reproduces the stored value.
	expected := CRC32(NewPaddedWords(img.Data[:116], meta.MaxFirmwareSize-4))
	assert.Equal(t, expected, binary.LittleEndian.Uint32(img.Data[116:120]))

	// Compiler was handed the metadata's ABI and options.
	assert.Equal(t, 1, compiler.calls)
	assert.Equal(t, "print(1)", compiler.source)
	assert.Equal(t, 5, compiler.abi)
	assert.Equal(t, []string{"-mno-unicode"}, compiler.options)
}

func TestBuildDeterministic(t *testing.T) {
	meta := testMetadata()
	base := bytes.Repeat([]byte{0x11}, 100)
	data := makeArchive(t, meta, base, "")
	builder := NewBuilder(&fixedCompiler{program: []byte{1, 2, 3, 4}})

	first, err := builder.Build(context.Background(), data, "x = 1", "")
	assert.NoError(t, err)
	second, err := builder.Build(context.Background(), data, "x = 1", "")
	assert.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestBuildProgramFallbacks(t *testing.T) {
	meta := testMetadata()
	base := bytes.Repeat([]byte{0x11}, 100)

	t.Run("default program used when no source given", func(t *testing.T) {
		compiler := &fixedCompiler{program: []byte{1, 2, 3, 4}}
		_, err := NewBuilder(compiler).Build(context.Background(), makeArchive(t, meta, base, "print('default')\n"), "", "")
		assert.NoError(t, err)
		assert.Equal(t, "print('default')\n", compiler.source)
	})

	t.Run("caller source wins over default", func(t *testing.T) {
		compiler := &fixedCompiler{program: []byte{1, 2, 3, 4}}
		_, err := NewBuilder(compiler).Build(context.Background(), makeArchive(t, meta, base, "print('default')\n"), "print('mine')", "")
		assert.NoError(t, err)
		assert.Equal(t, "print('mine')", compiler.source)
	})

	t.Run("empty program when neither exists", func(t *testing.T) {
		compiler := &fixedCompiler{program: nil}
		img, err := NewBuilder(compiler).Build(context.Background(), makeArchive(t, meta, base, ""), "", "")
		assert.NoError(t, err)
		assert.Equal(t, "", compiler.source)
		// Zero-length program: checksumOffset = 100+4+0+0 = 104.
		assert.Len(t, img.Data, 108)
		assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(img.Data[100:104]))
	})
}

func TestBuildUnsupportedAbi(t *testing.T) {
	for _, abi := range []int{0, 4, 7} {
		meta := testMetadata()
		meta.MpyAbiVersion = abi
		compiler := &fixedCompiler{program: []byte{1}}

		_, err := NewBuilder(compiler).Build(context.Background(), makeArchive(t, meta, []byte{0x01}, ""), "", "")
		var metaErr *UnsupportedMetadataError
		assert.ErrorAs(t, err, &metaErr)
		assert.Equal(t, "mpy-abi-version", metaErr.Field)
		assert.Equal(t, 0, compiler.calls, "no compile for abi %d", abi)
	}
}

func TestBuildUnalignedProgramOffset(t *testing.T) {
	// An offset off the 4-byte grid would silently drop the trailing
	// bytes from the checksum word stream; it must be rejected up front.
	meta := testMetadata()
	meta.UserProgramOffset = 102
	compiler := &fixedCompiler{program: []byte{1, 2, 3, 4}}

	_, err := NewBuilder(compiler).
		Build(context.Background(), makeArchive(t, meta, bytes.Repeat([]byte{0x5A}, 102), ""), "", "")

	var metaErr *UnsupportedMetadataError
	assert.ErrorAs(t, err, &metaErr)
	assert.Equal(t, "user-mpy-offset", metaErr.Field)
	assert.Equal(t, 0, compiler.calls)
}

func TestBuildFirmwareTooLarge(t *testing.T) {
	meta := testMetadata()
	meta.MaxFirmwareSize = 116 // one byte short of the needed 120

	_, err := NewBuilder(&fixedCompiler{program: make([]byte, 10)}).
		Build(context.Background(), makeArchive(t, meta, bytes.Repeat([]byte{0x5A}, 100), ""), "", "")

	var sizeErr *FirmwareTooLargeError
	assert.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, 120, sizeErr.Size)
	assert.Equal(t, 116, sizeErr.MaxSize)
}

func TestBuildUnsupportedChecksumType(t *testing.T) {
	meta := testMetadata()
	meta.ChecksumType = "md5"

	_, err := NewBuilder(&fixedCompiler{program: []byte{1, 2, 3, 4}}).
		Build(context.Background(), makeArchive(t, meta, bytes.Repeat([]byte{0x5A}, 100), ""), "", "")

	var metaErr *UnsupportedMetadataError
	assert.ErrorAs(t, err, &metaErr)
	assert.Equal(t, "checksum-type", metaErr.Field)
}

func TestBuildCompileError(t *testing.T) {
	failing := CompilerFunc(func(context.Context, string, int, []string) ([]byte, error) {
		return nil, assert.AnError
	})

	_, err := NewBuilder(failing).
		Build(context.Background(), makeArchive(t, testMetadata(), []byte{0x01}, ""), "", "")

	var compileErr *CompileError
	assert.ErrorAs(t, err, &compileErr)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBuildHubName(t *testing.T) {
	meta := testMetadata()
	meta.MaxHubNameSize = 16
	meta.HubNameOffset = 32
	base := bytes.Repeat([]byte{0x5A}, 100)
	builder := NewBuilder(&fixedCompiler{program: []byte{1, 2, 3, 4}})

	t.Run("name written zero padded", func(t *testing.T) {
		img, err := builder.Build(context.Background(), makeArchive(t, meta, base, ""), "", "robot")
		assert.NoError(t, err)

		field := img.Data[32:48]
		assert.Equal(t, []byte("robot"), field[:5])
		assert.Equal(t, bytes.Repeat([]byte{0x00}, 11), field[5:])
	})

	t.Run("empty name preserves firmware default", func(t *testing.T) {
		img, err := builder.Build(context.Background(), makeArchive(t, meta, base, ""), "", "")
		assert.NoError(t, err)
		assert.Equal(t, base[32:48], img.Data[32:48])
	})

	t.Run("name too long for field", func(t *testing.T) {
		_, err := builder.Build(context.Background(), makeArchive(t, meta, base, ""), "", "a name well over sixteen bytes")
		var nameErr *NameTooLongError
		assert.ErrorAs(t, err, &nameErr)
	})

	t.Run("exactly filling the field with terminator", func(t *testing.T) {
		img, err := builder.Build(context.Background(), makeArchive(t, meta, base, ""), "", "123456789012345")
		assert.NoError(t, err)
		assert.Equal(t, byte(0), img.Data[47])
	})

	t.Run("name ignored when firmware has no name field", func(t *testing.T) {
		plain := testMetadata()
		img, err := builder.Build(context.Background(), makeArchive(t, plain, base, ""), "", "robot")
		assert.NoError(t, err)
		assert.Equal(t, base[32:48], img.Data[32:48])
	})
}

func TestBuildSumChecksum(t *testing.T) {
	meta := testMetadata()
	meta.ChecksumType = ChecksumSum
	meta.MaxFirmwareSize = 1024

	img, err := NewBuilder(&fixedCompiler{program: []byte{1, 2, 3, 4}}).
		Build(context.Background(), makeArchive(t, meta, bytes.Repeat([]byte{0x5A}, 100), ""), "", "")
	assert.NoError(t, err)

	footer := binary.LittleEndian.Uint32(img.Data[len(img.Data)-4:])
	expected := SumComplement32(NewPaddedWords(img.Data[:len(img.Data)-4], meta.MaxFirmwareSize-4))
	assert.Equal(t, expected, footer)
	assert.NotZero(t, footer)
}
