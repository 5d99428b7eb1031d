package firmware

import "encoding/binary"

// CRC-32 parameters matching the STM32 hardware CRC peripheral, which is
// what the hub bootloaders use to verify the image footer.
const (
	// CRC32Polynomial is the CRC-32 polynomial (0x04C11DB7)
	CRC32Polynomial = 0x04C11DB7

	// CRC32InitialValue is the CRC-32 initial value
	CRC32InitialValue = 0xFFFFFFFF

	// CRC32HighBitMask is the high bit mask for CRC-32 calculations
	CRC32HighBitMask = 0x80000000
)

// padWord is the fill word used to logically extend an image to the
// flash capacity. Erased flash reads as all ones.
const padWord = 0xFFFFFFFF

// WordSource produces a finite sequence of little-endian 32-bit words.
// A source is consumed once; construct a fresh one per checksum
// computation.
type WordSource interface {
	// Next returns the next word, or ok=false when the sequence ends
	Next() (word uint32, ok bool)
}

// paddedWords yields an image's bytes as little-endian words, then
// synthetic pad words up to the flash capacity. The padding is never
// materialized, so checksumming a small image against a multi-megabyte
// capacity stays cheap.
type paddedWords struct {
	data      []byte
	pos       int
	remaining int
}

// NewPaddedWords returns a WordSource over data extended with 0xFFFFFFFF
// words up to maxSize bytes. The data length must be a multiple of 4;
// images produced by Build always are.
func NewPaddedWords(data []byte, maxSize int) WordSource {
	return &paddedWords{
		data:      data,
		remaining: (maxSize - len(data)) / 4,
	}
}

func (w *paddedWords) Next() (uint32, bool) {
	if w.pos+4 <= len(w.data) {
		word := binary.LittleEndian.Uint32(w.data[w.pos:])
		w.pos += 4
		return word, true
	}
	if w.remaining > 0 {
		w.remaining--
		return padWord, true
	}
	return 0, false
}

// SumComplement32 computes a two's-complement sum over a word sequence.
// Adding the result to the sum of the words yields zero modulo 2^32,
// which is the property the hub firmware checks at boot.
//
// A result of 0 is indistinguishable from the sentinel the caller uses
// for "unsupported checksum type" and is treated as a validation
// failure. That conflation is inherited behavior; see Build.
func SumComplement32(words WordSource) uint32 {
	var sum uint32
	for {
		word, ok := words.Next()
		if !ok {
			break
		}
		sum += word
	}
	return ^sum + 1
}

// CRC32 computes the STM32 hardware-style CRC-32 over a word sequence:
// word-wise, MSB first, no reflection, no final XOR.
//
// The same zero-value caveat as SumComplement32 applies. Note that a
// sequence ending in nothing but pad words can legitimately drive the
// CRC to 0 (CRC32 of a single 0xFFFFFFFF word from the initial value is
// exactly 0), so the conflation is not merely theoretical here.
func CRC32(words WordSource) uint32 {
	var crc uint32 = CRC32InitialValue

	for {
		word, ok := words.Next()
		if !ok {
			break
		}
		crc ^= word
		for i := 0; i < 32; i++ {
			if crc&CRC32HighBitMask != 0 {
				crc = (crc << 1) ^ CRC32Polynomial
			} else {
				crc = crc << 1
			}
		}
	}

	return crc
}

// checksum dispatches on the metadata checksum type. Returns 0 for an
// unknown type; callers must treat 0 as unsupported.
func checksum(typ ChecksumType, words WordSource) uint32 {
	switch typ {
	case ChecksumSum:
		return SumComplement32(words)
	case ChecksumCrc32:
		return CRC32(words)
	default:
		return 0
	}
}
