package protocol

// UpdateXorChecksum folds data into a running XOR checksum accumulator.
// Seed the accumulator with XorSeed before the first chunk; the hub's
// bootloader maintains the same accumulator over the bytes it receives,
// which lets the host verify the transfer mid-stream and at the end.
func UpdateXorChecksum(acc byte, data []byte) byte {
	for _, b := range data {
		acc ^= b
	}
	return acc
}
