// Package firmware builds flashable hub firmware images from packaged
// firmware archives.
//
// # Archives
//
// A firmware archive is a ZIP container holding the base firmware
// binary (firmware-base.bin), a JSON metadata record
// (firmware.metadata.json) describing how to patch it, and optionally a
// default user program (main.py). See OpenArchive.
//
// # Building
//
// Build patches the base binary into a complete image:
//
//	compiler := &firmware.CommandCompiler{Path: "mpy-cross-v6"}
//	builder := firmware.NewBuilder(compiler)
//	img, err := builder.Build(ctx, archiveBytes, userProgram, "my hub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The resulting layout is the base binary, the compiled user program
// prefixed with its 32-bit length at the metadata's user program offset,
// padding to a 4-byte boundary, and a 32-bit footer checksum. The image
// never exceeds the metadata's max-firmware-size; oversize inputs fail
// with FirmwareTooLargeError before any bytes are written.
//
// # Checksums
//
// Hub firmware verifies itself at boot against a footer checksum
// computed over the image logically padded with erased-flash words
// (0xFFFFFFFF) to the full flash capacity, excluding the footer itself.
// SumComplement32 and CRC32 implement the two algorithms hubs use; both
// consume a lazily produced WordSource so the padding is never
// materialized.
//
// # Fetching
//
// HTTPFetcher downloads the packaged archive matching a detected hub
// type from a release server; it backs the standard install flow in
// package bootloader.
package firmware
