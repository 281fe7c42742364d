// Package firmware decodes and validates images before they are flashed.
//
// # Image Format
//
// Main firmware is a raw Cortex-M flash image. The first words are the
// vector table:
//
//	[InitialSP(4)][ResetVector(4)][NMI(4)][HardFault(4)]...
//
// All words are little-endian. A flashable image must have:
//   - at least MinImageSize bytes (the core vector table)
//   - an initial stack pointer that is word-aligned and inside SRAM
//   - a non-zero reset vector with the Thumb bit set
//   - at most MaxImageSize bytes
//
// Radio patches are opaque blobs for the wifi co-processor. They are only
// checked for size.
//
// # Compression
//
// Images may be published compressed. Decode recognises zstd, gzip and
// LZ4 frames by their magic bytes and validates the decompressed bytes.
//
// # Usage
//
//	img, err := firmware.Decode(data)
//	if err != nil {
//	    var invalid *firmware.InvalidImageError
//	    if errors.As(err, &invalid) { ... }
//	}
//	fmt.Printf("reset vector 0x%08X, digest %s\n", img.ResetVector, img.Digest)
//
// ReadFile loads a local image with the same size bound a download has.
package firmware
