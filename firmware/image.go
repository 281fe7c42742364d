package firmware

// Compression identifies how an image was published.
type Compression string

// Recognised image encodings.
const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
	CompressionLZ4  Compression = "lz4"
)

// Image is a decoded, structurally valid main firmware image.
type Image struct {
	// Data is the decompressed flash image, as handed to the flasher
	Data []byte

	// Compression is the encoding the image was published in
	Compression Compression

	// StackPointer is the initial stack pointer (vector table word 0)
	StackPointer uint32

	// ResetVector is the reset handler address (vector table word 1)
	ResetVector uint32

	// Digest is the BLAKE3 hex digest of Data
	Digest string
}

// Patch is a decoded radio co-processor patch.
type Patch struct {
	// Data is the decompressed patch, applied to RAM only
	Data []byte

	// Compression is the encoding the patch was published in
	Compression Compression

	// Digest is the BLAKE3 hex digest of Data
	Digest string
}

// memoryRegion is an address range [Start, End].
type memoryRegion struct {
	Start uint32
	End   uint32
}

// sramRegions are the address ranges an initial stack pointer may point
// into: the local SRAM banks and the AHB SRAM.
var sramRegions = []memoryRegion{
	{Start: 0x10000000, End: 0x10100000},
	{Start: 0x20000000, End: 0x20100000},
}

// inSRAM reports whether a full-descending stack pointer lies inside SRAM.
// The pointer may equal the end of a region since the first push
// decrements it.
func inSRAM(sp uint32) bool {
	for _, r := range sramRegions {
		if sp > r.Start && sp <= r.End {
			return true
		}
	}
	return false
}
