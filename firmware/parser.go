package firmware

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Constants for image validation.
const (
	// MinImageSize is the size of the Cortex-M core vector table (16 words)
	MinImageSize = 64

	// MaxImageSize is the largest main firmware image accepted
	MaxImageSize = 4 << 20

	// MaxPatchSize is the largest radio patch accepted
	MaxPatchSize = 512 << 10

	// MaxEncodedSize bounds a published image before decompression
	MaxEncodedSize int64 = 64 << 20

	// thumbBit marks a Thumb-mode branch target
	thumbBit = 0x1
)

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	gzipMagic = []byte{0x1F, 0x8B}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// ReadFile reads a published image from disk without decoding it. Files
// larger than MaxEncodedSize are rejected before they are fully read.
//
// Example:
//
//	data, err := firmware.ReadFile("./tessel-firmware.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	img, err := firmware.Decode(data)
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxEncodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > MaxEncodedSize {
		return nil, &InvalidImageError{
			Reason: fmt.Sprintf("%s exceeds %d bytes", path, MaxEncodedSize),
		}
	}
	return data, nil
}

// Decode decompresses data if needed and validates it as a main firmware
// image. Every validation failure is an *InvalidImageError.
func Decode(data []byte) (*Image, error) {
	raw, compression, err := decompress(data, MaxImageSize)
	if err != nil {
		return nil, err
	}

	if err := Validate(raw); err != nil {
		return nil, err
	}

	return &Image{
		Data:         raw,
		Compression:  compression,
		StackPointer: binary.LittleEndian.Uint32(raw[0:4]),
		ResetVector:  binary.LittleEndian.Uint32(raw[4:8]),
		Digest:       Digest(raw),
	}, nil
}

// Validate runs the structural checks on an uncompressed image.
func Validate(raw []byte) error {
	if len(raw) < MinImageSize {
		return &InvalidImageError{
			Reason: fmt.Sprintf("image too short: got %d bytes, minimum is %d", len(raw), MinImageSize),
		}
	}
	if len(raw) > MaxImageSize {
		return &InvalidImageError{
			Reason: fmt.Sprintf("image too large: got %d bytes, maximum is %d", len(raw), MaxImageSize),
		}
	}

	sp := binary.LittleEndian.Uint32(raw[0:4])
	if sp%4 != 0 || !inSRAM(sp) {
		return &InvalidImageError{
			Reason: fmt.Sprintf("initial stack pointer 0x%08X is not a word-aligned SRAM address", sp),
		}
	}

	reset := binary.LittleEndian.Uint32(raw[4:8])
	if reset == 0 || reset&thumbBit == 0 {
		return &InvalidImageError{
			Reason: fmt.Sprintf("reset vector 0x%08X is not a Thumb entry point", reset),
		}
	}

	return nil
}

// DecodePatch decompresses data if needed and validates it as a radio
// patch.
func DecodePatch(data []byte) (*Patch, error) {
	raw, compression, err := decompress(data, MaxPatchSize)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 {
		return nil, &InvalidImageError{Reason: "radio patch is empty"}
	}
	if len(raw) > MaxPatchSize {
		return nil, &InvalidImageError{
			Reason: fmt.Sprintf("radio patch too large: got %d bytes, maximum is %d", len(raw), MaxPatchSize),
		}
	}

	return &Patch{
		Data:        raw,
		Compression: compression,
		Digest:      Digest(raw),
	}, nil
}

// DetectCompression identifies the encoding of data by its magic bytes.
func DetectCompression(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// decompress returns the decoded bytes, reading at most limit+1 bytes of
// output so the caller can reject oversized images.
func decompress(data []byte, limit int64) ([]byte, Compression, error) {
	compression := DetectCompression(data)

	var out []byte
	var err error
	switch compression {
	case CompressionNone:
		return data, compression, nil

	case CompressionZstd:
		out, err = decompressZstd(data, limit)

	case CompressionGzip:
		var r *gzip.Reader
		r, err = gzip.NewReader(bytes.NewReader(data))
		if err == nil {
			out, err = io.ReadAll(io.LimitReader(r, limit+1))
			_ = r.Close()
		}

	case CompressionLZ4:
		out, err = io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(data)), limit+1))
	}

	if err != nil {
		return nil, compression, &InvalidImageError{
			Reason: fmt.Sprintf("corrupt %s stream", compression),
			Err:    err,
		}
	}
	return out, compression, nil
}

func decompressZstd(data []byte, limit int64) ([]byte, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(limit+1)))
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
