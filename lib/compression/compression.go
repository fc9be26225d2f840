// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies a compression algorithm.
type Algorithm uint8

const (
	// None stores the plaintext as is.
	None Algorithm = iota

	// LZ4 is LZ4 block compression: fast, modest ratio.
	LZ4

	// Zstd is zstd at the default level: better ratio for text.
	Zstd
)

// String returns the name recorded in envelopes.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Parse returns the algorithm with the given name. The empty string
// is None.
func Parse(name string) (Algorithm, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unknown compression algorithm %q", name)
	}
}

// Mode is a configured compression preference: "auto", "none",
// "lz4" or "zstd".
type Mode string

// Resolve turns a mode into a concrete algorithm for data.
func (m Mode) Resolve(data []byte, mediaType string) (Algorithm, error) {
	if m == "" || m == "auto" {
		return Auto(data, mediaType), nil
	}
	return Parse(string(m))
}

// MaxDecompressedSize is the largest plaintext Decompress produces.
const MaxDecompressedSize = 4 << 30

// lz4MaxRatio is the most an LZ4 block can expand: a match length
// grows by at most 255 per input byte.
const lz4MaxRatio = 255

// zstdPreallocRatio bounds the output buffer reserved before a zstd
// frame is decoded; larger outputs grow as they decode.
const zstdPreallocRatio = 16

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compression: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		panic("compression: zstd decoder initialization failed: " + err.Error())
	}
}

// sampleSize bounds how much of a blob Auto compresses to estimate the
// ratio.
const sampleSize = 256 << 10

// Auto chooses an algorithm. Text-like media types get zstd; media
// types that are already compressed get none; anything else is sampled
// with zstd and classified by ratio.
func Auto(data []byte, mediaType string) Algorithm {
	if len(data) == 0 {
		return None
	}
	base, _, _ := strings.Cut(mediaType, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	switch {
	case strings.HasPrefix(base, "text/"),
		base == "application/json", base == "application/xml",
		base == "application/x-ndjson", base == "application/sql",
		base == "image/svg+xml":
		return Zstd
	case strings.HasPrefix(base, "video/"), strings.HasPrefix(base, "audio/"),
		base == "image/png", base == "image/jpeg", base == "image/gif", base == "image/webp",
		base == "application/zip", base == "application/gzip", base == "application/zstd":
		return None
	}

	sample := data
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	ratio := float64(len(sample)) / float64(len(zstdEncoder.EncodeAll(sample, nil)))
	switch {
	case ratio >= 1.5:
		return Zstd
	case ratio >= 1.1:
		return LZ4
	default:
		return None
	}
}

// Compress compresses data with algorithm. When the output would not
// be smaller than the input it returns data unchanged with None.
func Compress(data []byte, algorithm Algorithm) ([]byte, Algorithm, error) {
	switch algorithm {
	case None:
		return data, None, nil
	case LZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, None, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock reports 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return data, None, nil
		}
		return destination[:written], LZ4, nil
	case Zstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, None, nil
		}
		return compressed, Zstd, nil
	default:
		return nil, None, fmt.Errorf("unsupported compression algorithm %s", algorithm)
	}
}

// Decompress reverses Compress. size is the original length; output
// of any other length is an error. size is checked against what data
// can expand to before anything is allocated.
func Decompress(data []byte, algorithm Algorithm, size int64) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative decompressed size %d", size)
	}
	if size > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed size %d exceeds the %d byte limit", size, int64(MaxDecompressedSize))
	}
	switch algorithm {
	case None:
		if int64(len(data)) != size {
			return nil, fmt.Errorf("uncompressed data is %d bytes, want %d", len(data), size)
		}
		return data, nil
	case LZ4:
		if size > int64(len(data))*lz4MaxRatio {
			return nil, fmt.Errorf("lz4 block of %d bytes cannot expand to %d bytes", len(data), size)
		}
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if int64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", read, size)
		}
		return destination, nil
	case Zstd:
		capacity := min(size, int64(len(data))*zstdPreallocRatio)
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, capacity))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if int64(len(result)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(result), size)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %s", algorithm)
	}
}
