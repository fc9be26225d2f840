// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package preview produces the lightweight previews shared alongside a
// file: a leading text excerpt for text media, and a small PNG
// thumbnail for raster images. Anything else has no preview.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxTextBytes bounds a text excerpt.
	DefaultMaxTextBytes = 4096

	// DefaultThumbnailSize bounds the longer edge of a thumbnail.
	DefaultThumbnailSize = 256

	// maxSourcePixels refuses to decode images whose header claims
	// more pixels than this.
	maxSourcePixels = 64 << 20
)

// Preview is a generated preview blob.
type Preview struct {
	Data      []byte
	MediaType string
}

// Generator produces previews. The zero value uses the defaults.
type Generator struct {
	MaxTextBytes  int
	ThumbnailSize int
}

// Eligible reports whether mediaType can have a preview.
func Eligible(mediaType string) bool {
	return classify(mediaType) != none
}

type kind int

const (
	none kind = iota
	text
	raster
)

func classify(mediaType string) kind {
	base, _, _ := strings.Cut(mediaType, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	switch {
	case strings.HasPrefix(base, "text/"), base == "application/json":
		return text
	case base == "image/png", base == "image/jpeg", base == "image/gif":
		return raster
	default:
		return none
	}
}

// Generate returns a preview of data, or ok=false when the media type
// has none or the data is too small to be worth previewing. An error
// means the data claimed an eligible type but could not be read.
func (g Generator) Generate(data []byte, mediaType string) (Preview, bool, error) {
	switch classify(mediaType) {
	case text:
		return g.excerpt(data)
	case raster:
		return g.thumbnail(data)
	default:
		return Preview{}, false, nil
	}
}

func (g Generator) excerpt(data []byte) (Preview, bool, error) {
	limit := g.MaxTextBytes
	if limit <= 0 {
		limit = DefaultMaxTextBytes
	}
	// A file that already fits is its own preview.
	if len(data) <= limit {
		return Preview{}, false, nil
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	excerpt := make([]byte, cut)
	copy(excerpt, data[:cut])
	return Preview{Data: excerpt, MediaType: "text/plain; charset=utf-8"}, true, nil
}

func (g Generator) thumbnail(data []byte) (Preview, bool, error) {
	bound := g.ThumbnailSize
	if bound <= 0 {
		bound = DefaultThumbnailSize
	}

	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Preview{}, false, fmt.Errorf("reading image header: %w", err)
	}
	if config.Width <= 0 || config.Height <= 0 || config.Width*config.Height > maxSourcePixels {
		return Preview{}, false, fmt.Errorf("image dimensions %dx%d are out of range", config.Width, config.Height)
	}
	if config.Width <= bound && config.Height <= bound {
		return Preview{}, false, nil
	}

	source, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Preview{}, false, fmt.Errorf("decoding image: %w", err)
	}
	width, height := scaledSize(config.Width, config.Height, bound)
	thumb := image.NewNRGBA(image.Rect(0, 0, width, height))
	resize(thumb, source)

	var output bytes.Buffer
	if err := png.Encode(&output, thumb); err != nil {
		return Preview{}, false, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return Preview{Data: output.Bytes(), MediaType: "image/png"}, true, nil
}

// scaledSize fits width x height inside bound x bound, keeping the
// aspect ratio and at least one pixel per side.
func scaledSize(width, height, bound int) (int, int) {
	if width >= height {
		return bound, max(1, height*bound/width)
	}
	return max(1, width*bound/height), bound
}

// resize fills destination by nearest-neighbour sampling of source.
func resize(destination *image.NRGBA, source image.Image) {
	sourceBounds := source.Bounds()
	destinationBounds := destination.Bounds()
	normalized := image.NewNRGBA(sourceBounds)
	draw.Draw(normalized, sourceBounds, source, sourceBounds.Min, draw.Src)

	for y := 0; y < destinationBounds.Dy(); y++ {
		sourceY := sourceBounds.Min.Y + y*sourceBounds.Dy()/destinationBounds.Dy()
		for x := 0; x < destinationBounds.Dx(); x++ {
			sourceX := sourceBounds.Min.X + x*sourceBounds.Dx()/destinationBounds.Dx()
			destination.SetNRGBA(x, y, normalized.NRGBAAt(sourceX, sourceY))
		}
	}
}
